package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estuary/vizwork/internal/jobs"
)

func TestBuildPromptIsVerbatim(t *testing.T) {
	got := BuildPrompt([]string{"alpha", "beta"})
	require.True(t, strings.HasPrefix(got, "These are representative texts from a document cluster:\n\nalpha\n\nbeta\n\n"))
	require.True(t, strings.HasSuffix(got, "Respond with ONLY the topic name, nothing else."))
}

type stubProvider struct{ label string }

func (s *stubProvider) Name(_ context.Context, _ []string, _ *jobs.LLMConfig) (string, error) {
	return s.label, nil
}

func TestRegistryResolvesKnownProviders(t *testing.T) {
	cohere := &stubProvider{label: "c"}
	openai := &stubProvider{label: "o"}
	internal := &stubProvider{label: "i"}
	r := NewRegistry(cohere, openai, internal)

	p, err := r.Resolve(jobs.ProviderCohere)
	require.NoError(t, err)
	require.Same(t, cohere, p)

	p, err = r.Resolve(jobs.LLMProvider("OPENAI"))
	require.NoError(t, err)
	require.Same(t, openai, p)

	p, err = r.Resolve(jobs.ProviderInternal)
	require.NoError(t, err)
	require.Same(t, internal, p)

	_, err = r.Resolve(jobs.LLMProvider("anthropic"))
	require.Error(t, err)
}
