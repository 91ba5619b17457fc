// Package llm implements the cluster-naming subsystem of spec.md §4.F: a
// tagged-variant dispatch over a closed set of providers, a fixed prompt,
// and a bounded-parallelism batch caller with per-cluster fallback.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/estuary/vizwork/internal/jobs"
)

// Provider names a 2-5 word topic label from representative cluster
// texts. cfg carries the per-job model id, API key, and config knobs
// (§3 "LLM configuration" is per-job, not process-global). Implementations
// must not retry internally except where spec.md §4.F explicitly calls
// for it (the internal provider); external providers are single-shot.
type Provider interface {
	Name(ctx context.Context, samples []string, cfg *jobs.LLMConfig) (string, error)
}

// BuildPrompt renders the fixed prompt of spec.md §4.F verbatim.
func BuildPrompt(samples []string) string {
	return fmt.Sprintf(
		"These are representative texts from a document cluster:\n\n%s\n\nProvide a short, concise topic name (2-4 words) that captures the main theme. Respond with ONLY the topic name, nothing else.",
		strings.Join(samples, "\n\n"),
	)
}

// Registry resolves a provider tag (case-insensitive, per §4.F) to a
// concrete Provider implementation.
type Registry struct {
	cohere   Provider
	openai   Provider
	internal Provider
}

// NewRegistry builds the tagged-variant dispatch table, per DESIGN NOTES
// "Dynamic provider dispatch".
func NewRegistry(cohere, openai, internal Provider) *Registry {
	return &Registry{cohere: cohere, openai: openai, internal: internal}
}

func (r *Registry) Resolve(provider jobs.LLMProvider) (Provider, error) {
	switch jobs.LLMProvider(strings.ToLower(string(provider))) {
	case jobs.ProviderCohere:
		return r.cohere, nil
	case jobs.ProviderOpenAI:
		return r.openai, nil
	case jobs.ProviderInternal:
		return r.internal, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
}
