package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estuary/vizwork/internal/jobs"
)

func TestNameClustersFallsBackWhenConfigUnusable(t *testing.T) {
	registry := NewRegistry(nil, nil, nil)
	labels := NameClusters(context.Background(), registry, nil, []ClusterSamples{
		{ClusterID: 0, Samples: []string{"a"}},
		{ClusterID: 1, Samples: []string{"b"}},
	}, 4)

	require.Equal(t, "Cluster 0", labels[0])
	require.Equal(t, "Cluster 1", labels[1])
}

type erroringProvider struct {
	errorOn map[string]bool
}

func (p *erroringProvider) Name(_ context.Context, samples []string, _ *jobs.LLMConfig) (string, error) {
	if len(samples) > 0 && p.errorOn[samples[0]] {
		return "", errors.New("provider unavailable")
	}
	return "Named: " + samples[0], nil
}

func TestNameClustersFallsBackPerClusterOnError(t *testing.T) {
	provider := &erroringProvider{errorOn: map[string]bool{"bad": true}}
	registry := NewRegistry(provider, provider, provider)
	cfg := &jobs.LLMConfig{Provider: jobs.ProviderInternal}

	labels := NameClusters(context.Background(), registry, cfg, []ClusterSamples{
		{ClusterID: 0, Samples: []string{"good"}},
		{ClusterID: 1, Samples: []string{"bad"}},
		{ClusterID: 2, Samples: []string{"good"}},
	}, 2)

	require.Equal(t, "Named: good", labels[0])
	require.Equal(t, "Cluster 1", labels[1])
	require.Equal(t, "Named: good", labels[2])
}

func TestNameClustersFallsBackOnUnknownProvider(t *testing.T) {
	registry := NewRegistry(nil, nil, nil)
	cfg := &jobs.LLMConfig{Provider: jobs.LLMProvider("unknown"), APIKey: "k"}

	labels := NameClusters(context.Background(), registry, cfg, []ClusterSamples{
		{ClusterID: 5, Samples: []string{"x"}},
	}, 1)

	require.Equal(t, "Cluster 5", labels[5])
}

func TestSortedClusterIDs(t *testing.T) {
	labels := jobs.LabelMap{3: "c", 0: "a", 1: "b"}
	require.Equal(t, []int{0, 1, 3}, SortedClusterIDs(labels))
}
