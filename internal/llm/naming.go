package llm

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/estuary/vizwork/internal/jobs"
)

// ClusterSamples is one cluster's representative texts (already capped at
// samples_per_cluster by the caller) keyed by cluster id. The noise
// cluster (-1) is never present, per §4.E.
type ClusterSamples struct {
	ClusterID int
	Samples   []string
}

// NameClusters dispatches one naming call per cluster, bounded to
// batchSize concurrent in-flight calls via errgroup.SetLimit, and falls
// back to a numeric label "Cluster {id}" for any cluster whose call
// errors (§4.E cluster-label protocol, §8 scenario "LLM partial
// failure"). A nil or unusable cfg names every cluster numerically
// without making any calls.
func NameClusters(ctx context.Context, registry *Registry, cfg *jobs.LLMConfig, clusters []ClusterSamples, batchSize int) jobs.LabelMap {
	labels := make(jobs.LabelMap, len(clusters))

	if !cfg.Usable() {
		for _, c := range clusters {
			labels[c.ClusterID] = fallbackLabel(c.ClusterID)
		}
		return labels
	}

	provider, err := registry.Resolve(cfg.Provider)
	if err != nil || provider == nil {
		for _, c := range clusters {
			labels[c.ClusterID] = fallbackLabel(c.ClusterID)
		}
		return labels
	}

	if batchSize <= 0 {
		batchSize = 1
	}

	type result struct {
		id    int
		label string
	}
	results := make([]result, len(clusters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchSize)

	for i, c := range clusters {
		i, c := i, c
		g.Go(func() error {
			name, err := provider.Name(gctx, c.Samples, cfg)
			if err != nil || name == "" {
				results[i] = result{id: c.ClusterID, label: fallbackLabel(c.ClusterID)}
				return nil
			}
			results[i] = result{id: c.ClusterID, label: name}
			return nil
		})
	}
	// Every goroutine above swallows its own error into a fallback label,
	// so Wait always returns nil.
	_ = g.Wait()

	for _, r := range results {
		labels[r.id] = r.label
	}
	return labels
}

func fallbackLabel(clusterID int) string {
	return fmt.Sprintf("Cluster %d", clusterID)
}

// SortedClusterIDs returns the label map's keys in ascending order, for
// deterministic rendering order.
func SortedClusterIDs(labels jobs.LabelMap) []int {
	ids := make([]int, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
