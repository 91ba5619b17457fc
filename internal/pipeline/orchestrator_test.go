package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	jobErrors "github.com/estuary/vizwork/internal/errors"
	"github.com/estuary/vizwork/internal/jobs"
	"github.com/estuary/vizwork/internal/llm"
	"github.com/estuary/vizwork/internal/vectorstore"
)

type fakeVectorStore struct {
	points      []vectorstore.Point
	pointsCount int64
}

func (f *fakeVectorStore) GetCollection(ctx context.Context, name string) (vectorstore.CollectionInfo, error) {
	return vectorstore.CollectionInfo{PointsCount: f.pointsCount}, nil
}

func (f *fakeVectorStore) Scroll(ctx context.Context, collection string, limit int, offset string, withVectors, withPayload bool) ([]vectorstore.Point, string, error) {
	if offset != "" {
		return nil, "", nil
	}
	return f.points, "", nil
}

func (f *fakeVectorStore) Retrieve(ctx context.Context, collection string, ids []string, withVectors, withPayload bool) ([]vectorstore.Point, error) {
	byID := make(map[string]vectorstore.Point, len(f.points))
	for _, p := range f.points {
		byID[p.ID] = p
	}
	out := make([]vectorstore.Point, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}

type identityProjection struct{}

func (identityProjection) Project(ctx context.Context, matrix [][]float64, neighbors int, minDist float64, metric string, seed int64) ([][]float64, error) {
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		out[i] = []float64{row[0], 0}
	}
	return out, nil
}

type bucketClustering struct{ labels []int }

func (b bucketClustering) Cluster(ctx context.Context, matrix [][]float64, minClusterSize, minSamples int) ([]int, error) {
	return b.labels, nil
}

type stubRenderer struct{}

func (stubRenderer) Render(ctx context.Context, matrix [][]float64, labelNames, hoverTexts []string, cfg jobs.RenderingConfig) ([]byte, error) {
	return []byte(fmt.Sprintf("<html><head></head><body>%d points</body></html>", len(matrix))), nil
}

type noopAssetRewriter struct{}

func (noopAssetRewriter) Patch(html string) (string, error) { return html, nil }

type recordingProgress struct {
	events []string
}

func (r *recordingProgress) Progress(ctx context.Context, stage string, percent int) {
	r.events = append(r.events, fmt.Sprintf("%s:%d", stage, percent))
}

func testEnvelope() *jobs.Envelope {
	env := &jobs.Envelope{
		JobID:             jobs.NewID(),
		TransformID:       42,
		VisualizationID:   100,
		OwnerID:           "u1",
		EmbeddedDatasetID: 7,
		CollectionName:    "docs",
	}
	env.VisualizationConfig = jobs.DefaultVisualizationConfig()
	return env
}

func pointsFixture(n int) []vectorstore.Point {
	points := make([]vectorstore.Point, n)
	for i := range points {
		points[i] = vectorstore.Point{
			ID:      fmt.Sprintf("p%d", i),
			Vector:  []float64{float64(i), float64(i) * 2},
			Payload: map[string]any{"text": fmt.Sprintf("document %d", i)},
		}
	}
	return points
}

func TestRunHappyPathNoLLM(t *testing.T) {
	points := pointsFixture(5)
	labels := []int{0, 0, 1, 1, -1}

	o := &Orchestrator{
		VectorStore:   &fakeVectorStore{points: points, pointsCount: int64(len(points))},
		Projection:    identityProjection{},
		Clustering:    bucketClustering{labels: labels},
		LLMRegistry:   llm.NewRegistry(nil, nil, nil),
		Renderer:      stubRenderer{},
		AssetRewriter: noopAssetRewriter{},
		MaxPoints:     1000,
		Budget:        5 * time.Second,
	}

	progress := &recordingProgress{}
	result, err := o.Run(context.Background(), testEnvelope(), progress)
	require.NoError(t, err)
	require.Equal(t, 5, result.PointCount)
	require.Equal(t, 2, result.ClusterCount)
	require.Equal(t, "Cluster 0", result.Labels[0])
	require.Equal(t, "Cluster 1", result.Labels[1])
	require.NotContains(t, result.Labels, -1)
	require.Contains(t, string(result.HTML), "5 points")

	// Run itself no longer emits "starting:0" — the caller (worker.Handler)
	// publishes that once, before invoking Run, so it isn't duplicated here.
	require.Equal(t, "fetching_vectors:5", progress.events[0])
	require.Equal(t, "generating_html:100", progress.events[len(progress.events)-1])
}

type erroringLLM struct{}

func (erroringLLM) Name(ctx context.Context, samples []string, cfg *jobs.LLMConfig) (string, error) {
	if len(samples) > 0 && samples[0] == "document 2" {
		return "", fmt.Errorf("boom")
	}
	return "Named Topic", nil
}

func TestRunLLMPartialFailureFallsBackPerCluster(t *testing.T) {
	points := pointsFixture(3)
	labels := []int{0, 1, 2}

	o := &Orchestrator{
		VectorStore:   &fakeVectorStore{points: points, pointsCount: int64(len(points))},
		Projection:    identityProjection{},
		Clustering:    bucketClustering{labels: labels},
		LLMRegistry:   llm.NewRegistry(nil, nil, erroringLLM{}),
		Renderer:      stubRenderer{},
		AssetRewriter: noopAssetRewriter{},
		Budget:        5 * time.Second,
	}

	env := testEnvelope()
	env.LLMConfig = &jobs.LLMConfig{Provider: jobs.ProviderInternal}

	result, err := o.Run(context.Background(), env, &recordingProgress{})
	require.NoError(t, err)
	require.Equal(t, "Named Topic", result.Labels[0])
	require.Equal(t, "Cluster 2", result.Labels[2])
}

type slowRenderer struct{}

func (slowRenderer) Render(ctx context.Context, matrix [][]float64, labelNames, hoverTexts []string, cfg jobs.RenderingConfig) ([]byte, error) {
	select {
	case <-time.After(2 * time.Second):
		return []byte("<html></html>"), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRunTimesOutWhenBudgetExceeded(t *testing.T) {
	points := pointsFixture(2)
	o := &Orchestrator{
		VectorStore:   &fakeVectorStore{points: points, pointsCount: int64(len(points))},
		Projection:    identityProjection{},
		Clustering:    bucketClustering{labels: []int{0, 0}},
		LLMRegistry:   llm.NewRegistry(nil, nil, nil),
		Renderer:      slowRenderer{},
		AssetRewriter: noopAssetRewriter{},
		Budget:        50 * time.Millisecond,
	}

	_, err := o.Run(context.Background(), testEnvelope(), &recordingProgress{})
	require.Error(t, err)
	kind, _ := jobErrors.As(err)
	require.Equal(t, jobErrors.KindTimeout, kind)
}

func TestRunEmptyCollectionSucceedsWithZeroPoints(t *testing.T) {
	o := &Orchestrator{
		VectorStore:   &fakeVectorStore{points: nil, pointsCount: 0},
		Projection:    identityProjection{},
		Clustering:    bucketClustering{},
		LLMRegistry:   llm.NewRegistry(nil, nil, nil),
		Renderer:      stubRenderer{},
		AssetRewriter: noopAssetRewriter{},
		Budget:        5 * time.Second,
	}

	result, err := o.Run(context.Background(), testEnvelope(), &recordingProgress{})
	require.NoError(t, err)
	require.Equal(t, 0, result.PointCount)
	require.Equal(t, 0, result.ClusterCount)
}

func TestSampleUniformReturnsRequestedSize(t *testing.T) {
	o := &Orchestrator{}
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	sampled := o.sampleUniform(ids, 10)
	require.Len(t, sampled, 10)

	seen := make(map[string]bool)
	for _, id := range sampled {
		require.False(t, seen[id], "duplicate in sample")
		seen[id] = true
	}
}
