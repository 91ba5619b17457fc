package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	jobErrors "github.com/estuary/vizwork/internal/errors"
	"github.com/estuary/vizwork/internal/jobs"
	"github.com/estuary/vizwork/internal/llm"
)

const (
	scrollPageSize      = 1000
	idOnlyScrollPage    = 5000
	sampledRetrieveSize = 500
)

// Result is the orchestrator's successful outcome, enough for the
// terminal status envelope (§4.B) and nothing more.
type Result struct {
	HTML         []byte
	PointCount   int
	ClusterCount int
	Labels       jobs.LabelMap
}

// Orchestrator wires the five stages of §4.E together against one job's
// configuration. Every dependency is an interface so tests can substitute
// fakes without touching real network/storage services.
type Orchestrator struct {
	// VectorStore is used directly when VectorStoreFactory is nil —
	// convenient for tests that don't exercise per-job connection
	// routing. Production sets VectorStoreFactory instead.
	VectorStore        VectorStore
	VectorStoreFactory VectorStoreFactory
	Projection         Projection
	Clustering         Clustering
	LLMRegistry        *llm.Registry
	Renderer           Renderer
	AssetRewriter      AssetRewriter
	MaxPoints          int
	Budget             time.Duration
	Rand               *rand.Rand
}

// Run executes the full pipeline for env, reporting progress through
// progress, and returns a Result or a *errors.JobError describing a
// terminal failure kind. The overall budget wraps every stage; on expiry
// the in-flight stage errors out with KindTimeout.
func (o *Orchestrator) Run(ctx context.Context, env *jobs.Envelope, progress ProgressReporter) (*Result, error) {
	budget := o.Budget
	if budget <= 0 {
		budget = 3600 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	points, err := o.fetchVectors(ctx, env, progress)
	if err != nil {
		return nil, wrapTimeout(ctx, err, jobErrors.KindVectorStore)
	}

	if len(points) == 0 {
		progress.Progress(ctx, "generating_html", stageRenderEnd)
		return &Result{PointCount: 0, ClusterCount: 0, Labels: jobs.LabelMap{}}, nil
	}

	matrix := make([][]float64, len(points))
	for i, p := range points {
		matrix[i] = p.Vector
	}

	cfg := env.VisualizationConfig
	progress.Progress(ctx, "applying_umap", stageUMAPStart)
	projected, err := o.Projection.Project(ctx, matrix, cfg.Neighbors, cfg.MinDist, cfg.Metric, 0)
	if err != nil {
		return nil, wrapTimeout(ctx, jobErrors.New(jobErrors.KindRendering, fmt.Errorf("projection: %w", err)), jobErrors.KindRendering)
	}
	progress.Progress(ctx, "applying_umap", stageUMAPEnd)

	progress.Progress(ctx, "clustering", stageClusterStart)
	clusterLabels, err := o.Clustering.Cluster(ctx, projected, cfg.MinClusterSize, cfg.MinSamples)
	if err != nil {
		return nil, wrapTimeout(ctx, jobErrors.New(jobErrors.KindRendering, fmt.Errorf("clustering: %w", err)), jobErrors.KindRendering)
	}
	progress.Progress(ctx, "clustering", stageClusterEnd)

	progress.Progress(ctx, "naming_clusters", stageNamingStart)
	labels := o.nameClusters(ctx, env, clusterLabels, points, cfg.SamplesPerCluster, cfg.NamingBatchSize)
	progress.Progress(ctx, "naming_clusters", stageNamingEnd)

	progress.Progress(ctx, "generating_html", stageRenderStart)
	labelNames := make([]string, len(points))
	hoverTexts := make([]string, len(points))
	for i, p := range points {
		if name, ok := labels[clusterLabels[i]]; ok {
			labelNames[i] = name
		} else {
			labelNames[i] = "Noise"
		}
		hoverTexts[i] = p.HoverText()
	}

	html, err := o.Renderer.Render(ctx, projected, labelNames, hoverTexts, cfg.RenderingConfig)
	if err != nil {
		return nil, wrapTimeout(ctx, jobErrors.New(jobErrors.KindRendering, err), jobErrors.KindRendering)
	}

	patched, err := o.AssetRewriter.Patch(string(html))
	if err != nil {
		return nil, wrapTimeout(ctx, jobErrors.New(jobErrors.KindRendering, fmt.Errorf("asset rewrite: %w", err)), jobErrors.KindRendering)
	}
	progress.Progress(ctx, "generating_html", stageRenderEnd)

	return &Result{
		HTML:         []byte(patched),
		PointCount:   len(points),
		ClusterCount: len(labels),
		Labels:       labels,
	}, nil
}

// wrapTimeout reclassifies any error as KindTimeout if the budget expired
// while the stage was running, per §4.E "exceeding it fails the job with
// a timeout error" — the timeout takes precedence over whatever the
// stage itself reported, since a cancelled context is the proximate cause.
func wrapTimeout(ctx context.Context, err error, fallbackKind jobErrors.Kind) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return jobErrors.Newf(jobErrors.KindTimeout, "pipeline budget exceeded: %w", ctx.Err())
	}
	if _, ok := err.(*jobErrors.JobError); ok {
		return err
	}
	return jobErrors.New(fallbackKind, err)
}

func (o *Orchestrator) resolveVectorStore(cfg jobs.VectorStoreConfig) VectorStore {
	if o.VectorStoreFactory != nil {
		return o.VectorStoreFactory(cfg)
	}
	return o.VectorStore
}

func (o *Orchestrator) fetchVectors(ctx context.Context, env *jobs.Envelope, progress ProgressReporter) ([]Point, error) {
	progress.Progress(ctx, "fetching_vectors", stageFetchStart)
	defer progress.Progress(ctx, "fetching_vectors", stageFetchEnd)

	maxPoints := o.MaxPoints
	if maxPoints <= 0 {
		maxPoints = 100_000_000
	}

	vs := o.resolveVectorStore(env.VectorStore)

	info, err := vs.GetCollection(ctx, env.CollectionName)
	if err != nil {
		return nil, fmt.Errorf("get_collection: %w", err)
	}

	if info.PointsCount <= int64(maxPoints) {
		return o.scrollAll(ctx, vs, env.CollectionName)
	}
	return o.sampleAndRetrieve(ctx, vs, env.CollectionName, maxPoints)
}

func (o *Orchestrator) scrollAll(ctx context.Context, vs VectorStore, collection string) ([]Point, error) {
	var all []Point
	offset := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, next, err := vs.Scroll(ctx, collection, scrollPageSize, offset, true, true)
		if err != nil {
			return nil, fmt.Errorf("scroll: %w", err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		if next == "" || next == offset {
			break
		}
		offset = next
	}
	return all, nil
}

// sampleAndRetrieve implements the over-cap path of §4.E: scroll
// identifiers only, sample uniformly without replacement down to cap,
// then retrieve payloads in batches.
func (o *Orchestrator) sampleAndRetrieve(ctx context.Context, vs VectorStore, collection string, limit int) ([]Point, error) {
	var ids []string
	offset := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, next, err := vs.Scroll(ctx, collection, idOnlyScrollPage, offset, false, false)
		if err != nil {
			return nil, fmt.Errorf("scroll ids: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, p := range page {
			ids = append(ids, p.ID)
		}
		if next == "" || next == offset {
			break
		}
		offset = next
	}

	sampled := o.sampleUniform(ids, limit)

	var all []Point
	for i := 0; i < len(sampled); i += sampledRetrieveSize {
		end := i + sampledRetrieveSize
		if end > len(sampled) {
			end = len(sampled)
		}
		batch, err := vs.Retrieve(ctx, collection, sampled[i:end], true, true)
		if err != nil {
			return nil, fmt.Errorf("retrieve: %w", err)
		}
		all = append(all, batch...)
	}
	return all, nil
}

// sampleUniform performs reservoir-free uniform sampling without
// replacement: a Fisher-Yates partial shuffle limited to cap elements.
func (o *Orchestrator) sampleUniform(ids []string, limit int) []string {
	if limit >= len(ids) {
		return ids
	}
	r := o.Rand
	if r == nil {
		r = rand.New(rand.NewSource(0))
	}
	cp := append([]string{}, ids...)
	for i := 0; i < limit; i++ {
		j := i + r.Intn(len(cp)-i)
		cp[i], cp[j] = cp[j], cp[i]
	}
	return cp[:limit]
}

func (o *Orchestrator) nameClusters(ctx context.Context, env *jobs.Envelope, clusterLabels []int, points []Point, samplesPerCluster, batchSize int) jobs.LabelMap {
	if samplesPerCluster <= 0 {
		samplesPerCluster = jobs.DefaultSamplesPerCluster
	}

	samplesByCluster := make(map[int][]string)
	var order []int
	for i, id := range clusterLabels {
		if id < 0 {
			continue
		}
		if _, ok := samplesByCluster[id]; !ok {
			order = append(order, id)
		}
		if len(samplesByCluster[id]) < samplesPerCluster {
			samplesByCluster[id] = append(samplesByCluster[id], points[i].HoverText())
		}
	}

	clusters := make([]llm.ClusterSamples, 0, len(order))
	for _, id := range order {
		clusters = append(clusters, llm.ClusterSamples{ClusterID: id, Samples: samplesByCluster[id]})
	}

	if batchSize <= 0 {
		batchSize = 10
	}
	if batchSize > 100 {
		batchSize = 100
	}

	return llm.NameClusters(ctx, o.LLMRegistry, env.LLMConfig, clusters, batchSize)
}
