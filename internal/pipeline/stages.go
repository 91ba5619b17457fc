// Package pipeline implements the five-stage orchestrator of spec.md
// §4.E: fetch vectors, project, cluster, name clusters, render and
// asset-rewrite, each reporting progress against a fixed anchor range.
package pipeline

import (
	"context"

	"github.com/estuary/vizwork/internal/jobs"
	"github.com/estuary/vizwork/internal/vectorstore"
)

// Point is the fetch stage's working type; an alias of vectorstore.Point
// so both production code and test fakes can share the same value
// without a conversion step.
type Point = vectorstore.Point

// VectorStore is the narrow vector-store surface the fetch stage needs
// (§6.4); production wires *vectorstore.Client, tests inject a fake.
type VectorStore interface {
	GetCollection(ctx context.Context, name string) (vectorstore.CollectionInfo, error)
	Scroll(ctx context.Context, collection string, limit int, offset string, withVectors, withPayload bool) ([]Point, string, error)
	Retrieve(ctx context.Context, collection string, ids []string, withVectors, withPayload bool) ([]Point, error)
}

// VectorStoreFactory builds a VectorStore bound to one job's connection
// record (§3 "a vector-store connection record" is per-job, not process
// config). Production wires a factory that constructs a fresh
// *vectorstore.Client per job; tests that don't care about per-job
// connection routing can leave it nil and set Orchestrator.VectorStore
// directly instead.
type VectorStoreFactory func(jobs.VectorStoreConfig) VectorStore

// Projection is the external 2-D projection stage (§6.4).
type Projection interface {
	Project(ctx context.Context, matrix [][]float64, neighbors int, minDist float64, metric string, seed int64) ([][]float64, error)
}

// Clustering is the external density-based clustering stage (§6.4).
// Labels carry -1 for noise.
type Clustering interface {
	Cluster(ctx context.Context, matrix [][]float64, minClusterSize, minSamples int) ([]int, error)
}

// Renderer is the external HTML rendering stage (§6.4).
type Renderer interface {
	Render(ctx context.Context, matrix [][]float64, labelNames, hoverTexts []string, cfg jobs.RenderingConfig) ([]byte, error)
}

// AssetRewriter strips external font/CDN references from rendered HTML
// and inlines the local font stylesheet, per §6.5.
type AssetRewriter interface {
	Patch(html string) (string, error)
}

// ProgressReporter is the orchestrator's progress callback surface, per
// DESIGN NOTES "Progress callback": production wires *status.Publisher,
// tests inject a recording fake.
type ProgressReporter interface {
	Progress(ctx context.Context, stage string, percent int)
}

// Stage progress anchors, per §4.E's fixed table.
const (
	stageFetchStart   = 5
	stageFetchEnd     = 20
	stageUMAPStart    = 25
	stageUMAPEnd      = 50
	stageClusterStart = 55
	stageClusterEnd   = 70
	stageNamingStart  = 72
	stageNamingEnd    = 85
	stageRenderStart  = 88
	stageRenderEnd    = 100
)
