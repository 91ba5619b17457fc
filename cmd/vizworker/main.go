// Command vizworker runs the visualization-transform worker: it binds a
// durable pull consumer on the inbound job stream, runs the five-stage
// pipeline per job, uploads the rendered artifact, and publishes status
// envelopes, per spec.md §4.G/§4.H. Grounded on the initialization and
// signal-handling shape of cmd/flow-ingester/main.go, generalized from
// gazette's task.Group to a plain context/WaitGroup pair since this
// worker has no journal broker tasks to queue.
package main

import (
	"context"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/estuary/vizwork/internal/assets"
	"github.com/estuary/vizwork/internal/broker"
	"github.com/estuary/vizwork/internal/config"
	"github.com/estuary/vizwork/internal/jobs"
	"github.com/estuary/vizwork/internal/llm"
	"github.com/estuary/vizwork/internal/logging"
	"github.com/estuary/vizwork/internal/metrics"
	"github.com/estuary/vizwork/internal/objectstore"
	"github.com/estuary/vizwork/internal/pipeline"
	"github.com/estuary/vizwork/internal/vectorstore"
	"github.com/estuary/vizwork/internal/worker"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run performs the initialization sequence of spec.md §4.H: object-store
// client, LLM provider registry, broker connection, consumer bind/create,
// health endpoints, fetch loop. It returns the process exit code (0 clean
// shutdown, 1 fatal initialization failure) rather than calling os.Exit
// itself, so tests can call it directly.
func run(argv []string) int {
	cfg, err := config.Parse(argv)
	if err != nil {
		if flags.WroteHelp(err) {
			return 0
		}
		fmt.Fprintln(os.Stderr, "vizwork: config:", err)
		return 1
	}

	log := logging.New(cfg.Log.Level, cfg.Log.JSON)
	log.WithFields(logging.Fields{"config": fmt.Sprintf("%+v", cfg)}).Info("vizwork: starting")

	sink := metrics.New(prometheus.DefaultRegisterer)

	objectStore := objectstore.New(cfg.ObjectStore.Bucket)

	llmRegistry := llm.NewRegistry(
		llm.NewCohereProvider(),
		llm.NewOpenAIProvider(),
		llm.NewInternalProvider(cfg.LLM.InternalBaseURL),
	)

	fontCache, err := assets.NewFontCache(8)
	if err != nil {
		log.WithFields(logging.Fields{"error": err}).Error("vizwork: failed to initialize font cache")
		return 1
	}
	assetRewriter := &assets.Rewriter{FontsDir: fontsDir(), Cache: fontCache}

	orchestrator := &pipeline.Orchestrator{
		Projection:    pipeline.DefaultProjection{},
		Clustering:    pipeline.DefaultClustering{},
		LLMRegistry:   llmRegistry,
		Renderer:      pipeline.DefaultRenderer{},
		AssetRewriter: assetRewriter,
		MaxPoints:     cfg.Job.MaxPoints,
		Budget:        cfg.Job.Timeout,
		// Each job's envelope carries its own vector-store connection
		// record (§3); a fresh client per job is cheap (a bare http.Client)
		// and avoids one job's credentials leaking into another's request.
		VectorStoreFactory: func(vsCfg jobs.VectorStoreConfig) pipeline.VectorStore {
			return vectorstore.New(vsCfg.URL, vsCfg.APIKey)
		},
	}

	ctx := context.Background()
	brokerClient, err := broker.Connect(ctx, broker.Config{
		URL:            cfg.Broker.URL,
		CredsFile:      cfg.Broker.CredsFile,
		Stream:         cfg.Broker.Stream,
		Subject:        cfg.Broker.Subject,
		Consumer:       cfg.Broker.Consumer,
		MaxAckPending:  cfg.Broker.MaxAckPending,
		BindRetries:    cfg.Broker.BindRetries,
		BindRetryDelay: cfg.Broker.BindRetryDelay,
	}, log)
	if err != nil {
		log.WithFields(logging.Fields{"error": err}).Error("vizwork: failed to connect to broker")
		return 1
	}

	handler := &worker.Handler{
		Orchestrator: orchestrator,
		ObjectStore:  objectStore,
		Broker:       brokerClient,
		Log:          log,
		Metrics:      sink,
	}

	loop := &worker.Loop{
		Broker:      brokerClient,
		Handler:     handler,
		Log:         log,
		FetchBatch:  cfg.Broker.FetchBatch,
		FetchWait:   cfg.Broker.FetchTimeout,
		MaxInFlight: int64(cfg.Broker.MaxAckPending),
	}

	lifecycle := &worker.Lifecycle{
		Loop:        loop,
		Log:         log,
		HealthPort:  cfg.Health.Port,
		DrainBudget: cfg.Drain.Budget,
		CloseBroker: brokerClient.Close,
	}

	health := lifecycle.ServeHealth()
	defer health.Close()

	lifecycle.MarkReady()
	lifecycle.Run(ctx)

	log.Info("vizwork: goodbye")
	return 0
}

func fontsDir() string {
	if d := os.Getenv("VIZWORK_FONTS_DIR"); d != "" {
		return d
	}
	return "/etc/vizwork/fonts"
}
