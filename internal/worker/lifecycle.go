package worker

import (
	"context"
	"net/http"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/estuary/vizwork/internal/logging"
)

// Lifecycle drives the worker's startup, signal handling, and drain,
// per §4.H: signals flip a shutdown flag; the fetch loop stops pulling
// but running handlers finish within the drain budget; health endpoints
// report readiness only once every component has initialized; the
// broker connection closes last.
type Lifecycle struct {
	Loop         *Loop
	Log          logging.Logger
	HealthPort   int
	DrainBudget  time.Duration
	CloseBroker  func()

	ready atomic.Bool
}

// MarkReady flips /health/ready to 200. Call once every component in the
// initialization sequence (object-store, LLM registry, broker, consumer,
// health server) has come up.
func (l *Lifecycle) MarkReady() { l.ready.Store(true) }

// ServeHealth starts the /health/live and /health/ready endpoints in the
// background and returns immediately; it does not block the init
// sequence, per §4.H ("health endpoints" comes after broker/consumer
// setup but must not stall the subsequent fetch loop startup).
func (l *Lifecycle) ServeHealth() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if l.ready.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	srv := &http.Server{
		Addr:    httpAddr(l.HealthPort),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Log.WithFields(logging.Fields{"error": err}).Error("worker: health server stopped")
		}
	}()
	return srv
}

func httpAddr(port int) string {
	if port <= 0 {
		port = 8080
	}
	return ":" + strconv.Itoa(port)
}

// Run installs SIGTERM/SIGINT handling, runs the fetch loop until a
// signal arrives, then drains running handlers up to DrainBudget before
// closing the broker connection last.
func (l *Lifecycle) Run(ctx context.Context) {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	l.Loop.Run(sigCtx)

	budget := l.DrainBudget
	if budget <= 0 {
		budget = 300 * time.Second
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	if l.Loop.Wait(drainCtx) {
		l.Log.WithFields(logging.Fields{"active_jobs": l.Loop.Active()}).
			Warn("worker: drain budget exceeded, exiting with jobs still in flight")
	}

	if l.CloseBroker != nil {
		l.CloseBroker()
	}
}
