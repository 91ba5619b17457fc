package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/estuary/vizwork/internal/broker"
	"github.com/estuary/vizwork/internal/logging"
)

// Fetcher is the narrow broker surface the fetch loop depends on —
// production wires *broker.Client, tests inject a fake that doesn't
// require a live NATS connection.
type Fetcher interface {
	Fetch(ctx context.Context, batch int, timeout time.Duration) ([]broker.Msg, error)
}

// Loop pulls batches from the broker and spawns a detached handler per
// message, bounded to maxInFlight concurrent handlers (§4.G, §5 "at most
// max_ack_pending=10 in-flight jobs per worker").
type Loop struct {
	Broker      Fetcher
	Handler     *Handler
	Log         logging.Logger
	FetchBatch  int
	FetchWait   time.Duration
	MaxInFlight int64

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	active atomic.Int64
}

// Active returns the number of handlers currently dispatched, for the
// drain-timeout log line §4.H calls for.
func (l *Loop) Active() int64 { return l.active.Load() }

// Run fetches and dispatches until ctx is canceled (the shutdown signal,
// per §4.H), then returns without waiting for dispatched handlers —
// callers use Wait separately for handlers to finish. Messages of a
// fetched batch that are still waiting for a semaphore slot when ctx is
// canceled are not dispatched and are neither acked nor naked.
func (l *Loop) Run(ctx context.Context) {
	if l.sem == nil {
		max := l.MaxInFlight
		if max <= 0 {
			max = 10
		}
		l.sem = semaphore.NewWeighted(max)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := l.Broker.Fetch(ctx, l.FetchBatch, l.FetchWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.Log.WithFields(logging.Fields{"error": err}).Error("worker: fetch failed")
			continue
		}

		for _, m := range msgs {
			if err := l.sem.Acquire(ctx, 1); err != nil {
				return
			}
			l.wg.Add(1)
			go l.dispatch(m)
		}
	}
}

func (l *Loop) dispatch(m broker.Msg) {
	l.active.Add(1)
	defer l.active.Add(-1)
	defer l.wg.Done()
	defer l.sem.Release(1)

	// Handlers run to completion even past shutdown, per §4.H's drain
	// contract: a fresh background context so an in-flight job is never
	// canceled mid-pipeline by the loop's own shutdown signal. The
	// pipeline's own budget timeout is the only thing that bounds it.
	ctx := context.Background()

	if l.Handler.Handle(ctx, m) {
		if err := m.Ack(); err != nil {
			l.Log.WithFields(logging.Fields{"error": err}).Warn("worker: ack failed")
		}
		return
	}
	if err := m.Nak(); err != nil {
		l.Log.WithFields(logging.Fields{"error": err}).Warn("worker: nak failed")
	}
}

// Wait blocks until every dispatched handler has returned, or ctx is
// canceled — the drain budget of §4.H.
func (l *Loop) Wait(ctx context.Context) (activeRemaining bool) {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return false
	case <-ctx.Done():
		return true
	}
}
