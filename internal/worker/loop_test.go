package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/estuary/vizwork/internal/broker"
	"github.com/estuary/vizwork/internal/logging"
)

// fakeFetcher serves a fixed batch of messages once, then blocks (timing
// out) until ctx is canceled — mirroring the real broker's "empty result
// on timeout is normal and silent" contract (§4.A).
type fakeFetcher struct {
	batch    []broker.Msg
	served   atomic.Bool
	fetchLen atomic.Int64
}

func (f *fakeFetcher) Fetch(ctx context.Context, batch int, timeout time.Duration) ([]broker.Msg, error) {
	if !f.served.Swap(true) {
		f.fetchLen.Add(1)
		return f.batch, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

func TestLoopDispatchesEachMessageAndAcks(t *testing.T) {
	recBroker := &recordingBroker{}
	h := testHandler(nil, recBroker, &fakeObjectStore{key: "k"})

	m1 := &fakeMsg{data: validEnvelopeJSON(t), headers: map[string][]string{}}
	m2 := &fakeMsg{data: validEnvelopeJSON(t), headers: map[string][]string{}}

	loop := &Loop{
		Broker:      &fakeFetcher{batch: []broker.Msg{m1, m2}},
		Handler:     h,
		Log:         logging.New("error", false),
		FetchBatch:  10,
		FetchWait:   10 * time.Millisecond,
		MaxInFlight: 10,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	loop.Run(ctx)
	timedOut := loop.Wait(timeoutCtx(t, time.Second))
	require.False(t, timedOut, "drain should complete well within a second")

	require.True(t, m1.acked)
	require.True(t, m2.acked)
}

func timeoutCtx(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestLoopBoundsMaxInFlight(t *testing.T) {
	recBroker := &recordingBroker{}
	// Each upload takes 150ms, so with 5 messages and 2 slots the second
	// pair of handlers is still running when the assertion below executes.
	h := testHandler(nil, recBroker, &fakeObjectStore{key: "k", delay: 150 * time.Millisecond})

	msgs := make([]broker.Msg, 5)
	for i := range msgs {
		msgs[i] = &fakeMsg{data: validEnvelopeJSON(t), headers: map[string][]string{}}
	}

	loop := &Loop{
		Broker:      &fakeFetcher{batch: msgs},
		Handler:     h,
		Log:         logging.New("error", false),
		FetchBatch:  10,
		FetchWait:   5 * time.Millisecond,
		MaxInFlight: 2,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	require.LessOrEqual(t, loop.Active(), int64(2))
}
