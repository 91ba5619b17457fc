package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/estuary/vizwork/internal/logging"
)

func TestServeHealthLiveAlways200AndReadyGatedOnMarkReady(t *testing.T) {
	l := &Lifecycle{Log: logging.New("error", false)}
	srv := l.ServeHealth()
	defer srv.Close()

	live := httptest.NewRecorder()
	srv.Handler.ServeHTTP(live, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, live.Code)

	notReady := httptest.NewRecorder()
	srv.Handler.ServeHTTP(notReady, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, notReady.Code)

	l.MarkReady()

	ready := httptest.NewRecorder()
	srv.Handler.ServeHTTP(ready, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, ready.Code)
}

func TestLifecycleRunClosesBrokerAfterDrainCompletes(t *testing.T) {
	recBroker := &recordingBroker{}
	h := testHandler(nil, recBroker, &fakeObjectStore{key: "k"})

	loop := &Loop{
		Broker:      &fakeFetcher{batch: nil},
		Handler:     h,
		Log:         logging.New("error", false),
		FetchBatch:  10,
		FetchWait:   5 * time.Millisecond,
		MaxInFlight: 10,
	}

	var closed bool
	l := &Lifecycle{
		Loop:        loop,
		Log:         logging.New("error", false),
		DrainBudget: time.Second,
		CloseBroker: func() { closed = true },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return within 2s of its context expiring")
	}

	require.True(t, closed, "broker must be closed once the loop has drained")
}
