package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	queuemem "github.com/gpuwatch/gpu-stock-tracker/internal/queue/memory"
	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
)

type testClock struct{}

func (testClock) Now() time.Time { return time.Now().UTC() }

type testIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *testIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return string(rune('a'+g.n-1)) + "-queue-id", nil
}

type fakeSweeper struct {
	mu       sync.Mutex
	failures int
	runs     int
	outcome  stock.SweepOutcome
}

func (f *fakeSweeper) Run(context.Context) (stock.SweepOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	if f.runs <= f.failures {
		return stock.SweepOutcome{}, errors.New("sweep blew up")
	}
	return f.outcome, nil
}

func (f *fakeSweeper) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func waitForState(t *testing.T, registry *Registry, id string, want stock.QueueJobState) stock.QueueJob {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			job, _ := registry.Get(id)
			t.Fatalf("job %s never reached %s, last seen %+v", id, want, job)
		case <-time.After(5 * time.Millisecond):
		}
		if job, ok := registry.Get(id); ok && job.State == want {
			return job
		}
	}
}

func startWorker(t *testing.T, sweeper Sweeper, cfg Config) (*Registry, *queuemem.Queue, context.CancelFunc) {
	t.Helper()
	registry := NewRegistry(testClock{}, &testIDGen{})
	q := queuemem.NewQueue(4)
	worker := NewWorker(q, registry, sweeper, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return registry, q, cancel
}

func TestWorkerCompletesSweep(t *testing.T) {
	t.Parallel()

	sweeper := &fakeSweeper{outcome: stock.SweepOutcome{JobID: "scrape-1", RecordsUpdated: 4}}
	registry, q, _ := startWorker(t, sweeper, Config{MaxAttempts: 3, BackoffBase: time.Millisecond, SweepTimeout: time.Second})

	job, err := registry.Submit("stock-sweep")
	require.NoError(t, err)
	require.Equal(t, ProgressQueued, job.Progress)

	require.NoError(t, q.Enqueue(context.Background(), stock.QueueItem{JobID: job.ID, Name: job.Name, Attempt: 1}))

	final := waitForState(t, registry, job.ID, stock.QueueJobCompleted)
	require.Equal(t, ProgressCompleted, final.Progress)
	require.Equal(t, 1, sweeper.runCount())
}

func TestWorkerRetriesWithBackoff(t *testing.T) {
	t.Parallel()

	sweeper := &fakeSweeper{failures: 2}
	registry, q, _ := startWorker(t, sweeper, Config{MaxAttempts: 3, BackoffBase: 5 * time.Millisecond, SweepTimeout: time.Second})

	job, err := registry.Submit("stock-sweep")
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), stock.QueueItem{JobID: job.ID, Name: job.Name, Attempt: 1}))

	final := waitForState(t, registry, job.ID, stock.QueueJobCompleted)
	require.Equal(t, 3, final.Attempt, "succeeded on the third attempt")
	require.Equal(t, 3, sweeper.runCount())
}

func TestWorkerExhaustsRetries(t *testing.T) {
	t.Parallel()

	sweeper := &fakeSweeper{failures: 10}
	registry, q, _ := startWorker(t, sweeper, Config{MaxAttempts: 3, BackoffBase: time.Millisecond, SweepTimeout: time.Second})

	job, err := registry.Submit("stock-sweep")
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), stock.QueueItem{JobID: job.ID, Name: job.Name, Attempt: 1}))

	final := waitForState(t, registry, job.ID, stock.QueueJobFailed)
	require.Contains(t, final.ErrorText, "sweep blew up")
	require.Equal(t, 3, sweeper.runCount(), "no attempts past the cap")
}

func TestWorkerBackoffDoubles(t *testing.T) {
	t.Parallel()

	worker := NewWorker(nil, nil, nil, Config{BackoffBase: time.Minute}, nil)
	require.Equal(t, time.Minute, worker.backoff(1))
	require.Equal(t, 2*time.Minute, worker.backoff(2))
	require.Equal(t, 4*time.Minute, worker.backoff(3))
}

func TestRegistryLifecycle(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(testClock{}, &testIDGen{})

	job, err := registry.Submit("stock-sweep")
	require.NoError(t, err)
	require.Equal(t, stock.QueueJobQueued, job.State)

	registry.MarkRunning(job.ID, 1)
	got, ok := registry.Get(job.ID)
	require.True(t, ok)
	require.Equal(t, stock.QueueJobRunning, got.State)
	require.Equal(t, ProgressRunning, got.Progress)

	registry.MarkFailed(job.ID, "gone wrong")
	got, _ = registry.Get(job.ID)
	require.Equal(t, stock.QueueJobFailed, got.State)
	require.Equal(t, "gone wrong", got.ErrorText)

	_, ok = registry.Get("missing")
	require.False(t, ok)
	require.Len(t, registry.List(), 1)
}
