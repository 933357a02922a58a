package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gpuwatch/gpu-stock-tracker/internal/metrics"
	"github.com/gpuwatch/gpu-stock-tracker/internal/stock"
	"github.com/gpuwatch/gpu-stock-tracker/internal/storage/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return string(rune('a'+g.n-1)) + "-id", nil
}

type fakeStrategy struct {
	mu      sync.Mutex
	results map[string][]stock.Result
	err     error
	calls   []string
	entered chan struct{}
	release chan struct{}
}

func (f *fakeStrategy) CheckAvailability(_ context.Context, product stock.Product) ([]stock.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, product.SKU)
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results[product.SKU], nil
}

type sessionStrategy struct {
	fakeStrategy
	startErr error
	started  int
	closed   int
}

func (s *sessionStrategy) StartSession(context.Context) error {
	s.started++
	return s.startErr
}

func (s *sessionStrategy) CloseSession() { s.closed++ }

type countingPacer struct {
	mu     sync.Mutex
	delays int
}

func (p *countingPacer) Delay(context.Context, time.Duration) {
	p.mu.Lock()
	p.delays++
	p.mu.Unlock()
}

type fixtures struct {
	registry     *memory.ProductRegistry
	availability *memory.AvailabilityStore
	jobs         *memory.JobLog
	pacer        *countingPacer
}

func newFixtures() fixtures {
	idGen := &seqIDGen{}
	registry := memory.NewProductRegistry(systemClock{}, idGen)
	return fixtures{
		registry:     registry,
		availability: memory.NewAvailabilityStore(registry, systemClock{}, idGen),
		jobs:         memory.NewJobLog(systemClock{}, idGen),
		pacer:        &countingPacer{},
	}
}

func (f fixtures) runner(strategy stock.ExtractionStrategy) *Runner {
	return NewRunner(f.registry, f.availability, f.jobs, strategy, f.pacer, 300*time.Millisecond, zap.NewNop())
}

func TestRunEmptyRegistry(t *testing.T) {
	t.Parallel()

	f := newFixtures()
	runner := f.runner(&fakeStrategy{})

	outcome, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, outcome.RecordsUpdated)
	require.True(t, outcome.Snapshot.Empty(), "no products means no stock available")

	jobs, err := f.jobs.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, stock.JobStatusCompleted, jobs[0].Status)
	require.Zero(t, jobs[0].RecordsUpdated)
}

func TestRunPersistsInStockRowsOnly(t *testing.T) {
	t.Parallel()

	f := newFixtures()
	ctx := context.Background()
	product, err := f.registry.Create(ctx, "https://shop.example/x", "GPU-X", nil)
	require.NoError(t, err)

	strategy := &fakeStrategy{results: map[string][]stock.Result{
		"GPU-X": {
			{SKU: "GPU-X", Province: "British Columbia", Location: "Store1", Quantity: 3},
			{SKU: "GPU-X", Province: "British Columbia", Location: "Store2", Quantity: 0},
		},
	}}

	outcome, err := f.runner(strategy).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.RecordsUpdated)

	// Both rows appear in the snapshot; only the in-stock one is persisted.
	require.Equal(t, 3, outcome.Snapshot["British Columbia"]["Store1"]["GPU-X"].Quantity)
	require.Equal(t, 0, outcome.Snapshot["British Columbia"]["Store2"]["GPU-X"].Quantity)

	records, err := f.availability.FindBySKUAndLocation(ctx, "GPU-X", "", "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Store1", records[0].Location)
	require.Equal(t, product.ID, records[0].ProductID)
}

func TestRunPacesBetweenProducts(t *testing.T) {
	t.Parallel()

	f := newFixtures()
	ctx := context.Background()
	for _, sku := range []string{"GPU-A", "GPU-B", "GPU-C"} {
		_, err := f.registry.Create(ctx, "https://shop.example/"+sku, sku, nil)
		require.NoError(t, err)
	}

	strategy := &fakeStrategy{}
	_, err := f.runner(strategy).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"GPU-A", "GPU-B", "GPU-C"}, strategy.calls, "products walked sequentially")
	require.Equal(t, 2, f.pacer.delays, "delay between products, not after the last")
}

func TestRunStrategyErrorFailsJob(t *testing.T) {
	t.Parallel()

	f := newFixtures()
	ctx := context.Background()
	_, err := f.registry.Create(ctx, "https://shop.example/x", "GPU-X", nil)
	require.NoError(t, err)

	strategy := &fakeStrategy{err: errors.New("session died")}
	_, err = f.runner(strategy).Run(ctx)

	var jobErr *stock.JobExecutionError
	require.ErrorAs(t, err, &jobErr)

	jobs, err := f.jobs.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, stock.JobStatusFailed, jobs[0].Status)
	require.Contains(t, jobs[0].ErrorMessage, "session died")
}

func TestRunSessionLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixtures()
	ctx := context.Background()
	_, err := f.registry.Create(ctx, "https://shop.example/x", "GPU-X", nil)
	require.NoError(t, err)

	strategy := &sessionStrategy{fakeStrategy: fakeStrategy{err: errors.New("boom")}}
	_, err = f.runner(strategy).Run(ctx)
	require.Error(t, err)
	require.Equal(t, 1, strategy.started)
	require.Equal(t, 1, strategy.closed, "session closed even when the sweep fails")
}

func TestRunSessionStartFailureFailsJob(t *testing.T) {
	t.Parallel()

	f := newFixtures()
	strategy := &sessionStrategy{startErr: errors.New("no browser")}

	_, err := f.runner(strategy).Run(context.Background())
	var jobErr *stock.JobExecutionError
	require.ErrorAs(t, err, &jobErr)
	require.Zero(t, strategy.closed)

	jobs, err := f.jobs.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, stock.JobStatusFailed, jobs[0].Status)
}

func TestConcurrentRunsShareOneSweep(t *testing.T) {
	t.Parallel()

	f := newFixtures()
	ctx := context.Background()
	_, err := f.registry.Create(ctx, "https://shop.example/x", "GPU-X", nil)
	require.NoError(t, err)

	strategy := &fakeStrategy{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	runner := f.runner(strategy)

	type result struct {
		out stock.SweepOutcome
		err error
	}
	outcomes := make(chan result, 2)
	go func() {
		out, err := runner.Run(ctx)
		outcomes <- result{out, err}
	}()
	<-strategy.entered

	go func() {
		out, err := runner.Run(ctx)
		outcomes <- result{out, err}
	}()
	// Give the second caller time to join the in-flight sweep.
	time.Sleep(50 * time.Millisecond)
	close(strategy.release)

	first := <-outcomes
	second := <-outcomes
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	require.Equal(t, first.out.JobID, second.out.JobID, "both callers share the in-flight sweep")

	jobs, err := f.jobs.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1, "only one scrape job was created")
}

func TestLatestSnapshotCache(t *testing.T) {
	t.Parallel()

	f := newFixtures()
	ctx := context.Background()
	runner := f.runner(&fakeStrategy{})

	_, _, ok := runner.Latest()
	require.False(t, ok, "no snapshot before the first sweep")

	_, err := runner.Run(ctx)
	require.NoError(t, err)

	snapshot, taken, ok := runner.Latest()
	require.True(t, ok)
	require.NotNil(t, snapshot)
	require.False(t, taken.IsZero())
}
