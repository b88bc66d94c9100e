package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/journal"
	"github.com/rustyeddy/tradectl/portfolio"
	"github.com/rustyeddy/tradectl/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingManager hands its submit func to the test and runs until
// cancelled.
type blockingManager struct {
	started chan portfolio.SubmitFunc
	stopped chan struct{}
}

func newBlockingManager() *blockingManager {
	return &blockingManager{
		started: make(chan portfolio.SubmitFunc, 4),
		stopped: make(chan struct{}, 4),
	}
}

func (m *blockingManager) Manage(ctx context.Context, submit portfolio.SubmitFunc) error {
	m.started <- submit
	<-ctx.Done()
	m.stopped <- struct{}{}
	return nil
}

func withPortfolio(m portfolio.Manager) func(*Options) {
	return func(o *Options) { o.Portfolio = m }
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting on channel")
	}
	var zero T
	return zero
}

func TestStartPortfolioWithoutManager(t *testing.T) {
	f := newFixture(t, nil, nil)

	st, err := f.d.StartPortfolio()
	assert.ErrorIs(t, err, ErrNoPortfolio)
	assert.False(t, st.Portfolio)
	assert.False(t, f.d.State().PortfolioActive)

	assert.False(t, f.d.StopPortfolio().Portfolio)
}

func TestPortfolioStartedAndStoppedByLoop(t *testing.T) {
	m := newBlockingManager()
	f := newFixtureAt(t, filepath.Join(t.TempDir(), "state.json"), marketOpen, nil, nil, withPortfolio(m))
	ctx := context.Background()

	updates, cancel := f.d.Subscribe()
	defer cancel()

	st, err := f.d.StartPortfolio()
	require.NoError(t, err)
	assert.True(t, st.Portfolio)
	assert.True(t, f.d.State().PortfolioActive)
	assert.True(t, recv(t, updates).Portfolio)
	assert.False(t, f.d.portfolioRunning(), "manager waits for the loop")

	require.NoError(t, f.d.Tick(ctx))
	submit := recv(t, m.started)
	assert.True(t, f.d.portfolioRunning())

	// a second tick leaves the running manager alone
	require.NoError(t, f.d.Tick(ctx))
	assert.Empty(t, m.started)

	st = f.d.StopPortfolio()
	assert.False(t, st.Portfolio)
	assert.True(t, f.d.portfolioRunning(), "manager stops on the next tick")

	// the manager can still place orders until then
	_, err = submit(ctx, buyAAPL)
	require.NoError(t, err)

	require.NoError(t, f.d.Tick(ctx))
	recv(t, m.stopped)
	assert.False(t, f.d.portfolioRunning())
}

func TestPortfolioOrdersFaceGuard(t *testing.T) {
	exec := &fakeExec{respond: func(n int, o broker.Order) (broker.Fill, error) {
		return broker.Fill{OrderID: "p", Symbol: o.Symbol, RealizedPL: -1000}, nil
	}}
	m := newBlockingManager()
	f := newFixtureAt(t, filepath.Join(t.TempDir(), "state.json"), marketOpen, exec, nil, withPortfolio(m))
	ctx := context.Background()

	_, err := f.d.StartPortfolio()
	require.NoError(t, err)
	f.d.Pause()
	require.NoError(t, f.d.Tick(ctx))
	submit := recv(t, m.started)

	// pause does not stop portfolio orders, the halt does
	_, err = submit(ctx, broker.Order{Symbol: " msft ", Qty: 1, Side: "SELL"})
	require.NoError(t, err)
	assert.True(t, f.d.Status().DailyHalted)

	_, err = submit(ctx, buyAAPL)
	assert.ErrorIs(t, err, risk.ErrDailyHalted)

	_, err = submit(ctx, broker.Order{Symbol: "AAPL", Side: broker.Buy})
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.Equal(t, 1, exec.calls())

	f.jrnl.mu.Lock()
	defer f.jrnl.mu.Unlock()
	require.Len(t, f.jrnl.txs, 2)
	for _, tx := range f.jrnl.txs {
		assert.Equal(t, journal.Portfolio, tx.Source)
	}
	assert.Equal(t, "MSFT", f.jrnl.txs[0].Symbol)
	assert.Equal(t, journal.Halted, f.jrnl.txs[1].Outcome)
}

func TestPortfolioRestartedAfterFailure(t *testing.T) {
	var calls atomic.Int32
	m := portfolio.ManagerFunc(func(ctx context.Context, submit portfolio.SubmitFunc) error {
		if calls.Add(1) == 1 {
			return errors.New("positions unavailable")
		}
		panic("rebalance bug")
	})
	f := newFixtureAt(t, filepath.Join(t.TempDir(), "state.json"), marketOpen, nil, nil, withPortfolio(m))
	ctx := context.Background()

	_, err := f.d.StartPortfolio()
	require.NoError(t, err)

	require.NoError(t, f.d.Tick(ctx))
	require.Eventually(t, func() bool { return !f.d.portfolioRunning() }, 2*time.Second, 5*time.Millisecond)

	// the panic is contained and the loop keeps restarting the manager
	require.NoError(t, f.d.Tick(ctx))
	require.Eventually(t, func() bool { return calls.Load() == 2 && !f.d.portfolioRunning() }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.d.Tick(ctx))
	require.Eventually(t, func() bool { return calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, f.d.Status().Portfolio)
}

func TestPortfolioFlagSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	f := newFixtureAt(t, path, marketOpen, nil, nil, withPortfolio(newBlockingManager()))
	_, err := f.d.StartPortfolio()
	require.NoError(t, err)
	require.NoError(t, f.d.Close())

	// next day: rollover keeps the flag and the loop starts the manager
	m := newBlockingManager()
	g := newFixtureAt(t, path, marketOpen.Add(24*time.Hour), nil, nil, withPortfolio(m))
	assert.True(t, g.d.Status().Portfolio)

	require.NoError(t, g.d.Tick(context.Background()))
	recv(t, m.started)

	require.NoError(t, g.d.Close())
	recv(t, m.stopped)
	assert.False(t, g.d.portfolioRunning())
}
