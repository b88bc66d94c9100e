package daemon

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/journal"
	"github.com/rustyeddy/tradectl/risk"
	"github.com/rustyeddy/tradectl/state"
	"github.com/rustyeddy/tradectl/strategies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresCollaborators(t *testing.T) {
	store := state.NewStore(filepath.Join(t.TempDir(), "s.json"))

	_, err := New(Options{Limits: testLimits(), Store: store, TickInterval: time.Second})
	assert.ErrorContains(t, err, "executor")

	bad := testLimits()
	bad.MaxTradesPerHour = 0
	_, err = New(Options{Limits: bad, Store: store, Executor: &fakeExec{}, TickInterval: time.Second})
	assert.Error(t, err)

	_, err = New(Options{Limits: testLimits(), Store: store, Executor: &fakeExec{}})
	assert.ErrorContains(t, err, "tick interval")
}

func TestInitialStatus(t *testing.T) {
	f := newFixture(t, nil, nil)

	st := f.d.Status()
	assert.Equal(t, state.ModeStock, st.Mode)
	assert.False(t, st.Paused)
	assert.False(t, st.DailyHalted)
	assert.Equal(t, state.Running, st.State)
	assert.Equal(t, "2026-03-02", st.LastResetDate)
	assert.True(t, st.WindowOpen)
	assert.Equal(t, 2, st.MaxTradesPerHour)

	// first start writes a snapshot
	_, err := os.Stat(f.store.Path())
	assert.NoError(t, err)
}

func TestManualOrdersRateLimited(t *testing.T) {
	exec := &fakeExec{}
	f := newFixture(t, exec, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		fill, st, err := f.d.SubmitManual(ctx, buyAAPL)
		require.NoError(t, err)
		assert.Equal(t, "fill-AAPL", fill.OrderID)
		assert.Equal(t, i+1, st.TradesThisHour)
		f.clk.Advance(10 * time.Second)
	}

	_, st, err := f.d.SubmitManual(ctx, buyAAPL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, risk.ErrRateLimited))
	assert.Equal(t, 2, st.TradesThisHour)
	assert.Equal(t, 2, exec.calls())
	assert.Equal(t, []journal.Outcome{journal.Accepted, journal.Accepted, journal.RateLimited}, f.jrnl.outcomes())

	// capacity frees one hour after the first trade, not at the top of the hour
	f.clk.Set(marketOpen.Add(59*time.Minute + 59*time.Second))
	_, _, err = f.d.SubmitManual(ctx, buyAAPL)
	assert.True(t, errors.Is(err, risk.ErrRateLimited))

	f.clk.Set(marketOpen.Add(60 * time.Minute))
	_, _, err = f.d.SubmitManual(ctx, buyAAPL)
	assert.NoError(t, err)
}

func TestConcurrentManualOrdersHonorCap(t *testing.T) {
	exec := &fakeExec{}
	f := newFixture(t, exec, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, limited int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.d.SubmitManual(context.Background(), buyAAPL)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, risk.ErrRateLimited):
				limited++
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.d.Status()
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, ok)
	assert.Equal(t, 8, limited)
	assert.Equal(t, 2, exec.calls())
	assert.Equal(t, 2, f.d.Status().TradesThisHour)
}

func TestOrderOutsideWindow(t *testing.T) {
	exec := &fakeExec{}
	f := newFixture(t, exec, nil)

	for _, at := range []time.Time{
		time.Date(2026, 3, 2, 3, 59, 0, 0, newYork),
		time.Date(2026, 3, 2, 20, 0, 0, 0, newYork),
	} {
		f.clk.Set(at)
		_, st, err := f.d.SubmitManual(context.Background(), buyAAPL)
		assert.True(t, errors.Is(err, risk.ErrWindowClosed), at)
		assert.False(t, st.WindowOpen)
	}
	assert.Zero(t, exec.calls())
	assert.Equal(t, []journal.Outcome{journal.WindowClosed, journal.WindowClosed}, f.jrnl.outcomes())
}

func TestInvalidManualOrder(t *testing.T) {
	exec := &fakeExec{}
	f := newFixture(t, exec, nil)

	_, st, err := f.d.SubmitManual(context.Background(), broker.Order{Symbol: "AAPL", Qty: -1, Side: broker.Buy})
	assert.True(t, errors.Is(err, ErrInvalidOrder))
	assert.Zero(t, exec.calls())
	assert.Equal(t, state.ModeStock, st.Mode)
	assert.Equal(t, state.Running, st.State)
	assert.Equal(t, 2, st.MaxTradesPerHour)
	assert.True(t, st.WindowOpen)
	assert.Empty(t, f.jrnl.outcomes())
}

func TestStopLossHaltsWithinTick(t *testing.T) {
	exec := &fakeExec{respond: func(n int, o broker.Order) (broker.Fill, error) {
		return broker.Fill{OrderID: "o", Symbol: o.Symbol, RealizedPL: -1000}, nil
	}}
	eval := &countingEval{os: []broker.Order{buyAAPL, {Symbol: "MSFT", Qty: 1, Side: broker.Buy}}}
	f := newFixture(t, exec, eval)

	require.NoError(t, f.d.Tick(context.Background()))

	// the second candidate was proposed but never forwarded
	assert.Equal(t, 1, exec.calls())
	st := f.d.Status()
	assert.True(t, st.DailyHalted)
	assert.Equal(t, state.DailyHalted, st.State)
	assert.Equal(t, -1000.0, st.DailyPL)
	assert.Equal(t, []journal.Outcome{journal.Accepted, journal.Halted}, f.jrnl.outcomes())

	// halted ticks do not evaluate
	f.clk.Advance(5 * time.Second)
	require.NoError(t, f.d.Tick(context.Background()))
	assert.Equal(t, 1, eval.calls())
	assert.Equal(t, 1, exec.calls())

	// manual orders are refused too
	_, _, err := f.d.SubmitManual(context.Background(), buyAAPL)
	assert.True(t, errors.Is(err, risk.ErrDailyHalted))
	assert.Equal(t, 1, exec.calls())
}

func TestProfitTargetHalts(t *testing.T) {
	exec := &fakeExec{respond: func(n int, o broker.Order) (broker.Fill, error) {
		return broker.Fill{OrderID: "o", RealizedPL: 2500}, nil
	}}
	f := newFixture(t, exec, nil)

	_, st, err := f.d.SubmitManual(context.Background(), buyAAPL)
	require.NoError(t, err)
	assert.True(t, st.DailyHalted)
}

func TestResumeNeverClearsHalt(t *testing.T) {
	exec := &fakeExec{respond: func(n int, o broker.Order) (broker.Fill, error) {
		return broker.Fill{RealizedPL: -1200}, nil
	}}
	f := newFixture(t, exec, nil)

	_, _, err := f.d.SubmitManual(context.Background(), buyAAPL)
	require.NoError(t, err)

	st := f.d.Pause()
	assert.Equal(t, state.DailyHalted, st.State)
	assert.True(t, st.Paused)

	st = f.d.Resume()
	assert.Equal(t, state.DailyHalted, st.State)
	assert.False(t, st.Paused)
	assert.True(t, st.DailyHalted)
}

func TestPauseResumeRestoresState(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, _, err := f.d.SubmitManual(context.Background(), buyAAPL)
	require.NoError(t, err)

	before := f.d.State()
	assert.Equal(t, state.Paused, f.d.Pause().State)
	assert.Equal(t, state.Paused, f.d.Pause().State) // idempotent
	assert.Equal(t, state.Running, f.d.Resume().State)
	assert.Equal(t, state.Running, f.d.Resume().State)
	after := f.d.State()

	assert.Equal(t, before.Mode, after.Mode)
	assert.Equal(t, before.Paused, after.Paused)
	assert.Equal(t, before.DailyHalted, after.DailyHalted)
	assert.Equal(t, before.DailyPL, after.DailyPL)
	assert.Equal(t, before.LastResetDate, after.LastResetDate)
	require.Len(t, after.TradeTimestamps, len(before.TradeTimestamps))
	for i := range before.TradeTimestamps {
		assert.True(t, before.TradeTimestamps[i].Equal(after.TradeTimestamps[i]))
	}
}

func TestPausedSkipsTickButAllowsManual(t *testing.T) {
	exec := &fakeExec{}
	eval := &countingEval{os: []broker.Order{buyAAPL}}
	f := newFixture(t, exec, eval)

	f.d.Pause()
	require.NoError(t, f.d.Tick(context.Background()))
	assert.Zero(t, eval.calls())

	_, _, err := f.d.SubmitManual(context.Background(), buyAAPL)
	assert.NoError(t, err)
	assert.Equal(t, 1, exec.calls())
}

func TestTickOutsideWindowSkips(t *testing.T) {
	eval := &countingEval{os: []broker.Order{buyAAPL}}
	f := newFixtureAt(t, filepath.Join(t.TempDir(), "s.json"),
		time.Date(2026, 3, 2, 21, 0, 0, 0, newYork), nil, eval)

	require.NoError(t, f.d.Tick(context.Background()))
	assert.Zero(t, eval.calls())
}

func TestTickDropsRateLimitedCandidates(t *testing.T) {
	exec := &fakeExec{}
	eval := &countingEval{os: []broker.Order{
		{Symbol: "A", Qty: 1, Side: broker.Buy},
		{Symbol: "B", Qty: 1, Side: broker.Buy},
		{Symbol: "C", Qty: 1, Side: broker.Buy},
	}}
	f := newFixture(t, exec, eval)

	require.NoError(t, f.d.Tick(context.Background()))
	assert.Equal(t, 2, exec.calls())
	assert.Equal(t, []journal.Outcome{journal.Accepted, journal.Accepted, journal.RateLimited}, f.jrnl.outcomes())

	// the dropped candidate is not retried on its own
	f.clk.Advance(time.Minute)
	eval.os = nil
	require.NoError(t, f.d.Tick(context.Background()))
	assert.Equal(t, 2, exec.calls())
}

func TestRolloverOncePerDay(t *testing.T) {
	exec := &fakeExec{respond: func(n int, o broker.Order) (broker.Fill, error) {
		return broker.Fill{RealizedPL: -1000}, nil
	}}
	eval := &countingEval{os: []broker.Order{buyAAPL}}
	f := newFixture(t, exec, eval)

	require.NoError(t, f.d.Tick(context.Background()))
	require.True(t, f.d.Status().DailyHalted)

	// 00:30 next day: window closed but the day still rolls over
	f.clk.Set(time.Date(2026, 3, 3, 0, 30, 0, 0, newYork))
	require.NoError(t, f.d.Tick(context.Background()))
	st := f.d.State()
	assert.Equal(t, "2026-03-03", st.LastResetDate)
	assert.False(t, st.DailyHalted)
	assert.Zero(t, st.DailyPL)
	assert.Empty(t, st.TradeTimestamps)

	// trade again, then step the clock back across midnight: no second reset
	f.clk.Set(time.Date(2026, 3, 3, 9, 0, 0, 0, newYork))
	exec.respond = nil
	require.NoError(t, f.d.Tick(context.Background()))
	require.Equal(t, 1, f.d.Status().TradesThisHour)

	f.clk.Set(time.Date(2026, 3, 2, 23, 59, 0, 0, newYork))
	require.NoError(t, f.d.Tick(context.Background()))
	f.clk.Set(time.Date(2026, 3, 3, 9, 1, 0, 0, newYork))
	require.NoError(t, f.d.Tick(context.Background()))
	st = f.d.State()
	assert.Equal(t, "2026-03-03", st.LastResetDate)
	assert.Len(t, st.TradeTimestamps, 2)
}

func TestExecutorFailureDoesNotAdvanceState(t *testing.T) {
	exec := &fakeExec{respond: func(n int, o broker.Order) (broker.Fill, error) {
		return broker.Fill{}, errors.Join(broker.ErrTransient, errors.New("504 gateway timeout"))
	}}
	eval := &countingEval{os: []broker.Order{buyAAPL}}
	f := newFixture(t, exec, eval)

	_, st, err := f.d.SubmitManual(context.Background(), buyAAPL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecution))
	assert.True(t, errors.Is(err, broker.ErrTransient))
	assert.Zero(t, st.TradesThisHour)
	assert.Zero(t, st.DailyPL)

	// the loop keeps going
	require.NoError(t, f.d.Tick(context.Background()))
	f.clk.Advance(5 * time.Second)
	require.NoError(t, f.d.Tick(context.Background()))
	assert.Equal(t, 3, exec.calls())
	assert.Zero(t, f.d.Status().TradesThisHour)
	assert.Zero(t, f.d.guard.Rate.InFlight())
	assert.Equal(t, []journal.Outcome{journal.Failed, journal.Failed, journal.Failed}, f.jrnl.outcomes())
}

func TestUnknownOutcomeConsumesSlot(t *testing.T) {
	exec := &fakeExec{respond: func(n int, o broker.Order) (broker.Fill, error) {
		fill := broker.Fill{Symbol: o.Symbol, Qty: o.Qty, Side: o.Side, Status: "unknown", RealizedPL: -5000}
		return fill, fmt.Errorf("%w: decode reply", broker.ErrUnknownOutcome)
	}}
	f := newFixture(t, exec, nil)

	for i := 0; i < 2; i++ {
		fill, st, err := f.d.SubmitManual(context.Background(), buyAAPL)
		require.NoError(t, err)
		assert.Equal(t, "unknown", fill.Status)
		assert.Equal(t, i+1, st.TradesThisHour)
		assert.Zero(t, st.DailyPL)
		assert.False(t, st.DailyHalted)
	}

	_, _, err := f.d.SubmitManual(context.Background(), buyAAPL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, risk.ErrRateLimited))
	assert.Equal(t, 2, exec.calls())
	assert.Zero(t, f.d.guard.Rate.InFlight())
	assert.Equal(t, []journal.Outcome{journal.Unknown, journal.Unknown, journal.RateLimited}, f.jrnl.outcomes())

	// persisted with the snapshot
	assert.Len(t, f.d.State().TradeTimestamps, 2)
}

func TestEvaluatorErrorIsolatedToTick(t *testing.T) {
	exec := &fakeExec{}
	fail := true
	eval := strategies.EvaluatorFunc(func(context.Context, state.Mode, strategies.Context) (iter.Seq[broker.Order], error) {
		if fail {
			return nil, errors.New("model unavailable")
		}
		return func(yield func(broker.Order) bool) { yield(buyAAPL) }, nil
	})
	f := newFixture(t, exec, eval)

	err := f.d.Tick(context.Background())
	assert.True(t, errors.Is(err, ErrEvaluator))
	assert.Zero(t, exec.calls())

	fail = false
	f.clk.Advance(5 * time.Second)
	assert.NoError(t, f.d.Tick(context.Background()))
	assert.Equal(t, 1, exec.calls())
}

func TestEvaluatorPanicRecovered(t *testing.T) {
	exec := &fakeExec{}

	f := newFixture(t, exec, strategies.EvaluatorFunc(func(context.Context, state.Mode, strategies.Context) (iter.Seq[broker.Order], error) {
		panic("boom")
	}))
	err := f.d.Tick(context.Background())
	assert.True(t, errors.Is(err, ErrEvaluator))
	assert.ErrorContains(t, err, "boom")

	// a panic midway through the sequence keeps what was already submitted
	f2 := newFixture(t, exec, strategies.EvaluatorFunc(func(context.Context, state.Mode, strategies.Context) (iter.Seq[broker.Order], error) {
		return func(yield func(broker.Order) bool) {
			if !yield(buyAAPL) {
				return
			}
			panic("lazy boom")
		}, nil
	}))
	err = f2.d.Tick(context.Background())
	assert.True(t, errors.Is(err, ErrEvaluator))
	assert.ErrorContains(t, err, "lazy boom")
	assert.Equal(t, 1, exec.calls())
	assert.Equal(t, 1, f2.d.Status().TradesThisHour)

	// the daemon is still usable
	_, _, err = f2.d.SubmitManual(context.Background(), buyAAPL)
	assert.NoError(t, err)
}

func TestInvalidCandidateSkipped(t *testing.T) {
	exec := &fakeExec{}
	eval := &countingEval{os: []broker.Order{{Symbol: "", Qty: 1, Side: broker.Buy}, buyAAPL}}
	f := newFixture(t, exec, eval)

	require.NoError(t, f.d.Tick(context.Background()))
	assert.Equal(t, 1, exec.calls())
	assert.Equal(t, []journal.Outcome{journal.Failed, journal.Accepted}, f.jrnl.outcomes())
}

func TestModeSwitchAppliesNextTick(t *testing.T) {
	var d *Daemon
	exec := &fakeExec{}
	exec.respond = func(n int, o broker.Order) (broker.Fill, error) {
		if n == 0 {
			// switch arrives while the tick is mid-evaluation
			_, err := d.SetMode(state.ModeOptions)
			if err != nil {
				return broker.Fill{}, err
			}
		}
		return broker.Fill{OrderID: o.Symbol}, nil
	}
	eval := &countingEval{os: []broker.Order{
		{Symbol: "A", Qty: 1, Side: broker.Buy},
		{Symbol: "B", Qty: 1, Side: broker.Buy},
	}}
	f := newFixture(t, exec, eval)
	d = f.d

	require.NoError(t, f.d.Tick(context.Background()))
	assert.Equal(t, state.ModeOptions, f.d.Status().Mode)
	assert.Equal(t, []state.Mode{state.ModeStock}, eval.modes)

	txs, err := f.d.Transactions(10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "stock", txs[0].Mode)
	assert.Equal(t, "stock", txs[1].Mode)

	f.clk.Advance(2 * time.Hour)
	require.NoError(t, f.d.Tick(context.Background()))
	assert.Equal(t, []state.Mode{state.ModeStock, state.ModeOptions}, eval.modes)
}

func TestSetModeRejectsUnknown(t *testing.T) {
	f := newFixture(t, nil, nil)

	st, err := f.d.SetMode("futures")
	assert.Error(t, err)
	assert.Equal(t, state.ModeStock, st.Mode)
	assert.Equal(t, state.ModeStock, f.d.Status().Mode)

	st, err = f.d.SetMode("OPTIONS")
	require.NoError(t, err)
	assert.Equal(t, state.ModeOptions, st.Mode)
}

func TestStateSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	exec := &fakeExec{respond: func(n int, o broker.Order) (broker.Fill, error) {
		return broker.Fill{RealizedPL: -250}, nil
	}}

	f := newFixtureAt(t, path, marketOpen, exec, nil)
	_, _, err := f.d.SubmitManual(context.Background(), buyAAPL)
	require.NoError(t, err)
	f.d.Pause()
	_, err = f.d.SetMode(state.ModeOptions)
	require.NoError(t, err)
	require.NoError(t, f.d.Close())

	g := newFixtureAt(t, path, marketOpen.Add(10*time.Minute), exec, nil)
	st := g.d.Status()
	assert.Equal(t, state.ModeOptions, st.Mode)
	assert.True(t, st.Paused)
	assert.Equal(t, -250.0, st.DailyPL)
	assert.Equal(t, 1, st.TradesThisHour)

	// restart on a later day rolls over but keeps pause and mode
	h := newFixtureAt(t, path, marketOpen.Add(24*time.Hour), exec, nil)
	st = h.d.Status()
	assert.Equal(t, "2026-03-03", st.LastResetDate)
	assert.Zero(t, st.DailyPL)
	assert.Zero(t, st.TradesThisHour)
	assert.True(t, st.Paused)
	assert.Equal(t, state.ModeOptions, st.Mode)
}

func TestCorruptSnapshotStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	f := newFixtureAt(t, path, marketOpen, nil, nil)
	st := f.d.Status()
	assert.Equal(t, state.Running, st.State)
	assert.Equal(t, "2026-03-02", st.LastResetDate)

	_, err := os.Stat(path + ".corrupt")
	assert.NoError(t, err)
}

func TestPLReporterRefresh(t *testing.T) {
	exec := &plExec{pl: -1500}
	eval := &countingEval{os: []broker.Order{buyAAPL}}
	f := newFixture(t, exec, eval)

	require.NoError(t, f.d.Tick(context.Background()))
	st := f.d.Status()
	assert.Equal(t, -1500.0, st.DailyPL)
	assert.True(t, st.DailyHalted)
	assert.Zero(t, eval.calls())

	// reporter errors are ignored
	g := newFixture(t, &plExec{err: errors.New("account unavailable")}, eval)
	require.NoError(t, g.d.Tick(context.Background()))
	assert.Equal(t, 1, eval.calls())
	assert.Zero(t, g.d.Status().DailyPL)
}

func TestRunTicksOnClock(t *testing.T) {
	ticks := make(chan state.Mode, 10)
	eval := strategies.EvaluatorFunc(func(_ context.Context, mode state.Mode, _ strategies.Context) (iter.Seq[broker.Order], error) {
		ticks <- mode
		return nil, nil
	})
	f := newFixture(t, nil, eval)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.d.Run(ctx) }()

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("no immediate tick")
	}

	f.clk.Advance(5 * time.Second)
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick after interval")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	f := newFixture(t, nil, nil)
	ch, cancel := f.d.Subscribe()

	f.d.Pause()
	select {
	case st := <-ch:
		assert.True(t, st.Paused)
	case <-time.After(time.Second):
		t.Fatal("no status pushed")
	}

	// no change, no push
	f.d.Pause()
	select {
	case <-ch:
		t.Fatal("unexpected push")
	default:
	}

	// slow readers see only the newest value
	f.d.Resume()
	_, err := f.d.SetMode(state.ModeOptions)
	require.NoError(t, err)
	st := <-ch
	assert.Equal(t, state.ModeOptions, st.Mode)
	assert.False(t, st.Paused)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}
