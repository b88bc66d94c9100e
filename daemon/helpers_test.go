package daemon

import (
	"context"
	"iter"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/clock"
	"github.com/rustyeddy/tradectl/journal"
	"github.com/rustyeddy/tradectl/risk"
	"github.com/rustyeddy/tradectl/state"
	"github.com/rustyeddy/tradectl/strategies"
	"github.com/stretchr/testify/require"
)

var newYork = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// 10:00 on a Monday in New York, inside the trading window.
var marketOpen = time.Date(2026, 3, 2, 10, 0, 0, 0, newYork)

func testLimits() risk.Limits {
	return risk.Limits{
		Location:          newYork,
		PreMarketStart:    4 * time.Hour,
		ExtendedHoursEnd:  20 * time.Hour,
		MaxTradesPerHour:  2,
		DailyStopLoss:     1000,
		DailyProfitTarget: 2000,
	}
}

var buyAAPL = broker.Order{Symbol: "AAPL", Qty: 1, Side: broker.Buy}

// fakeExec records submissions and answers from a script.
type fakeExec struct {
	mu     sync.Mutex
	orders []broker.Order
	// respond builds the answer for the n-th call (0-based).
	respond func(n int, o broker.Order) (broker.Fill, error)
}

func (f *fakeExec) Submit(ctx context.Context, o broker.Order) (broker.Fill, error) {
	f.mu.Lock()
	n := len(f.orders)
	f.orders = append(f.orders, o)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		return respond(n, o)
	}
	return broker.Fill{OrderID: "fill-" + o.Symbol, Symbol: o.Symbol, Qty: o.Qty, Side: o.Side, Price: 100, Status: "filled"}, nil
}

func (f *fakeExec) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// plExec also reports the account's day P/L.
type plExec struct {
	fakeExec
	pl  float64
	err error
}

func (p *plExec) DayPL(context.Context) (float64, error) {
	return p.pl, p.err
}

// memJournal keeps transactions in memory.
type memJournal struct {
	mu  sync.Mutex
	txs []journal.Transaction
}

func (m *memJournal) RecordTransaction(t journal.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, t)
	return nil
}

func (m *memJournal) Recent(limit int) ([]journal.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.txs) {
		limit = len(m.txs)
	}
	return slices.Clone(m.txs[len(m.txs)-limit:]), nil
}

func (m *memJournal) ListBetween(start, end time.Time) ([]journal.Transaction, error) {
	return nil, nil
}

func (m *memJournal) Close() error { return nil }

func (m *memJournal) outcomes() []journal.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []journal.Outcome
	for _, t := range m.txs {
		out = append(out, t.Outcome)
	}
	return out
}

// countingEval proposes os on every call and remembers the modes it saw.
type countingEval struct {
	mu    sync.Mutex
	n     int
	modes []state.Mode
	os    []broker.Order
}

func (c *countingEval) Evaluate(_ context.Context, mode state.Mode, _ strategies.Context) (iter.Seq[broker.Order], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	c.modes = append(c.modes, mode)
	return slices.Values(slices.Clone(c.os)), nil
}

func (c *countingEval) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type fixture struct {
	d     *Daemon
	clk   *clock.Manual
	exec  broker.Executor
	jrnl  *memJournal
	store *state.Store
}

func newFixture(t *testing.T, exec broker.Executor, eval strategies.Evaluator) *fixture {
	t.Helper()
	return newFixtureAt(t, filepath.Join(t.TempDir(), "state.json"), marketOpen, exec, eval)
}

func newFixtureAt(t *testing.T, path string, now time.Time, exec broker.Executor, eval strategies.Evaluator, with ...func(*Options)) *fixture {
	t.Helper()
	if exec == nil {
		exec = &fakeExec{}
	}
	clk := clock.NewManual(now)
	store := state.NewStore(path)
	jrnl := &memJournal{}
	opts := Options{
		Limits:       testLimits(),
		Store:        store,
		Executor:     exec,
		Evaluator:    eval,
		Journal:      jrnl,
		Clock:        clk,
		TickInterval: 5 * time.Second,
		InitialMode:  state.ModeStock,
	}
	for _, fn := range with {
		fn(&opts)
	}
	d, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return &fixture{d: d, clk: clk, exec: exec, jrnl: jrnl, store: store}
}

// portfolioRunning reports whether a manager goroutine is live.
func (d *Daemon) portfolioRunning() bool {
	d.pmu.Lock()
	defer d.pmu.Unlock()
	if d.ptask == nil {
		return false
	}
	select {
	case <-d.ptask.done:
		return false
	default:
		return true
	}
}
