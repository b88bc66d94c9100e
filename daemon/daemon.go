// Package daemon owns the trading state and runs the control loop. Every
// read or write of the state goes through the Daemon's lock, from the loop
// and from control-plane requests alike.
package daemon

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/clock"
	"github.com/rustyeddy/tradectl/journal"
	"github.com/rustyeddy/tradectl/logger"
	"github.com/rustyeddy/tradectl/metrics"
	"github.com/rustyeddy/tradectl/portfolio"
	"github.com/rustyeddy/tradectl/risk"
	"github.com/rustyeddy/tradectl/state"
	"github.com/rustyeddy/tradectl/strategies"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidOrder = errors.New("invalid order")
	ErrExecution    = errors.New("order execution failed")
	ErrEvaluator    = errors.New("strategy evaluation failed")
)

type Options struct {
	Limits       risk.Limits
	Store        *state.Store
	Executor     broker.Executor
	Evaluator    strategies.Evaluator
	Journal      journal.Journal
	Clock        clock.Clock
	TickInterval time.Duration
	// InitialMode applies only when no snapshot exists.
	InitialMode state.Mode
	// Portfolio is optional. Without it portfolio management cannot be
	// switched on.
	Portfolio portfolio.Manager
}

type Daemon struct {
	mu    sync.Mutex
	st    state.DaemonState
	guard *risk.Guard

	// submitMu keeps one order at a time at the broker, so a fill that
	// halts the day is committed before the next order is admitted.
	// Never acquired while mu is held.
	submitMu sync.Mutex

	store    *state.Store
	exec     broker.Executor
	eval     strategies.Evaluator
	jrnl     journal.Journal
	clk      clock.Clock
	interval time.Duration
	log      *logrus.Entry

	subMu sync.Mutex
	subs  map[chan Status]struct{}

	portfolio portfolio.Manager
	pmu       sync.Mutex
	ptask     *portfolioTask
}

// New validates opts, restores the last snapshot (or starts fresh) and
// applies a day rollover if the snapshot is from an earlier day.
func New(opts Options) (*Daemon, error) {
	if err := opts.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("daemon limits: %w", err)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("daemon: state store is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("daemon: executor is required")
	}
	if opts.TickInterval <= 0 {
		return nil, fmt.Errorf("daemon: tick interval must be positive")
	}
	if opts.Evaluator == nil {
		opts.Evaluator = strategies.Noop{}
	}
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if !opts.InitialMode.Valid() {
		opts.InitialMode = state.ModeStock
	}

	d := &Daemon{
		guard:    risk.NewGuard(opts.Limits),
		store:    opts.Store,
		exec:     opts.Executor,
		eval:     opts.Evaluator,
		jrnl:     opts.Journal,
		clk:      opts.Clock,
		interval: opts.TickInterval,
		log:      logger.WithField("component", "daemon"),
		subs:     make(map[chan Status]struct{}),

		portfolio: opts.Portfolio,
	}

	now := d.clk.Now()
	defaults := state.Fresh(opts.InitialMode, state.DateKey(now, opts.Limits.Location))
	st, err := d.store.Load(defaults)
	if err != nil {
		// corrupt or unreadable snapshot: start from safe defaults
		d.log.WithError(err).Warn("state snapshot not restored, using defaults")
	}
	d.st = st

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.st.RolloverIfNeeded(now, opts.Limits.Location) {
		d.log.WithField("date", d.st.LastResetDate).Info("new trading day")
	}
	d.persistLocked()

	d.log.WithFields(logrus.Fields{
		"mode":   d.st.Mode,
		"state":  d.st.RunState(),
		"trades": len(d.st.TradeTimestamps),
		"pl":     d.st.DailyPL,
	}).Info("daemon state loaded")
	return d, nil
}

func (d *Daemon) Limits() risk.Limits {
	return d.guard.Limits
}

// Close stops the portfolio manager and writes a final snapshot.
func (d *Daemon) Close() error {
	d.stopPortfolio()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.Save(d.st); err != nil {
		metrics.PersistErrors.Inc()
		return err
	}
	return nil
}

// persistLocked saves the snapshot. A failed save is logged and the
// in-memory state stays authoritative.
func (d *Daemon) persistLocked() {
	now := d.clk.Now()
	metrics.Observe(d.guard.Rate.Count(&d.st, now), d.st.DailyPL, d.st.DailyHalted, d.st.Paused)
	if err := d.store.Save(d.st); err != nil {
		metrics.PersistErrors.Inc()
		d.log.WithError(err).Error("state snapshot not saved")
	}
}

// rolloverLocked starts a new day if the date changed and reports whether
// it did.
func (d *Daemon) rolloverLocked(now time.Time) bool {
	if !d.st.RolloverIfNeeded(now, d.guard.Limits.Location) {
		return false
	}
	d.log.WithField("date", d.st.LastResetDate).Info("new trading day, daily counters reset")
	d.persistLocked()
	return true
}
