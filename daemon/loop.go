package daemon

import (
	"context"
	"fmt"
	"iter"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/journal"
	"github.com/rustyeddy/tradectl/metrics"
	"github.com/rustyeddy/tradectl/risk"
	"github.com/rustyeddy/tradectl/state"
	"github.com/rustyeddy/tradectl/strategies"
)

// Run ticks every TickInterval until ctx is done, starting with an
// immediate tick. A tick in progress when ctx is cancelled runs to
// completion first.
func (d *Daemon) Run(ctx context.Context) error {
	ticker := d.clk.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.WithField("interval", d.interval).Info("control loop started")
	defer d.log.Info("control loop stopped")
	defer d.stopPortfolio()

	tickCtx := context.WithoutCancel(ctx)
	d.tickLogged(tickCtx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			d.tickLogged(tickCtx)
		}
	}
}

func (d *Daemon) tickLogged(ctx context.Context) {
	if err := d.Tick(ctx); err != nil {
		d.log.WithError(err).Warn("tick aborted")
	}
}

// Tick runs one iteration of the control loop. Portfolio management is
// brought in line with its flag even when trading is paused or halted.
// It returns an error only
// when the evaluator failed; execution failures and refusals are handled
// per order and never abort the tick.
func (d *Daemon) Tick(ctx context.Context) error {
	metrics.Ticks.Inc()
	d.syncPortfolio(ctx)

	if rep, ok := d.exec.(broker.PLReporter); ok {
		d.refreshPL(ctx, rep)
	}

	d.mu.Lock()
	now := d.clk.Now()
	rolled := d.rolloverLocked(now)
	var rolledStatus Status
	if rolled {
		rolledStatus = d.statusLocked(now)
	}
	run := d.st.RunState()
	open := risk.CheckWindow(now, d.guard.Limits)
	mode := d.st.Mode
	count := d.guard.Rate.Count(&d.st, now)
	ec := strategies.Context{
		Now:             now,
		Mode:            mode,
		DailyPL:         d.st.DailyPL,
		TradesThisHour:  count,
		RemainingTrades: max(d.guard.Rate.Max-count, 0),
	}
	d.mu.Unlock()

	if rolled {
		d.publish(rolledStatus)
	}
	if run != state.Running || !open {
		d.log.WithField("state", run).WithField("window_open", open).Debug("tick skipped")
		return nil
	}

	seq, err := d.evaluate(ctx, mode, ec)
	if err != nil {
		metrics.TickErrors.Inc()
		return err
	}

	next, stop := iter.Pull(seq)
	defer stop()
	for {
		o, ok, err := pull(next)
		if err != nil {
			metrics.TickErrors.Inc()
			return fmt.Errorf("%w: %w", ErrEvaluator, err)
		}
		if !ok {
			return nil
		}

		o = o.Normalize()
		if err := o.Validate(); err != nil {
			d.log.WithError(err).WithField("order", o.String()).Warn("evaluator proposed an invalid order")
			d.record(journal.NewTransaction(d.clk.Now(), journal.Auto, string(mode), o).
				WithOutcome(journal.Failed, err.Error()))
			continue
		}
		// refusals and broker failures are logged in submit; the
		// candidate is dropped, never queued
		_, _ = d.submit(ctx, journal.Auto, mode, o)
	}
}

// evaluate calls the evaluator, turning a panic into an error.
func (d *Daemon) evaluate(ctx context.Context, mode state.Mode, ec strategies.Context) (seq iter.Seq[broker.Order], err error) {
	defer func() {
		if r := recover(); r != nil {
			seq, err = nil, fmt.Errorf("%w: panic: %v", ErrEvaluator, r)
		}
	}()
	seq, err = d.eval.Evaluate(ctx, mode, ec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluator, err)
	}
	if seq == nil {
		return func(func(broker.Order) bool) {}, nil
	}
	return seq, nil
}

// pull advances the candidate sequence, turning a panic inside the
// evaluator's iterator into an error.
func pull(next func() (broker.Order, bool)) (o broker.Order, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	o, ok = next()
	return o, ok, nil
}

// refreshPL replaces the day's P/L with the broker's figure and halts if a
// limit is now breached.
func (d *Daemon) refreshPL(ctx context.Context, rep broker.PLReporter) {
	pl, err := rep.DayPL(ctx)
	if err != nil {
		d.log.WithError(err).Warn("day P/L not refreshed")
		return
	}

	d.mu.Lock()
	now := d.clk.Now()
	d.rolloverLocked(now)
	changed := d.st.DailyPL != pl
	d.st.DailyPL = pl
	halted := d.guard.ApplyDailyLimits(&d.st)
	if changed || halted {
		d.persistLocked()
	}
	st := d.statusLocked(now)
	d.mu.Unlock()

	if halted {
		d.log.WithField("daily_pl", pl).Warn("daily limit reached, trading halted until rollover")
	}
	if changed || halted {
		d.publish(st)
	}
}
