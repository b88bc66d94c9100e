package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/journal"
	"github.com/rustyeddy/tradectl/metrics"
	"github.com/rustyeddy/tradectl/risk"
	"github.com/rustyeddy/tradectl/state"
	"github.com/sirupsen/logrus"
)

// SubmitManual runs a control-plane order through the same guard as the
// control loop. Pause does not block manual orders; the window, the daily
// halt and the rate limit do.
func (d *Daemon) SubmitManual(ctx context.Context, o broker.Order) (broker.Fill, Status, error) {
	o = o.Normalize()
	if err := o.Validate(); err != nil {
		return broker.Fill{}, d.Status(), fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	fill, err := d.submit(ctx, journal.Manual, "", o)
	return fill, d.Status(), err
}

// submit admits, executes and commits one order. mode is the mode the
// order was proposed under; empty means the current mode. Errors wrap the
// risk sentinels for refusals and ErrExecution for broker failures.
func (d *Daemon) submit(ctx context.Context, src journal.Source, mode state.Mode, o broker.Order) (broker.Fill, error) {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	log := d.log.WithFields(logrus.Fields{"source": src, "order": o.String()})
	metrics.OrdersAttempted.WithLabelValues(string(src)).Inc()

	d.mu.Lock()
	now := d.clk.Now()
	rolled := d.rolloverLocked(now)
	if mode == "" {
		mode = d.st.Mode
	}
	tx := journal.NewTransaction(now, src, string(mode), o)
	err := d.guard.Admit(now, &d.st)
	var st Status
	if rolled {
		st = d.statusLocked(now)
	}
	d.mu.Unlock()
	if rolled {
		d.publish(st)
	}

	if err != nil {
		outcome := outcomeFor(err)
		metrics.OrdersSuppressed.WithLabelValues(string(outcome)).Inc()
		log.WithField("reason", err.Error()).Info("order refused")
		d.record(tx.WithOutcome(outcome, err.Error()))
		return broker.Fill{}, err
	}

	// the state lock is not held across the broker call
	fill, err := d.exec.Submit(ctx, o)

	// the broker took the order but its reply was lost; it holds a slot
	unknown := errors.Is(err, broker.ErrUnknownOutcome)
	if unknown {
		fill.RealizedPL = 0
	}

	d.mu.Lock()
	if err != nil && !unknown {
		d.guard.Rate.Release()
		d.mu.Unlock()

		metrics.OrdersFailed.WithLabelValues(string(src)).Inc()
		log.WithError(err).Warn("order not accepted")
		d.record(tx.WithOutcome(journal.Failed, err.Error()))
		return broker.Fill{}, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	halted := d.guard.Commit(now, &d.st, fill.RealizedPL)
	d.persistLocked()
	st = d.statusLocked(d.clk.Now())
	d.mu.Unlock()

	metrics.OrdersPlaced.WithLabelValues(string(src)).Inc()
	if unknown {
		log.WithError(err).Warn("order placed, outcome unknown")
		d.record(tx.WithOutcome(journal.Unknown, err.Error()))
		d.publish(st)
		return fill, nil
	}
	log.WithFields(logrus.Fields{
		"order_id": fill.OrderID,
		"price":    fill.Price,
		"pl":       fill.RealizedPL,
	}).Info("order filled")
	if halted {
		d.log.WithField("daily_pl", st.DailyPL).Warn("daily limit reached, trading halted until rollover")
	}
	d.record(tx.WithFill(fill))
	d.publish(st)
	return fill, nil
}

func (d *Daemon) record(tx journal.Transaction) {
	if err := d.jrnl.RecordTransaction(tx); err != nil {
		d.log.WithError(err).Warn("transaction not journaled")
	}
}

func outcomeFor(err error) journal.Outcome {
	switch {
	case errors.Is(err, risk.ErrRateLimited):
		return journal.RateLimited
	case errors.Is(err, risk.ErrWindowClosed):
		return journal.WindowClosed
	case errors.Is(err, risk.ErrDailyHalted):
		return journal.Halted
	default:
		return journal.Failed
	}
}

// Transactions returns the most recent journal entries, oldest first.
func (d *Daemon) Transactions(limit int) ([]journal.Transaction, error) {
	return d.jrnl.Recent(limit)
}
