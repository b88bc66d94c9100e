package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/journal"
)

var ErrNoPortfolio = errors.New("no portfolio manager configured")

type portfolioTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartPortfolio switches background portfolio management on. The loop
// starts the manager on its next tick.
func (d *Daemon) StartPortfolio() (Status, error) {
	if d.portfolio == nil {
		return d.Status(), ErrNoPortfolio
	}
	return d.setPortfolio(true), nil
}

// StopPortfolio switches portfolio management off. The loop stops a
// running manager on its next tick.
func (d *Daemon) StopPortfolio() Status {
	return d.setPortfolio(false)
}

func (d *Daemon) setPortfolio(on bool) Status {
	d.mu.Lock()
	changed := d.st.PortfolioActive != on
	if changed {
		d.st.PortfolioActive = on
		d.persistLocked()
	}
	st := d.statusLocked(d.clk.Now())
	d.mu.Unlock()

	if changed {
		d.log.WithField("portfolio", on).Info("portfolio management switched")
		d.publish(st)
	}
	return st
}

// syncPortfolio starts or stops the manager to match the persisted flag.
// A manager that returned on its own is restarted while the flag is on.
func (d *Daemon) syncPortfolio(ctx context.Context) {
	if d.portfolio == nil {
		return
	}
	d.mu.Lock()
	want := d.st.PortfolioActive
	d.mu.Unlock()

	d.pmu.Lock()
	defer d.pmu.Unlock()
	if d.ptask != nil {
		select {
		case <-d.ptask.done:
			d.ptask = nil
		default:
		}
	}
	switch {
	case want && d.ptask == nil:
		d.startPortfolioLocked(ctx)
	case !want && d.ptask != nil:
		d.stopPortfolioLocked()
	}
}

func (d *Daemon) startPortfolioLocked(ctx context.Context) {
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &portfolioTask{cancel: cancel, done: make(chan struct{})}
	d.ptask = t
	d.log.Info("portfolio manager started")

	go func() {
		defer close(t.done)
		defer cancel()
		if err := d.managePortfolio(pctx); err != nil {
			d.log.WithError(err).Warn("portfolio manager stopped with error")
			return
		}
		if pctx.Err() == nil {
			d.log.Info("portfolio manager returned")
		}
	}()
}

// stopPortfolioLocked cancels the manager and waits for it to return.
func (d *Daemon) stopPortfolioLocked() {
	d.ptask.cancel()
	<-d.ptask.done
	d.ptask = nil
	d.log.Info("portfolio manager stopped")
}

func (d *Daemon) stopPortfolio() {
	d.pmu.Lock()
	defer d.pmu.Unlock()
	if d.ptask != nil {
		d.stopPortfolioLocked()
	}
}

func (d *Daemon) managePortfolio(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.portfolio.Manage(ctx, d.submitPortfolio)
}

// submitPortfolio is the manager's only route to the broker. Its orders
// face the same window, halt and rate checks as manual orders.
func (d *Daemon) submitPortfolio(ctx context.Context, o broker.Order) (broker.Fill, error) {
	o = o.Normalize()
	if err := o.Validate(); err != nil {
		return broker.Fill{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	return d.submit(ctx, journal.Portfolio, "", o)
}
