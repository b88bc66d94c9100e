// Package portfolio runs background portfolio management while the operator
// has it switched on. Managers never talk to the broker directly: every
// order goes through the daemon's admission checks via SubmitFunc.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/clock"
	"github.com/rustyeddy/tradectl/logger"
	"github.com/sirupsen/logrus"
)

// SubmitFunc places one order through the daemon's guard.
type SubmitFunc func(ctx context.Context, o broker.Order) (broker.Fill, error)

// Manager runs until ctx is done. A non-nil error other than ctx's ends
// the run early; the daemon restarts it on a later tick if portfolio
// management is still on.
type Manager interface {
	Manage(ctx context.Context, submit SubmitFunc) error
}

// ManagerFunc adapts a plain function to Manager.
type ManagerFunc func(ctx context.Context, submit SubmitFunc) error

func (f ManagerFunc) Manage(ctx context.Context, submit SubmitFunc) error {
	return f(ctx, submit)
}

// Recurring places a fixed basket of orders every interval, a
// dollar-cost-averaging style schedule. The first basket goes out one
// interval after the manager starts.
type Recurring struct {
	orders   []broker.Order
	interval time.Duration
	clk      clock.Clock
	log      *logrus.Entry
}

func NewRecurring(orders []broker.Order, interval time.Duration, clk clock.Clock) (*Recurring, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("portfolio: interval must be positive")
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("portfolio: recurring needs at least one order")
	}
	if clk == nil {
		clk = clock.System{}
	}
	basket := make([]broker.Order, 0, len(orders))
	for i, o := range orders {
		o = o.Normalize()
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("portfolio order %d: %w", i, err)
		}
		basket = append(basket, o)
	}
	return &Recurring{
		orders:   basket,
		interval: interval,
		clk:      clk,
		log:      logger.WithField("component", "portfolio"),
	}, nil
}

func (r *Recurring) Manage(ctx context.Context, submit SubmitFunc) error {
	t := r.clk.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			r.placeBasket(ctx, submit)
		}
	}
}

func (r *Recurring) placeBasket(ctx context.Context, submit SubmitFunc) {
	for _, o := range r.orders {
		if ctx.Err() != nil {
			return
		}
		fill, err := submit(ctx, o)
		if err != nil {
			// refusals are journaled by the daemon; the basket carries on
			r.log.WithError(err).WithField("order", o.String()).Debug("basket order not placed")
			continue
		}
		r.log.WithFields(logrus.Fields{"order": o.String(), "order_id": fill.OrderID}).Info("basket order placed")
	}
}

// ErrUnknownManager is returned by New for an unregistered name.
var ErrUnknownManager = errors.New("unknown portfolio manager")

// New builds the manager named in configuration. "none" and "" return a
// nil Manager.
func New(name string, orders []broker.Order, interval time.Duration, clk clock.Clock) (Manager, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "recurring":
		r, err := NewRecurring(orders, interval, clk)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownManager, name)
	}
}
