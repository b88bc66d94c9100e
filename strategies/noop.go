package strategies

import (
	"context"
	"iter"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/state"
)

// Noop never proposes an order.
type Noop struct{}

func (Noop) Evaluate(ctx context.Context, mode state.Mode, ec Context) (iter.Seq[broker.Order], error) {
	_ = ctx
	_ = mode
	_ = ec
	return func(func(broker.Order) bool) {}, nil
}
