package strategies

import (
	"context"
	"fmt"
	"iter"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/state"
)

// Watchlist proposes a fixed list of orders for each mode on every tick.
// It yields no more candidates than the rate limit has room for, so the
// tail of the list waits for a later tick instead of being rejected.
type Watchlist struct {
	lists map[state.Mode][]broker.Order
}

func NewWatchlist(stock, options []broker.Order) (*Watchlist, error) {
	w := &Watchlist{lists: make(map[state.Mode][]broker.Order, 2)}
	for mode, src := range map[state.Mode][]broker.Order{state.ModeStock: stock, state.ModeOptions: options} {
		list := make([]broker.Order, 0, len(src))
		for i, o := range src {
			o = o.Normalize()
			if err := o.Validate(); err != nil {
				return nil, fmt.Errorf("%s watchlist entry %d: %w", mode, i, err)
			}
			list = append(list, o)
		}
		w.lists[mode] = list
	}
	return w, nil
}

func (w *Watchlist) Evaluate(ctx context.Context, mode state.Mode, ec Context) (iter.Seq[broker.Order], error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("watchlist: unknown mode %q", mode)
	}
	list := w.lists[mode]
	limit := len(list)
	if ec.RemainingTrades < limit {
		limit = max(ec.RemainingTrades, 0)
	}
	return func(yield func(broker.Order) bool) {
		for _, o := range list[:limit] {
			if ctx.Err() != nil {
				return
			}
			if !yield(o) {
				return
			}
		}
	}, nil
}
