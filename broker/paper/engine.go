// Package paper is an in-process executor that fills every order at a
// quoted price and tracks net positions so closing trades realize P/L.
package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/clock"
	"github.com/rustyeddy/tradectl/id"
)

var ErrNoPrice = errors.New("no price for symbol")

type position struct {
	Qty      float64 // signed: long > 0, short < 0
	AvgPrice float64
}

type Engine struct {
	mu           sync.Mutex
	clk          clock.Clock
	defaultPrice float64
	quotes       map[string]float64
	positions    map[string]*position
	realized     float64
}

// NewEngine returns a paper engine. defaultPrice is used for symbols with no
// quote; zero means such orders are rejected.
func NewEngine(clk clock.Clock, defaultPrice float64) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	return &Engine{
		clk:          clk,
		defaultPrice: defaultPrice,
		quotes:       make(map[string]float64),
		positions:    make(map[string]*position),
	}
}

// SetPrice sets the quote used for subsequent fills of symbol.
func (e *Engine) SetPrice(symbol string, px float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quotes[symbol] = px
}

// Position reports the signed quantity and average price held in symbol.
func (e *Engine) Position(symbol string) (qty, avg float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.positions[symbol]; ok {
		return p.Qty, p.AvgPrice
	}
	return 0, 0
}

// Realized is the total P/L realized since the engine was created.
func (e *Engine) Realized() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.realized
}

func (e *Engine) Submit(ctx context.Context, o broker.Order) (broker.Fill, error) {
	if err := ctx.Err(); err != nil {
		return broker.Fill{}, fmt.Errorf("paper submit: %w: %v", broker.ErrTransient, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	px, ok := e.quotes[o.Symbol]
	if !ok {
		px = e.defaultPrice
	}
	if o.OrderType == "limit" && o.LimitPrice > 0 {
		// marketable limit orders fill at the better of quote and limit
		if (o.Side == broker.Buy && o.LimitPrice < px) || (o.Side == broker.Sell && o.LimitPrice > px) {
			return broker.Fill{}, fmt.Errorf("paper submit %s: %w: limit %.4f not marketable at %.4f",
				o.Symbol, broker.ErrRejected, o.LimitPrice, px)
		}
	}
	if px <= 0 {
		return broker.Fill{}, fmt.Errorf("paper submit %s: %w: %w", o.Symbol, broker.ErrRejected, ErrNoPrice)
	}

	delta := o.Qty
	if o.Side == broker.Sell {
		delta = -o.Qty
	}
	realized := e.apply(o.Symbol, delta, px)
	e.realized += realized

	now := e.clk.Now()
	return broker.Fill{
		OrderID:    id.NewAt(now),
		Symbol:     o.Symbol,
		Qty:        o.Qty,
		Side:       o.Side,
		Price:      px,
		Status:     "filled",
		RealizedPL: realized,
		FilledAt:   now,
	}, nil
}

// apply folds a signed quantity into the position and returns the P/L
// realized by whatever part of it reduced existing exposure.
func (e *Engine) apply(symbol string, delta, px float64) float64 {
	p, ok := e.positions[symbol]
	if !ok {
		p = &position{}
		e.positions[symbol] = p
	}

	var realized float64
	if p.Qty != 0 && math.Signbit(p.Qty) != math.Signbit(delta) {
		closing := math.Min(math.Abs(delta), math.Abs(p.Qty))
		if p.Qty > 0 {
			realized = (px - p.AvgPrice) * closing
		} else {
			realized = (p.AvgPrice - px) * closing
		}
	}

	newQty := p.Qty + delta
	switch {
	case newQty == 0:
		p.AvgPrice = 0
	case p.Qty == 0 || math.Signbit(newQty) != math.Signbit(p.Qty):
		// opened fresh or flipped sides: remainder is priced at this fill
		p.AvgPrice = px
	case math.Abs(newQty) > math.Abs(p.Qty):
		p.AvgPrice = (p.AvgPrice*math.Abs(p.Qty) + px*math.Abs(delta)) / math.Abs(newQty)
	}
	p.Qty = newQty

	if p.Qty == 0 {
		delete(e.positions, symbol)
	}
	return realized
}
