package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Executor is the order-execution collaborator. Implementations bound each
// call with their own timeout; the daemon never cancels a submission.
type Executor interface {
	Submit(ctx context.Context, o Order) (Fill, error)
}

// PLReporter is implemented by executors that can report the account's
// profit and loss for the current trading day.
type PLReporter interface {
	DayPL(ctx context.Context) (float64, error)
}

var (
	// ErrTransient marks failures worth re-proposing on a later tick
	// (timeouts, 5xx).
	ErrTransient = errors.New("transient execution failure")
	// ErrRejected marks orders the brokerage refused outright.
	ErrRejected = errors.New("order rejected by broker")
	// ErrUnknownOutcome marks orders the brokerage accepted whose reply
	// could not be read. The order must be treated as placed.
	ErrUnknownOutcome = errors.New("order accepted, outcome unknown")
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type Order struct {
	Symbol      string  `json:"symbol" yaml:"symbol"`
	Qty         float64 `json:"qty" yaml:"qty"`
	Side        Side    `json:"side" yaml:"side"`
	OrderType   string  `json:"orderType" yaml:"order_type,omitempty"`
	TimeInForce string  `json:"timeInForce" yaml:"time_in_force,omitempty"`
	LimitPrice  float64 `json:"limitPrice,omitempty" yaml:"limit_price,omitempty"`
}

// Normalize lowercases enum-like fields and defaults to a market order
// good till cancelled.
func (o Order) Normalize() Order {
	o.Symbol = strings.ToUpper(strings.TrimSpace(o.Symbol))
	o.Side = Side(strings.ToLower(strings.TrimSpace(string(o.Side))))
	o.OrderType = strings.ToLower(strings.TrimSpace(o.OrderType))
	o.TimeInForce = strings.ToLower(strings.TrimSpace(o.TimeInForce))
	if o.OrderType == "" {
		o.OrderType = "market"
	}
	if o.TimeInForce == "" {
		o.TimeInForce = "gtc"
	}
	return o
}

// Validate checks the order shape, not whether it may be traded now.
func (o Order) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if o.Qty <= 0 {
		return fmt.Errorf("qty must be positive")
	}
	switch o.Side {
	case Buy, Sell:
	default:
		return fmt.Errorf("side must be buy or sell, got %q", o.Side)
	}
	switch o.OrderType {
	case "market":
	case "limit":
		if o.LimitPrice <= 0 {
			return fmt.Errorf("limit orders need a positive limitPrice")
		}
	default:
		return fmt.Errorf("unsupported orderType %q", o.OrderType)
	}
	switch o.TimeInForce {
	case "day", "gtc", "ioc", "fok", "opg", "cls":
	default:
		return fmt.Errorf("unsupported timeInForce %q", o.TimeInForce)
	}
	return nil
}

func (o Order) String() string {
	return fmt.Sprintf("%s %g %s (%s/%s)", o.Side, o.Qty, o.Symbol, o.OrderType, o.TimeInForce)
}

type Fill struct {
	OrderID    string    `json:"orderId"`
	Symbol     string    `json:"symbol"`
	Qty        float64   `json:"qty"`
	Side       Side      `json:"side"`
	Price      float64   `json:"price"`
	Status     string    `json:"status"`
	RealizedPL float64   `json:"realizedPL"`
	FilledAt   time.Time `json:"filledAt"`
}
