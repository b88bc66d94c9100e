// Package journal keeps an append-only log of every order attempt, manual
// or automatic, together with what became of it.
package journal

import (
	"fmt"
	"time"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/id"
)

// DefaultRecent is the number of records Recent returns when asked for
// zero or fewer.
const DefaultRecent = 10

type Source string

const (
	Manual    Source = "manual"
	Auto      Source = "auto"
	Portfolio Source = "portfolio" // background portfolio manager
)

type Outcome string

const (
	Accepted     Outcome = "accepted"
	RateLimited  Outcome = "rate_limited"
	WindowClosed Outcome = "window_closed"
	Halted       Outcome = "halted"
	Failed       Outcome = "failed"
	// Unknown is an order the broker accepted without a readable reply.
	// It counts against the hourly limit.
	Unknown      Outcome = "unknown"
)

// Transaction is one order attempt.
type Transaction struct {
	ID          string      `json:"id"`
	Time        time.Time   `json:"time"`
	Source      Source      `json:"source"`
	Mode        string      `json:"mode"`
	Symbol      string      `json:"symbol"`
	Qty         float64     `json:"qty"`
	Side        broker.Side `json:"side"`
	OrderType   string      `json:"orderType"`
	TimeInForce string      `json:"timeInForce"`
	Outcome     Outcome     `json:"outcome"`
	OrderID     string      `json:"orderId,omitempty"`
	FillPrice   float64     `json:"fillPrice,omitempty"`
	RealizedPL  float64     `json:"realizedPL"`
	Reason      string      `json:"reason,omitempty"`
}

// NewTransaction starts a record for o at t. The ID sorts by time.
func NewTransaction(t time.Time, src Source, mode string, o broker.Order) Transaction {
	return Transaction{
		ID:          id.NewAt(t),
		Time:        t.UTC(),
		Source:      src,
		Mode:        mode,
		Symbol:      o.Symbol,
		Qty:         o.Qty,
		Side:        o.Side,
		OrderType:   o.OrderType,
		TimeInForce: o.TimeInForce,
	}
}

// WithFill marks the transaction accepted with the broker's fill.
func (t Transaction) WithFill(f broker.Fill) Transaction {
	t.Outcome = Accepted
	t.OrderID = f.OrderID
	t.FillPrice = f.Price
	t.RealizedPL = f.RealizedPL
	return t
}

// WithOutcome marks the transaction refused or failed.
func (t Transaction) WithOutcome(o Outcome, reason string) Transaction {
	t.Outcome = o
	t.Reason = reason
	return t
}

type Journal interface {
	RecordTransaction(Transaction) error
	// Recent returns the last limit records, oldest first.
	Recent(limit int) ([]Transaction, error)
	// ListBetween returns records with Time in [start, end), oldest first.
	ListBetween(start, end time.Time) ([]Transaction, error)
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTransaction(Transaction) error                    { return nil }
func (Nop) Recent(int) ([]Transaction, error)                      { return nil, nil }
func (Nop) ListBetween(time.Time, time.Time) ([]Transaction, error) { return nil, nil }
func (Nop) Close() error                                           { return nil }

func normLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecent
	}
	return limit
}

// Open returns the journal for kind: "sqlite", "csv" or "none".
func Open(kind, path string) (Journal, error) {
	switch kind {
	case "sqlite":
		return NewSQLite(path)
	case "csv":
		return NewCSV(path)
	case "none", "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown journal type %q", kind)
	}
}
