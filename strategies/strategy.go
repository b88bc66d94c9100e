package strategies

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/state"
)

// Context is the read-only view of the daemon an evaluator sees for one
// tick. It is captured under the daemon lock and never updated mid-tick.
type Context struct {
	Now             time.Time
	Mode            state.Mode
	DailyPL         float64
	TradesThisHour  int
	RemainingTrades int
}

// Evaluator proposes candidate orders for the active mode. The returned
// sequence is consumed at most once, in order, within the tick that
// produced it. Implementations must not block past ctx.
type Evaluator interface {
	Evaluate(ctx context.Context, mode state.Mode, ec Context) (iter.Seq[broker.Order], error)
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(ctx context.Context, mode state.Mode, ec Context) (iter.Seq[broker.Order], error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, mode state.Mode, ec Context) (iter.Seq[broker.Order], error) {
	return f(ctx, mode, ec)
}

// Factory builds an evaluator from its per-mode candidate lists.
type Factory func(stock, options []broker.Order) (Evaluator, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

func init() {
	Register("noop", func(_, _ []broker.Order) (Evaluator, error) { return Noop{}, nil })
	Register("watchlist", func(stock, options []broker.Order) (Evaluator, error) {
		return NewWatchlist(stock, options)
	})
}

func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = f
}

func GetStrategy(name string) Factory {
	mu.RLock()
	defer mu.RUnlock()
	return registry[strings.ToLower(strings.TrimSpace(name))]
}

// Names lists the registered evaluators, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EvaluatorByName builds a registered evaluator.
func EvaluatorByName(name string, stock, options []broker.Order) (Evaluator, error) {
	f := GetStrategy(name)
	if f == nil {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(stock, options)
}
