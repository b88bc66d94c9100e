package risk

import (
	"time"

	"github.com/rustyeddy/tradectl/state"
)

// Window is the trailing span the rate limit counts over.
const Window = 60 * time.Minute

// RateLimiter enforces a sliding-window cap on trades. The trade history
// lives in DaemonState so it survives restarts; the limiter itself only
// tracks submissions that are in flight to the broker. It is not safe for
// concurrent use and relies on the daemon's state lock.
type RateLimiter struct {
	Max      int
	inflight int
}

func NewRateLimiter(max int) *RateLimiter {
	return &RateLimiter{Max: max}
}

// Prune drops timestamps at least Window older than now. It filters rather
// than trims a prefix because a clock step can leave entries out of order.
func Prune(ts []time.Time, now time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if now.Sub(t) < Window {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// Count prunes and returns the number of trades in the window.
func (r *RateLimiter) Count(s *state.DaemonState, now time.Time) int {
	s.TradeTimestamps = Prune(s.TradeTimestamps, now)
	return len(s.TradeTimestamps)
}

// CanTrade prunes, then reports whether another trade fits under the cap,
// counting submissions still in flight.
func (r *RateLimiter) CanTrade(s *state.DaemonState, now time.Time) bool {
	return r.Count(s, now)+r.inflight < r.Max
}

// RecordTrade appends now to the trade history.
func (r *RateLimiter) RecordTrade(s *state.DaemonState, now time.Time) {
	s.TradeTimestamps = append(s.TradeTimestamps, now)
}

// Reserve claims a slot for a submission about to leave the lock.
func (r *RateLimiter) Reserve(s *state.DaemonState, now time.Time) bool {
	if !r.CanTrade(s, now) {
		return false
	}
	r.inflight++
	return true
}

// Release gives back a reserved slot.
func (r *RateLimiter) Release() {
	if r.inflight > 0 {
		r.inflight--
	}
}

func (r *RateLimiter) InFlight() int {
	return r.inflight
}
