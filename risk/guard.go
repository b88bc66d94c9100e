package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/tradectl/state"
)

var (
	ErrWindowClosed = errors.New("outside trading window")
	ErrDailyHalted  = errors.New("daily limit reached, trading halted")
	ErrRateLimited  = errors.New("hourly trade limit reached")
)

type Verdict int

const (
	Continue Verdict = iota
	Halt
)

func (v Verdict) String() string {
	if v == Halt {
		return "halt"
	}
	return "continue"
}

// timeOfDay is the wall-clock offset from local midnight, so DST days
// still open at the posted local time.
func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// CheckWindow reports whether now falls in [PreMarketStart, ExtendedHoursEnd)
// in the trading timezone.
func CheckWindow(now time.Time, l Limits) bool {
	loc := l.Location
	if loc == nil {
		loc = time.UTC
	}
	tod := timeOfDay(now.In(loc))
	return tod >= l.PreMarketStart && tod < l.ExtendedHoursEnd
}

// CheckDailyLimits returns Halt once the day's P/L reaches the stop-loss or
// the profit-target. The caller owns setting the halted flag.
func CheckDailyLimits(dailyPL float64, l Limits) Verdict {
	if dailyPL <= -l.DailyStopLoss || dailyPL >= l.DailyProfitTarget {
		return Halt
	}
	return Continue
}

// Guard runs the checks every order must pass, manual or automatic.
type Guard struct {
	Limits Limits
	Rate   *RateLimiter
}

func NewGuard(l Limits) *Guard {
	return &Guard{Limits: l, Rate: NewRateLimiter(l.MaxTradesPerHour)}
}

// Admit checks window, halt and rate in that order. On success one slot is
// reserved in the rate limiter; the caller must follow with Commit or
// Release once the submission outcome is known. Must be called with the
// state lock held.
func (g *Guard) Admit(now time.Time, s *state.DaemonState) error {
	if !CheckWindow(now, g.Limits) {
		loc := g.Limits.Location
		if loc == nil {
			loc = time.UTC
		}
		return fmt.Errorf("%w: %s not in [%s, %s) %s", ErrWindowClosed,
			now.In(loc).Format("15:04:05"),
			FormatTimeOfDay(g.Limits.PreMarketStart), FormatTimeOfDay(g.Limits.ExtendedHoursEnd),
			loc)
	}
	if s.DailyHalted {
		return fmt.Errorf("%w: daily P/L %.2f", ErrDailyHalted, s.DailyPL)
	}
	if !g.Rate.Reserve(s, now) {
		return fmt.Errorf("%w: %d trades in the last hour (max %d)",
			ErrRateLimited, g.Rate.Count(s, now), g.Rate.Max)
	}
	return nil
}

// Commit records an accepted trade against a reserved slot, folds realized
// P/L into the day and halts the day if a limit is now breached. It reports
// whether this call set the halt.
func (g *Guard) Commit(now time.Time, s *state.DaemonState, realizedPL float64) bool {
	g.Rate.Release()
	g.Rate.RecordTrade(s, now)
	s.DailyPL += realizedPL
	return g.ApplyDailyLimits(s)
}

// ApplyDailyLimits sets the halt flag when the day's P/L breaches a limit.
// It reports whether the flag changed.
func (g *Guard) ApplyDailyLimits(s *state.DaemonState) bool {
	if s.DailyHalted {
		return false
	}
	if CheckDailyLimits(s.DailyPL, g.Limits) == Halt {
		s.DailyHalted = true
		return true
	}
	return false
}
