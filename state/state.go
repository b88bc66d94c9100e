// Package state holds the daemon's persisted state and its snapshot store.
// Only the daemon package mutates a DaemonState; everything else sees copies.
package state

import (
	"fmt"
	"strings"
	"time"
)

type Mode string

const (
	ModeStock   Mode = "stock"
	ModeOptions Mode = "options"
)

// ParseMode accepts the wire names case-insensitively and rejects anything else.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeStock, ModeOptions:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (supported: stock, options)", s)
	}
}

func (m Mode) Valid() bool {
	return m == ModeStock || m == ModeOptions
}

// RunState is the control-loop state derived from the pause and halt flags.
type RunState string

const (
	Running     RunState = "RUNNING"
	Paused      RunState = "PAUSED"
	DailyHalted RunState = "DAILY_HALTED"
)

type DaemonState struct {
	Mode            Mode
	Paused          bool
	DailyHalted     bool
	TradeTimestamps []time.Time // oldest first
	DailyPL         float64
	LastResetDate   string // YYYY-MM-DD in the trading timezone
	// PortfolioActive asks the loop to keep the portfolio manager running.
	// It survives rollovers and restarts.
	PortfolioActive bool
}

// Fresh is the state for a first start on the given trading date.
func Fresh(mode Mode, today string) DaemonState {
	if !mode.Valid() {
		mode = ModeStock
	}
	return DaemonState{Mode: mode, LastResetDate: today}
}

// RunState reports the loop state. A halt outranks a pause: resuming a
// halted daemon leaves it halted.
func (s DaemonState) RunState() RunState {
	switch {
	case s.DailyHalted:
		return DailyHalted
	case s.Paused:
		return Paused
	default:
		return Running
	}
}

// Clone returns a deep copy safe to hand outside the owning lock.
func (s DaemonState) Clone() DaemonState {
	c := s
	if s.TradeTimestamps != nil {
		c.TradeTimestamps = make([]time.Time, len(s.TradeTimestamps))
		copy(c.TradeTimestamps, s.TradeTimestamps)
	}
	return c
}
