package daemon

import (
	"time"

	"github.com/rustyeddy/tradectl/risk"
	"github.com/rustyeddy/tradectl/state"
)

// Status is the control-plane view of the daemon.
type Status struct {
	Mode             state.Mode     `json:"mode"`
	Paused           bool           `json:"paused"`
	DailyHalted      bool           `json:"dailyHalted"`
	TradesThisHour   int            `json:"tradesThisHour"`
	DailyPL          float64        `json:"dailyPL"`
	State            state.RunState `json:"state"`
	LastResetDate    string         `json:"lastResetDate"`
	WindowOpen       bool           `json:"windowOpen"`
	MaxTradesPerHour int            `json:"maxTradesPerHour"`
	Portfolio        bool           `json:"portfolio"`
}

func (d *Daemon) statusLocked(now time.Time) Status {
	return Status{
		Mode:             d.st.Mode,
		Paused:           d.st.Paused,
		DailyHalted:      d.st.DailyHalted,
		TradesThisHour:   d.guard.Rate.Count(&d.st, now),
		DailyPL:          d.st.DailyPL,
		State:            d.st.RunState(),
		LastResetDate:    d.st.LastResetDate,
		WindowOpen:       risk.CheckWindow(now, d.guard.Limits),
		MaxTradesPerHour: d.guard.Rate.Max,
		Portfolio:        d.st.PortfolioActive,
	}
}

// Status returns a consistent snapshot. Its only side effect is pruning
// expired trade timestamps.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusLocked(d.clk.Now())
}

// State returns a copy of the raw daemon state.
func (d *Daemon) State() state.DaemonState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.Clone()
}

// Pause stops automatic trading. Pausing a paused daemon is a no-op, and a
// daily halt stays in force either way.
func (d *Daemon) Pause() Status {
	return d.setPaused(true)
}

// Resume restarts automatic trading. It never clears a daily halt.
func (d *Daemon) Resume() Status {
	return d.setPaused(false)
}

func (d *Daemon) setPaused(p bool) Status {
	d.mu.Lock()
	now := d.clk.Now()
	changed := d.st.Paused != p
	if changed {
		d.st.Paused = p
		d.persistLocked()
	}
	st := d.statusLocked(now)
	d.mu.Unlock()

	if changed {
		d.log.WithField("state", st.State).Info("paused flag changed")
		d.publish(st)
	}
	return st
}

// SetMode switches the evaluation mode. A tick already evaluating keeps
// the mode it started with; the switch applies from the next tick.
func (d *Daemon) SetMode(m state.Mode) (Status, error) {
	m, err := state.ParseMode(string(m))
	if err != nil {
		return d.Status(), err
	}

	d.mu.Lock()
	now := d.clk.Now()
	changed := d.st.Mode != m
	if changed {
		d.st.Mode = m
		d.persistLocked()
	}
	st := d.statusLocked(now)
	d.mu.Unlock()

	if changed {
		d.log.WithField("mode", m).Info("mode changed")
		d.publish(st)
	}
	return st, nil
}
