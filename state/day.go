package state

import "time"

const dateLayout = "2006-01-02"

// DateKey is the calendar date of t in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dateLayout)
}

// RolloverIfNeeded starts a new trading day when now's date in loc is later
// than LastResetDate: P/L goes to zero, the halt clears and the hourly
// trade history is dropped. It reports whether a rollover happened. A clock
// that steps backwards never triggers a second reset for the same day.
func (s *DaemonState) RolloverIfNeeded(now time.Time, loc *time.Location) bool {
	today := DateKey(now, loc)
	// ISO dates order lexically
	if s.LastResetDate != "" && today <= s.LastResetDate {
		return false
	}
	s.DailyPL = 0
	s.DailyHalted = false
	s.TradeTimestamps = nil
	s.LastResetDate = today
	return true
}

func validDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}
