package risk

import (
	"fmt"
	"strings"
	"time"
)

// Limits is the immutable trading-window and safety configuration, built
// once at startup and shared by the guard and the rate limiter.
type Limits struct {
	Location *time.Location

	// Offsets from local midnight; the window is [PreMarketStart, ExtendedHoursEnd).
	PreMarketStart   time.Duration
	ExtendedHoursEnd time.Duration

	MaxTradesPerHour int

	// Circuit breakers, both positive amounts in account currency.
	DailyStopLoss     float64
	DailyProfitTarget float64
}

func (l Limits) Validate() error {
	if l.Location == nil {
		return fmt.Errorf("trading timezone is required")
	}
	if l.PreMarketStart < 0 || l.ExtendedHoursEnd > 24*time.Hour {
		return fmt.Errorf("window must lie within one day")
	}
	if l.PreMarketStart >= l.ExtendedHoursEnd {
		return fmt.Errorf("pre-market start %s must be before extended-hours end %s",
			FormatTimeOfDay(l.PreMarketStart), FormatTimeOfDay(l.ExtendedHoursEnd))
	}
	if l.MaxTradesPerHour <= 0 {
		return fmt.Errorf("max trades per hour must be positive")
	}
	if l.DailyStopLoss <= 0 {
		return fmt.Errorf("daily stop-loss must be positive")
	}
	if l.DailyProfitTarget <= 0 {
		return fmt.Errorf("daily profit-target must be positive")
	}
	return nil
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS" into an offset from midnight.
// "24:00" is accepted as the end of the day.
func ParseTimeOfDay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" || s == "24:00:00" {
		return 24 * time.Hour, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
}

func FormatTimeOfDay(d time.Duration) string {
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%02d:%02d", h, m)
}
