// Package metrics exposes daemon counters and gauges on the default
// Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersAttempted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tradectl_orders_attempted_total",
		Help: "Orders offered to the risk guard, by source (manual, auto)",
	}, []string{"source"})
	OrdersPlaced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tradectl_orders_placed_total",
		Help: "Orders accepted by the executor, by source",
	}, []string{"source"})
	OrdersFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tradectl_orders_failed_total",
		Help: "Orders the executor did not accept, by source",
	}, []string{"source"})
	OrdersSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tradectl_orders_suppressed_total",
		Help: "Orders blocked by the risk guard, by reason (rate_limited, window_closed, halted)",
	}, []string{"reason"})

	Ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tradectl_ticks_total",
		Help: "Control loop iterations",
	})
	TickErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tradectl_tick_errors_total",
		Help: "Ticks aborted by an evaluator error or panic",
	})
	PersistErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tradectl_persist_errors_total",
		Help: "Failed state snapshot writes",
	})

	TradesInWindow = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tradectl_trades_in_last_hour",
		Help: "Trades counted in the sliding one-hour window",
	})
	DailyPL = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tradectl_daily_pl",
		Help: "Realized profit and loss for the trading day",
	})
	Halted = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tradectl_daily_halted",
		Help: "1 while trading is halted for the day",
	})
	Paused = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tradectl_paused",
		Help: "1 while automatic trading is paused",
	})
)

func init() {
	prometheus.MustRegister(
		OrdersAttempted, OrdersPlaced, OrdersFailed, OrdersSuppressed,
		Ticks, TickErrors, PersistErrors,
		TradesInWindow, DailyPL, Halted, Paused,
	)
}

// Observe sets the state gauges from a status snapshot.
func Observe(tradesThisHour int, dailyPL float64, halted, paused bool) {
	TradesInWindow.Set(float64(tradesThisHour))
	DailyPL.Set(dailyPL)
	Halted.Set(b2f(halted))
	Paused.Set(b2f(paused))
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
