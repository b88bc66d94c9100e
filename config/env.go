package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// ApplyEnv loads ./.env when present and lets the environment override the
// file. Variables already set in the process environment win over .env.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return invalid(".env: %v", err)
	}
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"TRADECTL_PRE_MARKET_START":   &c.Window.PreMarketStart,
		"TRADECTL_EXTENDED_HOURS_END": &c.Window.ExtendedHoursEnd,
		"TRADECTL_TIMEZONE":           &c.Window.Timezone,
		"TRADECTL_TICK_INTERVAL":      &c.Daemon.TickInterval,
		"TRADECTL_STATE_PATH":         &c.Daemon.StatePath,
		"TRADECTL_ADDR":               &c.Server.Addr,
		"TRADECTL_API_TOKEN":          &c.Server.APIToken,
		"TRADECTL_LOG_LEVEL":          &c.Log.Level,
		"ALPACA_API_KEY":              &c.Broker.KeyID,
		"ALPACA_API_SECRET":           &c.Broker.SecretKey,
		"ALPACA_BASE_URL":             &c.Broker.BaseURL,
	}
	for k, dst := range str {
		if v, ok := lookup(k); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("TRADECTL_MAX_TRADES_PER_HOUR"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return invalid("TRADECTL_MAX_TRADES_PER_HOUR: %v", err)
		}
		c.Limits.MaxTradesPerHour = n
	}
	floats := map[string]*float64{
		"TRADECTL_DAILY_STOP_LOSS":     &c.Limits.DailyStopLoss,
		"TRADECTL_DAILY_PROFIT_TARGET": &c.Limits.DailyProfitTarget,
	}
	for k, dst := range floats {
		v, ok := lookup(k)
		if !ok || v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return invalid("%s: %v", k, err)
		}
		*dst = f
	}
	return nil
}
