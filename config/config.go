package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/logger"
	"github.com/rustyeddy/tradectl/risk"
	"github.com/rustyeddy/tradectl/state"
	"gopkg.in/yaml.v3"
)

// ErrConfig wraps every validation failure. A daemon started with an
// invalid configuration refuses to run.
var ErrConfig = errors.New("invalid config")

// Config represents the complete daemon configuration
type Config struct {
	Daemon    DaemonConfig    `json:"daemon" yaml:"daemon"`
	Window    WindowConfig    `json:"window" yaml:"window"`
	Limits    LimitsConfig    `json:"limits" yaml:"limits"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Broker    BrokerConfig    `json:"broker" yaml:"broker"`
	Strategy  StrategyConfig  `json:"strategy" yaml:"strategy"`
	Portfolio PortfolioConfig `json:"portfolio" yaml:"portfolio"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Log       logger.Config   `json:"log" yaml:"log"`
}

// DaemonConfig contains control loop parameters
type DaemonConfig struct {
	TickInterval string `json:"tick_interval" yaml:"tick_interval"` // e.g. "5s"
	StatePath    string `json:"state_path" yaml:"state_path"`
	InitialMode  string `json:"initial_mode" yaml:"initial_mode"`
}

// TickDuration parses the tick interval.
func (d DaemonConfig) TickDuration() (time.Duration, error) {
	return time.ParseDuration(d.TickInterval)
}

// WindowConfig is the daily trading window, local to Timezone.
type WindowConfig struct {
	Timezone         string `json:"timezone" yaml:"timezone"`
	PreMarketStart   string `json:"pre_market_start" yaml:"pre_market_start"`     // "HH:MM"
	ExtendedHoursEnd string `json:"extended_hours_end" yaml:"extended_hours_end"` // "HH:MM"
}

type LimitsConfig struct {
	MaxTradesPerHour  int     `json:"max_trades_per_hour" yaml:"max_trades_per_hour"`
	DailyStopLoss     float64 `json:"daily_stop_loss" yaml:"daily_stop_loss"`
	DailyProfitTarget float64 `json:"daily_profit_target" yaml:"daily_profit_target"`
}

// ServerConfig contains the control plane listener settings
type ServerConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	APIToken string `json:"api_token,omitempty" yaml:"api_token,omitempty"`
	// AllowedOrigins are browser origins besides the server's own that may
	// open the status websocket.
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// BrokerConfig selects and configures the order executor
type BrokerConfig struct {
	Type       string  `json:"type" yaml:"type"` // "paper" or "alpaca"
	BaseURL    string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	KeyID      string  `json:"key_id,omitempty" yaml:"key_id,omitempty"`
	SecretKey  string  `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	Timeout    string  `json:"timeout" yaml:"timeout"`
	PaperPrice float64 `json:"paper_price,omitempty" yaml:"paper_price,omitempty"`
}

// TimeoutDuration parses the per-submission timeout.
func (b BrokerConfig) TimeoutDuration() (time.Duration, error) {
	if b.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(b.Timeout)
}

// StrategyConfig selects the evaluator and its candidate orders per mode
type StrategyConfig struct {
	Name    string         `json:"name" yaml:"name"` // "noop" or "watchlist"
	Stock   []broker.Order `json:"stock,omitempty" yaml:"stock,omitempty"`
	Options []broker.Order `json:"options,omitempty" yaml:"options,omitempty"`
}

// PortfolioConfig selects the background portfolio manager. It only runs
// while switched on through the control plane.
type PortfolioConfig struct {
	Name     string         `json:"name" yaml:"name"`         // "none" or "recurring"
	Interval string         `json:"interval" yaml:"interval"` // e.g. "24h"
	Orders   []broker.Order `json:"orders,omitempty" yaml:"orders,omitempty"`
}

// IntervalDuration parses the recurring interval.
func (p PortfolioConfig) IntervalDuration() (time.Duration, error) {
	return time.ParseDuration(p.Interval)
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type    string `json:"type" yaml:"type"` // "sqlite", "csv" or "none"
	DBPath  string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	CSVPath string `json:"csv_path,omitempty" yaml:"csv_path,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON).
// Unset fields keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: parse config (tried YAML and JSON): %v", ErrConfig, err)
		}
	}

	return cfg, nil
}

// Load reads path, applies environment overrides and validates.
// An empty path starts from Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// may hold broker credentials
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	d, err := c.Daemon.TickDuration()
	if err != nil || d <= 0 {
		return invalid("daemon.tick_interval must be a positive duration, got %q", c.Daemon.TickInterval)
	}
	if c.Daemon.StatePath == "" {
		return invalid("daemon.state_path is required")
	}
	if _, err := state.ParseMode(c.Daemon.InitialMode); err != nil {
		return invalid("daemon.initial_mode: %v", err)
	}

	if _, err := c.RiskLimits(); err != nil {
		return err
	}

	if c.Server.Addr == "" {
		return invalid("server.addr is required")
	}

	switch c.Broker.Type {
	case "paper":
		if c.Broker.PaperPrice < 0 {
			return invalid("broker.paper_price must not be negative")
		}
	case "alpaca":
		if c.Broker.KeyID == "" || c.Broker.SecretKey == "" {
			return invalid("broker key_id and secret_key required for alpaca type")
		}
	default:
		return invalid("broker.type must be 'paper' or 'alpaca'")
	}
	if t, err := c.Broker.TimeoutDuration(); err != nil || t < 0 {
		return invalid("broker.timeout must be a duration, got %q", c.Broker.Timeout)
	}

	switch c.Strategy.Name {
	case "noop":
	case "watchlist":
		for _, list := range [][]broker.Order{c.Strategy.Stock, c.Strategy.Options} {
			for i, o := range list {
				if err := o.Normalize().Validate(); err != nil {
					return invalid("strategy order %d: %v", i, err)
				}
			}
		}
	default:
		return invalid("strategy.name must be 'noop' or 'watchlist'")
	}

	switch c.Portfolio.Name {
	case "none":
	case "recurring":
		if d, err := c.Portfolio.IntervalDuration(); err != nil || d <= 0 {
			return invalid("portfolio.interval must be a positive duration, got %q", c.Portfolio.Interval)
		}
		if len(c.Portfolio.Orders) == 0 {
			return invalid("portfolio.orders required for recurring manager")
		}
		for i, o := range c.Portfolio.Orders {
			if err := o.Normalize().Validate(); err != nil {
				return invalid("portfolio order %d: %v", i, err)
			}
		}
	default:
		return invalid("portfolio.name must be 'none' or 'recurring'")
	}

	switch c.Journal.Type {
	case "none":
	case "sqlite":
		if c.Journal.DBPath == "" {
			return invalid("journal db_path required for SQLite type")
		}
	case "csv":
		if c.Journal.CSVPath == "" {
			return invalid("journal csv_path required for CSV type")
		}
	default:
		return invalid("journal.type must be 'sqlite', 'csv' or 'none'")
	}
	return nil
}

// RiskLimits builds the immutable limits shared by the guard and the rate limiter.
func (c *Config) RiskLimits() (risk.Limits, error) {
	if c.Window.Timezone == "" {
		return risk.Limits{}, invalid("window.timezone is required")
	}
	loc, err := time.LoadLocation(c.Window.Timezone)
	if err != nil {
		return risk.Limits{}, invalid("window.timezone: %v", err)
	}
	start, err := risk.ParseTimeOfDay(c.Window.PreMarketStart)
	if err != nil {
		return risk.Limits{}, invalid("window.pre_market_start: %v", err)
	}
	end, err := risk.ParseTimeOfDay(c.Window.ExtendedHoursEnd)
	if err != nil {
		return risk.Limits{}, invalid("window.extended_hours_end: %v", err)
	}
	l := risk.Limits{
		Location:          loc,
		PreMarketStart:    start,
		ExtendedHoursEnd:  end,
		MaxTradesPerHour:  c.Limits.MaxTradesPerHour,
		DailyStopLoss:     c.Limits.DailyStopLoss,
		DailyProfitTarget: c.Limits.DailyProfitTarget,
	}
	if err := l.Validate(); err != nil {
		return risk.Limits{}, invalid("%v", err)
	}
	return l, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			TickInterval: "5s",
			StatePath:    "./tradectl-state.json",
			InitialMode:  string(state.ModeStock),
		},
		Window: WindowConfig{
			Timezone:         "America/New_York",
			PreMarketStart:   "04:00",
			ExtendedHoursEnd: "20:00",
		},
		Limits: LimitsConfig{
			MaxTradesPerHour:  10,
			DailyStopLoss:     1000,
			DailyProfitTarget: 2000,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8000",
		},
		Broker: BrokerConfig{
			Type:       "paper",
			Timeout:    "10s",
			PaperPrice: 100,
		},
		Strategy: StrategyConfig{
			Name: "noop",
		},
		Portfolio: PortfolioConfig{
			Name:     "none",
			Interval: "24h",
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./tradectl.sqlite",
		},
		Log: logger.Config{
			Level: "info",
		},
	}
}
