// Package config provides configuration management for the trading bot.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/broker"
	"github.com/eddiefleurent/condor_bot/internal/risk"
	"github.com/eddiefleurent/condor_bot/internal/strategy"
	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Session defaults
const (
	defaultTimezone           = "America/New_York"
	defaultTradingStart       = "09:45"
	defaultTradingEnd         = "15:45"
	defaultPollInterval       = 15 * time.Second
	defaultAtRiskPollInterval = 5 * time.Second
	defaultMinTradeSpacing    = 15 * time.Minute
	defaultMaxTradesPerDay    = 4
	defaultMaxCycles          = 1440
	defaultExpectedMove       = 5
	defaultSpreadWidth        = 2
	defaultTickSize           = 0.01
	defaultCloseSlippage      = 0.10
	defaultCloseMaxRetries    = 3
	defaultDashboardAddress   = "127.0.0.1:8080"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Risk        RiskConfig        `yaml:"risk"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Order       OrderConfig       `yaml:"order"`
	Logging     LoggingConfig     `yaml:"logging"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker API settings.
type BrokerConfig struct {
	Provider          string               `yaml:"provider"`
	APIKey            string               `yaml:"api_key"`
	APIEndpoint       string               `yaml:"api_endpoint"`
	AccountID         string               `yaml:"account_id"`
	Timeout           time.Duration        `yaml:"timeout"`
	RequestsPerSecond float64              `yaml:"requests_per_second"`
	Burst             int                  `yaml:"burst"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
	Paper             PaperConfig          `yaml:"paper"`
}

// CircuitBreakerConfig mirrors broker.CircuitBreakerSettings. Zero fields
// take the broker defaults.
type CircuitBreakerConfig struct {
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	MinRequests  uint32        `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio"`
}

// PaperConfig seeds the synthetic gateway used in paper mode.
type PaperConfig struct {
	StartPrice float64 `yaml:"start_price"`
	RandomWalk bool    `yaml:"random_walk"`
}

// StrategyConfig defines strike selection parameters.
type StrategyConfig struct {
	Symbol string `yaml:"symbol"`
	// ExpectedMove is how many strikes out of the money the delta search starts.
	ExpectedMove int                `yaml:"expected_move"`
	SpreadWidth  int                `yaml:"spread_width"`
	DeltaBand    strategy.DeltaBand `yaml:"delta_band"`
	Quantity     int                `yaml:"quantity"`
}

// RiskConfig defines loss thresholds and close-order behaviour.
type RiskConfig struct {
	CloseLossPct    float64 `yaml:"close_loss_pct"`
	AtRiskLossPct   float64 `yaml:"at_risk_loss_pct"`
	CloseSlippage   float64 `yaml:"close_slippage"`
	CloseMaxRetries int     `yaml:"close_max_retries"`
}

// ScheduleConfig defines the trading window and loop cadence.
type ScheduleConfig struct {
	Timezone           string        `yaml:"timezone"`      // e.g., "America/New_York"
	TradingStart       string        `yaml:"trading_start"` // "HH:MM"
	TradingEnd         string        `yaml:"trading_end"`   // "HH:MM"
	PollInterval       time.Duration `yaml:"poll_interval"`
	AtRiskPollInterval time.Duration `yaml:"at_risk_poll_interval"`
	MinTradeSpacing    time.Duration `yaml:"min_trade_spacing"`
	MaxTradesPerDay    int           `yaml:"max_trades_per_day"`
	MaxCycles          int           `yaml:"max_cycles"`
}

// OrderConfig defines how entries are priced and submitted.
type OrderConfig struct {
	// SingleTicket sends the condor as one 4-leg order instead of two spreads.
	SingleTicket bool    `yaml:"single_ticket"`
	TickSize     float64 `yaml:"tick_size"`
	MinCredit    float64 `yaml:"min_credit"`
}

// LoggingConfig defines log output. An empty File logs to stdout only.
type LoggingConfig struct {
	File       string `yaml:"file"`
	Format     string `yaml:"format"` // text | json
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DashboardConfig defines the status HTTP server.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	AuthToken string `yaml:"auth_token"`
}

// StorageConfig defines where the session snapshot is written. An empty
// SessionFile disables it.
type StorageConfig struct {
	SessionFile string `yaml:"session_file"`
}

// LoadEnv loads KEY=VALUE pairs from envFile into the process environment
// without overriding variables already set. A missing file is not an error.
func LoadEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", envFile, err)
	}
	return nil
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment variables in data, decodes it strictly and
// validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
// Unset optional values are replaced by their defaults first.
func (c *Config) Validate() error {
	c.normalize()

	// Environment validation
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("environment.log_level %q not recognised", c.Environment.LogLevel)
	}

	// Broker validation; paper mode never talks to the broker.
	if !c.IsPaperTrading() {
		if c.Broker.APIKey == "" {
			return fmt.Errorf("broker.api_key is required")
		}
		if c.Broker.AccountID == "" {
			return fmt.Errorf("broker.account_id is required")
		}
	}
	if c.Broker.RequestsPerSecond <= 0 || c.Broker.Burst <= 0 {
		return fmt.Errorf("broker.requests_per_second and broker.burst must be > 0")
	}
	if r := c.Broker.CircuitBreaker.FailureRatio; r < 0 || r > 1 {
		return fmt.Errorf("broker.circuit_breaker.failure_ratio must be within [0,1]")
	}

	// Strategy validation
	if c.Strategy.Symbol == "" {
		return fmt.Errorf("strategy.symbol is required")
	}
	if c.Strategy.ExpectedMove < 0 {
		return fmt.Errorf("strategy.expected_move must be >= 0")
	}
	if c.Strategy.SpreadWidth <= 0 {
		return fmt.Errorf("strategy.spread_width must be > 0")
	}
	if err := c.Strategy.DeltaBand.Validate(); err != nil {
		return fmt.Errorf("strategy.delta_band: %w", err)
	}
	if c.Strategy.Quantity <= 0 {
		return fmt.Errorf("strategy.quantity must be > 0")
	}

	// Risk validation
	if err := c.RiskThresholds().Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if c.Risk.CloseSlippage <= 0 || c.Risk.CloseSlippage >= 1 {
		return fmt.Errorf("risk.close_slippage must be in (0,1)")
	}
	if c.Risk.CloseMaxRetries < 0 {
		return fmt.Errorf("risk.close_max_retries must be >= 0")
	}

	// Schedule validation
	loc := c.Location()
	s, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	e, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil || !s.Before(e) {
		return fmt.Errorf("schedule trading window invalid (start/end parse/order)")
	}
	if c.Schedule.AtRiskPollInterval > c.Schedule.PollInterval {
		return fmt.Errorf("schedule.at_risk_poll_interval (%v) must be <= poll_interval (%v)",
			c.Schedule.AtRiskPollInterval, c.Schedule.PollInterval)
	}
	if c.Schedule.MaxTradesPerDay <= 0 {
		return fmt.Errorf("schedule.max_trades_per_day must be > 0")
	}
	if c.Schedule.MaxCycles <= 0 {
		return fmt.Errorf("schedule.max_cycles must be > 0")
	}

	// Order validation
	if c.Order.MinCredit < 0 {
		return fmt.Errorf("order.min_credit must be >= 0")
	}

	// Logging validation
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json'")
	}

	if c.Dashboard.Enabled && c.Dashboard.Address == "" {
		return fmt.Errorf("dashboard.address is required when the dashboard is enabled")
	}

	return nil
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// GetPollInterval returns the sleep between cycles; atRisk selects the
// shortened interval.
func (c *Config) GetPollInterval(atRisk bool) time.Duration {
	if atRisk {
		if c.Schedule.AtRiskPollInterval > 0 {
			return c.Schedule.AtRiskPollInterval
		}
		return defaultAtRiskPollInterval
	}
	if c.Schedule.PollInterval > 0 {
		return c.Schedule.PollInterval
	}
	return defaultPollInterval
}

// RiskThresholds returns the evaluator thresholds.
func (c *Config) RiskThresholds() risk.Thresholds {
	return risk.Thresholds{
		CloseLossPct:  c.Risk.CloseLossPct,
		AtRiskLossPct: c.Risk.AtRiskLossPct,
	}
}

// RateLimits returns the outbound limiter settings for the broker client.
func (c *Config) RateLimits() broker.RateLimits {
	return broker.RateLimits{
		RequestsPerSecond: c.Broker.RequestsPerSecond,
		Burst:             c.Broker.Burst,
	}
}

// CircuitBreakerSettings merges the configured breaker values over the
// broker defaults.
func (c *Config) CircuitBreakerSettings() broker.CircuitBreakerSettings {
	s := broker.DefaultCircuitBreakerSettings
	cb := c.Broker.CircuitBreaker
	if cb.MaxRequests > 0 {
		s.MaxRequests = cb.MaxRequests
	}
	if cb.Interval > 0 {
		s.Interval = cb.Interval
	}
	if cb.Timeout > 0 {
		s.Timeout = cb.Timeout
	}
	if cb.MinRequests > 0 {
		s.MinRequests = cb.MinRequests
	}
	if cb.FailureRatio > 0 {
		s.FailureRatio = cb.FailureRatio
	}
	return s
}

// Location returns the schedule timezone, falling back to America/New_York
// and finally to a fixed ET offset on minimal containers.
func (c *Config) Location() *time.Location {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Try fallback to America/New_York
		if fallbackLoc, err2 := time.LoadLocation(defaultTimezone); err2 == nil {
			return fallbackLoc
		}
		// Final fallback to DST-agnostic FixedZone
		return time.FixedZone("ET", -5*60*60)
	}
	return loc
}

// IsWithinTradingHours checks if the given time falls within configured trading hours.
func (c *Config) IsWithinTradingHours(now time.Time) bool {
	loc := c.Location()
	today := now.In(loc)

	// Only allow Monday–Friday trading
	if today.Weekday() == time.Saturday || today.Weekday() == time.Sunday {
		return false
	}

	startClock, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	endClock, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil {
		// Safe defaults if misconfigured
		startClock = time.Date(0, 1, 1, 9, 45, 0, 0, loc)
		endClock = time.Date(0, 1, 1, 15, 45, 0, 0, loc)
	}
	start := time.Date(today.Year(), today.Month(), today.Day(),
		startClock.Hour(), startClock.Minute(), 0, 0, loc)
	end := time.Date(today.Year(), today.Month(), today.Day(),
		endClock.Hour(), endClock.Minute(), 0, 0, loc)

	// Inclusive start, exclusive end
	return !today.Before(start) && today.Before(end)
}

// Expiration returns today's date in the schedule timezone as YYYY-MM-DD,
// the expiration of a 0DTE contract traded at now.
func (c *Config) Expiration(now time.Time) string {
	return now.In(c.Location()).Format("2006-01-02")
}

// normalize sets defaults for every optional value left unset.
func (c *Config) normalize() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Broker.Provider == "" {
		c.Broker.Provider = "public"
	}
	if c.Broker.APIEndpoint == "" {
		c.Broker.APIEndpoint = broker.DefaultBaseURL
	}
	if c.Broker.Timeout == 0 {
		c.Broker.Timeout = 10 * time.Second
	}
	if c.Broker.RequestsPerSecond == 0 {
		c.Broker.RequestsPerSecond = broker.DefaultRateLimits.RequestsPerSecond
	}
	if c.Broker.Burst == 0 {
		c.Broker.Burst = broker.DefaultRateLimits.Burst
	}
	if c.Broker.Paper.StartPrice == 0 {
		c.Broker.Paper.StartPrice = 450
	}
	if c.Strategy.ExpectedMove == 0 {
		c.Strategy.ExpectedMove = defaultExpectedMove
	}
	if c.Strategy.SpreadWidth == 0 {
		c.Strategy.SpreadWidth = defaultSpreadWidth
	}
	if c.Strategy.DeltaBand == (strategy.DeltaBand{}) {
		c.Strategy.DeltaBand = strategy.DefaultDeltaBand
	}
	if c.Strategy.Quantity == 0 {
		c.Strategy.Quantity = 1
	}
	if c.Risk.CloseLossPct == 0 {
		c.Risk.CloseLossPct = risk.DefaultCloseLossPct
	}
	if c.Risk.AtRiskLossPct == 0 {
		c.Risk.AtRiskLossPct = risk.DefaultAtRiskLossPct
	}
	if c.Risk.CloseSlippage == 0 {
		c.Risk.CloseSlippage = defaultCloseSlippage
	}
	if c.Risk.CloseMaxRetries == 0 {
		c.Risk.CloseMaxRetries = defaultCloseMaxRetries
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = defaultTimezone
	}
	if c.Schedule.TradingStart == "" {
		c.Schedule.TradingStart = defaultTradingStart
	}
	if c.Schedule.TradingEnd == "" {
		c.Schedule.TradingEnd = defaultTradingEnd
	}
	if c.Schedule.PollInterval == 0 {
		c.Schedule.PollInterval = defaultPollInterval
	}
	if c.Schedule.AtRiskPollInterval == 0 {
		c.Schedule.AtRiskPollInterval = defaultAtRiskPollInterval
	}
	if c.Schedule.MinTradeSpacing == 0 {
		c.Schedule.MinTradeSpacing = defaultMinTradeSpacing
	}
	if c.Schedule.MaxTradesPerDay == 0 {
		c.Schedule.MaxTradesPerDay = defaultMaxTradesPerDay
	}
	if c.Schedule.MaxCycles == 0 {
		c.Schedule.MaxCycles = defaultMaxCycles
	}
	if c.Order.TickSize == 0 {
		c.Order.TickSize = defaultTickSize
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Dashboard.Enabled && c.Dashboard.Address == "" {
		c.Dashboard.Address = defaultDashboardAddress
	}
}
