package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/broker"
	"github.com/eddiefleurent/condor_bot/internal/strategy"
)

func TestLoad(t *testing.T) {
	// The example file is the documented configuration; it must always load.
	configPath := filepath.Join("..", "..", "config.yaml.example")
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected config to load successfully from example file, got error: %v", err)
	}
	if !cfg.IsPaperTrading() {
		t.Error("Expected example config to run in paper mode")
	}
	if cfg.Strategy.DeltaBand != strategy.DefaultDeltaBand {
		t.Errorf("Expected default delta band, got %+v", cfg.Strategy.DeltaBand)
	}
	if cfg.Schedule.MaxTradesPerDay != 4 || cfg.Schedule.MinTradeSpacing != 15*time.Minute {
		t.Errorf("Unexpected gating config: %+v", cfg.Schedule)
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("CONDOR_TEST_KEY", "secret-key")
	data := []byte(`
environment:
  mode: live
broker:
  api_key: ${CONDOR_TEST_KEY}
  account_id: ACC1
strategy:
  symbol: SPY
schedule:
  trading_start: "09:45"
  trading_end: "15:45"
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Broker.APIKey != "secret-key" {
		t.Errorf("api_key = %q, want expanded value", cfg.Broker.APIKey)
	}
	if cfg.Broker.APIEndpoint != broker.DefaultBaseURL {
		t.Errorf("api_endpoint default = %q", cfg.Broker.APIEndpoint)
	}
	if cfg.Strategy.ExpectedMove != defaultExpectedMove || cfg.Strategy.SpreadWidth != defaultSpreadWidth {
		t.Errorf("strategy defaults not applied: %+v", cfg.Strategy)
	}
	if cfg.Schedule.PollInterval != 15*time.Second || cfg.Schedule.AtRiskPollInterval != 5*time.Second {
		t.Errorf("poll defaults not applied: %+v", cfg.Schedule)
	}
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	data := []byte(`
environment:
  mode: paper
strategy:
  symbol: SPY
  allocation_pct: 0.35
`)
	if _, err := Parse(data); err == nil {
		t.Error("Expected unknown field to be rejected")
	}
}

func validConfig() *Config {
	return &Config{
		Environment: EnvironmentConfig{Mode: "live", LogLevel: "info"},
		Broker: BrokerConfig{
			Provider:  "public",
			APIKey:    "test-key",
			AccountID: "test-account",
		},
		Strategy: StrategyConfig{
			Symbol:       "SPY",
			ExpectedMove: 5,
			SpreadWidth:  2,
			DeltaBand:    strategy.DefaultDeltaBand,
			Quantity:     1,
		},
		Risk: RiskConfig{CloseLossPct: -100, AtRiskLossPct: -85},
		Schedule: ScheduleConfig{
			Timezone:     "America/New_York",
			TradingStart: "09:45",
			TradingEnd:   "15:45",
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad mode", func(c *Config) { c.Environment.Mode = "demo" }, "environment.mode"},
		{"bad log level", func(c *Config) { c.Environment.LogLevel = "trace" }, "log_level"},
		{"live needs key", func(c *Config) { c.Broker.APIKey = "" }, "broker.api_key is required"},
		{"live needs account", func(c *Config) { c.Broker.AccountID = "" }, "broker.account_id is required"},
		{"paper needs no key", func(c *Config) { c.Environment.Mode = "paper"; c.Broker.APIKey = "" }, ""},
		{"missing symbol", func(c *Config) { c.Strategy.Symbol = "" }, "strategy.symbol is required"},
		{"negative offset", func(c *Config) { c.Strategy.ExpectedMove = -1 }, "strategy.expected_move"},
		{"negative width", func(c *Config) { c.Strategy.SpreadWidth = -2 }, "strategy.spread_width"},
		{"inverted band", func(c *Config) { c.Strategy.DeltaBand = strategy.DeltaBand{Lower: 0.2, Upper: 0.1} }, "strategy.delta_band"},
		{"close above at-risk", func(c *Config) { c.Risk.CloseLossPct = -50 }, "close_loss_pct"},
		{"slippage too large", func(c *Config) { c.Risk.CloseSlippage = 1.5 }, "risk.close_slippage"},
		{"window inverted", func(c *Config) { c.Schedule.TradingStart = "16:00" }, "trading window invalid"},
		{"window unparsable", func(c *Config) { c.Schedule.TradingEnd = "late" }, "trading window invalid"},
		{"at-risk poll slower", func(c *Config) { c.Schedule.AtRiskPollInterval = time.Minute }, "at_risk_poll_interval"},
		{"bad breaker ratio", func(c *Config) { c.Broker.CircuitBreaker.FailureRatio = 2 }, "failure_ratio"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected valid config, got error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error message to contain '%s', got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_DashboardAddressDefault(t *testing.T) {
	cfg := validConfig()
	cfg.Dashboard.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Dashboard.Address != defaultDashboardAddress {
		t.Errorf("dashboard address = %q, want default", cfg.Dashboard.Address)
	}
}

func TestIsWithinTradingHours(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	loc := cfg.Location()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", time.Date(2025, 12, 24, 9, 44, 59, 0, loc), false},
		{"at open", time.Date(2025, 12, 24, 9, 45, 0, 0, loc), true},
		{"midday", time.Date(2025, 12, 24, 12, 30, 0, 0, loc), true},
		{"at close", time.Date(2025, 12, 24, 15, 45, 0, 0, loc), false},
		{"saturday", time.Date(2025, 12, 27, 12, 0, 0, 0, loc), false},
		{"sunday", time.Date(2025, 12, 28, 12, 0, 0, 0, loc), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.IsWithinTradingHours(tt.at); got != tt.want {
				t.Errorf("IsWithinTradingHours(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestGetPollInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Schedule.PollInterval = 20 * time.Second
	cfg.Schedule.AtRiskPollInterval = 4 * time.Second

	if got := cfg.GetPollInterval(false); got != 20*time.Second {
		t.Errorf("default interval = %v", got)
	}
	if got := cfg.GetPollInterval(true); got != 4*time.Second {
		t.Errorf("at-risk interval = %v", got)
	}

	empty := &Config{}
	if got := empty.GetPollInterval(false); got != defaultPollInterval {
		t.Errorf("unset interval = %v, want %v", got, defaultPollInterval)
	}
}

func TestCircuitBreakerSettings_MergesDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.CircuitBreaker.MaxRequests = 7
	s := cfg.CircuitBreakerSettings()
	if s.MaxRequests != 7 {
		t.Errorf("MaxRequests = %d, want 7", s.MaxRequests)
	}
	if s.Timeout != broker.DefaultCircuitBreakerSettings.Timeout {
		t.Errorf("Timeout = %v, want default", s.Timeout)
	}
}

func TestExpiration_UsesScheduleTimezone(t *testing.T) {
	cfg := validConfig()
	loc := cfg.Location()
	// 23:30 in New York is already the next day in UTC.
	at := time.Date(2025, 12, 23, 23, 30, 0, 0, loc)
	if got := cfg.Expiration(at.UTC()); got != "2025-12-23" {
		t.Errorf("Expiration = %s, want 2025-12-23", got)
	}
}

func TestLoadEnv(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}

	const key = "CONDOR_BOT_ENV_TEST"
	_ = os.Unsetenv(key)
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(key+"=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Errorf("%s = %q, want from-file", key, got)
	}
}
