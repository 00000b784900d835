package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/broker"
	"github.com/eddiefleurent/condor_bot/internal/logging"
	"github.com/eddiefleurent/condor_bot/internal/mock"
	"github.com/eddiefleurent/condor_bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paperConfig = `
environment:
  mode: paper
  log_level: error
broker:
  paper:
    start_price: 450.37
strategy:
  symbol: SPY
schedule:
  poll_interval: 1ms
  at_risk_poll_interval: 1ms
  max_cycles: 2
order:
  min_credit: 0
dashboard:
  enabled: %s
  address: 127.0.0.1:0
`

func writeConfig(t *testing.T, dashboard string) *options {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := bytes.Replace([]byte(paperConfig), []byte("%s"), []byte(dashboard), 1)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	return &options{
		configPath: path,
		envFile:    filepath.Join(dir, "missing.env"),
		expiration: "2025-12-24",
	}
}

func TestResolveExpiration(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		want    string
		wantErr bool
	}{
		{"default", "", "2025-12-24", false},
		{"explicit", "2026-01-02", "2026-01-02", false},
		{"malformed", "01/02/2026", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveExpiration(tt.flag, "2025-12-24")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfig_CyclesOverride(t *testing.T) {
	opts := writeConfig(t, "false")
	opts.cycles = 7

	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Schedule.MaxCycles)
}

func TestNewGateway(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "false"))
	require.NoError(t, err)

	_, ok := newGateway(cfg, logging.Discard()).(*mock.DataProvider)
	assert.True(t, ok, "paper mode uses the synthetic market")

	cfg.Environment.Mode = "live"
	cfg.Broker.APIKey = "key"
	cfg.Broker.AccountID = "acct"
	_, ok = newGateway(cfg, logging.Discard()).(*broker.CircuitBreakerGateway)
	assert.True(t, ok, "live mode wraps the Public.com client in a circuit breaker")
}

func TestBotRun_PaperSession(t *testing.T) {
	for _, dash := range []string{"false", "true"} {
		t.Run("dashboard="+dash, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, dash))
			require.NoError(t, err)

			bot, err := NewBot(cfg, logging.Discard(), newGateway(cfg, logging.Discard()), "2025-12-24", time.Now())
			require.NoError(t, err)
			assert.Equal(t, dash == "true", bot.dashboard != nil)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			require.NoError(t, bot.Run(ctx))
			assert.Equal(t, 2, bot.session.Snapshot().Cycles)
		})
	}
}

func TestBotRun_Canceled(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "false"))
	require.NoError(t, err)
	cfg.Schedule.PollInterval = time.Hour
	cfg.Schedule.AtRiskPollInterval = time.Hour

	bot, err := NewBot(cfg, logging.Discard(), newGateway(cfg, logging.Discard()), "2025-12-24", time.Now())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	assert.NoError(t, bot.Run(ctx), "a canceled session is a clean stop")
}

func TestCheckCommand(t *testing.T) {
	opts := writeConfig(t, "false")
	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"check",
		"--config", opts.configPath,
		"--env-file", opts.envFile,
		"--expiration", opts.expiration,
	})
	require.NoError(t, cmd.Execute())

	got := out.String()
	assert.Contains(t, got, "SPY last 450.37, expiration 2025-12-24")
	assert.Contains(t, got, "443/445 P")
	assert.Contains(t, got, "call spread")
	assert.Contains(t, got, "total credit")
}

func TestCheckCommand_BadConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"check", "--config", filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, cmd.Execute())
}

func TestStatusCommand(t *testing.T) {
	opts := writeConfig(t, "false")
	sessionFile := filepath.Join(filepath.Dir(opts.configPath), "data", "session.json")
	body, err := os.ReadFile(opts.configPath)
	require.NoError(t, err)
	body = append(body, []byte("storage:\n  session_file: "+sessionFile+"\n")...)
	require.NoError(t, os.WriteFile(opts.configPath, body, 0o600))

	status := func() (string, error) {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"status", "--config", opts.configPath, "--env-file", opts.envFile})
		err := cmd.Execute()
		return out.String(), err
	}

	_, err = status()
	assert.ErrorIs(t, err, storage.ErrNoSnapshot, "nothing saved before the first cycle")

	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	bot, err := NewBot(cfg, logging.Discard(), newGateway(cfg, logging.Discard()), "2025-12-24", time.Now())
	require.NoError(t, err)
	require.NoError(t, bot.Run(context.Background()))

	got, err := status()
	require.NoError(t, err)
	assert.Contains(t, got, "SPY 2025-12-24")
	assert.Contains(t, got, "cycles 2")
}
