package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/broker"
	"github.com/eddiefleurent/condor_bot/internal/config"
	"github.com/eddiefleurent/condor_bot/internal/dashboard"
	"github.com/eddiefleurent/condor_bot/internal/logging"
	"github.com/eddiefleurent/condor_bot/internal/metrics"
	"github.com/eddiefleurent/condor_bot/internal/mock"
	"github.com/eddiefleurent/condor_bot/internal/retry"
	"github.com/eddiefleurent/condor_bot/internal/risk"
	"github.com/eddiefleurent/condor_bot/internal/storage"
	"github.com/eddiefleurent/condor_bot/internal/trading"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	liveConfirmDelay  = 10 * time.Second
	dashboardShutdown = 5 * time.Second
)

// Bot wires one trading session to its gateway and status server.
type Bot struct {
	cfg       *config.Config
	logger    *logrus.Logger
	gateway   broker.Gateway
	metrics   *metrics.Metrics
	session   *trading.Session
	scheduler *trading.Scheduler
	dashboard *dashboard.Server
}

func loadConfig(opts *options) (*config.Config, error) {
	if err := config.LoadEnv(opts.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.cycles > 0 {
		cfg.Schedule.MaxCycles = opts.cycles
	}
	return cfg, nil
}

// newGateway returns the synthetic market in paper mode and the
// circuit-broken Public.com client in live mode.
func newGateway(cfg *config.Config, logger logrus.FieldLogger) broker.Gateway {
	if cfg.IsPaperTrading() {
		var opts []mock.Option
		if cfg.Broker.Paper.RandomWalk {
			opts = append(opts, mock.WithRandomWalk())
		}
		return mock.NewDataProvider(cfg.Strategy.Symbol, cfg.Broker.Paper.StartPrice, opts...)
	}

	api := broker.NewPublicAPIWithBaseURL(
		cfg.Broker.APIKey,
		cfg.Broker.AccountID,
		cfg.Broker.APIEndpoint,
		nil,
		cfg.RateLimits(),
	).WithTimeout(cfg.Broker.Timeout).WithLogger(logger)
	return broker.NewCircuitBreakerGatewayWithSettings(api, cfg.CircuitBreakerSettings(), logger)
}

// NewBot builds the session for expiration on top of gateway.
func NewBot(cfg *config.Config, logger *logrus.Logger, gateway broker.Gateway, expiration string,
	now time.Time) (*Bot, error) {
	m := metrics.New()
	closer := retry.NewClient(gateway, logger, retry.Config{
		MaxRetries: cfg.Risk.CloseMaxRetries,
		Slippage:   cfg.Risk.CloseSlippage,
		TickSize:   cfg.Order.TickSize,
	})
	evaluator := risk.NewEvaluator(closer, logger,
		risk.WithThresholds(cfg.RiskThresholds()),
		risk.WithCloseHook(m.RecordClose),
	)

	b := &Bot{
		cfg:     cfg,
		logger:  logger,
		gateway: gateway,
		metrics: m,
		session: trading.NewSession(cfg.Strategy.Symbol, expiration, now),
	}
	schedOpts := []trading.Option{
		trading.WithMetrics(m),
		trading.WithLogger(logger),
	}
	if cfg.Storage.SessionFile != "" {
		store, err := storage.NewStorage(cfg.Storage.SessionFile)
		if err != nil {
			return nil, err
		}
		schedOpts = append(schedOpts, trading.WithJournal(store))
	}
	b.scheduler = trading.NewScheduler(cfg, gateway, evaluator, schedOpts...)
	if cfg.Dashboard.Enabled {
		b.dashboard = dashboard.NewServer(
			dashboard.Config{Address: cfg.Dashboard.Address, AuthToken: cfg.Dashboard.AuthToken},
			b.session, gateway, m.Handler(), logger,
		)
	}
	return b, nil
}

// Run drives the scheduler until the session ends or ctx is canceled. The
// dashboard, if enabled, stops with it.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return b.scheduler.Run(gctx, b.session)
	})
	if b.dashboard != nil {
		g.Go(b.dashboard.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), dashboardShutdown)
			defer done()
			return b.dashboard.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runSession(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Environment.LogLevel, cfg.Logging)
	if err != nil {
		return err
	}
	expiration, err := resolveExpiration(opts.expiration, cfg.Expiration(time.Now()))
	if err != nil {
		return err
	}

	logger.Infof("Starting condor bot in %s mode", cfg.Environment.Mode)
	if cfg.IsPaperTrading() {
		logger.Info("PAPER TRADING MODE - synthetic market, no real money at risk")
	} else {
		logger.Warn("LIVE TRADING MODE - real money at risk!")
		logger.Infof("Waiting %s to confirm...", liveConfirmDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(liveConfirmDelay):
		}
	}

	bot, err := NewBot(cfg, logger, newGateway(cfg, logger), expiration, time.Now())
	if err != nil {
		return err
	}
	if err := bot.Run(ctx); err != nil {
		logger.WithError(err).Error("Bot error")
		return err
	}
	snap := bot.session.Snapshot()
	logger.WithFields(logrus.Fields{
		"cycles": snap.Cycles,
		"trades": snap.Trades.TradesToday,
		"closed": snap.Risk.TotalClosed(),
	}).Info("Bot stopped successfully")
	return nil
}

// runCheck prices today's condor against the configured gateway and prints
// it without submitting anything.
func runCheck(ctx context.Context, opts *options, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Environment.LogLevel, cfg.Logging)
	if err != nil {
		return err
	}
	expiration, err := resolveExpiration(opts.expiration, cfg.Expiration(time.Now()))
	if err != nil {
		return err
	}

	bot, err := NewBot(cfg, logger, newGateway(cfg, logger), expiration, time.Now())
	if err != nil {
		return err
	}
	p, err := bot.scheduler.Preview(ctx, expiration)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	fmt.Fprintf(out, "%s last %.2f, expiration %s\n", cfg.Strategy.Symbol, p.Quote.Last, expiration)
	fmt.Fprintf(out, "condor %s\n", p.Condor)
	for _, t := range p.Tickets {
		fmt.Fprintf(out, "  %-12s credit %.2f limit %.2f\n", t.Name, t.Credit, t.Order.LimitPrice)
	}
	fmt.Fprintf(out, "total credit %.2f\n", p.Credit)
	return nil
}

// runStatus prints the snapshot the running bot last saved.
func runStatus(opts *options, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if cfg.Storage.SessionFile == "" {
		return errors.New("storage.session_file is not configured")
	}
	store, err := storage.NewStorage(cfg.Storage.SessionFile)
	if err != nil {
		return err
	}
	var snap trading.Snapshot
	if err := store.Load(&snap); err != nil {
		return err
	}

	fmt.Fprintf(out, "session %s  %s %s  state %s\n", snap.ID, snap.Symbol, snap.Expiration, snap.State)
	fmt.Fprintf(out, "cycles %d  trades %d  closed %d call / %d put  at risk %t\n",
		snap.Cycles, snap.Trades.TradesToday,
		snap.Risk.ClosedCallSpreads, snap.Risk.ClosedPutSpreads, snap.Risk.PositionsAtRisk)
	if lc := snap.LastCycle; lc != nil {
		fmt.Fprintf(out, "last cycle %s: %s\n", lc.At.Format(time.RFC3339), lc.Reason)
	}
	return nil
}
