package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/broker"
	"github.com/eddiefleurent/condor_bot/internal/config"
	"github.com/eddiefleurent/condor_bot/internal/metrics"
	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/eddiefleurent/condor_bot/internal/orders"
	"github.com/eddiefleurent/condor_bot/internal/osi"
	"github.com/eddiefleurent/condor_bot/internal/risk"
	"github.com/eddiefleurent/condor_bot/internal/strategy"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// countdownStep is how often the wait before the next cycle is logged.
const countdownStep = 3 * time.Second

// CycleResult is the outcome of one scheduler cycle.
type CycleResult struct {
	ID      string
	At      time.Time
	Entered bool
	AtRisk  bool
	Reason  string
	Condor  *models.IronCondor
	Orders  []*broker.PreflightResponse
	Err     error
}

// Scheduler drives the trading loop for one session.
type Scheduler struct {
	cfg       *config.Config
	gateway   broker.Gateway
	evaluator *risk.Evaluator
	orders    *orders.Manager
	metrics   *metrics.Metrics
	journal   Journal
	logger    logrus.FieldLogger
	now       func() time.Time
}

// Journal receives the session snapshot after every cycle.
type Journal interface {
	Save(v any) error
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithMetrics records cycle outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithJournal saves the session snapshot to j after each cycle.
func WithJournal(j Journal) Option {
	return func(s *Scheduler) { s.journal = j }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the scheduler logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler builds a scheduler. cfg must already be validated.
func NewScheduler(cfg *config.Config, gateway broker.Gateway, evaluator *risk.Evaluator, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		gateway:   gateway,
		evaluator: evaluator,
		logger:    logrus.StandardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.orders = orders.NewManager(gateway, s.logger, orders.Config{
		Quantity:     cfg.Strategy.Quantity,
		SingleTicket: cfg.Order.SingleTicket,
		TickSize:     cfg.Order.TickSize,
		MinCredit:    cfg.Order.MinCredit,
		CallTimeout:  cfg.Broker.Timeout,
	})
	return s
}

// Eligible reports whether a new condor may be entered at now. Entries need
// the trading window to be open, fewer than the daily cap of trades, and,
// after the first trade, at least the minimum spacing since the last one.
func (s *Scheduler) Eligible(now time.Time, state models.TradeState) (bool, string) {
	if !s.cfg.IsWithinTradingHours(now) {
		return false, fmt.Sprintf("outside trading hours (%s - %s)",
			s.cfg.Schedule.TradingStart, s.cfg.Schedule.TradingEnd)
	}
	if state.TradesToday >= s.cfg.Schedule.MaxTradesPerDay {
		return false, fmt.Sprintf("daily cap of %d trades reached", s.cfg.Schedule.MaxTradesPerDay)
	}
	if state.HasTraded() {
		if elapsed := now.Sub(state.LastTrade); elapsed < s.cfg.Schedule.MinTradeSpacing {
			return false, fmt.Sprintf("last trade %s ago, need %s",
				elapsed.Round(time.Second), s.cfg.Schedule.MinTradeSpacing)
		}
	}
	return true, "eligible"
}

// RunCycle performs one pass: fetch market state, evaluate risk, and enter a
// condor when eligible. Failures end the cycle and are reported in the
// result; they never abort the session.
func (s *Scheduler) RunCycle(ctx context.Context, session *Session) (res CycleResult) {
	res = CycleResult{ID: uuid.NewString(), At: s.now()}
	log := s.logger.WithFields(logrus.Fields{
		"cycle": res.ID[:8],
		"state": session.State(),
	})

	defer func() {
		session.finishCycle(res)
		s.countCycle(res)
		s.saveSnapshot(session)
	}()

	underlying := models.NewEquity(s.cfg.Strategy.Symbol)

	quote, err := s.gateway.GetQuote(ctx, underlying)
	if err != nil {
		return s.gatewayFailure(log, res, "quote", err)
	}
	log = log.WithField("last", quote.Last)

	chain, err := s.gateway.GetOptionChain(ctx, underlying, session.Expiration())
	if err != nil {
		return s.gatewayFailure(log, res, "option-chain", err)
	}

	portfolio, err := s.gateway.GetPortfolio(ctx)
	if err != nil {
		return s.gatewayFailure(log, res, "portfolio", err)
	}

	if stocks := portfolio.StockPositions(); len(stocks) > 0 {
		log.WithField("stock_positions", len(stocks)).Debug("Stock positions are not risk-managed")
	}
	optionPositions := portfolio.OptionPositions()
	summary, err := s.evaluator.Evaluate(ctx, optionPositions, session.Risk())
	session.setRisk(summary)
	res.AtRisk = summary.PositionsAtRisk
	if s.metrics != nil {
		s.metrics.SetAtRisk(summary.PositionsAtRisk)
	}
	if err != nil {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			res.Reason = "canceled"
			return res
		}
		log.WithError(err).Warn("Risk evaluation reported errors")
	}
	if err := session.observePositions(len(optionPositions)); err != nil {
		log.WithError(err).Warn("Session state transition rejected")
	}

	ok, reason := s.Eligible(res.At, session.Trades())
	if !ok {
		res.Reason = reason
		log.WithField("reason", reason).Info("Not entering a new trade")
		return res
	}

	condor, err := s.selectCondor(ctx, log, quote.Last, chain)
	if err != nil {
		res.Err = err
		switch {
		case errors.Is(err, broker.ErrGateway):
			return s.gatewayFailure(log, res, "greeks", err)
		case errors.Is(err, strategy.ErrSearchBudgetExhausted):
			res.Reason = "strike search did not converge"
			log.WithError(err).Warn("Skipping entry, strike search did not converge")
		default:
			res.Reason = "no valid condor"
			log.WithError(err).Error("Skipping entry, condor selection failed")
		}
		return res
	}
	res.Condor = condor
	log = log.WithField("condor", condor.String())

	tickets, credit, err := s.orders.BuildEntry(condor, chain)
	if err != nil {
		res.Err = err
		res.Reason = "entry not priced"
		log.WithError(err).Warn("Skipping entry")
		return res
	}
	log.WithField("credit", credit).Info("Submitting iron condor")

	accepted, err := s.orders.SubmitEntry(ctx, tickets)
	res.Orders = accepted
	if len(accepted) > 0 {
		// Any accepted leg counts as an entry so gating sees the exposure.
		res.Entered = true
		if terr := session.recordTrade(res.At); terr != nil {
			log.WithError(terr).Warn("Session state transition rejected")
		}
		if s.metrics != nil {
			s.metrics.TradesEntered.Inc()
			s.metrics.TradesToday.Set(float64(session.Trades().TradesToday))
		}
	}
	if err != nil {
		res.Err = err
		res.Reason = "order submission failed"
		if errors.Is(err, broker.ErrGateway) && s.metrics != nil {
			s.metrics.GatewayErrors.WithLabelValues("preflight").Inc()
		}
		return res
	}

	res.Reason = "entered"
	log.WithFields(logrus.Fields{
		"trades_today": session.Trades().TradesToday,
		"orders":       len(accepted),
	}).Info("Iron condor entered")
	return res
}

// Preview is a priced condor that was not submitted.
type Preview struct {
	Quote   *models.Quote
	Condor  *models.IronCondor
	Tickets []orders.Ticket
	Credit  float64
}

// Preview selects and prices the condor RunCycle would enter for
// expiration, without gating or submitting it.
func (s *Scheduler) Preview(ctx context.Context, expiration string) (*Preview, error) {
	underlying := models.NewEquity(s.cfg.Strategy.Symbol)
	quote, err := s.gateway.GetQuote(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	chain, err := s.gateway.GetOptionChain(ctx, underlying, expiration)
	if err != nil {
		return nil, fmt.Errorf("option chain: %w", err)
	}
	condor, err := s.selectCondor(ctx, s.logger, quote.Last, chain)
	if err != nil {
		return nil, err
	}
	tickets, credit, err := s.orders.BuildEntry(condor, chain)
	if err != nil {
		return nil, err
	}
	return &Preview{Quote: quote, Condor: condor, Tickets: tickets, Credit: credit}, nil
}

// selectCondor locates both ATM strikes, walks out to the short strikes and
// builds the condor.
func (s *Scheduler) selectCondor(ctx context.Context, log logrus.FieldLogger, price float64,
	chain *models.OptionChain) (*models.IronCondor, error) {
	callATM, err := strategy.LocateATM(osi.Call, price, chain, -1)
	if err != nil {
		s.countExhausted(err)
		return nil, fmt.Errorf("call ATM: %w", err)
	}
	putATM, err := strategy.LocateATM(osi.Put, price, chain, -1)
	if err != nil {
		s.countExhausted(err)
		return nil, fmt.Errorf("put ATM: %w", err)
	}
	if err := strategy.CheckATMPair(chain, callATM, putATM, price); err != nil {
		log.WithError(err).Warn("ATM strikes look inconsistent")
	}

	offset := s.cfg.Strategy.ExpectedMove
	band := s.cfg.Strategy.DeltaBand
	shortCall, err := strategy.FindShortStrike(ctx, s.gateway, chain, osi.Call, callATM, offset, band)
	if err != nil {
		s.countExhausted(err)
		return nil, fmt.Errorf("short call: %w", err)
	}
	shortPut, err := strategy.FindShortStrike(ctx, s.gateway, chain, osi.Put, putATM, offset, band)
	if err != nil {
		s.countExhausted(err)
		return nil, fmt.Errorf("short put: %w", err)
	}
	log.WithFields(logrus.Fields{
		"short_call":       shortCall.Symbol,
		"short_call_delta": shortCall.Delta,
		"short_put":        shortPut.Symbol,
		"short_put_delta":  shortPut.Delta,
	}).Info("Short strikes selected")

	return strategy.BuildCondor(shortCall, shortPut, chain, s.cfg.Strategy.SpreadWidth)
}

// Run executes up to MaxCycles cycles, sleeping the at-risk or default poll
// interval between them. It returns ctx.Err() when canceled.
func (s *Scheduler) Run(ctx context.Context, session *Session) error {
	maxCycles := s.cfg.Schedule.MaxCycles
	s.logger.WithFields(logrus.Fields{
		"symbol":     s.cfg.Strategy.Symbol,
		"expiration": session.Expiration(),
		"max_cycles": maxCycles,
	}).Info("Starting 0DTE session")

	for cycle := 1; cycle <= maxCycles; cycle++ {
		res := s.RunCycle(ctx, session)
		if err := ctx.Err(); err != nil {
			return err
		}
		if cycle == maxCycles {
			break
		}
		if err := s.sleep(ctx, s.cfg.GetPollInterval(res.AtRisk)); err != nil {
			return err
		}
	}

	snap := session.Snapshot()
	s.logger.WithFields(logrus.Fields{
		"trades":       snap.Trades.TradesToday,
		"closed_calls": snap.Risk.ClosedCallSpreads,
		"closed_puts":  snap.Risk.ClosedPutSpreads,
		"closed_total": snap.Risk.TotalClosed(),
	}).Info("Done for the day")
	return nil
}

// sleep waits d or until ctx is done, logging the countdown.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var tick <-chan time.Time
	if d > countdownStep {
		ticker := time.NewTicker(countdownStep)
		defer ticker.Stop()
		tick = ticker.C
	}
	deadline := time.Now().Add(d)
	s.logger.Debugf("New data in %s", d)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-tick:
			s.logger.Debugf("New data in %s", time.Until(deadline).Round(time.Second))
		}
	}
}

func (s *Scheduler) gatewayFailure(log logrus.FieldLogger, res CycleResult, op string, err error) CycleResult {
	res.Err = err
	res.Reason = op + " unavailable"
	log.WithError(err).WithField("op", op).Error("Gateway call failed, retrying next cycle")
	if s.metrics != nil {
		s.metrics.GatewayErrors.WithLabelValues(op).Inc()
	}
	return res
}

func (s *Scheduler) saveSnapshot(session *Session) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Save(session.Snapshot()); err != nil {
		s.logger.WithError(err).Warn("Failed to save session snapshot")
	}
}

func (s *Scheduler) countExhausted(err error) {
	if s.metrics == nil {
		return
	}
	var se *strategy.SearchError
	if errors.As(err, &se) {
		s.metrics.SearchExhausted.WithLabelValues(se.Search, string(se.Side)).Inc()
	}
}

func (s *Scheduler) countCycle(res CycleResult) {
	if s.metrics == nil {
		return
	}
	switch {
	case res.Entered:
		s.metrics.Cycles.WithLabelValues(metrics.OutcomeEntered).Inc()
	case res.Err != nil:
		s.metrics.Cycles.WithLabelValues(metrics.OutcomeError).Inc()
	default:
		s.metrics.Cycles.WithLabelValues(metrics.OutcomeSkipped).Inc()
	}
}
