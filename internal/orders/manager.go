// Package orders prices iron condor entries and hands them to the order
// gateway as preflight multi-leg orders.
package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/broker"
	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/eddiefleurent/condor_bot/internal/osi"
	"github.com/eddiefleurent/condor_bot/internal/util"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrCreditTooLow is returned when the condor's mid credit is under the
// configured minimum.
var ErrCreditTooLow = errors.New("condor credit below minimum")

// Config contains configuration for the order manager.
type Config struct {
	Quantity int
	// SingleTicket sends all four legs as one order.
	SingleTicket bool
	TickSize     float64
	MinCredit    float64
	CallTimeout  time.Duration
}

// DefaultConfig is the default configuration for the order manager.
var DefaultConfig = Config{
	Quantity:    1,
	TickSize:    0.01,
	CallTimeout: 10 * time.Second,
}

// Ticket is one order of an entry, named for logging.
type Ticket struct {
	Name   string
	Credit float64
	Order  broker.PreflightOrder
}

// Manager builds and submits entry orders.
type Manager struct {
	gateway broker.Gateway
	logger  logrus.FieldLogger
	config  Config
}

// NewManager creates a new order manager instance.
func NewManager(gateway broker.Gateway, logger logrus.FieldLogger, config ...Config) *Manager {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	// Validate and clamp config values
	if cfg.Quantity <= 0 {
		cfg.Quantity = DefaultConfig.Quantity
	}
	if cfg.TickSize <= 0 {
		cfg.TickSize = DefaultConfig.TickSize
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig.CallTimeout
	}
	if cfg.MinCredit < 0 {
		cfg.MinCredit = 0
	}

	// Fail fast to avoid later panics
	if gateway == nil {
		panic("orders.NewManager: gateway must not be nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Manager{
		gateway: gateway,
		logger:  logger,
		config:  cfg,
	}
}

// BuildEntry prices condor from the chain mids and returns the orders to
// submit: a call credit spread and a put credit spread, or a single 4-leg
// ticket. The second return value is the total mid credit per contract.
func (m *Manager) BuildEntry(condor *models.IronCondor, chain *models.OptionChain) ([]Ticket, float64, error) {
	callCredit, err := spreadCredit(chain, osi.Call, condor.ShortCall, condor.LongCall)
	if err != nil {
		return nil, 0, err
	}
	putCredit, err := spreadCredit(chain, osi.Put, condor.ShortPut, condor.LongPut)
	if err != nil {
		return nil, 0, err
	}
	total := callCredit + putCredit
	if total < m.config.MinCredit {
		return nil, total, fmt.Errorf("%.2f < %.2f: %w", total, m.config.MinCredit, ErrCreditTooLow)
	}

	if m.config.SingleTicket {
		legs := append(spreadLegs(condor.ShortCall, condor.LongCall), spreadLegs(condor.ShortPut, condor.LongPut)...)
		return []Ticket{m.ticket("iron condor", total, legs)}, total, nil
	}
	return []Ticket{
		m.ticket("call spread", callCredit, spreadLegs(condor.ShortCall, condor.LongCall)),
		m.ticket("put spread", putCredit, spreadLegs(condor.ShortPut, condor.LongPut)),
	}, total, nil
}

// SubmitEntry sends tickets in order and stops at the first failure. The
// responses of the tickets accepted before the failure are returned with
// the error.
func (m *Manager) SubmitEntry(ctx context.Context, tickets []Ticket) ([]*broker.PreflightResponse, error) {
	accepted := make([]*broker.PreflightResponse, 0, len(tickets))
	for _, t := range tickets {
		log := m.logger.WithFields(logrus.Fields{
			"ticket":   t.Name,
			"order_id": t.Order.OrderID,
			"limit":    t.Order.LimitPrice,
			"quantity": t.Order.Quantity,
		})

		callCtx, cancel := context.WithTimeout(ctx, m.config.CallTimeout)
		resp, err := m.gateway.SubmitPreflight(callCtx, t.Order)
		cancel()
		if err != nil {
			log.WithError(err).Error("Preflight rejected")
			return accepted, fmt.Errorf("submitting %s: %w", t.Name, err)
		}

		log.WithFields(logrus.Fields{
			"order_value":  resp.OrderValue,
			"commission":   resp.EstimatedCommission,
			"buying_power": resp.BuyingPowerRequirement,
		}).Info("Preflight accepted")
		accepted = append(accepted, resp)
	}
	return accepted, nil
}

func (m *Manager) ticket(name string, credit float64, legs []broker.OrderLeg) Ticket {
	limit := math.Max(util.RoundToTick(credit, m.config.TickSize), m.config.TickSize)
	return Ticket{
		Name:   name,
		Credit: credit,
		Order: broker.PreflightOrder{
			OrderID:     uuid.NewString(),
			OrderType:   broker.OrderTypeLimit,
			TimeInForce: broker.TimeInForceDay,
			Quantity:    m.config.Quantity,
			LimitPrice:  limit,
			Legs:        legs,
		},
	}
}

// spreadLegs buys the long leg and sells the short leg to open.
func spreadLegs(short, long models.Leg) []broker.OrderLeg {
	return []broker.OrderLeg{
		{Instrument: models.NewOption(long.Symbol), Side: broker.SideBuy, OpenClose: broker.Open, RatioQuantity: 1},
		{Instrument: models.NewOption(short.Symbol), Side: broker.SideSell, OpenClose: broker.Open, RatioQuantity: 1},
	}
}

// spreadCredit is the short mid less the long mid, never negative.
func spreadCredit(chain *models.OptionChain, side osi.OptionType, short, long models.Leg) (float64, error) {
	quotes := chain.Side(side)
	for _, leg := range []models.Leg{short, long} {
		if leg.Index < 0 || leg.Index >= len(quotes) || quotes[leg.Index].Instrument.Symbol != leg.Symbol {
			return 0, fmt.Errorf("%s leg %s not found at chain index %d", side, leg.Symbol, leg.Index)
		}
	}
	return math.Max(0, quotes[short.Index].Mid()-quotes[long.Index].Mid()), nil
}
