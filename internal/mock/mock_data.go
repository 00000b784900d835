// Package mock provides a synthetic market used for paper trading and tests.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/broker"
	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/eddiefleurent/condor_bot/internal/osi"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultDecay       = 0.35
	defaultStrikeCount = 125
	defaultBuyingPower = 25000.0
)

// DataProvider is a broker.Gateway backed by a generated $1-wide chain whose
// deltas decay exponentially with distance from the underlying price.
type DataProvider struct {
	mu          sync.Mutex
	underlying  string
	price       float64
	decay       float64
	strikeCount int
	randomWalk  bool
	positions   []models.PortfolioPosition
	orders      []broker.PreflightOrder
}

// Ensure DataProvider implements broker.Gateway at compile time.
var _ broker.Gateway = (*DataProvider)(nil)

// Option customises a DataProvider.
type Option func(*DataProvider)

// WithRandomWalk moves the price a little on every quote.
func WithRandomWalk() Option {
	return func(m *DataProvider) { m.randomWalk = true }
}

// WithDecay sets how fast |delta| falls off per dollar out of the money.
func WithDecay(decay float64) Option {
	return func(m *DataProvider) { m.decay = decay }
}

// WithStrikeCount sets the number of strikes per side.
func WithStrikeCount(n int) Option {
	return func(m *DataProvider) { m.strikeCount = n }
}

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// NewDataProvider returns a synthetic market for underlying at price.
func NewDataProvider(underlying string, price float64, opts ...Option) *DataProvider {
	m := &DataProvider{
		underlying:  underlying,
		price:       price,
		decay:       defaultDecay,
		strikeCount: defaultStrikeCount,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetPrice moves the underlying.
func (m *DataProvider) SetPrice(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price = price
}

// SetPositions replaces the portfolio positions.
func (m *DataProvider) SetPositions(positions []models.PortfolioPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append([]models.PortfolioPosition(nil), positions...)
}

// Orders returns the preflight orders received so far.
func (m *DataProvider) Orders() []broker.PreflightOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]broker.PreflightOrder(nil), m.orders...)
}

// GetQuote returns a quote with a two-cent spread around the current price.
func (m *DataProvider) GetQuote(ctx context.Context, instrument models.Instrument) (*models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if instrument.Type == models.AssetOption {
		sym, err := osi.Decode(instrument.Symbol)
		if err != nil {
			return nil, err
		}
		q := m.optionQuote(sym, time.Now())
		return &q, nil
	}
	if instrument.Symbol != m.underlying {
		return nil, &broker.GatewayError{Op: "quotes", Status: 404, Body: "unknown symbol " + instrument.Symbol}
	}
	if m.randomWalk {
		m.price += (secureFloat64() - 0.5) * 0.5
	}

	now := time.Now()
	spread := 0.02
	return &models.Quote{
		Instrument:    instrument,
		Outcome:       "SUCCESS",
		Last:          m.price,
		LastTimestamp: now,
		Bid:           m.price - spread/2,
		BidSize:       100,
		BidTimestamp:  now,
		Ask:           m.price + spread/2,
		AskSize:       100,
		AskTimestamp:  now,
		Volume:        1_000_000,
	}, nil
}

// GetOptionChain generates strikeCount $1 strikes centred on the price.
func (m *DataProvider) GetOptionChain(ctx context.Context, instrument models.Instrument,
	expiration string) (*models.OptionChain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	expDate, err := time.Parse("2006-01-02", expiration)
	if err != nil {
		return nil, fmt.Errorf("invalid expiration format: %w", err)
	}
	if instrument.Symbol != m.underlying {
		return nil, &broker.GatewayError{Op: "option-chain", Status: 404, Body: "unknown symbol " + instrument.Symbol}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	first := math.Floor(m.price) - float64(m.strikeCount/2)
	chain := &models.OptionChain{BaseSymbol: m.underlying}
	for i := 0; i < m.strikeCount; i++ {
		strike := decimal.NewFromFloat(first + float64(i))
		for _, side := range []osi.OptionType{osi.Call, osi.Put} {
			raw, err := osi.Encode(m.underlying, expDate, side, strike)
			if err != nil {
				return nil, err
			}
			q := m.optionQuote(osi.MustDecode(raw), now)
			if side == osi.Call {
				chain.Calls = append(chain.Calls, q)
			} else {
				chain.Puts = append(chain.Puts, q)
			}
		}
	}
	return chain, nil
}

// GetGreeks returns the synthetic greeks for symbol.
func (m *DataProvider) GetGreeks(ctx context.Context, osiSymbol string) (*models.Greeks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sym, err := osi.Decode(osiSymbol)
	if err != nil {
		return nil, &broker.GatewayError{Op: "greeks", Status: 400, Body: err.Error()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delta := m.delta(sym)
	gamma := m.decay * math.Abs(delta) * (1 - math.Abs(delta))
	return &models.Greeks{
		Symbol:            sym.Raw,
		Delta:             delta,
		Gamma:             gamma,
		Theta:             -0.05 * math.Abs(delta),
		Vega:              0.10 * math.Abs(delta),
		ImpliedVolatility: 0.15,
		Strike:            sym.Strike,
	}, nil
}

// GetPortfolio returns the configured positions.
func (m *DataProvider) GetPortfolio(ctx context.Context) (*models.Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return &models.Portfolio{
		AccountID:   "PAPER",
		AccountType: "MARGIN",
		BuyingPower: models.BuyingPower{
			CashOnlyBuyingPower: defaultBuyingPower,
			BuyingPower:         defaultBuyingPower,
			OptionsBuyingPower:  defaultBuyingPower,
		},
		Equity:    []models.EquitySlice{{Type: "CASH", Value: defaultBuyingPower, PercentageOfPortfolio: 100}},
		Positions: append([]models.PortfolioPosition(nil), m.positions...),
	}, nil
}

// SubmitPreflight validates and records order.
func (m *DataProvider) SubmitPreflight(ctx context.Context, order broker.PreflightOrder) (*broker.PreflightResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := order.Validate(); err != nil {
		return nil, &broker.GatewayError{Op: "preflight", Status: 400, Body: err.Error()}
	}
	if order.OrderID == "" {
		order.OrderID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, order)

	return &broker.PreflightResponse{
		OrderID:                order.OrderID,
		OrderValue:             order.LimitPrice * 100 * float64(order.Quantity),
		EstimatedCommission:    0.65 * float64(len(order.Legs)*order.Quantity),
		BuyingPowerRequirement: 100 * float64(order.Quantity),
	}, nil
}

// delta is +0.5 at the money for calls and decays with distance; puts are
// call delta minus one.
func (m *DataProvider) delta(sym osi.Symbol) float64 {
	dist := sym.StrikeFloat() - m.price
	call := 0.5 * math.Exp(-m.decay*dist)
	if dist < 0 {
		call = 1 - 0.5*math.Exp(m.decay*dist)
	}
	if sym.IsPut() {
		return call - 1
	}
	return call
}

func (m *DataProvider) optionQuote(sym osi.Symbol, now time.Time) models.Quote {
	k := sym.StrikeFloat()
	intrinsic := math.Max(0, k-m.price)
	if sym.IsCall() {
		intrinsic = math.Max(0, m.price-k)
	}
	d := math.Abs(m.delta(sym))
	mid := math.Max(0.01, intrinsic+2*d*(1-d))
	return models.Quote{
		Instrument:    models.NewOption(sym.Raw),
		Outcome:       "SUCCESS",
		Last:          mid,
		LastTimestamp: now,
		Bid:           math.Max(0, mid-0.01),
		BidTimestamp:  now,
		Ask:           mid + 0.01,
		AskTimestamp:  now,
		BidSize:       10,
		AskSize:       10,
	}
}
