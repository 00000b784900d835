// Package broker provides the market data and order gateway used by the bot.
// It includes the Public.com HTTP client, a circuit breaker wrapper and a
// synthetic gateway for paper trading.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/eddiefleurent/condor_bot/internal/models"
)

// Gateway is the market/order collaborator. Every call is a blocking round
// trip; failures are returned as *GatewayError.
type Gateway interface {
	// Market data
	GetQuote(ctx context.Context, instrument models.Instrument) (*models.Quote, error)
	GetOptionChain(ctx context.Context, instrument models.Instrument, expiration string) (*models.OptionChain, error)
	GetGreeks(ctx context.Context, osiSymbol string) (*models.Greeks, error)

	// Account
	GetPortfolio(ctx context.Context) (*models.Portfolio, error)

	// Orders
	SubmitPreflight(ctx context.Context, order PreflightOrder) (*PreflightResponse, error)
}

// ErrGateway matches every *GatewayError.
var ErrGateway = errors.New("gateway error")

// GatewayError is a non-2xx status or an undecodable payload. Status is zero
// when the failure happened before or after the HTTP exchange.
type GatewayError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": gateway error"
	}
}

// Unwrap returns the underlying cause, if any.
func (e *GatewayError) Unwrap() error { return e.Err }

// Is matches ErrGateway.
func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

// Transient reports whether retrying the call may succeed: throttling,
// server-side failures and transport errors.
func (e *GatewayError) Transient() bool {
	if e.Status == 0 {
		return e.Err != nil && !errors.Is(e.Err, context.Canceled)
	}
	return e.Status == 429 || e.Status >= 500
}

// OrderSide is the direction of one order leg.
type OrderSide string

// OpenClose tells the broker whether a leg opens or closes a position.
type OpenClose string

const (
	// SideBuy buys the leg.
	SideBuy OrderSide = "BUY"
	// SideSell sells the leg.
	SideSell OrderSide = "SELL"

	// Open opens a new position.
	Open OpenClose = "OPEN"
	// Close reduces an existing position.
	Close OpenClose = "CLOSE"

	// OrderTypeLimit is the only order type the bot submits.
	OrderTypeLimit = "LIMIT"
	// TimeInForceDay expires the order at the close.
	TimeInForceDay = "DAY"
)

// OrderLeg is one leg of a multi-leg order.
type OrderLeg struct {
	Instrument    models.Instrument
	Side          OrderSide
	OpenClose     OpenClose
	RatioQuantity int
}

// PreflightOrder is a multi-leg order checked by the broker without routing.
type PreflightOrder struct {
	OrderID     string
	OrderType   string
	TimeInForce string
	Quantity    int
	LimitPrice  float64
	Legs        []OrderLeg
}

// Validate checks the order is well formed before it is sent.
func (o PreflightOrder) Validate() error {
	if len(o.Legs) == 0 {
		return errors.New("order has no legs")
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("order quantity must be positive, got %d", o.Quantity)
	}
	if o.OrderType == OrderTypeLimit && o.LimitPrice <= 0 {
		return fmt.Errorf("limit order needs a positive limit price, got %.2f", o.LimitPrice)
	}
	for i, leg := range o.Legs {
		if leg.Instrument.Symbol == "" {
			return fmt.Errorf("leg %d has no symbol", i)
		}
		if leg.Side != SideBuy && leg.Side != SideSell {
			return fmt.Errorf("leg %d has invalid side %q", i, leg.Side)
		}
		if leg.OpenClose != Open && leg.OpenClose != Close {
			return fmt.Errorf("leg %d has invalid open/close indicator %q", i, leg.OpenClose)
		}
		if leg.RatioQuantity <= 0 {
			return fmt.Errorf("leg %d ratio quantity must be positive", i)
		}
	}
	return nil
}

// PreflightResponse is the broker's acknowledgment of a preflight order.
type PreflightResponse struct {
	OrderID                string
	OrderValue             float64
	EstimatedCommission    float64
	BuyingPowerRequirement float64
}
