package broker

import (
	"context"
	"errors"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// CircuitBreakerGateway wraps a Gateway with circuit breaker functionality
type CircuitBreakerGateway struct {
	gateway Gateway
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerGateway implements Gateway at compile time.
var _ Gateway = (*CircuitBreakerGateway)(nil)

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	gateway Gateway,
	fn func(Gateway) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(gateway) })
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &GatewayError{Op: "circuit breaker", Err: err}
		}
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips at a 60% failure rate over at least 5
// requests and stays open for 30 seconds.
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  3,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

// NewCircuitBreakerGateway creates a CircuitBreakerGateway with the default settings.
func NewCircuitBreakerGateway(gateway Gateway, logger logrus.FieldLogger) *CircuitBreakerGateway {
	return NewCircuitBreakerGatewayWithSettings(gateway, DefaultCircuitBreakerSettings, logger)
}

// NewCircuitBreakerGatewayWithSettings creates a CircuitBreakerGateway with custom settings.
func NewCircuitBreakerGatewayWithSettings(gateway Gateway, settings CircuitBreakerSettings,
	logger logrus.FieldLogger) *CircuitBreakerGateway {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	gbSettings := gobreaker.Settings{
		Name:        "GatewayCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		// Rejected preflight orders are answers, not outages.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var gwErr *GatewayError
			if errors.As(err, &gwErr) {
				return !gwErr.Transient()
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &CircuitBreakerGateway{
		gateway: gateway,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// State returns the breaker state.
func (c *CircuitBreakerGateway) State() gobreaker.State {
	return c.breaker.State()
}

// GetQuote wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) GetQuote(ctx context.Context, instrument models.Instrument) (*models.Quote, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) (*models.Quote, error) {
		return g.GetQuote(ctx, instrument)
	})
}

// GetOptionChain wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) GetOptionChain(ctx context.Context, instrument models.Instrument,
	expiration string) (*models.OptionChain, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) (*models.OptionChain, error) {
		return g.GetOptionChain(ctx, instrument, expiration)
	})
}

// GetGreeks wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) GetGreeks(ctx context.Context, osiSymbol string) (*models.Greeks, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) (*models.Greeks, error) {
		return g.GetGreeks(ctx, osiSymbol)
	})
}

// GetPortfolio wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) GetPortfolio(ctx context.Context) (*models.Portfolio, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) (*models.Portfolio, error) {
		return g.GetPortfolio(ctx)
	})
}

// SubmitPreflight wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) SubmitPreflight(ctx context.Context, order PreflightOrder) (*PreflightResponse, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) (*PreflightResponse, error) {
		return g.SubmitPreflight(ctx, order)
	})
}
