// Package retry submits close orders for losing positions, retrying
// transient gateway failures with jittered exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/broker"
	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/eddiefleurent/condor_bot/internal/util"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config controls retry behaviour and close pricing.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
	// Slippage is the fraction added to (buys) or taken off (sells) the last
	// price when setting the close limit.
	Slippage float64
	// TickSize is the limit price increment.
	TickSize float64
}

// DefaultConfig fills any field left unset.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
	Slippage:       0.10,
	TickSize:       0.01,
}

// Client closes positions through a broker.Gateway.
type Client struct {
	gateway broker.Gateway
	logger  logrus.FieldLogger
	config  Config
}

// NewClient returns a Client. A nil logger uses the logrus standard logger.
func NewClient(gateway broker.Gateway, logger logrus.FieldLogger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = sanitize(config[0])
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		gateway: gateway,
		logger:  logger,
		config:  cfg,
	}
}

func sanitize(cfg Config) Config {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if cfg.Slippage <= 0 {
		cfg.Slippage = DefaultConfig.Slippage
	}
	if cfg.TickSize <= 0 {
		cfg.TickSize = DefaultConfig.TickSize
	}
	return cfg
}

// ClosePosition implements risk.Closer.
func (c *Client) ClosePosition(ctx context.Context, pos models.PortfolioPosition) error {
	_, err := c.ClosePositionWithRetry(ctx, pos)
	return err
}

// ClosePositionWithRetry submits a closing limit order for pos. Short
// positions are bought back, long ones sold. Transient failures are retried
// until MaxRetries or Timeout is reached.
func (c *Client) ClosePositionWithRetry(ctx context.Context, pos models.PortfolioPosition) (*broker.PreflightResponse, error) {
	order, err := c.closeOrder(pos)
	if err != nil {
		return nil, err
	}

	closeCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	log := c.logger.WithFields(logrus.Fields{
		"symbol":   pos.Instrument.Symbol,
		"order_id": order.OrderID,
		"limit":    order.LimitPrice,
	})

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-closeCtx.Done():
			if ctx.Err() != nil {
				return nil, fmt.Errorf("operation canceled: %w", ctx.Err())
			}
			return nil, fmt.Errorf("close operation timed out after %v: %w", c.config.Timeout, closeCtx.Err())
		default:
		}

		log.Infof("Close attempt %d/%d", attempt+1, c.config.MaxRetries+1)

		resp, err := c.gateway.SubmitPreflight(closeCtx, order)
		if err == nil {
			log.Infof("Close order accepted on attempt %d", attempt+1)
			return resp, nil
		}

		lastErr = err
		log.WithError(err).Warnf("Close attempt %d failed", attempt+1)

		if !c.isTransientError(err) || attempt == c.config.MaxRetries {
			break
		}
		log.Infof("Transient error detected, retrying in %v", backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
			backoff = c.calculateNextBackoff(backoff)
		case <-closeCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return nil, fmt.Errorf("operation canceled during backoff: %w", ctx.Err())
			}
			return nil, fmt.Errorf("close operation timed out during backoff: %w", closeCtx.Err())
		}
	}

	return nil, fmt.Errorf("failed to close position after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// closeOrder builds the single-leg closing order for pos.
func (c *Client) closeOrder(pos models.PortfolioPosition) (broker.PreflightOrder, error) {
	qty := int(math.Round(math.Abs(pos.Quantity)))
	if qty == 0 {
		return broker.PreflightOrder{}, fmt.Errorf("position %s has no quantity to close", pos.Instrument.Symbol)
	}

	last := pos.LastPrice.LastPrice
	if last <= 0 && pos.CurrentValue != 0 {
		last = math.Abs(pos.CurrentValue) / (100 * math.Abs(pos.Quantity))
	}

	side := broker.SideSell
	limit := last * (1 - c.config.Slippage)
	if pos.IsShort() {
		side = broker.SideBuy
		limit = last * (1 + c.config.Slippage)
	}
	limit = math.Max(util.RoundToTick(limit, c.config.TickSize), c.config.TickSize)

	return broker.PreflightOrder{
		OrderID:     uuid.NewString(),
		OrderType:   broker.OrderTypeLimit,
		TimeInForce: broker.TimeInForceDay,
		Quantity:    qty,
		LimitPrice:  limit,
		Legs: []broker.OrderLeg{{
			Instrument:    pos.Instrument,
			Side:          side,
			OpenClose:     broker.Close,
			RatioQuantity: 1,
		}},
	}, nil
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.WithError(err).Debug("Failed to generate jitter")
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

func (c *Client) isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var gwErr *broker.GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Transient()
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
