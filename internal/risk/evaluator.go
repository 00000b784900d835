// Package risk evaluates open option positions against loss thresholds and
// closes the ones that have lost their full premium.
package risk

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/eddiefleurent/condor_bot/internal/osi"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultCloseLossPct is the gain percentage at or below which a spread is closed.
	DefaultCloseLossPct = -100.0
	// DefaultAtRiskLossPct is the gain percentage at or below which a position is at risk.
	DefaultAtRiskLossPct = -85.0
)

// Closer hands a close-spread action for one position to the order gateway.
type Closer interface {
	ClosePosition(ctx context.Context, pos models.PortfolioPosition) error
}

// Thresholds are gain percentages; a loss is negative.
type Thresholds struct {
	CloseLossPct  float64 `yaml:"close_loss_pct"`
	AtRiskLossPct float64 `yaml:"at_risk_loss_pct"`
}

// DefaultThresholds returns the -100 / -85 thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{CloseLossPct: DefaultCloseLossPct, AtRiskLossPct: DefaultAtRiskLossPct}
}

// Validate requires the close threshold to be at or below the at-risk threshold.
func (t Thresholds) Validate() error {
	if t.CloseLossPct > t.AtRiskLossPct {
		return fmt.Errorf("close_loss_pct (%.2f) must not exceed at_risk_loss_pct (%.2f)",
			t.CloseLossPct, t.AtRiskLossPct)
	}
	return nil
}

// Evaluator applies Thresholds to portfolio positions.
type Evaluator struct {
	closer     Closer
	thresholds Thresholds
	logger     logrus.FieldLogger
	onClose    func(side osi.OptionType)
}

// Option customises an Evaluator.
type Option func(*Evaluator)

// WithThresholds overrides the default thresholds.
func WithThresholds(t Thresholds) Option {
	return func(e *Evaluator) { e.thresholds = t }
}

// WithCloseHook registers fn to run after each successful close submission.
func WithCloseHook(fn func(side osi.OptionType)) Option {
	return func(e *Evaluator) { e.onClose = fn }
}

// NewEvaluator returns an Evaluator that submits closes through closer.
func NewEvaluator(closer Closer, logger logrus.FieldLogger, opts ...Option) *Evaluator {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	e := &Evaluator{
		closer:     closer,
		thresholds: DefaultThresholds(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks every option position. A position at or below the close
// threshold is closed and counted against its side; any position at or below
// the at-risk threshold, closed ones included, sets PositionsAtRisk.
//
// PositionsAtRisk starts false on every call while the closed counters carry
// over from summary. Counters only move when the close was handed off. Close
// failures are joined into the returned error; the summary is still valid.
func (e *Evaluator) Evaluate(ctx context.Context, positions []models.PortfolioPosition,
	summary models.RiskSummary) (models.RiskSummary, error) {
	summary.PositionsAtRisk = false

	var errs []error
	for _, pos := range positions {
		if pos.Instrument.Type != models.AssetOption {
			continue
		}
		pct := pos.GainPercentage()
		if pct > e.thresholds.AtRiskLossPct {
			continue
		}
		summary.PositionsAtRisk = true

		log := e.logger.WithFields(logrus.Fields{
			"symbol":   pos.Instrument.Symbol,
			"gain_pct": pct,
		})
		if pct > e.thresholds.CloseLossPct {
			log.Warn("Position at risk")
			continue
		}

		sym, err := osi.Decode(pos.Instrument.Symbol)
		if err != nil {
			log.WithError(err).Error("Cannot close position with undecodable symbol")
			errs = append(errs, err)
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := e.closer.ClosePosition(ctx, pos); err != nil {
			log.WithError(err).Error("Close spread failed")
			errs = append(errs, fmt.Errorf("close %s: %w", sym.Raw, err))
			continue
		}

		summary.RecordClose(sym.Type)
		if e.onClose != nil {
			e.onClose(sym.Type)
		}
		log.WithFields(logrus.Fields{
			"side":         sym.Type,
			"closed_calls": summary.ClosedCallSpreads,
			"closed_puts":  summary.ClosedPutSpreads,
		}).Warn("Spread closed at loss threshold")
	}
	return summary, errors.Join(errs...)
}
