package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/eddiefleurent/condor_bot/internal/osi"
)

// GreeksFetcher looks up greeks for one option symbol. Each call is a
// gateway round trip.
type GreeksFetcher interface {
	GetGreeks(ctx context.Context, osiSymbol string) (*models.Greeks, error)
}

// DeltaBand is the accepted |delta| range for a short strike: (Lower, Upper].
type DeltaBand struct {
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// DefaultDeltaBand is the band used when none is configured.
var DefaultDeltaBand = DeltaBand{Lower: 0.05, Upper: 0.125}

// Validate checks 0 <= Lower < Upper <= 1.
func (b DeltaBand) Validate() error {
	if b.Lower < 0 || b.Upper > 1 || b.Lower >= b.Upper {
		return fmt.Errorf("delta band (%.3f, %.3f] must satisfy 0 <= lower < upper <= 1", b.Lower, b.Upper)
	}
	return nil
}

// Contains reports whether |delta| is inside the band.
func (b DeltaBand) Contains(delta float64) bool {
	d := math.Abs(delta)
	return d > b.Lower && d <= b.Upper
}

// direction is +1 for calls (higher strikes are further out of the money)
// and -1 for puts.
func direction(side osi.OptionType) int {
	if side == osi.Put {
		return -1
	}
	return 1
}

// FindShortStrike starts offset strikes out of the money from atm and walks
// until |delta| lands in band: too large steps further out, too small steps
// back toward the money. The returned greeks carry the resolved index.
//
// Each candidate is one greeks fetch. After SearchBudget candidates without
// converging it returns the last greeks fetched along with a *SearchError;
// callers must not trade that result.
func FindShortStrike(ctx context.Context, fetcher GreeksFetcher, chain *models.OptionChain,
	side osi.OptionType, atm, offset int, band DeltaBand) (models.Greeks, error) {
	dir := direction(side)
	idx := atm + dir*offset

	var last models.Greeks
	for step := 0; ; step++ {
		q, sym, err := legAt(chain, side, idx)
		if err != nil {
			return last, err
		}

		g, err := fetcher.GetGreeks(ctx, q.Instrument.Symbol)
		if err != nil {
			return last, fmt.Errorf("greeks for %s: %w", q.Instrument.Symbol, err)
		}
		if g.Symbol != "" && g.Symbol != sym.Raw {
			return last, fmt.Errorf("greeks returned for %s, requested %s", g.Symbol, sym.Raw)
		}
		last = *g
		last.Symbol = sym.Raw
		last.Strike = sym.Strike
		last = last.WithIndex(idx)

		d := math.Abs(g.Delta)
		var move int
		switch {
		case d > band.Upper:
			move = dir
		case d <= band.Lower:
			move = -dir
		default:
			return last, nil
		}

		if step == SearchBudget-1 {
			return last, &SearchError{Search: "delta", Side: side, Index: idx, Evaluated: step + 1}
		}
		idx += move
	}
}
