// Package strategy selects the strikes of a 0DTE iron condor: it locates the
// at-the-money strike, walks the chain to a target delta band and assembles
// the four legs.
package strategy

import (
	"fmt"

	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/eddiefleurent/condor_bot/internal/osi"
	"github.com/shopspring/decimal"
)

// SearchBudget is the number of candidate strikes a search may evaluate.
const SearchBudget = 5

var (
	callATMBand   = decimal.RequireFromString("0.99")
	putATMBand    = decimal.RequireFromString("0.999")
	accelerateDev = decimal.NewFromInt(3)
	maxATMSpread  = decimal.NewFromInt(1)
)

// legAt returns the quote and decoded symbol at index i of side.
func legAt(chain *models.OptionChain, side osi.OptionType, i int) (models.Quote, osi.Symbol, error) {
	quotes := chain.Side(side)
	if i < 0 || i >= len(quotes) {
		return models.Quote{}, osi.Symbol{}, &IndexOutOfRangeError{Side: side, Index: i, Len: len(quotes)}
	}
	sym, err := osi.Decode(quotes[i].Instrument.Symbol)
	if err != nil {
		return models.Quote{}, osi.Symbol{}, fmt.Errorf("%s index %d: %w", side, i, err)
	}
	return quotes[i], sym, nil
}

// StrikeAt returns the decoded strike at index i of side.
func StrikeAt(chain *models.OptionChain, side osi.OptionType, i int) (decimal.Decimal, error) {
	_, sym, err := legAt(chain, side, i)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return sym.Strike, nil
}

// DefaultStart returns the index a search starts from when none is given:
// the middle of the call side, one below it for puts.
func DefaultStart(chain *models.OptionChain, side osi.OptionType) int {
	n := len(chain.Side(side))
	if side == osi.Put {
		return max(n/2-1, 0)
	}
	return n / 2
}

// LocateATM walks side of chain from start until the strike sits just above
// price (calls, within 0.99) or just below it (puts, within 0.999). A deviation
// greater than 3 moves round(|deviation|)-1 strikes at once. A negative start
// uses DefaultStart.
//
// After SearchBudget strikes without converging the last index is returned
// together with a *SearchError. Leaving the chain returns an
// *IndexOutOfRangeError.
func LocateATM(side osi.OptionType, price float64, chain *models.OptionChain, start int) (int, error) {
	if start < 0 {
		start = DefaultStart(chain, side)
	}
	ref := decimal.NewFromFloat(price)
	idx := start

	for step := 0; ; step++ {
		strike, err := StrikeAt(chain, side, idx)
		if err != nil {
			return idx, err
		}

		// above > 0 means the strike sits above the price.
		above := strike.Sub(ref)
		var move int
		switch side {
		case osi.Call:
			if !above.IsNegative() && above.LessThanOrEqual(callATMBand) {
				return idx, nil
			}
			// A strike 0.99 to 1.00 above the price steps down here; no
			// strike on a $1 grid lands in that gap either way.
			if above.GreaterThan(callATMBand) {
				move = -stepSize(above)
			} else {
				move = stepSize(above)
			}
		default:
			below := above.Neg()
			if !below.IsNegative() && below.LessThanOrEqual(putATMBand) {
				return idx, nil
			}
			if below.GreaterThan(putATMBand) {
				move = stepSize(below)
			} else {
				move = -stepSize(below)
			}
		}

		if step == SearchBudget-1 {
			return idx, &SearchError{Search: "atm", Side: side, Index: idx, Evaluated: step + 1}
		}
		idx += move
	}
}

// stepSize is 1 unless the deviation exceeds 3, in which case it is
// round(|deviation|)-1 with banker's rounding.
func stepSize(dev decimal.Decimal) int {
	abs := dev.Abs()
	if abs.GreaterThan(accelerateDev) {
		return int(abs.RoundBank(0).IntPart()) - 1
	}
	return 1
}

// CheckATMPair verifies the call and put ATM strikes are at most $1 apart
// and bracket price.
func CheckATMPair(chain *models.OptionChain, callIdx, putIdx int, price float64) error {
	callStrike, err := StrikeAt(chain, osi.Call, callIdx)
	if err != nil {
		return err
	}
	putStrike, err := StrikeAt(chain, osi.Put, putIdx)
	if err != nil {
		return err
	}
	ref := decimal.NewFromFloat(price)
	if callStrike.Sub(putStrike).GreaterThan(maxATMSpread) || ref.GreaterThan(callStrike) || ref.LessThan(putStrike) {
		return fmt.Errorf("call %s / put %s around %s: %w", callStrike, putStrike, ref, ErrATMMismatch)
	}
	return nil
}
