package strategy

import (
	"fmt"

	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/eddiefleurent/condor_bot/internal/osi"
	"github.com/shopspring/decimal"
)

// BuildCondor assembles an iron condor from resolved short legs. The long
// call is width strikes above the short call on chain.Calls; the long put is
// width strikes below the short put on chain.Puts. Both spreads must span
// exactly width in strike price and the short call must sit above the short put.
func BuildCondor(shortCall, shortPut models.Greeks, chain *models.OptionChain, width int) (*models.IronCondor, error) {
	if width <= 0 {
		return nil, fmt.Errorf("spread width must be positive, got %d", width)
	}
	callIdx, ok := shortCall.ResolvedIndex()
	if !ok {
		return nil, fmt.Errorf("call %s: %w", shortCall.Symbol, ErrUnresolvedLeg)
	}
	putIdx, ok := shortPut.ResolvedIndex()
	if !ok {
		return nil, fmt.Errorf("put %s: %w", shortPut.Symbol, ErrUnresolvedLeg)
	}

	sc, err := resolveLeg(chain, osi.Call, callIdx, shortCall.Symbol)
	if err != nil {
		return nil, fmt.Errorf("short call: %w", err)
	}
	lc, err := resolveLeg(chain, osi.Call, callIdx+width, "")
	if err != nil {
		return nil, fmt.Errorf("long call: %w", err)
	}
	sp, err := resolveLeg(chain, osi.Put, putIdx, shortPut.Symbol)
	if err != nil {
		return nil, fmt.Errorf("short put: %w", err)
	}
	lp, err := resolveLeg(chain, osi.Put, putIdx-width, "")
	if err != nil {
		return nil, fmt.Errorf("long put: %w", err)
	}

	condor := &models.IronCondor{ShortCall: sc, LongCall: lc, ShortPut: sp, LongPut: lp}

	w := decimal.NewFromInt(int64(width))
	if !condor.CallWidth().Equal(w) {
		return nil, fmt.Errorf("call spread %s-%s is %s wide, want %s: %w",
			sc.Strike, lc.Strike, condor.CallWidth(), w, ErrWidthMismatch)
	}
	if !condor.PutWidth().Equal(w) {
		return nil, fmt.Errorf("put spread %s-%s is %s wide, want %s: %w",
			lp.Strike, sp.Strike, condor.PutWidth(), w, ErrWidthMismatch)
	}
	if !sc.Strike.GreaterThan(sp.Strike) {
		return nil, fmt.Errorf("short call %s, short put %s: %w", sc.Strike, sp.Strike, ErrInvertedCondor)
	}
	return condor, nil
}

// resolveLeg reads index i of side and checks the contract type. When want is
// set the chain symbol must equal it.
func resolveLeg(chain *models.OptionChain, side osi.OptionType, i int, want string) (models.Leg, error) {
	_, sym, err := legAt(chain, side, i)
	if err != nil {
		return models.Leg{}, err
	}
	if sym.Type != side {
		return models.Leg{}, fmt.Errorf("index %d holds %s, a %s: %w", i, sym.Raw, sym.Type, osi.ErrInvalidSymbol)
	}
	if want != "" && want != sym.Raw {
		return models.Leg{}, fmt.Errorf("index %d holds %s, expected %s: %w", i, sym.Raw, want, ErrUnresolvedLeg)
	}
	return models.Leg{Symbol: sym.Raw, Strike: sym.Strike, Index: i}, nil
}
