// Package models provides the market, portfolio and session data structures
// shared by the strategy, risk and trading packages.
package models

import (
	"fmt"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/osi"
	"github.com/shopspring/decimal"
)

// AssetType is the asset class of an instrument.
type AssetType string

const (
	// AssetEquity is a stock or ETF.
	AssetEquity AssetType = "EQUITY"
	// AssetOption is a listed option contract.
	AssetOption AssetType = "OPTION"
)

// Instrument identifies a tradable symbol.
type Instrument struct {
	Symbol string    `json:"symbol"`
	Type   AssetType `json:"type"`
	Name   string    `json:"name,omitempty"`
}

// NewEquity returns an equity instrument for symbol.
func NewEquity(symbol string) Instrument {
	return Instrument{Symbol: symbol, Type: AssetEquity}
}

// NewOption returns an option instrument for an OSI symbol.
func NewOption(symbol string) Instrument {
	return Instrument{Symbol: symbol, Type: AssetOption}
}

// Quote is a market snapshot for one instrument. It is replaced on every fetch.
type Quote struct {
	Instrument    Instrument `json:"instrument"`
	Outcome       string     `json:"outcome"`
	Last          float64    `json:"last"`
	LastTimestamp time.Time  `json:"last_timestamp"`
	Bid           float64    `json:"bid"`
	BidSize       int64      `json:"bid_size"`
	BidTimestamp  time.Time  `json:"bid_timestamp"`
	Ask           float64    `json:"ask"`
	AskSize       int64      `json:"ask_size"`
	AskTimestamp  time.Time  `json:"ask_timestamp"`
	Volume        int64      `json:"volume"`
	OpenInterest  int64      `json:"open_interest"`
}

// Mid returns the bid/ask midpoint, or Last when the book is empty.
func (q Quote) Mid() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return q.Last
	}
	return (q.Bid + q.Ask) / 2
}

// OptionChain holds the calls and puts for one underlying and expiration.
// Each side must be strictly ascending by strike; see Validate.
type OptionChain struct {
	BaseSymbol string  `json:"base_symbol"`
	Calls      []Quote `json:"calls"`
	Puts       []Quote `json:"puts"`
}

// Side returns the quotes for the given option type.
func (c *OptionChain) Side(t osi.OptionType) []Quote {
	if t == osi.Put {
		return c.Puts
	}
	return c.Calls
}

// Validate checks that every symbol decodes, matches its side, and that both
// sides are strictly ascending by strike.
func (c *OptionChain) Validate() error {
	if err := validateSide(c.Calls, osi.Call); err != nil {
		return fmt.Errorf("option chain %s calls: %w", c.BaseSymbol, err)
	}
	if err := validateSide(c.Puts, osi.Put); err != nil {
		return fmt.Errorf("option chain %s puts: %w", c.BaseSymbol, err)
	}
	return nil
}

func validateSide(quotes []Quote, want osi.OptionType) error {
	var prev decimal.Decimal
	for i, q := range quotes {
		sym, err := osi.Decode(q.Instrument.Symbol)
		if err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
		if sym.Type != want {
			return fmt.Errorf("index %d: %s is a %s", i, sym.Raw, sym.Type)
		}
		if i > 0 && !sym.Strike.GreaterThan(prev) {
			return fmt.Errorf("index %d: strike %s not above %s", i, sym.Strike, prev)
		}
		prev = sym.Strike
	}
	return nil
}

// Greeks are the broker-supplied sensitivities for one option symbol.
// Delta is negative for puts and positive for calls.
type Greeks struct {
	Symbol            string          `json:"symbol"`
	Delta             float64         `json:"delta"`
	Gamma             float64         `json:"gamma"`
	Theta             float64         `json:"theta"`
	Vega              float64         `json:"vega"`
	Rho               float64         `json:"rho"`
	ImpliedVolatility float64         `json:"implied_volatility"`
	Strike            decimal.Decimal `json:"strike"`
	// Index is the chain index the search resolved this contract to.
	Index *int `json:"index,omitempty"`
}

// ResolvedIndex returns the chain index and whether one was set.
func (g Greeks) ResolvedIndex() (int, bool) {
	if g.Index == nil {
		return 0, false
	}
	return *g.Index, true
}

// WithIndex returns a copy of g carrying the resolved chain index.
func (g Greeks) WithIndex(i int) Greeks {
	idx := i
	g.Index = &idx
	return g
}
