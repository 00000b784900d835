package models

import (
	"time"

	"github.com/eddiefleurent/condor_bot/internal/osi"
)

// RiskSummary is the output of one risk evaluation. PositionsAtRisk is
// recomputed every cycle; the closed-spread counters accumulate for the
// whole session.
type RiskSummary struct {
	PositionsAtRisk   bool `json:"positions_at_risk"`
	ClosedCallSpreads int  `json:"closed_call_spreads"`
	ClosedPutSpreads  int  `json:"closed_put_spreads"`
}

// RecordClose increments the counter for side.
func (r *RiskSummary) RecordClose(side osi.OptionType) {
	switch side {
	case osi.Call:
		r.ClosedCallSpreads++
	case osi.Put:
		r.ClosedPutSpreads++
	}
}

// TotalClosed returns the number of spreads closed this session.
func (r RiskSummary) TotalClosed() int {
	return r.ClosedCallSpreads + r.ClosedPutSpreads
}

// TradeState tracks entries for one trading session.
type TradeState struct {
	TradesToday int       `json:"trades_today"`
	LastTrade   time.Time `json:"last_trade"`
}

// HasTraded reports whether any trade was entered this session.
func (t TradeState) HasTraded() bool {
	return t.TradesToday > 0
}

// RecordTrade counts a new entry at ts.
func (t *TradeState) RecordTrade(ts time.Time) {
	t.TradesToday++
	t.LastTrade = ts
}
