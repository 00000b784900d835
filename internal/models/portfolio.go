package models

import "time"

// BuyingPower is the account's available buying power.
type BuyingPower struct {
	CashOnlyBuyingPower float64 `json:"cash_only_buying_power"`
	BuyingPower         float64 `json:"buying_power"`
	OptionsBuyingPower  float64 `json:"options_buying_power"`
}

// EquitySlice is one component of account equity, e.g. cash or options.
type EquitySlice struct {
	Type                  string  `json:"type"`
	Value                 float64 `json:"value"`
	PercentageOfPortfolio float64 `json:"percentage_of_portfolio"`
}

// LastPrice is the last trade price of a held instrument.
type LastPrice struct {
	LastPrice float64   `json:"last_price"`
	Timestamp time.Time `json:"timestamp"`
}

// Gain is a profit or loss figure. GainPercentage is negative for a loss.
type Gain struct {
	GainValue      float64   `json:"gain_value"`
	GainPercentage float64   `json:"gain_percentage"`
	Timestamp      time.Time `json:"timestamp"`
}

// CostBasis is the acquisition cost of a position.
type CostBasis struct {
	TotalCost      float64   `json:"total_cost"`
	UnitCost       float64   `json:"unit_cost"`
	GainValue      float64   `json:"gain_value"`
	GainPercentage float64   `json:"gain_percentage"`
	LastUpdate     time.Time `json:"last_update"`
}

// PortfolioPosition is a read-only snapshot of one holding.
type PortfolioPosition struct {
	Instrument         Instrument `json:"instrument"`
	Quantity           float64    `json:"quantity"`
	OpenedAt           time.Time  `json:"opened_at"`
	CurrentValue       float64    `json:"current_value"`
	PercentOfPortfolio float64    `json:"percent_of_portfolio"`
	LastPrice          LastPrice  `json:"last_price"`
	InstrumentGain     Gain       `json:"instrument_gain"`
	PositionDailyGain  Gain       `json:"position_daily_gain"`
	CostBasis          CostBasis  `json:"cost_basis"`
}

// GainPercentage is the loss/gain figure used for risk decisions.
func (p PortfolioPosition) GainPercentage() float64 {
	return p.InstrumentGain.GainPercentage
}

// IsShort reports whether the position was opened by selling.
func (p PortfolioPosition) IsShort() bool {
	return p.Quantity < 0
}

// Portfolio is the account snapshot returned by the gateway.
type Portfolio struct {
	AccountID   string              `json:"account_id"`
	AccountType string              `json:"account_type"`
	BuyingPower BuyingPower         `json:"buying_power"`
	Equity      []EquitySlice       `json:"equity"`
	Positions   []PortfolioPosition `json:"positions"`
}

// OptionPositions returns the option holdings.
func (p *Portfolio) OptionPositions() []PortfolioPosition {
	return p.filter(AssetOption)
}

// StockPositions returns the equity holdings.
func (p *Portfolio) StockPositions() []PortfolioPosition {
	return p.filter(AssetEquity)
}

func (p *Portfolio) filter(t AssetType) []PortfolioPosition {
	out := make([]PortfolioPosition, 0, len(p.Positions))
	for _, pos := range p.Positions {
		if pos.Instrument.Type == t {
			out = append(out, pos)
		}
	}
	return out
}
