package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/eddiefleurent/condor_bot/internal/osi"
)

// ============ Public.com API payloads ============

// The API sends most numbers as JSON strings; flexFloat accepts either.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexTime tolerates empty and missing timestamps.
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*t = flexTime(parsed)
	return nil
}

// Handle single-object vs array responses
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type instrumentPayload struct {
	Symbol string `json:"symbol"`
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
}

func (p instrumentPayload) model() models.Instrument {
	return models.Instrument{Symbol: p.Symbol, Type: models.AssetType(p.Type), Name: p.Name}
}

func toInstrumentPayload(i models.Instrument) instrumentPayload {
	return instrumentPayload{Symbol: i.Symbol, Type: string(i.Type)}
}

type quotesRequest struct {
	Instruments []instrumentPayload `json:"instruments"`
}

type quotesResponse struct {
	Quotes []quotePayload `json:"quotes"`
}

type quotePayload struct {
	Instrument    instrumentPayload `json:"instrument"`
	Outcome       string            `json:"outcome"`
	Last          flexFloat         `json:"last"`
	LastTimestamp flexTime          `json:"lastTimestamp"`
	Bid           flexFloat         `json:"bid"`
	BidSize       flexFloat         `json:"bidSize"`
	BidTimestamp  flexTime          `json:"bidTimestamp"`
	Ask           flexFloat         `json:"ask"`
	AskSize       flexFloat         `json:"askSize"`
	AskTimestamp  flexTime          `json:"askTimestamp"`
	Volume        flexFloat         `json:"volume"`
	OpenInterest  flexFloat         `json:"openInterest"`
}

func (p quotePayload) model() models.Quote {
	return models.Quote{
		Instrument:    p.Instrument.model(),
		Outcome:       p.Outcome,
		Last:          float64(p.Last),
		LastTimestamp: time.Time(p.LastTimestamp),
		Bid:           float64(p.Bid),
		BidSize:       int64(p.BidSize),
		BidTimestamp:  time.Time(p.BidTimestamp),
		Ask:           float64(p.Ask),
		AskSize:       int64(p.AskSize),
		AskTimestamp:  time.Time(p.AskTimestamp),
		Volume:        int64(p.Volume),
		OpenInterest:  int64(p.OpenInterest),
	}
}

type optionChainRequest struct {
	Instrument     instrumentPayload `json:"instrument"`
	ExpirationDate string            `json:"expirationDate"`
}

type optionChainResponse struct {
	BaseSymbol string         `json:"baseSymbol"`
	Calls      []quotePayload `json:"calls"`
	Puts       []quotePayload `json:"puts"`
}

// model converts the payload, orders each side by strike and validates it.
func (r optionChainResponse) model() (*models.OptionChain, error) {
	chain := &models.OptionChain{BaseSymbol: r.BaseSymbol}
	var err error
	if chain.Calls, err = sortedSide(r.Calls); err != nil {
		return nil, fmt.Errorf("calls: %w", err)
	}
	if chain.Puts, err = sortedSide(r.Puts); err != nil {
		return nil, fmt.Errorf("puts: %w", err)
	}
	if err := chain.Validate(); err != nil {
		return nil, err
	}
	return chain, nil
}

func sortedSide(payloads []quotePayload) ([]models.Quote, error) {
	type keyed struct {
		q   models.Quote
		sym osi.Symbol
	}
	rows := make([]keyed, 0, len(payloads))
	for _, p := range payloads {
		sym, err := osi.Decode(p.Instrument.Symbol)
		if err != nil {
			return nil, err
		}
		rows = append(rows, keyed{q: p.model(), sym: sym})
	}
	slices.SortStableFunc(rows, func(a, b keyed) int { return a.sym.Strike.Cmp(b.sym.Strike) })

	out := make([]models.Quote, len(rows))
	for i, r := range rows {
		out[i] = r.q
	}
	return out, nil
}

type greeksResponse struct {
	Greeks singleOrArray[greeksEntry] `json:"greeks"`
}

type greeksEntry struct {
	Symbol string        `json:"symbol"`
	Greeks greeksPayload `json:"greeks"`
}

type greeksPayload struct {
	Delta             flexFloat `json:"delta"`
	Gamma             flexFloat `json:"gamma"`
	Theta             flexFloat `json:"theta"`
	Vega              flexFloat `json:"vega"`
	Rho               flexFloat `json:"rho"`
	ImpliedVolatility flexFloat `json:"impliedVolatility"`
}

func (e greeksEntry) model() (*models.Greeks, error) {
	sym, err := osi.Decode(e.Symbol)
	if err != nil {
		return nil, err
	}
	return &models.Greeks{
		Symbol:            sym.Raw,
		Delta:             float64(e.Greeks.Delta),
		Gamma:             float64(e.Greeks.Gamma),
		Theta:             float64(e.Greeks.Theta),
		Vega:              float64(e.Greeks.Vega),
		Rho:               float64(e.Greeks.Rho),
		ImpliedVolatility: float64(e.Greeks.ImpliedVolatility),
		Strike:            sym.Strike,
	}, nil
}

type portfolioResponse struct {
	AccountID   string `json:"accountId"`
	AccountType string `json:"accountType"`
	BuyingPower struct {
		CashOnlyBuyingPower flexFloat `json:"cashOnlyBuyingPower"`
		BuyingPower         flexFloat `json:"buyingPower"`
		OptionsBuyingPower  flexFloat `json:"optionsBuyingPower"`
	} `json:"buyingPower"`
	Equity []struct {
		Type                  string    `json:"type"`
		Value                 flexFloat `json:"value"`
		PercentageOfPortfolio flexFloat `json:"percentageOfPortfolio"`
	} `json:"equity"`
	Positions []positionPayload `json:"positions"`
}

type gainPayload struct {
	GainValue      flexFloat `json:"gainValue"`
	GainPercentage flexFloat `json:"gainPercentage"`
	Timestamp      flexTime  `json:"timestamp"`
}

func (g gainPayload) model() models.Gain {
	return models.Gain{
		GainValue:      float64(g.GainValue),
		GainPercentage: float64(g.GainPercentage),
		Timestamp:      time.Time(g.Timestamp),
	}
}

type positionPayload struct {
	Instrument         instrumentPayload `json:"instrument"`
	Quantity           flexFloat         `json:"quantity"`
	OpenedAt           flexTime          `json:"openedAt"`
	CurrentValue       flexFloat         `json:"currentValue"`
	PercentOfPortfolio flexFloat         `json:"percentOfPortfolio"`
	LastPrice          struct {
		LastPrice flexFloat `json:"lastPrice"`
		Timestamp flexTime  `json:"timestamp"`
	} `json:"lastPrice"`
	InstrumentGain    gainPayload `json:"instrumentGain"`
	PositionDailyGain gainPayload `json:"positionDailyGain"`
	CostBasis         struct {
		TotalCost      flexFloat `json:"totalCost"`
		UnitCost       flexFloat `json:"unitCost"`
		GainValue      flexFloat `json:"gainValue"`
		GainPercentage flexFloat `json:"gainPercentage"`
		LastUpdate     flexTime  `json:"lastUpdate"`
	} `json:"costBasis"`
}

func (r portfolioResponse) model() *models.Portfolio {
	p := &models.Portfolio{
		AccountID:   r.AccountID,
		AccountType: r.AccountType,
		BuyingPower: models.BuyingPower{
			CashOnlyBuyingPower: float64(r.BuyingPower.CashOnlyBuyingPower),
			BuyingPower:         float64(r.BuyingPower.BuyingPower),
			OptionsBuyingPower:  float64(r.BuyingPower.OptionsBuyingPower),
		},
	}
	for _, e := range r.Equity {
		p.Equity = append(p.Equity, models.EquitySlice{
			Type:                  e.Type,
			Value:                 float64(e.Value),
			PercentageOfPortfolio: float64(e.PercentageOfPortfolio),
		})
	}
	for _, pos := range r.Positions {
		p.Positions = append(p.Positions, models.PortfolioPosition{
			Instrument:         pos.Instrument.model(),
			Quantity:           float64(pos.Quantity),
			OpenedAt:           time.Time(pos.OpenedAt),
			CurrentValue:       float64(pos.CurrentValue),
			PercentOfPortfolio: float64(pos.PercentOfPortfolio),
			LastPrice: models.LastPrice{
				LastPrice: float64(pos.LastPrice.LastPrice),
				Timestamp: time.Time(pos.LastPrice.Timestamp),
			},
			InstrumentGain:    pos.InstrumentGain.model(),
			PositionDailyGain: pos.PositionDailyGain.model(),
			CostBasis: models.CostBasis{
				TotalCost:      float64(pos.CostBasis.TotalCost),
				UnitCost:       float64(pos.CostBasis.UnitCost),
				GainValue:      float64(pos.CostBasis.GainValue),
				GainPercentage: float64(pos.CostBasis.GainPercentage),
				LastUpdate:     time.Time(pos.CostBasis.LastUpdate),
			},
		})
	}
	return p
}

type preflightRequest struct {
	OrderID    string `json:"orderId,omitempty"`
	OrderType  string `json:"orderType"`
	Expiration struct {
		TimeInForce string `json:"timeInForce"`
	} `json:"expiration"`
	Quantity   string             `json:"quantity"`
	LimitPrice string             `json:"limitPrice,omitempty"`
	Legs       []preflightLegWire `json:"legs"`
}

type preflightLegWire struct {
	Instrument         instrumentPayload `json:"instrument"`
	Side               string            `json:"side"`
	OpenCloseIndicator string            `json:"openCloseIndicator"`
	RatioQuantity      int               `json:"ratioQuantity"`
}

func toPreflightRequest(o PreflightOrder) preflightRequest {
	req := preflightRequest{
		OrderID:   o.OrderID,
		OrderType: o.OrderType,
		Quantity:  strconv.Itoa(o.Quantity),
	}
	req.Expiration.TimeInForce = o.TimeInForce
	if o.LimitPrice > 0 {
		req.LimitPrice = strconv.FormatFloat(o.LimitPrice, 'f', 2, 64)
	}
	for _, leg := range o.Legs {
		req.Legs = append(req.Legs, preflightLegWire{
			Instrument:         toInstrumentPayload(leg.Instrument),
			Side:               string(leg.Side),
			OpenCloseIndicator: string(leg.OpenClose),
			RatioQuantity:      leg.RatioQuantity,
		})
	}
	return req
}

type preflightResponse struct {
	OrderValue             flexFloat `json:"orderValue"`
	EstimatedCommission    flexFloat `json:"estimatedCommission"`
	BuyingPowerRequirement flexFloat `json:"buyingPowerRequirement"`
}
