package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Leg is one option contract of a spread.
type Leg struct {
	Symbol string          `json:"symbol"`
	Strike decimal.Decimal `json:"strike"`
	Index  int             `json:"index"`
}

// IronCondor is a short call spread plus a short put spread. It is built once
// per cycle and never persisted.
type IronCondor struct {
	ShortCall Leg `json:"short_call"`
	LongCall  Leg `json:"long_call"`
	ShortPut  Leg `json:"short_put"`
	LongPut   Leg `json:"long_put"`
}

// CallWidth is the strike distance of the call spread.
func (c *IronCondor) CallWidth() decimal.Decimal {
	return c.LongCall.Strike.Sub(c.ShortCall.Strike)
}

// PutWidth is the strike distance of the put spread.
func (c *IronCondor) PutWidth() decimal.Decimal {
	return c.ShortPut.Strike.Sub(c.LongPut.Strike)
}

func (c *IronCondor) String() string {
	return fmt.Sprintf("%s/%s P  %s/%s C",
		c.LongPut.Strike, c.ShortPut.Strike, c.ShortCall.Strike, c.LongCall.Strike)
}
