// Package osi decodes and encodes OSI-style option symbols such as
// "SPY251224C00450000" (underlying, YYMMDD expiration, C/P, strike x 1000).
package osi

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// OptionType is the right carried by an option symbol.
type OptionType string

const (
	// Call is encoded as 'C'.
	Call OptionType = "call"
	// Put is encoded as 'P'.
	Put OptionType = "put"
)

// ExpirationLayout is the time layout of the 6-digit expiration field.
const ExpirationLayout = "060102"

// The 8-digit strike field is fixed point with three implied decimals.
const (
	strikeExp   = 3
	strikeScale = 1000
)

var symbolPattern = regexp.MustCompile(`^([A-Z]+)(\d{6})([CP])(\d{8})$`)

// ErrInvalidSymbol is matched by every decode failure.
var ErrInvalidSymbol = errors.New("invalid option symbol")

// InvalidSymbolError reports why a raw symbol could not be decoded.
type InvalidSymbolError struct {
	Raw    string
	Reason string
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("invalid option symbol %q: %s", e.Raw, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidSymbol) match any InvalidSymbolError.
func (e *InvalidSymbolError) Is(target error) bool {
	return target == ErrInvalidSymbol
}

// Symbol is a decoded option symbol. Only Decode produces one.
type Symbol struct {
	Raw        string
	Underlying string
	Expiration time.Time
	Type       OptionType
	Strike     decimal.Decimal
}

// IsCall reports whether the symbol is a call.
func (s Symbol) IsCall() bool { return s.Type == Call }

// IsPut reports whether the symbol is a put.
func (s Symbol) IsPut() bool { return s.Type == Put }

// StrikeFloat returns the strike as a float64 for display.
func (s Symbol) StrikeFloat() float64 {
	f, _ := s.Strike.Float64()
	return f
}

func (s Symbol) String() string { return s.Raw }

// Decode parses raw into a Symbol. Whitespace anywhere in raw is removed
// before matching.
func Decode(raw string) (Symbol, error) {
	normalized := stripSpace(raw)
	m := symbolPattern.FindStringSubmatch(normalized)
	if m == nil {
		return Symbol{}, &InvalidSymbolError{Raw: raw, Reason: "does not match UNDERLYING+YYMMDD+C|P+8-digit strike"}
	}

	exp, err := time.Parse(ExpirationLayout, m[2])
	if err != nil {
		return Symbol{}, &InvalidSymbolError{Raw: raw, Reason: fmt.Sprintf("bad expiration %s", m[2])}
	}

	strikeRaw, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return Symbol{}, &InvalidSymbolError{Raw: raw, Reason: fmt.Sprintf("bad strike %s", m[4])}
	}

	optType := Call
	if m[3] == "P" {
		optType = Put
	}

	return Symbol{
		Raw:        normalized,
		Underlying: m[1],
		Expiration: exp,
		Type:       optType,
		Strike:     decimal.New(strikeRaw, -strikeExp),
	}, nil
}

// MustDecode is Decode for symbols known to be valid, such as test fixtures.
func MustDecode(raw string) Symbol {
	s, err := Decode(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Encode builds the OSI symbol for the given contract.
func Encode(underlying string, expiration time.Time, optType OptionType, strike decimal.Decimal) (string, error) {
	underlying = strings.ToUpper(stripSpace(underlying))
	if underlying == "" {
		return "", fmt.Errorf("encode: empty underlying: %w", ErrInvalidSymbol)
	}
	var flag string
	switch optType {
	case Call:
		flag = "C"
	case Put:
		flag = "P"
	default:
		return "", fmt.Errorf("encode: unknown option type %q: %w", optType, ErrInvalidSymbol)
	}
	scaled := strike.Mul(decimal.NewFromInt(strikeScale))
	if scaled.IsNegative() || !scaled.Equal(scaled.Truncate(0)) || scaled.GreaterThanOrEqual(decimal.NewFromInt(100_000_000)) {
		return "", fmt.Errorf("encode: strike %s not representable: %w", strike, ErrInvalidSymbol)
	}
	return fmt.Sprintf("%s%s%s%08d", underlying, expiration.Format(ExpirationLayout), flag, scaled.IntPart()), nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
