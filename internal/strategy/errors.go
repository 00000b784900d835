package strategy

import (
	"errors"
	"fmt"

	"github.com/eddiefleurent/condor_bot/internal/osi"
)

var (
	// ErrSearchBudgetExhausted is returned when a search evaluated SearchBudget
	// candidates without landing in its target band. The accompanying result
	// is a best effort and must not be traded.
	ErrSearchBudgetExhausted = errors.New("search budget exhausted")
	// ErrIndexOutOfRange is returned when a walk leaves the chain.
	ErrIndexOutOfRange = errors.New("chain index out of range")
	// ErrUnresolvedLeg is returned when a short leg has no resolved chain index.
	ErrUnresolvedLeg = errors.New("short leg not resolved to a chain index")
	// ErrWidthMismatch is returned when a spread's strike distance differs from the configured width.
	ErrWidthMismatch = errors.New("spread width mismatch")
	// ErrInvertedCondor is returned when the short call strike is not above the short put strike.
	ErrInvertedCondor = errors.New("short call strike must exceed short put strike")
	// ErrATMMismatch is returned when the call and put ATM strikes do not bracket the price.
	ErrATMMismatch = errors.New("call and put ATM strikes too far apart")
)

// IndexOutOfRangeError records the offending index and the side length.
type IndexOutOfRangeError struct {
	Side  osi.OptionType
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("%s index %d outside chain of %d strikes", e.Side, e.Index, e.Len)
}

// Is matches ErrIndexOutOfRange.
func (e *IndexOutOfRangeError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}

// SearchError reports an unconverged search and where it stopped.
type SearchError struct {
	Search    string
	Side      osi.OptionType
	Index     int
	Evaluated int
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("%s %s search stopped at index %d after %d candidates: %v",
		e.Side, e.Search, e.Index, e.Evaluated, ErrSearchBudgetExhausted)
}

// Unwrap exposes ErrSearchBudgetExhausted.
func (e *SearchError) Unwrap() error {
	return ErrSearchBudgetExhausted
}
