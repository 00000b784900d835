// Package trading runs the iron condor session: one sequential loop that
// evaluates risk, gates entries and hands condors to the order gateway.
package trading

import (
	"sync"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/google/uuid"
)

// Session is the state carried from cycle to cycle for one trading day.
// The loop is its only writer; Snapshot may be called from other goroutines.
type Session struct {
	mu sync.RWMutex

	id         string
	symbol     string
	expiration string
	startedAt  time.Time

	trades  models.TradeState
	risk    models.RiskSummary
	machine *models.SessionMachine
	// sawPositions is set once the portfolio showed option positions.
	sawPositions bool

	cycles int
	last   *CycleResult
}

// NewSession starts a session for symbol options expiring on expiration
// (YYYY-MM-DD).
func NewSession(symbol, expiration string, now time.Time) *Session {
	return &Session{
		id:         uuid.NewString(),
		symbol:     symbol,
		expiration: expiration,
		startedAt:  now,
		machine:    models.NewSessionMachine(),
	}
}

// Expiration returns the session's option expiration date.
func (s *Session) Expiration() string {
	return s.expiration
}

// Trades returns a copy of the trade state.
func (s *Session) Trades() models.TradeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trades
}

// Risk returns a copy of the risk summary.
func (s *Session) Risk() models.RiskSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.risk
}

// State returns the session state machine's current state.
func (s *Session) State() models.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.machine.GetCurrentState()
}

func (s *Session) setRisk(r models.RiskSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.risk = r
}

func (s *Session) recordTrade(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades.RecordTrade(at)
	return s.machine.Transition(models.StateInPosition, models.ConditionTradeEntered)
}

// observePositions moves the session back to idle once positions that were
// seen earlier are all gone.
func (s *Session) observePositions(optionPositions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if optionPositions > 0 {
		s.sawPositions = true
		return nil
	}
	if !s.sawPositions || s.machine.GetCurrentState() != models.StateInPosition {
		return nil
	}
	s.sawPositions = false
	return s.machine.Transition(models.StateIdle, models.ConditionPositionsFlat)
}

func (s *Session) finishCycle(r CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.last = &r
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID               string              `json:"id"`
	Symbol           string              `json:"symbol"`
	Expiration       string              `json:"expiration"`
	StartedAt        time.Time           `json:"started_at"`
	State            models.SessionState `json:"state"`
	PreviousState    models.SessionState `json:"previous_state"`
	StateDescription string              `json:"state_description"`
	StateSince       time.Time           `json:"state_since"`
	TimesFlat        int                 `json:"times_flat"`
	Trades           models.TradeState   `json:"trades"`
	Risk             models.RiskSummary  `json:"risk"`
	Cycles           int                 `json:"cycles"`
	LastCycle        *CycleSummary       `json:"last_cycle,omitempty"`
}

// CycleSummary is the JSON form of a CycleResult.
type CycleSummary struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Entered bool      `json:"entered"`
	AtRisk  bool      `json:"at_risk"`
	Reason  string    `json:"reason"`
	Condor  string    `json:"condor,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Snapshot copies the session under its lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:               s.id,
		Symbol:           s.symbol,
		Expiration:       s.expiration,
		StartedAt:        s.startedAt,
		State:            s.machine.GetCurrentState(),
		PreviousState:    s.machine.GetPreviousState(),
		StateDescription: s.machine.GetStateDescription(),
		StateSince:       s.machine.GetTransitionTime(),
		TimesFlat:        s.machine.GetTransitionCount(models.StateIdle),
		Trades:           s.trades,
		Risk:             s.risk,
		Cycles:           s.cycles,
	}
	if s.last != nil {
		sum := &CycleSummary{
			ID:      s.last.ID,
			At:      s.last.At,
			Entered: s.last.Entered,
			AtRisk:  s.last.AtRisk,
			Reason:  s.last.Reason,
		}
		if s.last.Condor != nil {
			sum.Condor = s.last.Condor.String()
		}
		if s.last.Err != nil {
			sum.Error = s.last.Err.Error()
		}
		snap.LastCycle = sum
	}
	return snap
}
