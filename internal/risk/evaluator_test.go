package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/eddiefleurent/condor_bot/internal/osi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCloser struct {
	closed []string
	err    error
}

func (c *recordingCloser) ClosePosition(_ context.Context, pos models.PortfolioPosition) error {
	if c.err != nil {
		return c.err
	}
	c.closed = append(c.closed, pos.Instrument.Symbol)
	return nil
}

func optionPos(symbol string, pct float64) models.PortfolioPosition {
	return models.PortfolioPosition{
		Instrument:     models.NewOption(symbol),
		Quantity:       -1,
		InstrumentGain: models.Gain{GainPercentage: pct},
	}
}

const (
	callSym = "SPY251224C00455000"
	putSym  = "SPY251224P00445000"
)

func TestEvaluate_Thresholds(t *testing.T) {
	tests := []struct {
		name       string
		pos        models.PortfolioPosition
		wantAtRisk bool
		wantCalls  int
		wantPuts   int
		wantClosed int
	}{
		{name: "call past full loss", pos: optionPos(callSym, -100.2), wantAtRisk: true, wantCalls: 1, wantClosed: 1},
		{name: "put exactly full loss", pos: optionPos(putSym, -100.0), wantAtRisk: true, wantPuts: 1, wantClosed: 1},
		{name: "at risk boundary", pos: optionPos(putSym, -85.0), wantAtRisk: true},
		{name: "just above at risk", pos: optionPos(callSym, -84.9)},
		{name: "winning position", pos: optionPos(callSym, 40)},
		{name: "equity ignored", pos: models.PortfolioPosition{
			Instrument:     models.NewEquity("SPY"),
			InstrumentGain: models.Gain{GainPercentage: -150},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closer := &recordingCloser{}
			e := NewEvaluator(closer, nil)

			got, err := e.Evaluate(context.Background(), []models.PortfolioPosition{tt.pos}, models.RiskSummary{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantAtRisk, got.PositionsAtRisk)
			assert.Equal(t, tt.wantCalls, got.ClosedCallSpreads)
			assert.Equal(t, tt.wantPuts, got.ClosedPutSpreads)
			assert.Len(t, closer.closed, tt.wantClosed)
		})
	}
}

func TestEvaluate_CountersPersistAtRiskResets(t *testing.T) {
	closer := &recordingCloser{}
	var hooked []osi.OptionType
	e := NewEvaluator(closer, nil, WithCloseHook(func(side osi.OptionType) { hooked = append(hooked, side) }))
	ctx := context.Background()

	summary, err := e.Evaluate(ctx, []models.PortfolioPosition{
		optionPos(callSym, -101),
		optionPos(putSym, -90),
	}, models.RiskSummary{ClosedPutSpreads: 2})
	require.NoError(t, err)
	assert.True(t, summary.PositionsAtRisk)
	assert.Equal(t, 1, summary.ClosedCallSpreads)
	assert.Equal(t, 2, summary.ClosedPutSpreads)
	assert.Equal(t, []osi.OptionType{osi.Call}, hooked)

	summary, err = e.Evaluate(ctx, []models.PortfolioPosition{optionPos(putSym, -10)}, summary)
	require.NoError(t, err)
	assert.False(t, summary.PositionsAtRisk)
	assert.Equal(t, 1, summary.ClosedCallSpreads)
	assert.Equal(t, 2, summary.ClosedPutSpreads)
}

func TestEvaluate_CloseFailureLeavesCounters(t *testing.T) {
	boom := errors.New("gateway down")
	e := NewEvaluator(&recordingCloser{err: boom}, nil)

	summary, err := e.Evaluate(context.Background(), []models.PortfolioPosition{optionPos(callSym, -120)}, models.RiskSummary{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, summary.PositionsAtRisk)
	assert.Zero(t, summary.TotalClosed())
}

func TestEvaluate_UndecodableSymbol(t *testing.T) {
	closer := &recordingCloser{}
	e := NewEvaluator(closer, nil)

	summary, err := e.Evaluate(context.Background(), []models.PortfolioPosition{optionPos("NOT-AN-OSI", -200)}, models.RiskSummary{})
	assert.ErrorIs(t, err, osi.ErrInvalidSymbol)
	assert.True(t, summary.PositionsAtRisk)
	assert.Zero(t, summary.TotalClosed())
	assert.Empty(t, closer.closed)
}

func TestEvaluate_CustomThresholds(t *testing.T) {
	closer := &recordingCloser{}
	e := NewEvaluator(closer, nil, WithThresholds(Thresholds{CloseLossPct: -80, AtRiskLossPct: -50}))

	summary, err := e.Evaluate(context.Background(), []models.PortfolioPosition{
		optionPos(callSym, -60),
		optionPos(putSym, -80),
	}, models.RiskSummary{})
	require.NoError(t, err)
	assert.True(t, summary.PositionsAtRisk)
	assert.Equal(t, 1, summary.ClosedPutSpreads)
	assert.Equal(t, []string{putSym}, closer.closed)
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{CloseLossPct: -50, AtRiskLossPct: -85}.Validate())
}

// Long wings are judged by the same loss thresholds as short legs: a worthless
// long wing of a winning condor is closed and counted like a losing short.
func TestEvaluate_LongWingsUseSameThresholds(t *testing.T) {
	longCall := optionPos("SPY251224C00458000", -100)
	longCall.Quantity = 1
	longPut := optionPos("SPY251224P00443000", -90)
	longPut.Quantity = 1
	shortCall := optionPos(callSym, 60)

	closer := &recordingCloser{}
	e := NewEvaluator(closer, nil)

	got, err := e.Evaluate(context.Background(),
		[]models.PortfolioPosition{shortCall, longCall, longPut}, models.RiskSummary{})
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY251224C00458000"}, closer.closed)
	assert.Equal(t, 1, got.ClosedCallSpreads)
	assert.Equal(t, 0, got.ClosedPutSpreads)
	assert.True(t, got.PositionsAtRisk, "a decayed long wing shortens the poll interval")
}
