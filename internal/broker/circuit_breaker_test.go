package broker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eddiefleurent/condor_bot/internal/models"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGateway fails every call once failAfter calls have succeeded.
type stubGateway struct {
	calls      atomic.Int32
	shouldFail atomic.Bool
	failAfter  int32
	failWith   error
}

func (s *stubGateway) fail() error {
	n := s.calls.Add(1)
	if s.shouldFail.Load() && n > s.failAfter {
		if s.failWith != nil {
			return s.failWith
		}
		return &GatewayError{Op: "stub", Status: 503, Body: "unavailable"}
	}
	return nil
}

func (s *stubGateway) GetQuote(_ context.Context, instrument models.Instrument) (*models.Quote, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return &models.Quote{Instrument: instrument, Last: 450}, nil
}

func (s *stubGateway) GetOptionChain(_ context.Context, instrument models.Instrument, _ string) (*models.OptionChain, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return &models.OptionChain{BaseSymbol: instrument.Symbol}, nil
}

func (s *stubGateway) GetGreeks(_ context.Context, osiSymbol string) (*models.Greeks, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return &models.Greeks{Symbol: osiSymbol, Delta: 0.1}, nil
}

func (s *stubGateway) GetPortfolio(context.Context) (*models.Portfolio, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return &models.Portfolio{AccountID: "ACC1"}, nil
}

func (s *stubGateway) SubmitPreflight(_ context.Context, order PreflightOrder) (*PreflightResponse, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return &PreflightResponse{OrderID: order.OrderID}, nil
}

var fastSettings = CircuitBreakerSettings{
	MaxRequests:  1,
	Interval:     10 * time.Millisecond,
	Timeout:      20 * time.Millisecond,
	MinRequests:  1,
	FailureRatio: 0.5,
}

func TestCircuitBreakerGateway_AllMethods(t *testing.T) {
	cb := NewCircuitBreakerGateway(&stubGateway{}, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"GetQuote", func() error { _, err := cb.GetQuote(ctx, models.NewEquity("SPY")); return err }},
		{"GetOptionChain", func() error { _, err := cb.GetOptionChain(ctx, models.NewEquity("SPY"), "2025-12-24"); return err }},
		{"GetGreeks", func() error { _, err := cb.GetGreeks(ctx, "SPY251224C00455000"); return err }},
		{"GetPortfolio", func() error { _, err := cb.GetPortfolio(ctx); return err }},
		{"SubmitPreflight", func() error { _, err := cb.SubmitPreflight(ctx, testOrder()); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.fn())
		})
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerGateway_TripsOnTransientFailures(t *testing.T) {
	stub := &stubGateway{failAfter: 3}
	stub.shouldFail.Store(true)
	cb := NewCircuitBreakerGatewayWithSettings(stub, fastSettings, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cb.GetPortfolio(ctx)
		require.NoError(t, err, "call %d", i+1)
	}
	for i := 0; i < 5; i++ {
		_, _ = cb.GetPortfolio(ctx)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.GetQuote(ctx, models.NewEquity("SPY"))
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, err, ErrGateway, "open breaker must look like a gateway failure")
}

func TestCircuitBreakerGateway_IgnoresRejections(t *testing.T) {
	stub := &stubGateway{failWith: &GatewayError{Op: "preflight", Status: 400, Body: "insufficient buying power"}}
	stub.shouldFail.Store(true)
	cb := NewCircuitBreakerGatewayWithSettings(stub, fastSettings, nil)

	for i := 0; i < 10; i++ {
		_, err := cb.SubmitPreflight(context.Background(), testOrder())
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerGateway_Recovers(t *testing.T) {
	stub := &stubGateway{}
	stub.shouldFail.Store(true)
	cb := NewCircuitBreakerGatewayWithSettings(stub, fastSettings, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = cb.GetGreeks(ctx, "SPY251224C00455000")
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	require.Eventually(t, func() bool {
		return cb.State() == gobreaker.StateHalfOpen
	}, time.Second, time.Millisecond)

	stub.shouldFail.Store(false)
	g, err := cb.GetGreeks(ctx, "SPY251224C00455000")
	require.NoError(t, err)
	assert.Equal(t, 0.1, g.Delta)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerGateway_PassesThroughErrors(t *testing.T) {
	boom := errors.New("boom")
	stub := &stubGateway{failWith: boom}
	stub.shouldFail.Store(true)
	cb := NewCircuitBreakerGateway(stub, nil)

	_, err := cb.GetPortfolio(context.Background())
	assert.ErrorIs(t, err, boom)
}
