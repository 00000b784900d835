package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eddiefleurent/condor_bot/internal/osi"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordClose(t *testing.T) {
	m := New()
	m.RecordClose(osi.Call)
	m.RecordClose(osi.Call)
	m.RecordClose(osi.Put)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SpreadsClosed.WithLabelValues("call")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpreadsClosed.WithLabelValues("put")))
}

func TestSetAtRisk(t *testing.T) {
	m := New()
	m.SetAtRisk(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PositionsAtRisk))
	m.SetAtRisk(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PositionsAtRisk))
}

func TestHandler_ExposesBotMetrics(t *testing.T) {
	m := New()
	m.Cycles.WithLabelValues(OutcomeEntered).Inc()
	m.TradesEntered.Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `condor_bot_cycles_total{outcome="entered"} 1`)
	assert.Contains(t, string(body), "condor_bot_trades_entered_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
