package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRecord(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveTurn("router", "CTO", 20*time.Millisecond)
	m.ObserveTurn("router", "CTO", 10*time.Millisecond)
	m.RouterDecision("heuristic")
	m.GenerationFailure("VC")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues("router", "CTO")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.routerDecisions.WithLabelValues("heuristic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generationFailures.WithLabelValues("VC")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("interview", "testing", time.Second)
		m.RouterDecision("trigger")
		m.GenerationFailure("PM")
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	t.Parallel()

	m := New()
	m.RouterDecision("classifier")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mentor_router_decisions_total{source="classifier"} 1`)
}
