package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterServesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := Register(reg)
	require.NoError(t, err)

	ObserveDecision("accepted")
	ObserveSweep("postponed")
	ObserveHTTP(http.MethodGet, "/api/v1/agreements", 200, 15*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(decisionsTotal.WithLabelValues("accepted")))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "agreement_decisions_total")
	assert.Contains(t, rec.Body.String(), "agreement_sweeper_tasks_total")
}
