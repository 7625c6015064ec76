package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.ObserveRequest(http.MethodGet, "/api/debts/{tripId}", 200, 30*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/api/debts/{tripId}", 200, 10*time.Millisecond)
	m.ObserveSettlement(3, nil)
	m.ObserveSettlement(0, errors.New("unbalanced"))
	m.ObserveNotification("debt", "sent")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/debts/{tripId}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("debt", "sent")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "splitopus_http_requests_total")
	assert.Contains(t, string(body), "splitopus_settlement_transactions_bucket")
}
