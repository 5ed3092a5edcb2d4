package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	c := New("scm_test")
	c.EntryStarted()
	c.EntryStarted()
	c.EntryStopped()
	c.Attached("data")
	c.Dispatched("data")
	c.Dispatched("data")
	c.DispatchPanicked("event")
	c.Rearmed()

	require.Equal(t, float64(1), testutil.ToFloat64(c.ActiveEntries))
	require.Equal(t, float64(1), testutil.ToFloat64(c.Attaches.WithLabelValues("data")))
	require.Equal(t, float64(2), testutil.ToFloat64(c.Dispatches.WithLabelValues("data")))
	require.Equal(t, float64(1), testutil.ToFloat64(c.DispatchPanics.WithLabelValues("event")))
	require.Equal(t, float64(1), testutil.ToFloat64(c.Rearms))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.EntryStarted()
	c.Attached("data")
	c.WaitFailed()
	require.Nil(t, c.Registry())
}

func TestCollector_Handler(t *testing.T) {
	c := New("scm_test")
	c.Rearmed()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "scm_test_rearm_total 1"))
}
