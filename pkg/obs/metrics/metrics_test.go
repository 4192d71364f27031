package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"augeias/pkg/janitor"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	for _, p := range []string{"/", "/", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	require.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("200", http.MethodGet)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("404", http.MethodGet)))
	require.Equal(t, 0.0, testutil.ToFloat64(m.inflight))
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	NewStorageMetrics(m.Registry()).For("beeldbank").Observe("put", 10, nil, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `augeias_storage_ops_total{collection="beeldbank",op="put",result="ok"} 1`))
}

func TestStorageObserve(t *testing.T) {
	m := New()
	sm := NewStorageMetrics(m.Registry())
	o := sm.For("c")

	o.Observe("get", 5, nil, time.Millisecond)
	o.Observe("get", 0, errors.New("x"), time.Millisecond)
	o.Observe("get", 7, nil, time.Millisecond)

	require.Equal(t, 12.0, testutil.ToFloat64(sm.bytes.WithLabelValues("c", "get")))
	require.Equal(t, 2.0, testutil.ToFloat64(sm.ops.WithLabelValues("c", "get", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(sm.ops.WithLabelValues("c", "get", "error")))
}

func TestJanitorObserveDeltas(t *testing.T) {
	m := New()
	jm := NewJanitorMetrics(m.Registry())

	jm.Observe(janitor.Stats{Runs: 1, TempFilesRemoved: 3, LastRun: time.Unix(100, 0)})
	jm.Observe(janitor.Stats{Runs: 1, TempFilesRemoved: 3, LastRun: time.Unix(100, 0)})
	jm.Observe(janitor.Stats{Runs: 2, TempFilesRemoved: 4, Errors: 1, LastRun: time.Unix(200, 0)})

	require.Equal(t, 2.0, testutil.ToFloat64(jm.runs))
	require.Equal(t, 4.0, testutil.ToFloat64(jm.temps))
	require.Equal(t, 1.0, testutil.ToFloat64(jm.errors))
	require.Equal(t, 200.0, testutil.ToFloat64(jm.lastRun))
}

type staticStats janitor.Stats

func (s staticStats) Stats() janitor.Stats { return janitor.Stats(s) }

func TestJanitorPolling(t *testing.T) {
	jm := NewJanitorMetrics(New().Registry())
	stop := jm.StartPolling(staticStats{Runs: 5}, 5*time.Millisecond)
	defer stop()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(jm.runs) == 5
	}, time.Second, 5*time.Millisecond)
	stop()
}
