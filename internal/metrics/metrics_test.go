package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSaga(t *testing.T) {
	success := testutil.ToFloat64(sagaRunsTotal.WithLabelValues("test_kind", "success"))
	failure := testutil.ToFloat64(sagaRunsTotal.WithLabelValues("test_kind", "failure"))

	RecordSaga("test_kind", nil, time.Second)
	RecordSaga("test_kind", errors.New("boom"), time.Second)
	RecordSaga("test_kind", errors.New("boom"), time.Second)

	if got := testutil.ToFloat64(sagaRunsTotal.WithLabelValues("test_kind", "success")) - success; got != 1 {
		t.Errorf("success delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sagaRunsTotal.WithLabelValues("test_kind", "failure")) - failure; got != 2 {
		t.Errorf("failure delta = %v, want 2", got)
	}
}

func TestObserveRemote(t *testing.T) {
	before := testutil.ToFloat64(remoteRequestsTotal.WithLabelValues("test_op", "error"))
	ObserveRemote("test_op", 0, time.Millisecond)
	ObserveRemote("test_op", 200, time.Millisecond)

	if got := testutil.ToFloat64(remoteRequestsTotal.WithLabelValues("test_op", "error")) - before; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(remoteRequestsTotal.WithLabelValues("test_op", "200")); got < 1 {
		t.Errorf("200 count = %v", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Middleware(mux)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /api/things/{id}", "418"))
	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/things/"+id, nil))
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /api/things/{id}", "418")) - before; got != 2 {
		t.Errorf("requests delta = %v, want 2", got)
	}
}
