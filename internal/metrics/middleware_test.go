package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/sessions/{session_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/stream", func(w http.ResponseWriter, _ *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("expected wrapped writer to implement http.Flusher")
		}
		_, _ = w.Write([]byte("{}\n"))
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	teapots := httpRequestsTotal.WithLabelValues("GET", "418")
	oks := httpRequestsTotal.WithLabelValues("GET", "200")
	beforeTeapot, beforeOK := testutil.ToFloat64(teapots), testutil.ToFloat64(oks)

	for _, path := range []string{"/v1/sessions/abc", "/stream"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		if errInner := resp.Body.Close(); errInner != nil {
			t.Log(errInner)
		}
	}

	if val := testutil.ToFloat64(teapots); val != beforeTeapot+1 {
		t.Errorf("Expected GET 418 to increase by 1, got %f", val)
	}
	if val := testutil.ToFloat64(oks); val != beforeOK+1 {
		t.Errorf("Expected GET 200 to increase by 1, got %f", val)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds); val <= 0 {
		t.Errorf("Expected httpRequestDurationSeconds to be observed, got %d", val)
	}
}
