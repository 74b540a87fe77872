package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/impulsaweb/internal/metrics"
)

func TestLoggerRecordsRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("done"))
	})

	r := httptest.NewRequest(http.MethodPost, "/api/orders?x=1", nil)
	Logger(logger)(next).ServeHTTP(httptest.NewRecorder(), r)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["method"] != http.MethodPost {
		t.Fatalf("method = %v", fields["method"])
	}
	if fields["uri"] != "/api/orders?x=1" {
		t.Fatalf("uri = %v", fields["uri"])
	}
	if fields["status"] != int64(http.StatusCreated) {
		t.Fatalf("status = %v (%T)", fields["status"], fields["status"])
	}
	if fields["size"] != int64(4) {
		t.Fatalf("size = %v", fields["size"])
	}
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	m := metrics.New()

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/api/brief/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})

	for _, id := range []string{"IW-2506-AB12", "IW-2506-CD34"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/brief/"+id, nil))
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)

	want := `impulsaweb_http_requests_total{code="200",method="GET",route="/api/brief/{orderID}"} 2`
	if !strings.Contains(string(body), want) {
		t.Fatalf("metrics output does not contain %q", want)
	}
	if strings.Contains(string(body), "IW-2506-AB12") {
		t.Fatalf("raw path leaked into metric labels")
	}
}
