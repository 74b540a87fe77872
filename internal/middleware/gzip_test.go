package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func gzipBody(t *testing.T, s string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return &buf
}

// orderEcho отвечает JSON-конвертом с order_id из тела запроса.
func orderEcho(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error":"invalid json"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "order_id": in.OrderID})
}

func TestGzipMiddleware_DecompressesOrderBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", gzipBody(t, `{"order_id":"IW-2506-AB12"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(orderEcho)).ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if res.Header.Get("Content-Encoding") != "" {
		t.Fatalf("response compressed without Accept-Encoding")
	}

	var got map[string]any
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["order_id"] != "IW-2506-AB12" {
		t.Fatalf("order_id = %v", got["order_id"])
	}
}

func TestGzipMiddleware_CompressesEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/brief", strings.NewReader(`{"order_id":"IW-2506-CD34"}`))
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(orderEcho)).ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if res.Header.Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", res.Header.Get("Content-Encoding"))
	}
	if !strings.Contains(res.Header.Get("Vary"), "Accept-Encoding") {
		t.Fatalf("Vary = %q", res.Header.Get("Vary"))
	}

	zr, err := gzip.NewReader(res.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `"order_id":"IW-2506-CD34"`) {
		t.Fatalf("body = %s", body)
	}
}

func TestGzipMiddleware_SkipsUncompressibleResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "no content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNoContent)
			},
		},
		{
			name: "plain text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain; version=0.0.4")
				_, _ = w.Write([]byte("impulsaweb_orders_created_total 1\n"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Accept-Encoding", "gzip")

			rec := httptest.NewRecorder()
			GzipMiddleware(tt.handler).ServeHTTP(rec, req)

			if enc := rec.Header().Get("Content-Encoding"); enc != "" {
				t.Fatalf("Content-Encoding = %q, want none", enc)
			}
			if rec.Code == http.StatusNoContent && rec.Body.Len() != 0 {
				t.Fatalf("204 response has body of %d bytes", rec.Body.Len())
			}
			if rec.Code == http.StatusOK && !strings.HasPrefix(rec.Body.String(), "impulsaweb_") {
				t.Fatalf("body = %q", rec.Body.String())
			}
		})
	}
}

func TestGzipMiddleware_InvalidGzipBody(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"order_id":"plain"}`))
	req.Header.Set("Content-Encoding", "gzip")

	rec := httptest.NewRecorder()
	GzipMiddleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if called {
		t.Fatalf("handler called for a broken gzip body")
	}
}
