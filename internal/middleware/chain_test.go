package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/finwise/internal/metrics"
)

// TestRecoveryMiddleware_PanicReturns500 はpanicが統一フォーマットの500に変換されることを検証する。
func TestRecoveryMiddleware_PanicReturns500(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/signup", nil))

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
	if !strings.Contains(w.Body.String(), `"success":false`) {
		t.Errorf("body = %s, want unified error body", w.Body.String())
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		hsts     bool
		wantHSTS bool
	}{
		{"開発環境", false, false},
		{"本番環境", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSecurityHeadersMiddleware(tt.hsts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/verify-email/abc", nil))

			h := w.Result().Header
			if h.Get("X-Content-Type-Options") != "nosniff" {
				t.Error("missing X-Content-Type-Options")
			}
			if h.Get("Cache-Control") != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", h.Get("Cache-Control"))
			}
			if h.Get("Referrer-Policy") != "no-referrer" {
				t.Errorf("Referrer-Policy = %q, want no-referrer", h.Get("Referrer-Policy"))
			}
			if got := h.Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Errorf("HSTS present = %v, want %v", got, tt.wantHSTS)
			}
		})
	}
}

// recordingCollector は記録された値を保持するMetricsCollector。
type recordingCollector struct {
	metrics.Nop
	statuses  []int
	latencies int
}

func (c *recordingCollector) RecordHTTPStatus(code int) { c.statuses = append(c.statuses, code) }

func (c *recordingCollector) RecordRequestLatency(_ time.Duration) { c.latencies++ }

func TestMetricsMiddleware_RecordsStatusAndLatency(t *testing.T) {
	collector := &recordingCollector{}
	handler := NewMetricsMiddleware(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/signup", nil))

	if len(collector.statuses) != 1 || collector.statuses[0] != http.StatusConflict {
		t.Errorf("statuses = %v, want [409]", collector.statuses)
	}
	if collector.latencies != 1 {
		t.Errorf("latencies recorded = %d, want 1", collector.latencies)
	}
}

// TestMiddlewareChain_AuthInsideLogging は認証ミドルウェアが注入したユーザーIDが
// 外側のロギングミドルウェアまで伝わることを検証する。
func TestMiddlewareChain_AuthInsideLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h = NewAuthMiddleware(validTokenVerifier())(h)
	h = NewLoggingMiddleware(logger)(h)
	h = NewRecoveryMiddleware()(h)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer valid-access-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Result().StatusCode)
	}
	if !strings.Contains(buf.String(), `"user_id":"user-123"`) {
		t.Errorf("log = %s, want user_id", buf.String())
	}
}
