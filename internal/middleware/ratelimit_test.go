package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newLimitedHandler(rl *RateLimiter) http.Handler {
	return rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
	req.RemoteAddr = ip + ":54321"
	return req
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{AuthRate: 1, AuthBurst: 5, CleanupInterval: time.Minute})
	defer rl.Stop()
	handler := newLimitedHandler(rl)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("10.0.0.1"))
		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{AuthRate: 0.5, AuthBurst: 2, CleanupInterval: time.Minute})
	defer rl.Stop()
	handler := newLimitedHandler(rl)

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1"))

	resp := w.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}

	retryAfter, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || retryAfter != 2 {
		t.Errorf("Retry-After = %q, want 2", resp.Header.Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" || body.Success {
		t.Errorf("body = %+v", body)
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{AuthRate: 0.1, AuthBurst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()
	handler := newLimitedHandler(rl)

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1"))
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("client 1 second request: status = %d, want 429", w.Result().StatusCode)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.2"))
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("client 2 first request: status = %d, want 200", w.Result().StatusCode)
	}

	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount = %d, want 2", rl.LimiterCount())
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{AuthRate: 1, AuthBurst: 5, CleanupInterval: time.Hour})
	defer rl.Stop()

	newLimitedHandler(rl).ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.9"))
	if rl.LimiterCount() != 1 {
		t.Fatalf("LimiterCount = %d, want 1", rl.LimiterCount())
	}

	// TTLはCleanupIntervalの2倍
	rl.cleanup(time.Now().Add(time.Hour))
	if rl.LimiterCount() != 1 {
		t.Error("entry within TTL should be kept")
	}

	rl.cleanup(time.Now().Add(3 * time.Hour))
	if rl.LimiterCount() != 0 {
		t.Errorf("LimiterCount = %d, want 0 after cleanup", rl.LimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(60)
	if cfg.AuthRate != 1 {
		t.Errorf("AuthRate = %v, want 1", cfg.AuthRate)
	}
	if cfg.AuthBurst != 60 {
		t.Errorf("AuthBurst = %d, want 60", cfg.AuthBurst)
	}

	def := DefaultRateLimiterConfig()
	if def.AuthBurst != 30 {
		t.Errorf("default AuthBurst = %d, want 30", def.AuthBurst)
	}
	if got := NewRateLimiterConfig(0); got.AuthBurst != 30 {
		t.Errorf("NewRateLimiterConfig(0).AuthBurst = %d, want 30", got.AuthBurst)
	}
}
