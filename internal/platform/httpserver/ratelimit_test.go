package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func limited(rl *RateLimiter) http.Handler {
	return rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, remote string) int {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = remote
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiter_AllowsBurst(t *testing.T) {
	h := limited(NewRateLimiter(1, 3))

	for i := 0; i < 3; i++ {
		if code := hit(h, "1.2.3.4:1234"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	// same host, different port
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "1.2.3.4:5678"))
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	h := limited(NewRateLimiter(1, 1))
	assert.Equal(t, http.StatusOK, hit(h, "1.1.1.1:1234"))
	assert.Equal(t, http.StatusOK, hit(h, "2.2.2.2:1234"))
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "1.1.1.1:1234"))
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.Equal(t, true, rl.allow("k"))
	assert.Equal(t, false, rl.allow("k"))
	now = now.Add(time.Second)
	assert.Equal(t, true, rl.allow("k"))
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.allow("a")
	now = now.Add(2 * idleBucket)
	rl.allow("b")

	_, ok := rl.buckets["a"]
	assert.Equal(t, false, ok)
}

func TestClientIP_ForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	assert.Equal(t, "9.9.9.9", clientIP(req))
}
