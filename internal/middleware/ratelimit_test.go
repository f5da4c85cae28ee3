package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	req := require.New(t)
	rl := newRateLimiter(3, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		req.True(rl.allow("k"))
	}
	req.False(rl.allow("k"))
	req.True(rl.allow("other"))

	time.Sleep(60 * time.Millisecond)
	req.True(rl.allow("k"))
}

func TestRateLimitAPIPerIP(t *testing.T) {
	req := require.New(t)
	h := RateLimitAPI(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < rateLimitMaxIP; i++ {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
		r.Header.Set("X-Real-Ip", "10.0.0.1")
		h.ServeHTTP(rec, r)
		req.Equal(http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
	r.Header.Set("X-Real-Ip", "10.0.0.1")
	h.ServeHTTP(rec, r)
	req.Equal(http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitAPIPerUser(t *testing.T) {
	req := require.New(t)
	h := RateLimitAPI(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Distinct IPs per request so only the per-user bucket can trip.
	send := func(i int) int {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
		r.Header.Set("X-Real-Ip", fmt.Sprintf("10.1.%d.%d", i/250, i%250))
		r = r.WithContext(context.WithValue(r.Context(), UserIDKey, "user-limited"))
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	for i := 0; i < rateLimitMaxUser; i++ {
		req.Equal(http.StatusOK, send(i))
	}
	req.Equal(http.StatusTooManyRequests, send(rateLimitMaxUser))
}
