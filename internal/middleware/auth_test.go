package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/portfolio/internal/token"
)

func echoUserID() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserID(r.Context())))
	})
}

func TestRequireAuthMissingToken(t *testing.T) {
	req := require.New(t)
	svc := token.NewService("secret", time.Hour)
	h := RequireAuth(svc)(echoUserID())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil))

	req.Equal(http.StatusUnauthorized, rec.Code)
	req.Contains(rec.Header().Get("Content-Type"), "application/json")
	req.JSONEq(`{"error":"unauthorized"}`, rec.Body.String())
}

func TestRequireAuthInvalidToken(t *testing.T) {
	req := require.New(t)
	svc := token.NewService("secret", time.Hour)
	h := RequireAuth(svc)(echoUserID())

	r := httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	req.Equal(http.StatusUnauthorized, rec.Code)
	req.JSONEq(`{"error":"unauthorized"}`, rec.Body.String())
}

func TestRequireAuthValidHeader(t *testing.T) {
	req := require.New(t)
	svc := token.NewService("secret", time.Hour)
	tok, err := svc.Issue("u1")
	req.NoError(err)
	h := RequireAuth(svc)(echoUserID())

	r := httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	req.Equal(http.StatusOK, rec.Code)
	req.Equal("u1", rec.Body.String())
}

func TestRequireAuthQueryFallback(t *testing.T) {
	req := require.New(t)
	svc := token.NewService("secret", time.Hour)
	tok, err := svc.Issue("u1")
	req.NoError(err)
	h := RequireAuth(svc)(echoUserID())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+tok, nil))

	req.Equal(http.StatusOK, rec.Code)
	req.Equal("u1", rec.Body.String())
}

func TestOptionalAuth(t *testing.T) {
	req := require.New(t)
	svc := token.NewService("secret", time.Hour)
	tok, err := svc.Issue("u1")
	req.NoError(err)
	h := OptionalAuth(svc)(echoUserID())

	// Anonymous requests pass through with no user id.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil))
	req.Equal(http.StatusOK, rec.Code)
	req.Empty(rec.Body.String())

	// A valid token attaches the user id.
	r := httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	req.Equal("u1", rec.Body.String())

	// An invalid token stays anonymous.
	r = httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	req.Equal(http.StatusOK, rec.Code)
	req.Empty(rec.Body.String())
}

func TestMaskToken(t *testing.T) {
	req := require.New(t)
	req.Equal("****", MaskToken("short"))
	req.Equal("eyJhbGci***", MaskToken("eyJhbGciOiJIUzI1NiJ9"))
}
