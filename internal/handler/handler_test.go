package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/portfolio/internal/chat"
	"github.com/portfolio/internal/middleware"
	"github.com/portfolio/internal/model"
	"github.com/portfolio/internal/storage/memory"
	"github.com/portfolio/internal/token"
)

type testAPI struct {
	srv   *httptest.Server
	svc   *chat.Service
	store *memory.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.New()
	svc := chat.NewService(store, store, store)
	tokens := token.NewService("test-secret", time.Hour)

	authH := NewAuthHandler(store, tokens, nil)
	roomH := NewRoomHandler(svc)
	msgH := NewMessageHandler(svc)

	r := chi.NewRouter()
	r.Post("/api/auth/register", authH.Register)
	r.Post("/api/auth/login", authH.Login)
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(tokens))
		r.Get("/api/chat/rooms", roomH.List)
		r.Get("/api/chat/rooms/{roomID}", roomH.Get)
		r.Get("/api/chat/rooms/{roomID}/messages", msgH.Recent)
		r.Get("/api/chat/rooms/{roomID}/messages/recent", msgH.Since)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokens))
		r.Post("/api/chat/rooms", roomH.Create)
		r.Get("/api/chat/rooms/my", roomH.ListMine)
		r.Post("/api/chat/rooms/{roomID}/join", roomH.Join)
		r.Post("/api/chat/rooms/{roomID}/leave", roomH.Leave)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, svc: svc, store: store}
}

func (a *testAPI) do(t *testing.T, method, path, tok string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type authResult struct {
	Token string           `json:"token"`
	User  model.UserPublic `json:"user"`
}

func (a *testAPI) register(t *testing.T, email, nickname string) authResult {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "nickname": nickname, "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[authResult](t, resp)
}

func TestRegisterAndLogin(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)

	reg := api.register(t, "alice@example.com", "alice")
	req.NotEmpty(reg.Token)
	req.Equal("alice", reg.User.Nickname)

	// Duplicate email is rejected.
	resp := api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "alice@example.com", "nickname": "alice2", "password": "correct horse",
	})
	req.Equal(http.StatusConflict, resp.StatusCode)

	// Login with the right password.
	resp = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "correct horse",
	})
	req.Equal(http.StatusOK, resp.StatusCode)
	req.NotEmpty(decode[authResult](t, resp).Token)

	// Wrong password and unknown user read the same.
	resp = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nobody@example.com", "password": "wrong",
	})
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)

	cases := []map[string]string{
		{"email": "not-an-email", "nickname": "a", "password": "longenough"},
		{"email": "a@example.com", "nickname": "", "password": "longenough"},
		{"email": "a@example.com", "nickname": "a", "password": "short"},
	}
	for _, body := range cases {
		resp := api.do(t, http.MethodPost, "/api/auth/register", "", body)
		req.Equal(http.StatusBadRequest, resp.StatusCode)
	}

	// The nickname limit counts characters, not bytes.
	resp := api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "ko@example.com", "nickname": strings.Repeat("김", 50), "password": "longenough",
	})
	req.Equal(http.StatusCreated, resp.StatusCode)
}

func TestRoomLifecycle(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)
	alice := api.register(t, "alice@example.com", "alice")
	bob := api.register(t, "bob@example.com", "bob")

	// Creating a room requires a principal, listing does not.
	resp := api.do(t, http.MethodPost, "/api/chat/rooms", "", map[string]any{"name": "general"})
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp = api.do(t, http.MethodGet, "/api/chat/rooms", "", nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodPost, "/api/chat/rooms", alice.Token, map[string]any{
		"name": "general", "max_participants": 2,
	})
	req.Equal(http.StatusCreated, resp.StatusCode)
	room := decode[model.Room](t, resp)
	req.Equal("alice", room.CreatorNickname)
	req.Equal(1, room.CurrentParticipants)

	resp = api.do(t, http.MethodGet, "/api/chat/rooms", bob.Token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	list := decode[model.RoomList](t, resp)
	req.Equal(1, list.TotalCount)

	// my rooms is creator-scoped.
	resp = api.do(t, http.MethodGet, "/api/chat/rooms/my", bob.Token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Zero(decode[model.RoomList](t, resp).TotalCount)

	base := fmt.Sprintf("/api/chat/rooms/%d", room.ID)
	resp = api.do(t, http.MethodPost, base+"/join", bob.Token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(2, decode[model.Room](t, resp).CurrentParticipants)

	// At capacity the join conflicts.
	resp = api.do(t, http.MethodPost, base+"/join", bob.Token, nil)
	req.Equal(http.StatusConflict, resp.StatusCode)

	resp = api.do(t, http.MethodPost, base+"/leave", bob.Token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(1, decode[model.Room](t, resp).CurrentParticipants)

	resp = api.do(t, http.MethodGet, "/api/chat/rooms/9999", bob.Token, nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)

	resp = api.do(t, http.MethodPost, "/api/chat/rooms", alice.Token, map[string]any{"name": ""})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestMessageHistoryEndpoints(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)
	alice := api.register(t, "alice@example.com", "alice")

	ctx := context.Background()
	room, err := api.svc.CreateRoom(ctx, chat.CreateRoomRequest{Name: "general"}, alice.User.ID)
	req.NoError(err)
	for _, c := range []string{"one", "two", "three"} {
		_, err := api.svc.AppendMessage(ctx, room.ID, alice.User.ID, c, model.MessageTypeChat)
		req.NoError(err)
	}

	base := fmt.Sprintf("/api/chat/rooms/%d", room.ID)
	resp := api.do(t, http.MethodGet, base+"/messages?limit=2", alice.Token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	var recent struct {
		RoomID   int64           `json:"room_id"`
		Messages []model.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recent))
	req.Len(recent.Messages, 2)
	req.Equal("two", recent.Messages[0].Content)
	req.Equal("three", recent.Messages[1].Content)

	since := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	resp = api.do(t, http.MethodGet, base+"/messages/recent?since="+since, alice.Token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodGet, base+"/messages/recent?since=yesterday", alice.Token, nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	// History reads are public.
	resp = api.do(t, http.MethodGet, base+"/messages", "", nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/chat/rooms/9999/messages", alice.Token, nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)
}
