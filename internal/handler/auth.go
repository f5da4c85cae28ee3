package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/portfolio/internal/logger"
	"github.com/portfolio/internal/model"
	"github.com/portfolio/internal/storage"
	"github.com/portfolio/internal/token"

	"github.com/google/uuid"
)

type AuthHandler struct {
	users   storage.UserStore
	tokens  *token.Service
	limiter storage.LoginLimiter
}

func NewAuthHandler(users storage.UserStore, tokens *token.Service, limiter storage.LoginLimiter) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, limiter: limiter}
}

type registerRequest struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string           `json:"token"`
	User  model.UserPublic `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Nickname = strings.TrimSpace(req.Nickname)
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}
	if req.Nickname == "" || utf8.RuneCountInString(req.Nickname) > 50 {
		writeError(w, http.StatusBadRequest, "nickname must be 1-50 characters")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Errorf("register hash password: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		Nickname:     req.Nickname,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		logger.Errorf("register create user: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	tok, err := h.tokens.Issue(user.ID)
	if err != nil {
		logger.Errorf("register issue token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: tok, User: user.ToPublic()})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}

	if h.limiter != nil {
		ok, err := h.limiter.Allow(r.Context(), "login:"+req.Email)
		if err != nil {
			logger.Errorf("login rate limit check for %s: %v", req.Email, err)
		} else if !ok {
			writeError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
			return
		}
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logger.Errorf("login lookup user: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	tok, err := h.tokens.Issue(user.ID)
	if err != nil {
		logger.Errorf("login issue token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: tok, User: user.ToPublic()})
}
