package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/portfolio/internal/chat"
	"github.com/portfolio/internal/logger"
	"github.com/portfolio/internal/middleware"
	"github.com/portfolio/internal/model"
	"github.com/portfolio/internal/storage"
)

type RoomHandler struct {
	svc *chat.Service
}

func NewRoomHandler(svc *chat.Service) *RoomHandler {
	return &RoomHandler{svc: svc}
}

// urlRoomID parses the {roomID} path parameter; 0 means absent or invalid.
func urlRoomID(r *http.Request) int64 {
	id, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// writeRoomError maps service errors onto HTTP statuses.
func writeRoomError(w http.ResponseWriter, err error) {
	var ve *chat.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, storage.ErrRoomFull):
		writeError(w, http.StatusConflict, "room is full")
	default:
		logger.Errorf("room handler: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req chat.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	room, err := h.svc.CreateRoom(r.Context(), req, middleware.GetUserID(r.Context()))
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := urlRoomID(r)
	if id == 0 {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	room, err := h.svc.GetRoom(r.Context(), id)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.svc.ListActiveRooms(r.Context())
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.RoomList{Rooms: rooms, TotalCount: len(rooms)})
}

func (h *RoomHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.svc.ListRoomsByCreator(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.RoomList{Rooms: rooms, TotalCount: len(rooms)})
}

func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	id := urlRoomID(r)
	if id == 0 {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	room, err := h.svc.JoinRoom(r.Context(), id)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id := urlRoomID(r)
	if id == 0 {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	room, err := h.svc.LeaveRoom(r.Context(), id)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}
