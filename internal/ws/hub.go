package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/portfolio/internal/broadcast"
	"github.com/portfolio/internal/chat"
	"github.com/portfolio/internal/logger"
	"github.com/portfolio/internal/model"
	"github.com/portfolio/internal/storage"
)

// Notifier sends push notifications. If nil, pushes are not sent.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// Hub owns the set of live connections and dispatches incoming frames to the
// chat service, publishing the results through the broadcast router.
type Hub struct {
	svc      *chat.Service
	router   *broadcast.Router
	notifier Notifier

	mu       sync.Mutex
	clients  map[*Client]struct{}
	maxConns int

	// roomLocks serializes append+publish per room so every subscriber
	// observes that room's events in the persisted order.
	roomLocksMu sync.Mutex
	roomLocks   map[int64]*sync.Mutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(svc *chat.Service, router *broadcast.Router, maxConns int, notifier Notifier) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		svc:        svc,
		router:     router,
		notifier:   notifier,
		clients:    make(map[*Client]struct{}),
		maxConns:   maxConns,
		roomLocks:  make(map[int64]*sync.Mutex),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		allClients = append(allClients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if len(h.clients) >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.router.Register(c)
	logger.Infof("ws connected user=%s", c.userID)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()

	// Detach from the router before the implicit leaves so the closing
	// connection never receives its own departure events.
	h.router.Deregister(c)
	c.Close()

	// A dropped transport leaves every room the connection had joined.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, roomID := range c.joinedRooms() {
		h.leaveRoom(ctx, c, roomID)
	}
	logger.Infof("ws disconnected user=%s", c.userID)
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// roomLock returns the mutex guarding append+publish for one room.
func (h *Hub) roomLock(roomID int64) *sync.Mutex {
	h.roomLocksMu.Lock()
	defer h.roomLocksMu.Unlock()
	l, ok := h.roomLocks[roomID]
	if !ok {
		l = &sync.Mutex{}
		h.roomLocks[roomID] = l
	}
	return l
}

// HandleFrame dispatches incoming WebSocket frames.
func (h *Hub) HandleFrame(ctx context.Context, c *Client, frame IncomingFrame) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	switch frame.Type {
	case FrameJoin:
		h.handleJoin(ctx, c, frame)
	case FrameSend:
		h.handleSend(ctx, c, frame)
	case FrameLeave:
		h.handleLeave(ctx, c, frame)
	default:
		h.sendError(c, frame.RoomID, "unknown frame type")
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, frame IncomingFrame) {
	defer logger.DeferLogDuration("ws.handleJoin", time.Now())()
	if frame.RoomID <= 0 {
		h.sendError(c, frame.RoomID, "room_id required")
		return
	}
	if !c.trackJoin(frame.RoomID) {
		h.sendError(c, frame.RoomID, "already joined")
		return
	}

	if _, err := h.svc.JoinRoom(ctx, frame.RoomID); err != nil {
		c.trackLeave(frame.RoomID)
		h.sendError(c, frame.RoomID, joinErrorText(err))
		return
	}

	// Subscribe before announcing so the joiner sees its own JOIN event.
	h.router.Subscribe(frame.RoomID, c)
	h.announce(ctx, c, frame.RoomID, model.MessageTypeJoin, "joined the room")

	if ev, err := encodeEvent(OutgoingEvent{Type: EventJoined, RoomID: frame.RoomID}); err == nil {
		c.Enqueue(ev)
	}
}

func (h *Hub) handleSend(ctx context.Context, c *Client, frame IncomingFrame) {
	defer logger.DeferLogDuration("ws.handleSend", time.Now())()
	if frame.RoomID <= 0 || frame.Content == "" {
		h.sendError(c, frame.RoomID, "room_id and content required")
		return
	}
	if !c.isJoined(frame.RoomID) {
		h.sendError(c, frame.RoomID, "not joined")
		return
	}

	lock := h.roomLock(frame.RoomID)
	lock.Lock()
	msg, err := h.svc.AppendMessage(ctx, frame.RoomID, c.userID, frame.Content, model.MessageTypeChat)
	if err != nil {
		lock.Unlock()
		h.sendError(c, frame.RoomID, sendErrorText(err))
		return
	}
	h.publishMessage(frame.RoomID, msg)
	lock.Unlock()

	h.notifyRoomCreator(ctx, c, frame.RoomID, msg)
}

func (h *Hub) handleLeave(ctx context.Context, c *Client, frame IncomingFrame) {
	if frame.RoomID <= 0 {
		h.sendError(c, frame.RoomID, "room_id required")
		return
	}
	if !h.leaveRoom(ctx, c, frame.RoomID) {
		h.sendError(c, frame.RoomID, "not joined")
		return
	}
	if ev, err := encodeEvent(OutgoingEvent{Type: EventLeft, RoomID: frame.RoomID}); err == nil {
		c.Enqueue(ev)
	}
}

// leaveRoom performs the shared explicit/implicit leave flow. Reports false
// when the connection had not joined the room.
func (h *Hub) leaveRoom(ctx context.Context, c *Client, roomID int64) bool {
	if !c.trackLeave(roomID) {
		return false
	}
	// Announce before unsubscribing so remaining members see the departure;
	// the leaver itself is excluded by unsubscribing first.
	h.router.Unsubscribe(roomID, c)
	h.announce(ctx, c, roomID, model.MessageTypeLeave, "left the room")

	if _, err := h.svc.LeaveRoom(ctx, roomID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Errorf("ws leave room %d user=%s: %v", roomID, c.userID, err)
	}
	return true
}

// announce persists and publishes a JOIN/LEAVE system entry. Failures are
// logged, not surfaced: presence traffic must not break the connection.
func (h *Hub) announce(ctx context.Context, c *Client, roomID int64, msgType model.MessageType, action string) {
	content := action
	if pub, err := h.svc.LookupUser(ctx, c.userID); err == nil {
		content = pub.Nickname + " " + action
	}

	lock := h.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := h.svc.AppendMessage(ctx, roomID, c.userID, content, msgType)
	if err != nil {
		logger.Errorf("ws announce %s room=%d user=%s: %v", msgType, roomID, c.userID, err)
		return
	}
	h.publishMessage(roomID, msg)
}

func (h *Hub) publishMessage(roomID int64, msg *model.Message) {
	ev, err := encodeEvent(OutgoingEvent{Type: EventMessage, RoomID: roomID, Message: msg})
	if err != nil {
		logger.Errorf("ws encode event room=%d: %v", roomID, err)
		return
	}
	h.router.Publish(roomID, ev)
}

// notifyRoomCreator pushes room activity to the room owner, fire-and-forget.
func (h *Hub) notifyRoomCreator(ctx context.Context, c *Client, roomID int64, msg *model.Message) {
	if h.notifier == nil {
		return
	}
	room, err := h.svc.GetRoom(ctx, roomID)
	if err != nil || room.CreatorID == c.userID {
		return
	}
	body := msg.Content
	if len(body) > 120 {
		body = body[:117] + "..."
	}
	data := map[string]string{
		"room_id":    fmt.Sprintf("%d", roomID),
		"message_id": fmt.Sprintf("%d", msg.ID),
	}
	go h.notifier.Notify(context.Background(), room.CreatorID, msg.SenderNickname, body, data)
}

func (h *Hub) sendError(c *Client, roomID int64, text string) {
	ev, err := encodeEvent(OutgoingEvent{Type: EventError, RoomID: roomID, Error: text})
	if err != nil {
		logger.Errorf("ws encode error event: %v", err)
		return
	}
	if !c.Enqueue(ev) {
		c.Close()
	}
}

func joinErrorText(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "room not found"
	case errors.Is(err, storage.ErrRoomFull):
		return "room is full"
	default:
		return "internal error"
	}
}

func sendErrorText(err error) string {
	var ve *chat.ValidationError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "room not found"
	case errors.As(err, &ve):
		return ve.Error()
	default:
		return "internal error"
	}
}
