package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/portfolio/internal/broadcast"
	"github.com/portfolio/internal/chat"
	"github.com/portfolio/internal/model"
	"github.com/portfolio/internal/storage/memory"
)

func newTestStack(t *testing.T) (*Hub, *chat.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := chat.NewService(store, store, store)
	hub := NewHub(svc, broadcast.NewRouter(), 100, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, svc, store
}

func seedUser(t *testing.T, store *memory.Store, id, nickname string) {
	t.Helper()
	err := store.CreateUser(context.Background(), &model.User{
		ID:        id,
		Email:     id + "@example.com",
		Nickname:  nickname,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

// serveWS upgrades /ws?uid=<user> connections into hub clients.
func serveWS(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		client := NewClient(hub, conn, r.URL.Query().Get("uid"))
		client.Start(ctx, cancel)
		hub.Register(client)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?uid=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame IncomingFrame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func readEvent(t *testing.T, conn *websocket.Conn) OutgoingEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev OutgoingEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestJoinSendLeaveFlow(t *testing.T) {
	req := require.New(t)
	hub, svc, store := newTestStack(t)
	seedUser(t, store, "alice", "alice")
	seedUser(t, store, "bob", "bob")
	srv := serveWS(t, hub)

	room, err := svc.CreateRoom(context.Background(), chat.CreateRoomRequest{Name: "general"}, "alice")
	req.NoError(err)

	alice := dial(t, srv, "alice")
	sendFrame(t, alice, IncomingFrame{Type: FrameJoin, RoomID: room.ID})

	// The joiner sees its own JOIN announcement, then the ack.
	ev := readEvent(t, alice)
	req.Equal(EventMessage, ev.Type)
	req.Equal(model.MessageTypeJoin, ev.Message.Type)
	req.Equal("alice joined the room", ev.Message.Content)
	req.Equal(EventJoined, readEvent(t, alice).Type)

	bob := dial(t, srv, "bob")
	sendFrame(t, bob, IncomingFrame{Type: FrameJoin, RoomID: room.ID})
	req.Equal(EventMessage, readEvent(t, bob).Type)
	req.Equal(EventJoined, readEvent(t, bob).Type)

	// Alice sees bob arrive.
	ev = readEvent(t, alice)
	req.Equal(model.MessageTypeJoin, ev.Message.Type)
	req.Equal("bob joined the room", ev.Message.Content)

	// A chat message reaches every subscriber, bound to the sender.
	sendFrame(t, alice, IncomingFrame{Type: FrameSend, RoomID: room.ID, Content: "hello"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		ev = readEvent(t, conn)
		req.Equal(EventMessage, ev.Type)
		req.Equal(model.MessageTypeChat, ev.Message.Type)
		req.Equal("hello", ev.Message.Content)
		req.Equal("alice", ev.Message.SenderID)
		req.Equal("alice", ev.Message.SenderNickname)
	}

	// Bob leaves: he gets the ack, alice gets the announcement.
	sendFrame(t, bob, IncomingFrame{Type: FrameLeave, RoomID: room.ID})
	req.Equal(EventLeft, readEvent(t, bob).Type)
	ev = readEvent(t, alice)
	req.Equal(model.MessageTypeLeave, ev.Message.Type)
	req.Equal("bob left the room", ev.Message.Content)

	// History holds the whole exchange in order.
	msgs, err := svc.RecentMessages(context.Background(), room.ID, 50)
	req.NoError(err)
	req.Len(msgs, 4)
	req.Equal(model.MessageTypeJoin, msgs[0].Type)
	req.Equal(model.MessageTypeChat, msgs[2].Type)
	req.Equal(model.MessageTypeLeave, msgs[3].Type)
}

func TestSendWithoutJoin(t *testing.T) {
	req := require.New(t)
	hub, svc, store := newTestStack(t)
	seedUser(t, store, "alice", "alice")
	srv := serveWS(t, hub)

	room, err := svc.CreateRoom(context.Background(), chat.CreateRoomRequest{Name: "general"}, "alice")
	req.NoError(err)

	alice := dial(t, srv, "alice")
	sendFrame(t, alice, IncomingFrame{Type: FrameSend, RoomID: room.ID, Content: "hello"})

	ev := readEvent(t, alice)
	req.Equal(EventError, ev.Type)
	req.Equal("not joined", ev.Error)
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	req := require.New(t)
	hub, svc, store := newTestStack(t)
	seedUser(t, store, "alice", "alice")
	srv := serveWS(t, hub)

	room, err := svc.CreateRoom(context.Background(), chat.CreateRoomRequest{Name: "general"}, "alice")
	req.NoError(err)

	alice := dial(t, srv, "alice")
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte("not json")))

	ev := readEvent(t, alice)
	req.Equal(EventError, ev.Type)
	req.Equal("malformed frame", ev.Error)

	// The connection survives and the next frame works.
	sendFrame(t, alice, IncomingFrame{Type: FrameJoin, RoomID: room.ID})
	req.Equal(EventMessage, readEvent(t, alice).Type)
	req.Equal(EventJoined, readEvent(t, alice).Type)
}

func TestJoinFullRoom(t *testing.T) {
	req := require.New(t)
	hub, svc, store := newTestStack(t)
	seedUser(t, store, "alice", "alice")
	seedUser(t, store, "bob", "bob")
	srv := serveWS(t, hub)

	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, chat.CreateRoomRequest{Name: "tiny", MaxParticipants: 2}, "alice")
	req.NoError(err)
	_, err = svc.JoinRoom(ctx, room.ID)
	req.NoError(err)

	bob := dial(t, srv, "bob")
	sendFrame(t, bob, IncomingFrame{Type: FrameJoin, RoomID: room.ID})

	ev := readEvent(t, bob)
	req.Equal(EventError, ev.Type)
	req.Equal("room is full", ev.Error)
}

func TestJoinUnknownRoom(t *testing.T) {
	req := require.New(t)
	hub, _, store := newTestStack(t)
	seedUser(t, store, "alice", "alice")
	srv := serveWS(t, hub)

	alice := dial(t, srv, "alice")
	sendFrame(t, alice, IncomingFrame{Type: FrameJoin, RoomID: 404})

	ev := readEvent(t, alice)
	req.Equal(EventError, ev.Type)
	req.Equal("room not found", ev.Error)
}

func TestDisconnectLeavesRooms(t *testing.T) {
	req := require.New(t)
	hub, svc, store := newTestStack(t)
	seedUser(t, store, "alice", "alice")
	seedUser(t, store, "bob", "bob")
	srv := serveWS(t, hub)

	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, chat.CreateRoomRequest{Name: "general"}, "alice")
	req.NoError(err)

	alice := dial(t, srv, "alice")
	sendFrame(t, alice, IncomingFrame{Type: FrameJoin, RoomID: room.ID})
	readEvent(t, alice) // JOIN announcement
	readEvent(t, alice) // joined ack

	bob := dial(t, srv, "bob")
	sendFrame(t, bob, IncomingFrame{Type: FrameJoin, RoomID: room.ID})
	readEvent(t, bob)
	readEvent(t, bob)
	readEvent(t, alice) // bob's JOIN announcement

	// Dropping the transport counts as leaving.
	bob.Close()

	ev := readEvent(t, alice)
	req.Equal(EventMessage, ev.Type)
	req.Equal(model.MessageTypeLeave, ev.Message.Type)
	req.Equal("bob left the room", ev.Message.Content)

	got, err := svc.GetRoom(ctx, room.ID)
	req.NoError(err)
	req.Equal(2, got.CurrentParticipants) // creator + alice
}

func TestClientMembershipTracking(t *testing.T) {
	req := require.New(t)
	c := &Client{rooms: make(map[int64]struct{})}

	req.False(c.isJoined(1))
	req.True(c.trackJoin(1))
	req.False(c.trackJoin(1))
	req.True(c.isJoined(1))

	req.True(c.trackLeave(1))
	req.False(c.trackLeave(1))
	req.False(c.isJoined(1))
	req.Empty(c.joinedRooms())
}
