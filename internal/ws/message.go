package ws

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/portfolio/internal/broadcast"
	"github.com/portfolio/internal/model"
)

// Incoming frame types.
const (
	FrameJoin  = "join"
	FrameSend  = "send"
	FrameLeave = "leave"
)

// Outgoing event types.
const (
	EventMessage = "message"
	EventJoined  = "joined"
	EventLeft    = "left"
	EventError   = "error"
)

// IncomingFrame is a client-to-server frame. Content is only meaningful for
// "send" frames.
type IncomingFrame struct {
	Type    string `json:"type"`
	RoomID  int64  `json:"room_id"`
	Content string `json:"content,omitempty"`
}

// OutgoingEvent is a server-to-client frame.
type OutgoingEvent struct {
	Type    string         `json:"type"`
	RoomID  int64          `json:"room_id,omitempty"`
	Message *model.Message `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	SentAt  time.Time      `json:"sent_at"`
}

// bufPool pools bytes.Buffer for JSON encoding on the broadcast hot path.
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// encodeEvent serializes an event once so all subscribers share the bytes.
func encodeEvent(ev OutgoingEvent) (broadcast.Event, error) {
	if ev.SentAt.IsZero() {
		ev.SentAt = time.Now().UTC()
	}
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(ev); err != nil {
		return nil, err
	}
	data := buf.Bytes()
	// json.Encoder appends '\n'; trim it for WebSocket text frames.
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	out := make(broadcast.Event, len(data))
	copy(out, data)
	return out, nil
}
