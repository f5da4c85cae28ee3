// Package broadcast fans events out from publishers to connection
// subscribers. Delivery is in-process, at-most-once and non-blocking: a
// subscriber whose queue is saturated is dropped instead of stalling the
// publisher.
package broadcast

import (
	"sync"

	"github.com/portfolio/internal/logger"
)

// Event is an opaque pre-encoded payload handed to subscriber queues.
type Event []byte

// Conn is a subscriber endpoint. Enqueue must never block: it reports false
// when the connection's queue is full, which the router treats as a dead
// connection.
type Conn interface {
	Enqueue(ev Event) bool
	Drop()
	UserID() string
}

type Router struct {
	mu     sync.RWMutex
	topics map[int64]map[Conn]struct{}
	users  map[string]map[Conn]struct{}
}

func NewRouter() *Router {
	return &Router{
		topics: make(map[int64]map[Conn]struct{}),
		users:  make(map[string]map[Conn]struct{}),
	}
}

// Register makes the connection addressable by its user id. A user may hold
// several connections at once.
func (r *Router) Register(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[c.UserID()]
	if !ok {
		set = make(map[Conn]struct{})
		r.users[c.UserID()] = set
	}
	set[c] = struct{}{}
}

// Deregister removes the connection from the user index and from every
// topic it was subscribed to.
func (r *Router) Deregister(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.users[c.UserID()]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.users, c.UserID())
		}
	}
	for topic, set := range r.topics {
		if _, ok := set[c]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(r.topics, topic)
			}
		}
	}
}

func (r *Router) Subscribe(topic int64, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.topics[topic]
	if !ok {
		set = make(map[Conn]struct{})
		r.topics[topic] = set
	}
	set[c] = struct{}{}
}

func (r *Router) Unsubscribe(topic int64, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.topics[topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.topics, topic)
		}
	}
}

// SubscriberCount reports how many connections are subscribed to a topic.
func (r *Router) SubscriberCount(topic int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// Publish delivers the event to every current subscriber of the topic.
// Connections that cannot accept the event are dropped asynchronously so a
// single slow reader never delays the rest.
func (r *Router) Publish(topic int64, ev Event) {
	r.mu.RLock()
	subs := make([]Conn, 0, len(r.topics[topic]))
	for c := range r.topics[topic] {
		subs = append(subs, c)
	}
	r.mu.RUnlock()

	for _, c := range subs {
		if !c.Enqueue(ev) {
			logger.Errorf("broadcast: dropping slow subscriber %s on topic %d", c.UserID(), topic)
			go c.Drop()
		}
	}
}

// SendToUser delivers the event to every registered connection of one user.
func (r *Router) SendToUser(userID string, ev Event) {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.users[userID]))
	for c := range r.users[userID] {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if !c.Enqueue(ev) {
			logger.Errorf("broadcast: dropping slow connection of user %s", userID)
			go c.Drop()
		}
	}
}
