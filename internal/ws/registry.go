package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"dispatch/internal/observability"
	"dispatch/internal/service"
)

// ErrNoSession is returned when the recipient has no connected session.
var ErrNoSession = errors.New("no websocket session")

// session wraps a connection with a write lock, since gorilla connections
// allow only one concurrent writer.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Registry holds live websocket sessions keyed by user ID and delivers
// engine notifications to them. It implements service.Sink.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewRegistry creates a new Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session)}
}

// Ensure Registry implements service.Sink.
var _ service.Sink = (*Registry)(nil)

// Add registers a connection for the given user, replacing any previous one.
func (r *Registry) Add(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	prev := r.sessions[userID]
	r.sessions[userID] = &session{conn: conn}
	r.mu.Unlock()

	if prev != nil {
		_ = prev.conn.Close()
	} else {
		observability.WSSessions.Inc()
	}
}

// Remove drops the session for the given user if it owns the connection.
func (r *Registry) Remove(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok && s.conn == conn {
		delete(r.sessions, userID)
		observability.WSSessions.Dec()
	}
}

// Deliver sends a notification to the recipient's session, if connected.
func (r *Registry) Deliver(ctx context.Context, n service.Notification) error {
	r.mu.RLock()
	s, ok := r.sessions[n.RecipientID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(n)
}
