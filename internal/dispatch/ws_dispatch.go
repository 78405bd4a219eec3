package dispatch

import (
	"errors"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is pushed to a user's websocket session on lifecycle changes.
type Event struct {
	Type          string `json:"type"`
	ReservationID string `json:"reservation_id"`
	GroupID       string `json:"carpool_group_id,omitempty"`
	Message       string `json:"message,omitempty"`
}

const (
	EventMatchFound       = "match_found"
	EventPartnerCanceled  = "partner_canceled"
	EventBackToSearching  = "back_to_searching"
	EventConflictCanceled = "conflict_canceled"
	EventPaymentFailed    = "payment_failed"
	EventDataIntegrity    = "reservation_invalidated"
)

// Notifier is the outbound notification surface used by the lifecycle
// manager. Delivery is best-effort; polling clients see the same state via
// the matches endpoint.
type Notifier interface {
	Notify(userID string, ev Event) error
}

// WSSession represents one connected user session.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// WSRegistry holds user sessions keyed by user id.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

func (r *WSRegistry) Notify(userID string, ev Event) error {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.send(ev); err != nil {
		log.Printf("ws send error: %v", err)
		return err
	}
	return nil
}

var ErrNoSession = errors.New("no ws session")
