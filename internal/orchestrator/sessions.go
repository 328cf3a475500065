// File: internal/orchestrator/sessions.go

// Package orchestrator carries a multi-turn booking conversation across stateless
// portal runs. No live browser page survives between turns; what survives is a
// keyed session holding the portal-confirmed context, replayed verbatim on a
// fresh tab when the caller picks a slot.
package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snabbsalud/agendabot/internal/booking"
)

// Session is one in-flight booking conversation. Everything needed to replay the
// confirmed stages lives here; the availability options are kept so the chat
// layer can re-present them without another portal run.
type Session struct {
	ID             string
	CallerKey      string
	DocumentType   string
	DocumentNumber string
	Resumable      booking.ResumableContext
	Options        booking.AvailabilityOptions
	// Replaces holds the id of the appointment this booking supersedes. Set on
	// reschedule conversations; empty on fresh bookings.
	Replaces  string
	CreatedAt time.Time
	touchedAt time.Time
}

// SessionStore is an in-memory TTL store. Sessions are small and portal state
// is worthless after expiry, so eviction is a sweep, not an LRU.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	log      *zap.Logger

	done chan struct{}
	once sync.Once
}

// NewSessionStore builds the store and starts its sweeper.
func NewSessionStore(ttl, sweepInterval time.Duration, logger *zap.Logger) *SessionStore {
	s := &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		log:      logger.Named("sessions"),
		done:     make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

// Put stores a new session and returns its generated id.
func (s *SessionStore) Put(sess *Session) string {
	sess.ID = uuid.NewString()
	now := time.Now()
	sess.CreatedAt = now
	sess.touchedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess.ID
}

// Get returns the session and refreshes its TTL. A session past its TTL is
// treated as absent even if the sweeper has not collected it yet.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if time.Since(sess.touchedAt) > s.ttl {
		delete(s.sessions, id)
		return nil, false
	}
	sess.touchedAt = time.Now()
	return sess, true
}

// SetReplaces marks the session as superseding an existing appointment. Reports
// whether the session was still live.
func (s *SessionStore) SetReplaces(id, appointmentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.Replaces = appointmentID
	return true
}

// Delete removes a finished session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len reports live sessions, expired ones included until swept.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops the sweeper. Idempotent.
func (s *SessionStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *SessionStore) sweep(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *SessionStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		if time.Since(sess.touchedAt) > s.ttl {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.log.Debug("Expired sessions evicted.", zap.Int("count", evicted))
	}
}
