// Package store provides storage backends for the Kairos interview service.
//
// This file implements the in-memory store used for tests and
// single-instance deployments without persistence requirements.
package store

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jvvv94/kairos-ai/internal/models"
)

// InMemoryStore is a thread-safe in-memory store for sessions and payments.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	payments map[string]models.Payment
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.Session),
		payments: make(map[string]models.Payment),
	}
}

// CreateSession inserts a new session record.
func (s *InMemoryStore) CreateSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	s.sessions[sess.ID] = sess
	slog.Debug("InMemoryStore.CreateSession succeeded", "sessionID", sess.ID)
	return nil
}

// GetSession retrieves a session by ID, or nil if unknown.
func (s *InMemoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	// Copy the QA slice so callers cannot mutate stored state.
	cp := sess
	cp.QA = append([]models.QAPair(nil), sess.QA...)
	return &cp, nil
}

// SaveSession updates an existing session.
func (s *InMemoryStore) SaveSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return models.ErrSessionNotFound
	}
	s.sessions[sess.ID] = sess
	slog.Debug("InMemoryStore.SaveSession succeeded", "sessionID", sess.ID, "status", sess.Status)
	return nil
}

// AppendTurn appends a question/answer pair, enforcing the turn-count bound.
func (s *InMemoryStore) AppendTurn(id string, qa models.QAPair, maxTurns int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	if len(sess.QA)+1 > maxTurns {
		return models.ErrTurnLimitExceeded
	}
	sess.QA = append(sess.QA, qa)
	s.sessions[id] = sess
	slog.Debug("InMemoryStore.AppendTurn succeeded", "sessionID", id, "turnCount", len(sess.QA))
	return nil
}

// ClaimSessionJob atomically marks the session as having an in-flight job.
func (s *InMemoryStore) ClaimSessionJob(id, jobRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	if sess.ActiveJob != "" {
		slog.Warn("InMemoryStore.ClaimSessionJob rejected", "sessionID", id, "activeJob", sess.ActiveJob)
		return models.ErrDuplicateSubmission
	}
	sess.ActiveJob = jobRef
	s.sessions[id] = sess
	return nil
}

// ReleaseSessionJob clears the in-flight job marker.
func (s *InMemoryStore) ReleaseSessionJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	sess.ActiveJob = ""
	s.sessions[id] = sess
	return nil
}

// ListSessions returns all sessions.
func (s *InMemoryStore) ListSessions() ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// SavePayment inserts or updates a payment record by order ID.
func (s *InMemoryStore) SavePayment(p models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.OrderID] = p
	slog.Debug("InMemoryStore.SavePayment succeeded", "orderID", p.OrderID, "status", p.Status)
	return nil
}

// GetPayment retrieves a payment by order ID, or nil if unknown.
func (s *InMemoryStore) GetPayment(orderID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[orderID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// HasApprovedPayment reports whether the user has any approved payment.
func (s *InMemoryStore) HasApprovedPayment(userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.UserID == userID && p.Status == models.PaymentStatusApproved {
			return true, nil
		}
	}
	return false, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
