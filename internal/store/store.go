// Package store provides storage backends for the Kairos interview service.
//
// It includes an in-memory store for tests and single-instance deployments,
// plus SQLite and PostgreSQL backends for persistent storage. Sessions and
// payments are the two persisted aggregates.
package store

import (
	"strings"

	"github.com/jvvv94/kairos-ai/internal/models"
)

// Store defines the persistence interface shared by all backends.
//
// Lookup methods return (nil, nil) when the record does not exist; callers
// translate that into the not-found error of their layer.
type Store interface {
	// CreateSession inserts a new session record.
	CreateSession(s models.Session) error

	// GetSession retrieves a session by ID, or nil if unknown.
	GetSession(id string) (*models.Session, error)

	// SaveSession updates an existing session (thread ref, QA, status, summary).
	SaveSession(s models.Session) error

	// AppendTurn appends a question/answer pair to the session's QA sequence.
	// Fails with models.ErrTurnLimitExceeded if the append would push the turn
	// count past maxTurns, and models.ErrSessionNotFound for unknown sessions.
	AppendTurn(id string, qa models.QAPair, maxTurns int) error

	// ClaimSessionJob atomically marks the session as having an in-flight job.
	// Fails with models.ErrDuplicateSubmission if a job is already in flight.
	ClaimSessionJob(id, jobRef string) error

	// ReleaseSessionJob clears the in-flight job marker for the session.
	ReleaseSessionJob(id string) error

	// ListSessions returns all sessions (used by the expiry reaper).
	ListSessions() ([]models.Session, error)

	// SavePayment inserts or updates a payment record by order ID.
	SavePayment(p models.Payment) error

	// GetPayment retrieves a payment by order ID, or nil if unknown.
	GetPayment(orderID string) (*models.Payment, error)

	// HasApprovedPayment reports whether the user has any approved payment.
	HasApprovedPayment(userID string) (bool, error)

	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the data source name: a file path for SQLite, a connection
	// string for PostgreSQL.
	DSN string
}

// Option configures store backends.
type Option func(*Opts)

// WithDSN sets the data source name for the store backend.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// come as URLs or key=value connection strings; anything else is treated as a
// SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
