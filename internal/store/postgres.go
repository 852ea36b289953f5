// Package store provides storage backends for the Kairos interview service.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/jvvv94/kairos-ai/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions and payments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// CreateSession inserts a new session record.
func (s *PostgresStore) CreateSession(sess models.Session) error {
	contextJSON, qaJSON, err := marshalSessionBlobs(sess)
	if err != nil {
		slog.Error("PostgresStore.CreateSession marshal failed", "error", err, "sessionID", sess.ID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, thread_ref, context, qa, status, summary, active_job, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.ThreadRef, contextJSON, qaJSON, string(sess.Status), sess.Summary, sess.ActiveJob, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore.CreateSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
	}
	slog.Debug("PostgresStore.CreateSession succeeded", "sessionID", sess.ID)
	return nil
}

// GetSession retrieves a session by ID, or nil if unknown.
func (s *PostgresStore) GetSession(id string) (*models.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, thread_ref, context, qa, status, summary, active_job, created_at, updated_at
		 FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return sess, nil
}

// SaveSession updates an existing session.
func (s *PostgresStore) SaveSession(sess models.Session) error {
	contextJSON, qaJSON, err := marshalSessionBlobs(sess)
	if err != nil {
		slog.Error("PostgresStore.SaveSession marshal failed", "error", err, "sessionID", sess.ID)
		return err
	}
	res, err := s.db.Exec(
		`UPDATE sessions SET thread_ref = $1, context = $2, qa = $3, status = $4, summary = $5, active_job = $6, updated_at = $7
		 WHERE id = $8`,
		sess.ThreadRef, contextJSON, qaJSON, string(sess.Status), sess.Summary, sess.ActiveJob, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		slog.Error("PostgresStore.SaveSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to update session %s: %w", sess.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrSessionNotFound
	}
	slog.Debug("PostgresStore.SaveSession succeeded", "sessionID", sess.ID, "status", sess.Status)
	return nil
}

// AppendTurn appends a question/answer pair, enforcing the turn-count bound.
// Uses SELECT ... FOR UPDATE so concurrent appends to the same session serialize.
func (s *PostgresStore) AppendTurn(id string, qa models.QAPair, maxTurns int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var qaJSON string
	err = tx.QueryRow(`SELECT qa FROM sessions WHERE id = $1 FOR UPDATE`, id).Scan(&qaJSON)
	if err == sql.ErrNoRows {
		return models.ErrSessionNotFound
	}
	if err != nil {
		slog.Error("PostgresStore.AppendTurn read failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to read session %s: %w", id, err)
	}

	var pairs []models.QAPair
	if err := json.Unmarshal([]byte(qaJSON), &pairs); err != nil {
		slog.Error("PostgresStore.AppendTurn unmarshal failed", "error", err, "sessionID", id)
		return fmt.Errorf("corrupt qa data for session %s: %w", id, err)
	}
	if len(pairs)+1 > maxTurns {
		return models.ErrTurnLimitExceeded
	}
	pairs = append(pairs, qa)

	updated, err := json.Marshal(pairs)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE sessions SET qa = $1 WHERE id = $2`, string(updated), id); err != nil {
		slog.Error("PostgresStore.AppendTurn write failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to append turn to session %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn append: %w", err)
	}
	slog.Debug("PostgresStore.AppendTurn succeeded", "sessionID", id, "turnCount", len(pairs))
	return nil
}

// ClaimSessionJob atomically marks the session as having an in-flight job.
func (s *PostgresStore) ClaimSessionJob(id, jobRef string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET active_job = $1 WHERE id = $2 AND active_job = ''`, jobRef, id)
	if err != nil {
		slog.Error("PostgresStore.ClaimSessionJob failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to claim session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		existing, getErr := s.GetSession(id)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return models.ErrSessionNotFound
		}
		slog.Warn("PostgresStore.ClaimSessionJob rejected", "sessionID", id, "activeJob", existing.ActiveJob)
		return models.ErrDuplicateSubmission
	}
	return nil
}

// ReleaseSessionJob clears the in-flight job marker.
func (s *PostgresStore) ReleaseSessionJob(id string) error {
	res, err := s.db.Exec(`UPDATE sessions SET active_job = '' WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore.ReleaseSessionJob failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to release session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// ListSessions returns all sessions.
func (s *PostgresStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, thread_ref, context, qa, status, summary, active_job, created_at, updated_at FROM sessions`)
	if err != nil {
		slog.Error("PostgresStore.ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			slog.Error("PostgresStore.ListSessions scan failed", "error", err)
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("PostgresStore.ListSessions succeeded", "count", len(sessions))
	return sessions, nil
}

// SavePayment inserts or updates a payment record by order ID.
func (s *PostgresStore) SavePayment(p models.Payment) error {
	_, err := s.db.Exec(
		`INSERT INTO payments (order_id, user_id, tid, amount, status, created_at, approved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (order_id) DO UPDATE SET tid = $3, status = $5, approved_at = $7`,
		p.OrderID, p.UserID, p.TID, p.Amount, string(p.Status), p.CreatedAt, p.ApprovedAt,
	)
	if err != nil {
		slog.Error("PostgresStore.SavePayment failed", "error", err, "orderID", p.OrderID)
		return fmt.Errorf("failed to save payment %s: %w", p.OrderID, err)
	}
	slog.Debug("PostgresStore.SavePayment succeeded", "orderID", p.OrderID, "status", p.Status)
	return nil
}

// GetPayment retrieves a payment by order ID, or nil if unknown.
func (s *PostgresStore) GetPayment(orderID string) (*models.Payment, error) {
	row := s.db.QueryRow(
		`SELECT order_id, user_id, tid, amount, status, created_at, approved_at FROM payments WHERE order_id = $1`, orderID)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetPayment failed", "error", err, "orderID", orderID)
		return nil, fmt.Errorf("failed to get payment %s: %w", orderID, err)
	}
	return p, nil
}

// HasApprovedPayment reports whether the user has any approved payment.
func (s *PostgresStore) HasApprovedPayment(userID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM payments WHERE user_id = $1 AND status = $2`,
		userID, string(models.PaymentStatusApproved)).Scan(&count)
	if err != nil {
		slog.Error("PostgresStore.HasApprovedPayment failed", "error", err, "userID", userID)
		return false, fmt.Errorf("failed to check payments for %s: %w", userID, err)
	}
	return count > 0, nil
}

// Close closes the PostgreSQL connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
