// Package store provides storage backends for the Kairos interview service.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/jvvv94/kairos-ai/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions and payments in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// CreateSession inserts a new session record.
func (s *SQLiteStore) CreateSession(sess models.Session) error {
	contextJSON, qaJSON, err := marshalSessionBlobs(sess)
	if err != nil {
		slog.Error("SQLiteStore.CreateSession marshal failed", "error", err, "sessionID", sess.ID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, thread_ref, context, qa, status, summary, active_job, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ThreadRef, contextJSON, qaJSON, string(sess.Status), sess.Summary, sess.ActiveJob, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore.CreateSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
	}
	slog.Debug("SQLiteStore.CreateSession succeeded", "sessionID", sess.ID)
	return nil
}

// GetSession retrieves a session by ID, or nil if unknown.
func (s *SQLiteStore) GetSession(id string) (*models.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, thread_ref, context, qa, status, summary, active_job, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return sess, nil
}

// SaveSession updates an existing session.
func (s *SQLiteStore) SaveSession(sess models.Session) error {
	contextJSON, qaJSON, err := marshalSessionBlobs(sess)
	if err != nil {
		slog.Error("SQLiteStore.SaveSession marshal failed", "error", err, "sessionID", sess.ID)
		return err
	}
	res, err := s.db.Exec(
		`UPDATE sessions SET thread_ref = ?, context = ?, qa = ?, status = ?, summary = ?, active_job = ?, updated_at = ?
		 WHERE id = ?`,
		sess.ThreadRef, contextJSON, qaJSON, string(sess.Status), sess.Summary, sess.ActiveJob, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to update session %s: %w", sess.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrSessionNotFound
	}
	slog.Debug("SQLiteStore.SaveSession succeeded", "sessionID", sess.ID, "status", sess.Status)
	return nil
}

// AppendTurn appends a question/answer pair, enforcing the turn-count bound.
// The read-modify-write runs inside a transaction so concurrent appends to the
// same session cannot interleave.
func (s *SQLiteStore) AppendTurn(id string, qa models.QAPair, maxTurns int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var qaJSON string
	err = tx.QueryRow(`SELECT qa FROM sessions WHERE id = ?`, id).Scan(&qaJSON)
	if err == sql.ErrNoRows {
		return models.ErrSessionNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore.AppendTurn read failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to read session %s: %w", id, err)
	}

	var pairs []models.QAPair
	if err := json.Unmarshal([]byte(qaJSON), &pairs); err != nil {
		slog.Error("SQLiteStore.AppendTurn unmarshal failed", "error", err, "sessionID", id)
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
	if _, err := tx.Exec(`UPDATE sessions SET qa = ? WHERE id = ?`, string(updated), id); err != nil {
		slog.Error("SQLiteStore.AppendTurn write failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to append turn to session %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn append: %w", err)
	}
	slog.Debug("SQLiteStore.AppendTurn succeeded", "sessionID", id, "turnCount", len(pairs))
	return nil
}

// ClaimSessionJob atomically marks the session as having an in-flight job.
func (s *SQLiteStore) ClaimSessionJob(id, jobRef string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET active_job = ? WHERE id = ? AND active_job = ''`, jobRef, id)
	if err != nil {
		slog.Error("SQLiteStore.ClaimSessionJob failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to claim session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the session is unknown or a job is already in flight.
		existing, getErr := s.GetSession(id)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return models.ErrSessionNotFound
		}
		slog.Warn("SQLiteStore.ClaimSessionJob rejected", "sessionID", id, "activeJob", existing.ActiveJob)
		return models.ErrDuplicateSubmission
	}
	return nil
}

// ReleaseSessionJob clears the in-flight job marker.
func (s *SQLiteStore) ReleaseSessionJob(id string) error {
	res, err := s.db.Exec(`UPDATE sessions SET active_job = '' WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore.ReleaseSessionJob failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to release session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// ListSessions returns all sessions.
func (s *SQLiteStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, thread_ref, context, qa, status, summary, active_job, created_at, updated_at FROM sessions`)
	if err != nil {
		slog.Error("SQLiteStore.ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			slog.Error("SQLiteStore.ListSessions scan failed", "error", err)
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("SQLiteStore.ListSessions succeeded", "count", len(sessions))
	return sessions, nil
}

// SavePayment inserts or updates a payment record by order ID.
func (s *SQLiteStore) SavePayment(p models.Payment) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO payments (order_id, user_id, tid, amount, status, created_at, approved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.OrderID, p.UserID, p.TID, p.Amount, string(p.Status), p.CreatedAt, p.ApprovedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore.SavePayment failed", "error", err, "orderID", p.OrderID)
		return fmt.Errorf("failed to save payment %s: %w", p.OrderID, err)
	}
	slog.Debug("SQLiteStore.SavePayment succeeded", "orderID", p.OrderID, "status", p.Status)
	return nil
}

// GetPayment retrieves a payment by order ID, or nil if unknown.
func (s *SQLiteStore) GetPayment(orderID string) (*models.Payment, error) {
	row := s.db.QueryRow(
		`SELECT order_id, user_id, tid, amount, status, created_at, approved_at FROM payments WHERE order_id = ?`, orderID)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetPayment failed", "error", err, "orderID", orderID)
		return nil, fmt.Errorf("failed to get payment %s: %w", orderID, err)
	}
	return p, nil
}

// HasApprovedPayment reports whether the user has any approved payment.
func (s *SQLiteStore) HasApprovedPayment(userID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM payments WHERE user_id = ? AND status = ?`,
		userID, string(models.PaymentStatusApproved)).Scan(&count)
	if err != nil {
		slog.Error("SQLiteStore.HasApprovedPayment failed", "error", err, "userID", userID)
		return false, fmt.Errorf("failed to check payments for %s: %w", userID, err)
	}
	return count > 0, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
