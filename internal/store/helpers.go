package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jvvv94/kairos-ai/internal/models"
)

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// marshalSessionBlobs serializes the session's context and QA sequence for
// storage in JSON columns.
func marshalSessionBlobs(sess models.Session) (contextJSON, qaJSON string, err error) {
	ctxBytes, err := json.Marshal(sess.Context)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal session context: %w", err)
	}
	qa := sess.QA
	if qa == nil {
		qa = []models.QAPair{}
	}
	qaBytes, err := json.Marshal(qa)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal session qa: %w", err)
	}
	return string(ctxBytes), string(qaBytes), nil
}

// scanSessionFrom scans a session from a row or rows cursor.
func scanSessionFrom(sc rowScanner) (*models.Session, error) {
	var sess models.Session
	var contextJSON, qaJSON, status string
	err := sc.Scan(
		&sess.ID, &sess.ThreadRef, &contextJSON, &qaJSON, &status,
		&sess.Summary, &sess.ActiveJob, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.Status = models.SessionStatus(status)
	if err := json.Unmarshal([]byte(contextJSON), &sess.Context); err != nil {
		return nil, fmt.Errorf("corrupt context data for session %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(qaJSON), &sess.QA); err != nil {
		return nil, fmt.Errorf("corrupt qa data for session %s: %w", sess.ID, err)
	}
	return &sess, nil
}

// scanSession scans a session from a single *sql.Row.
func scanSession(row *sql.Row) (*models.Session, error) {
	return scanSessionFrom(row)
}

// scanSessionRows scans a session from *sql.Rows.
func scanSessionRows(rows *sql.Rows) (*models.Session, error) {
	return scanSessionFrom(rows)
}

// scanPayment scans a payment from a row cursor.
func scanPayment(sc rowScanner) (*models.Payment, error) {
	var p models.Payment
	var status string
	var approvedAt sql.NullTime
	err := sc.Scan(&p.OrderID, &p.UserID, &p.TID, &p.Amount, &status, &p.CreatedAt, &approvedAt)
	if err != nil {
		return nil, err
	}
	p.Status = models.PaymentStatus(status)
	if approvedAt.Valid {
		p.ApprovedAt = &approvedAt.Time
	}
	return &p, nil
}
