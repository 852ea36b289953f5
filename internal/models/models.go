// Package models defines the core data structures for the Kairos interview service.
//
// It includes the interview session model, the API request/response types, and
// the error taxonomy shared across modules.
package models

import (
	"errors"
	"time"
)

// SessionStatus represents the lifecycle state of an interview session.
type SessionStatus string

const (
	// SessionStatusCreated indicates the session exists but no question was requested yet.
	SessionStatusCreated SessionStatus = "created"
	// SessionStatusAwaitingFirstQuestion indicates the first-question job is in flight.
	SessionStatusAwaitingFirstQuestion SessionStatus = "awaiting_first_question"
	// SessionStatusInProgress indicates the interview is underway.
	SessionStatusInProgress SessionStatus = "in_progress"
	// SessionStatusAwaitingSummary indicates the final summary job is in flight.
	SessionStatusAwaitingSummary SessionStatus = "awaiting_summary"
	// SessionStatusCompleted indicates the interview finished; no further answers are accepted.
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusFailed indicates an unrecoverable session failure.
	SessionStatusFailed SessionStatus = "failed"
	// SessionStatusExpired indicates the session idled past its TTL and was reaped.
	SessionStatusExpired SessionStatus = "expired"
)

// IsValidSessionStatus checks if the given session status is supported.
func IsValidSessionStatus(s SessionStatus) bool {
	switch s {
	case SessionStatusCreated, SessionStatusAwaitingFirstQuestion, SessionStatusInProgress,
		SessionStatusAwaitingSummary, SessionStatusCompleted, SessionStatusFailed, SessionStatusExpired:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further turns.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed || s == SessionStatusExpired
}

// Validation constants for interview configuration and input validation.
const (
	// DefaultMaxTurns is the number of question/answer exchanges per interview.
	DefaultMaxTurns = 10
	// MaxAnswerLength defines the maximum allowed length for a submitted answer.
	MaxAnswerLength = 8192
	// MaxResumeContentLength defines the maximum resume text carried in interview context.
	MaxResumeContentLength = 16384
)

// Error variables for the interview error taxonomy. Handlers map these to
// HTTP status codes; orchestrator and store code return them wrapped.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrDuplicateSubmission = errors.New("a previous answer is still being processed")
	ErrTurnLimitExceeded   = errors.New("turn limit exceeded")
	ErrInvalidTurnCount    = errors.New("invalid turn count")
	ErrSessionCompleted    = errors.New("session already completed")
	ErrMissingAnswer       = errors.New("answer is required to continue an interview")
	ErrMissingContext      = errors.New("company and job context are required")
	ErrAnswerTooLong       = errors.New("answer exceeds maximum length")
	ErrJobFailed           = errors.New("assistant job failed")
	ErrJobExpired          = errors.New("assistant job expired")
	ErrJobCancelled        = errors.New("assistant job cancelled")
	ErrPollTimeout         = errors.New("assistant job did not finish in time")
	ErrEmptyJobOutput      = errors.New("assistant job produced no output")
)

// QAPair is one question/answer exchange within a session.
type QAPair struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	IsFollowUp bool   `json:"is_follow_up,omitempty"`
}

// InterviewContext carries the company/job/resume background for a session.
// The assistant receives it verbatim; the service does not interpret it.
type InterviewContext struct {
	Company        string `json:"company"`
	JobTitle       string `json:"job_title"`
	JobDescription string `json:"job_description,omitempty"`
	Requirements   string `json:"requirements,omitempty"`
	Preferences    string `json:"preferences,omitempty"`
	ResumeSummary  string `json:"resume_summary,omitempty"`
}

// Validate checks that the required context fields are present.
func (c *InterviewContext) Validate() error {
	if c.Company == "" || c.JobTitle == "" {
		return ErrMissingContext
	}
	if len(c.ResumeSummary) > MaxResumeContentLength {
		c.ResumeSummary = c.ResumeSummary[:MaxResumeContentLength]
	}
	return nil
}

// Session is one end-to-end interview attempt.
type Session struct {
	ID        string           `json:"id"`
	ThreadRef string           `json:"thread_ref,omitempty"` // external assistant thread; assigned once
	Context   InterviewContext `json:"context"`
	QA        []QAPair         `json:"qa"`
	Status    SessionStatus    `json:"status"`
	Summary   string           `json:"summary,omitempty"`
	ActiveJob string           `json:"active_job,omitempty"` // non-terminal run ID, if any
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// TurnCount is the number of questions asked so far, derived from the QA sequence.
func (s *Session) TurnCount() int {
	return len(s.QA)
}

// TurnRequest is the payload for POST /turn. A request with neither session ID
// nor answer bootstraps a new session; otherwise both are required.
type TurnRequest struct {
	SessionID string            `json:"sessionId,omitempty"`
	Answer    string            `json:"answer,omitempty"`
	Context   *InterviewContext `json:"context,omitempty"`
}

// IsBootstrap reports whether this request starts a new interview.
func (r *TurnRequest) IsBootstrap() bool {
	return r.SessionID == "" && r.Answer == ""
}

// Validate performs structural validation on a TurnRequest.
func (r *TurnRequest) Validate() error {
	if r.IsBootstrap() {
		if r.Context == nil {
			return ErrMissingContext
		}
		return r.Context.Validate()
	}
	if r.SessionID == "" {
		return ErrSessionNotFound
	}
	if r.Answer == "" {
		return ErrMissingAnswer
	}
	if len(r.Answer) > MaxAnswerLength {
		return ErrAnswerTooLong
	}
	return nil
}

// TurnResponse is the payload returned by POST /turn.
type TurnResponse struct {
	SessionID      string `json:"sessionId"`
	Question       string `json:"question,omitempty"`
	Summary        string `json:"summary,omitempty"`
	TurnCount      int    `json:"turnCount"`
	IsLastQuestion bool   `json:"isLastQuestion,omitempty"`
	IsComplete     bool   `json:"isComplete,omitempty"`
}

// SessionSnapshot is the read-only view returned by GET /session/{id}.
type SessionSnapshot struct {
	SessionID string        `json:"sessionId"`
	Status    SessionStatus `json:"status"`
	TurnCount int           `json:"turnCount"`
	QA        []QAPair      `json:"qa"`
	Summary   string        `json:"summary,omitempty"`
}

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	// PaymentStatusReady indicates the payment was initiated with the gateway.
	PaymentStatusReady PaymentStatus = "ready"
	// PaymentStatusApproved indicates the gateway approved the payment.
	PaymentStatusApproved PaymentStatus = "approved"
	// PaymentStatusFailed indicates the gateway rejected the payment.
	PaymentStatusFailed PaymentStatus = "failed"
)

// Payment is one payment attempt against the gateway.
type Payment struct {
	OrderID    string        `json:"order_id"`
	UserID     string        `json:"user_id"`
	TID        string        `json:"tid"` // gateway transaction ID
	Amount     int           `json:"amount"`
	Status     PaymentStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	ApprovedAt *time.Time    `json:"approved_at,omitempty"`
}
