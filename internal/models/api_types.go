package models

import "errors"

// Error variables for the supporting endpoint request validation.
var (
	ErrMissingAuthCode   = errors.New("authorization code is required")
	ErrMissingUserID     = errors.New("user_id is required")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrMissingPgToken    = errors.New("pg_token is required")
	ErrMissingTID        = errors.New("tid is required")
	ErrMissingOrderID    = errors.New("partner_order_id is required")
	ErrMissingThreadRef  = errors.New("session reference is required")
	ErrMissingAnswers    = errors.New("answer data is required")
	ErrMissingResumeText = errors.New("resume content is required")
)

// KakaoLoginRequest is the payload for POST /auth/kakao.
type KakaoLoginRequest struct {
	Code string `json:"code"`
}

// Validate validates a KakaoLoginRequest.
func (r *KakaoLoginRequest) Validate() error {
	if r.Code == "" {
		return ErrMissingAuthCode
	}
	return nil
}

// AuthUser is the user identity returned after a successful OAuth exchange.
type AuthUser struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname,omitempty"`
	Email    string `json:"email,omitempty"`
}

// AuthResult is the payload returned by the auth endpoints.
type AuthResult struct {
	User      *AuthUser `json:"user,omitempty"`
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expiresIn"`
}

// PaymentReadyRequest is the payload for POST /payment/ready.
type PaymentReadyRequest struct {
	Amount int    `json:"amount"`
	UserID string `json:"user_id"`
}

// Validate validates a PaymentReadyRequest.
func (r *PaymentReadyRequest) Validate() error {
	if r.UserID == "" {
		return ErrMissingUserID
	}
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// PaymentApproveRequest is the payload for POST /payment/approve.
type PaymentApproveRequest struct {
	PgToken        string `json:"pg_token"`
	TID            string `json:"tid"`
	PartnerOrderID string `json:"partner_order_id"`
	PartnerUserID  string `json:"partner_user_id"`
}

// Validate validates a PaymentApproveRequest.
func (r *PaymentApproveRequest) Validate() error {
	if r.PgToken == "" {
		return ErrMissingPgToken
	}
	if r.TID == "" {
		return ErrMissingTID
	}
	if r.PartnerOrderID == "" {
		return ErrMissingOrderID
	}
	if r.PartnerUserID == "" {
		return ErrMissingUserID
	}
	return nil
}

// ResumeSummaryRequest is the payload for POST /resume/summary.
type ResumeSummaryRequest struct {
	Content string `json:"content"`
}

// Validate validates a ResumeSummaryRequest.
func (r *ResumeSummaryRequest) Validate() error {
	if r.Content == "" {
		return ErrMissingResumeText
	}
	return nil
}

// FeedbackRequest is the payload for POST /feedback.
type FeedbackRequest struct {
	SessionID string   `json:"sessionId"`
	Answers   []QAPair `json:"answers"`
}

// Validate validates a FeedbackRequest.
func (r *FeedbackRequest) Validate() error {
	if r.SessionID == "" {
		return ErrMissingThreadRef
	}
	if len(r.Answers) == 0 {
		return ErrMissingAnswers
	}
	return nil
}

// FeedbackDetail is one category evaluation within interview feedback.
type FeedbackDetail struct {
	Category    string  `json:"category"`
	Score       float64 `json:"score"`
	Evaluation  string  `json:"evaluation"`
	Improvement string  `json:"improvement,omitempty"`
}

// Feedback is the structured evaluation of a completed interview.
type Feedback struct {
	Details      []FeedbackDetail `json:"details"`
	OverallScore float64          `json:"overallScore"`
	Summary      string           `json:"summary"`
}
