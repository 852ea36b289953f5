// Package payment integrates KakaoPay's ready/approve flow and records
// payment state in the store.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jvvv94/kairos-ai/internal/models"
	"github.com/jvvv94/kairos-ai/internal/store"
)

// Gateway defaults.
const (
	DefaultBaseURL  = "https://kapi.kakao.com"
	DefaultCID      = "TC0ONETIME" // KakaoPay's shared test merchant code
	DefaultItemName = "Kairos AI mock interview"

	requestTimeout = 10 * time.Second
)

// Errors returned by the payment service.
var (
	ErrGatewayRejected = errors.New("payment gateway rejected the request")
	ErrPaymentNotFound = errors.New("payment not found")
)

// Opts holds configuration options for the payment service.
type Opts struct {
	AdminKey    string
	CID         string
	BaseURL     string
	ItemName    string
	ApprovalURL string
	CancelURL   string
	FailURL     string
}

// Option configures the payment service.
type Option func(*Opts)

// WithAdminKey sets the KakaoAK admin key.
func WithAdminKey(key string) Option {
	return func(o *Opts) { o.AdminKey = key }
}

// WithCID sets the merchant code.
func WithCID(cid string) Option {
	return func(o *Opts) { o.CID = cid }
}

// WithBaseURL overrides the gateway base URL; used by tests.
func WithBaseURL(base string) Option {
	return func(o *Opts) { o.BaseURL = base }
}

// WithRedirectURLs sets the approval, cancel, and fail redirect targets.
func WithRedirectURLs(approval, cancel, fail string) Option {
	return func(o *Opts) {
		o.ApprovalURL = approval
		o.CancelURL = cancel
		o.FailURL = fail
	}
}

// Service drives the KakaoPay ready/approve flow.
type Service struct {
	store      store.Store
	httpClient *http.Client
	cfg        Opts
}

// NewService creates a payment service over the given store.
func NewService(st store.Store, opts ...Option) (*Service, error) {
	cfg := Opts{
		CID:      DefaultCID,
		BaseURL:  DefaultBaseURL,
		ItemName: DefaultItemName,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AdminKey == "" {
		return nil, fmt.Errorf("KakaoPay admin key not set")
	}
	return &Service{
		store:      st,
		httpClient: &http.Client{Timeout: requestTimeout},
		cfg:        cfg,
	}, nil
}

// ReadyResult is the payload returned by POST /payment/ready.
type ReadyResult struct {
	TID               string `json:"tid"`
	OrderID           string `json:"partner_order_id"`
	RedirectPCURL     string `json:"next_redirect_pc_url"`
	RedirectMobileURL string `json:"next_redirect_mobile_url"`
}

// readyResponse is the slice of the gateway's ready response the service reads.
type readyResponse struct {
	TID               string `json:"tid"`
	NextRedirectPCURL string `json:"next_redirect_pc_url"`
	NextRedirectMoURL string `json:"next_redirect_mobile_url"`
}

// Ready initiates a payment with the gateway and records it as ready.
func (s *Service) Ready(ctx context.Context, req models.PaymentReadyRequest) (*ReadyResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	orderID := "order_" + uuid.NewString()
	form := url.Values{
		"cid":              {s.cfg.CID},
		"partner_order_id": {orderID},
		"partner_user_id":  {req.UserID},
		"item_name":        {s.cfg.ItemName},
		"quantity":         {"1"},
		"total_amount":     {strconv.Itoa(req.Amount)},
		"tax_free_amount":  {"0"},
		"approval_url":     {s.cfg.ApprovalURL},
		"cancel_url":       {s.cfg.CancelURL},
		"fail_url":         {s.cfg.FailURL},
	}

	var ready readyResponse
	if err := s.post(ctx, "/v1/payment/ready", form, &ready); err != nil {
		slog.Error("Payment.Ready: gateway call failed", "error", err, "orderID", orderID)
		return nil, err
	}

	p := models.Payment{
		OrderID:   orderID,
		UserID:    req.UserID,
		TID:       ready.TID,
		Amount:    req.Amount,
		Status:    models.PaymentStatusReady,
		CreatedAt: time.Now(),
	}
	if err := s.store.SavePayment(p); err != nil {
		return nil, err
	}
	slog.Info("Payment.Ready succeeded", "orderID", orderID, "tid", ready.TID, "amount", req.Amount)

	return &ReadyResult{
		TID:               ready.TID,
		OrderID:           orderID,
		RedirectPCURL:     ready.NextRedirectPCURL,
		RedirectMobileURL: ready.NextRedirectMoURL,
	}, nil
}

// Approve finalizes a payment after the user confirmed it with the gateway.
func (s *Service) Approve(ctx context.Context, req models.PaymentApproveRequest) (*models.Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.store.GetPayment(req.PartnerOrderID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("order %s: %w", req.PartnerOrderID, ErrPaymentNotFound)
	}

	form := url.Values{
		"cid":              {s.cfg.CID},
		"tid":              {req.TID},
		"partner_order_id": {req.PartnerOrderID},
		"partner_user_id":  {req.PartnerUserID},
		"pg_token":         {req.PgToken},
	}

	var approved struct {
		AID string `json:"aid"`
		TID string `json:"tid"`
	}
	if err := s.post(ctx, "/v1/payment/approve", form, &approved); err != nil {
		slog.Error("Payment.Approve: gateway call failed", "error", err, "orderID", req.PartnerOrderID)
		p.Status = models.PaymentStatusFailed
		if saveErr := s.store.SavePayment(*p); saveErr != nil {
			slog.Error("Payment.Approve: failed to record failure", "error", saveErr, "orderID", p.OrderID)
		}
		return nil, err
	}

	now := time.Now()
	p.Status = models.PaymentStatusApproved
	p.TID = approved.TID
	p.ApprovedAt = &now
	if err := s.store.SavePayment(*p); err != nil {
		return nil, err
	}
	slog.Info("Payment.Approve succeeded", "orderID", p.OrderID, "tid", p.TID)
	return p, nil
}

// HasPaid reports whether the user has an approved payment on record.
func (s *Service) HasPaid(userID string) (bool, error) {
	if userID == "" {
		return false, models.ErrMissingUserID
	}
	return s.store.HasApprovedPayment(userID)
}

// post issues a form-encoded gateway request with the KakaoAK header and
// decodes the JSON response. Non-2xx responses map to ErrGatewayRejected; the
// raw body is logged, never returned.
func (s *Service) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "KakaoAK "+s.cfg.AdminKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		slog.Warn("Payment gateway error response", "path", path, "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("status %d on %s: %w", resp.StatusCode, path, ErrGatewayRejected)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed gateway response: %w", err)
	}
	return nil
}
