// Package api provides HTTP handlers and the main API server logic for the
// Kairos interview service.
//
// It exposes the interview turn endpoint, session snapshots, Kakao auth,
// KakaoPay payments, resume handling, and interview feedback. Handlers map
// the error taxonomy from internal/models onto HTTP status codes and never
// forward raw provider error bodies.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jvvv94/kairos-ai/internal/models"
	"github.com/jvvv94/kairos-ai/internal/payment"
)

// interviewService is the slice of the interview orchestrator the server uses.
type interviewService interface {
	SubmitTurn(ctx context.Context, req models.TurnRequest) (*models.TurnResponse, error)
	GetSession(id string) (*models.SessionSnapshot, error)
}

// authService is the slice of the Kakao auth service the server uses.
type authService interface {
	Login(ctx context.Context, code string) (*models.AuthResult, string, error)
	Refresh(ctx context.Context, refreshToken string) (*models.AuthResult, string, error)
}

// paymentService is the slice of the KakaoPay service the server uses.
type paymentService interface {
	Ready(ctx context.Context, req models.PaymentReadyRequest) (*payment.ReadyResult, error)
	Approve(ctx context.Context, req models.PaymentApproveRequest) (*models.Payment, error)
	HasPaid(userID string) (bool, error)
}

// resumeService is the slice of the resume service the server uses.
type resumeService interface {
	Summarize(ctx context.Context, content string) (string, error)
}

// feedbackService is the slice of the feedback evaluator the server uses.
type feedbackService interface {
	Evaluate(ctx context.Context, req models.FeedbackRequest) (*models.Feedback, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	AllowedOrigins []string
	CookieSecure   bool
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAllowedOrigins sets the origins accepted by the CORS middleware.
func WithAllowedOrigins(origins []string) Option {
	return func(o *Opts) { o.AllowedOrigins = origins }
}

// WithSecureCookies marks auth cookies as Secure; enable behind TLS.
func WithSecureCookies(secure bool) Option {
	return func(o *Opts) { o.CookieSecure = secure }
}

// Server wires the service modules to HTTP routes.
type Server struct {
	interview interviewService
	auth      authService
	payments  paymentService
	resumes   resumeService
	feedback  feedbackService
	opts      Opts
}

// NewServer creates an API server over the given services.
func NewServer(interview interviewService, auth authService, payments paymentService,
	resumes resumeService, feedback feedbackService, opts ...Option) *Server {
	cfg := Opts{Addr: ":8080"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		interview: interview,
		auth:      auth,
		payments:  payments,
		resumes:   resumes,
		feedback:  feedback,
		opts:      cfg,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Post("/turn", s.turnHandler)
	r.Get("/session/{id}", s.sessionHandler)
	r.Post("/auth/kakao", s.kakaoLoginHandler)
	r.Post("/auth/refresh", s.refreshHandler)
	r.Post("/payment/ready", s.paymentReadyHandler)
	r.Post("/payment/approve", s.paymentApproveHandler)
	r.Get("/payment/status", s.paymentStatusHandler)
	r.Post("/resume", s.resumeUploadHandler)
	r.Post("/resume/summary", s.resumeSummaryHandler)
	r.Post("/feedback", s.feedbackHandler)
	r.Get("/health", s.healthHandler)

	return r
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// corsMiddleware answers preflight requests and tags responses for the
// configured origins. With no configured origins every origin is allowed.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(s.opts.AllowedOrigins))
	for _, o := range s.opts.AllowedOrigins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (len(allowed) == 0 || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}
