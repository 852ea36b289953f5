// Package api provides HTTP handlers for the auth, payment, and resume
// endpoints.
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/jvvv94/kairos-ai/internal/models"
	"github.com/jvvv94/kairos-ai/internal/resume"
)

// refreshCookieName is the HTTP-only cookie carrying the OAuth refresh token.
const refreshCookieName = "refresh_token"

// refreshCookieMaxAge matches Kakao's refresh token lifetime of two months.
const refreshCookieMaxAge = 60 * 24 * 60 * 60

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	sameSite := http.SameSiteLaxMode
	if s.opts.CookieSecure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   refreshCookieMaxAge,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: sameSite,
	})
}

// kakaoLoginHandler exchanges a Kakao authorization code for tokens. The
// refresh token goes into an HTTP-only cookie; the access token and user
// identity go into the response body.
func (s *Server) kakaoLoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.kakaoLoginHandler: processing login request")

	var req models.KakaoLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.kakaoLoginHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.kakaoLoginHandler: validation failed", "error", err)
		writeErrorResponse(w, err)
		return
	}

	result, refreshToken, err := s.auth.Login(r.Context(), req.Code)
	if err != nil {
		slog.Warn("Server.kakaoLoginHandler: login failed", "error", err)
		writeErrorResponse(w, err)
		return
	}

	s.setRefreshCookie(w, refreshToken)
	slog.Info("Server.kakaoLoginHandler: login succeeded", "userID", result.User.ID)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// refreshHandler trades the refresh-token cookie for a fresh access token.
func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.refreshHandler: processing refresh request")

	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		slog.Warn("Server.refreshHandler: refresh cookie missing")
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("No refresh token"))
		return
	}

	result, refreshToken, err := s.auth.Refresh(r.Context(), cookie.Value)
	if err != nil {
		slog.Warn("Server.refreshHandler: refresh failed", "error", err)
		writeErrorResponse(w, err)
		return
	}

	s.setRefreshCookie(w, refreshToken)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// paymentReadyHandler initiates a KakaoPay payment.
func (s *Server) paymentReadyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.paymentReadyHandler: processing ready request")

	var req models.PaymentReadyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.paymentReadyHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	result, err := s.payments.Ready(r.Context(), req)
	if err != nil {
		slog.Warn("Server.paymentReadyHandler: ready failed", "error", err, "userID", req.UserID)
		writeErrorResponse(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// paymentApproveHandler finalizes a KakaoPay payment.
func (s *Server) paymentApproveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.paymentApproveHandler: processing approve request")

	var req models.PaymentApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.paymentApproveHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	p, err := s.payments.Approve(r.Context(), req)
	if err != nil {
		slog.Warn("Server.paymentApproveHandler: approve failed", "error", err, "orderID", req.PartnerOrderID)
		writeErrorResponse(w, err)
		return
	}
	slog.Info("Server.paymentApproveHandler: payment approved", "orderID", p.OrderID)
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

// paymentStatusHandler reports whether the user has paid.
func (s *Server) paymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	slog.Debug("Server.paymentStatusHandler: processing status request", "userID", userID)

	paid, err := s.payments.HasPaid(userID)
	if err != nil {
		slog.Warn("Server.paymentStatusHandler: status lookup failed", "error", err, "userID", userID)
		writeErrorResponse(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]bool{"paid": paid}))
}

// resumeUploadHandler extracts the text of an uploaded PDF resume.
func (s *Server) resumeUploadHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.resumeUploadHandler: processing upload")

	r.Body = http.MaxBytesReader(w, r.Body, resume.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		slog.Warn("Server.resumeUploadHandler: missing file field", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("A PDF file is required in the 'file' field"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error("Server.resumeUploadHandler: failed to read upload", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read uploaded file"))
		return
	}

	text, err := resume.ExtractText(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		slog.Warn("Server.resumeUploadHandler: extraction failed", "error", err, "filename", header.Filename)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Could not extract text from the PDF"))
		return
	}

	slog.Info("Server.resumeUploadHandler: resume extracted", "filename", header.Filename, "chars", len(text))
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"content": text}))
}

// resumeSummaryHandler condenses extracted resume text for interview context.
func (s *Server) resumeSummaryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.resumeSummaryHandler: processing summary request")

	var req models.ResumeSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.resumeSummaryHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeErrorResponse(w, err)
		return
	}

	summary, err := s.resumes.Summarize(r.Context(), req.Content)
	if err != nil {
		slog.Warn("Server.resumeSummaryHandler: summarization failed", "error", err)
		writeErrorResponse(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"summary": summary}))
}
