// Package api provides HTTP response utilities for the Kairos interview
// service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jvvv94/kairos-ai/internal/auth"
	"github.com/jvvv94/kairos-ai/internal/models"
	"github.com/jvvv94/kairos-ai/internal/payment"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal the response to JSON first to catch encoding errors before writing headers
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		// Use pre-marshaled fallback response - if this fails, we have bigger problems
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	// Write headers and response only after successful JSON marshaling
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, payment.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateSubmission):
		return http.StatusConflict
	case errors.Is(err, models.ErrMissingAnswer),
		errors.Is(err, models.ErrMissingContext),
		errors.Is(err, models.ErrAnswerTooLong),
		errors.Is(err, models.ErrSessionCompleted),
		errors.Is(err, models.ErrTurnLimitExceeded),
		errors.Is(err, models.ErrMissingAuthCode),
		errors.Is(err, models.ErrMissingUserID),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrMissingPgToken),
		errors.Is(err, models.ErrMissingTID),
		errors.Is(err, models.ErrMissingOrderID),
		errors.Is(err, models.ErrMissingThreadRef),
		errors.Is(err, models.ErrMissingAnswers),
		errors.Is(err, models.ErrMissingResumeText):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrExchangeFailed),
		errors.Is(err, auth.ErrRefreshFailed):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrJobFailed),
		errors.Is(err, models.ErrJobExpired),
		errors.Is(err, models.ErrJobCancelled),
		errors.Is(err, models.ErrEmptyJobOutput),
		errors.Is(err, auth.ErrUserInfoFailed),
		errors.Is(err, payment.ErrGatewayRejected):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrPollTimeout):
		return http.StatusGatewayTimeout
	default:
		// Includes ErrInvalidTurnCount: a count outside the policy domain is
		// an internal bookkeeping bug, not a client problem.
		return http.StatusInternalServerError
	}
}

// writeErrorResponse maps the error onto the envelope and status code.
// Internal errors get a generic message; taxonomy errors carry their own.
func writeErrorResponse(w http.ResponseWriter, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	writeJSONResponse(w, status, models.Error(message))
}
