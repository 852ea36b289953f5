// Package api provides HTTP handlers for the interview endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jvvv94/kairos-ai/internal/models"
)

// turnHandler drives one interview turn: bootstrap a session or submit an
// answer. The assistant job runs within the request; the handler blocks until
// the job reaches a terminal status or the poll bound is exhausted.
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.turnHandler: processing turn request", "method", r.Method, "path", r.URL.Path)

	var req models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.turnHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	resp, err := s.interview.SubmitTurn(r.Context(), req)
	if err != nil {
		slog.Warn("Server.turnHandler: turn rejected", "error", err, "sessionID", req.SessionID)
		writeErrorResponse(w, err)
		return
	}

	slog.Info("Server.turnHandler: turn processed", "sessionID", resp.SessionID, "turnCount", resp.TurnCount,
		"isLastQuestion", resp.IsLastQuestion, "isComplete", resp.IsComplete)
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// sessionHandler returns a read-only snapshot of a session.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	slog.Debug("Server.sessionHandler: processing snapshot request", "sessionID", id)

	snap, err := s.interview.GetSession(id)
	if err != nil {
		slog.Warn("Server.sessionHandler: lookup failed", "error", err, "sessionID", id)
		writeErrorResponse(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(snap))
}

// feedbackHandler scores a finished interview's answers.
func (s *Server) feedbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.feedbackHandler: processing feedback request")

	var req models.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.feedbackHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	fb, err := s.feedback.Evaluate(r.Context(), req)
	if err != nil {
		slog.Warn("Server.feedbackHandler: evaluation failed", "error", err, "sessionID", req.SessionID)
		writeErrorResponse(w, err)
		return
	}
	slog.Info("Server.feedbackHandler: feedback generated", "sessionID", req.SessionID, "overallScore", fb.OverallScore)
	writeJSONResponse(w, http.StatusOK, models.Success(fb))
}
