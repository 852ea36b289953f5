// Package recovery restores interview state after an unclean shutdown.
//
// A crash while an assistant job is in flight leaves the session's job claim
// set, which would reject every later submission as a duplicate. Recovery
// runs once at startup, before the API starts serving, and releases those
// stale claims so the affected sessions become resumable again.
package recovery

import (
	"fmt"
	"log/slog"

	"github.com/jvvv94/kairos-ai/internal/models"
	"github.com/jvvv94/kairos-ai/internal/store"
)

// ReleaseStaleClaims clears in-flight job markers left behind by a previous
// process. It returns the number of sessions recovered.
//
// Claims are only ever held for the duration of a single HTTP request, so any
// claim present at startup belongs to a process that no longer exists.
func ReleaseStaleClaims(st store.Store) (int, error) {
	sessions, err := st.ListSessions()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions for recovery: %w", err)
	}

	released := 0
	for _, sess := range sessions {
		if sess.ActiveJob == "" {
			continue
		}
		if err := st.ReleaseSessionJob(sess.ID); err != nil {
			slog.Error("Recovery.ReleaseStaleClaims: failed to release claim",
				"sessionID", sess.ID, "jobRef", sess.ActiveJob, "error", err)
			continue
		}
		slog.Info("Recovery.ReleaseStaleClaims: released stale job claim",
			"sessionID", sess.ID, "jobRef", sess.ActiveJob, "status", sess.Status)
		released++
	}

	if released > 0 {
		slog.Info("Recovery.ReleaseStaleClaims: recovery complete", "released", released)
	} else {
		slog.Debug("Recovery.ReleaseStaleClaims: no stale claims found", "sessions", len(sessions))
	}
	return released, nil
}

// RecoverInterruptedSessions marks sessions that were mid-bootstrap when the
// process died as failed. A session stuck awaiting its first question has no
// recorded turns and no answer to lose, so failing it lets the client simply
// start over rather than resubmitting into a half-built thread.
func RecoverInterruptedSessions(st store.Store) (int, error) {
	sessions, err := st.ListSessions()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions for recovery: %w", err)
	}

	failed := 0
	for _, sess := range sessions {
		if sess.Status != models.SessionStatusAwaitingFirstQuestion || len(sess.QA) > 0 {
			continue
		}
		sess.Status = models.SessionStatusFailed
		if err := st.SaveSession(sess); err != nil {
			slog.Error("Recovery.RecoverInterruptedSessions: failed to update session",
				"sessionID", sess.ID, "error", err)
			continue
		}
		slog.Info("Recovery.RecoverInterruptedSessions: failed interrupted bootstrap",
			"sessionID", sess.ID)
		failed++
	}
	return failed, nil
}
