package recovery

import (
	"testing"
	"time"

	"github.com/jvvv94/kairos-ai/internal/models"
	"github.com/jvvv94/kairos-ai/internal/store"
)

func seedSession(t *testing.T, st store.Store, id string, status models.SessionStatus, qa []models.QAPair) {
	t.Helper()
	now := time.Now()
	sess := models.Session{
		ID:        id,
		Context:   models.InterviewContext{Company: "Acme", JobTitle: "Engineer"},
		Status:    status,
		QA:        qa,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.CreateSession(sess); err != nil {
		t.Fatalf("failed to seed session %s: %v", id, err)
	}
}

func TestReleaseStaleClaims(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_stale", models.SessionStatusInProgress, []models.QAPair{{Question: "q1", Answer: "a1"}})
	seedSession(t, st, "sess_clean", models.SessionStatusInProgress, nil)
	if err := st.ClaimSessionJob("sess_stale", "run_orphaned"); err != nil {
		t.Fatalf("failed to claim job: %v", err)
	}

	released, err := ReleaseStaleClaims(st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released != 1 {
		t.Errorf("released = %d, want 1", released)
	}

	// The session accepts new submissions again.
	if err := st.ClaimSessionJob("sess_stale", "run_next"); err != nil {
		t.Errorf("claim after recovery failed: %v", err)
	}
}

func TestReleaseStaleClaims_NothingToDo(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_idle", models.SessionStatusInProgress, nil)

	released, err := ReleaseStaleClaims(st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released != 0 {
		t.Errorf("released = %d, want 0", released)
	}
}

func TestRecoverInterruptedSessions(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_boot", models.SessionStatusAwaitingFirstQuestion, nil)
	seedSession(t, st, "sess_live", models.SessionStatusInProgress, []models.QAPair{{Question: "q1", Answer: "a1"}})
	seedSession(t, st, "sess_done", models.SessionStatusCompleted, []models.QAPair{{Question: "q1", Answer: "a1"}})

	failed, err := RecoverInterruptedSessions(st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}

	boot, _ := st.GetSession("sess_boot")
	if boot.Status != models.SessionStatusFailed {
		t.Errorf("interrupted bootstrap status = %s, want failed", boot.Status)
	}
	live, _ := st.GetSession("sess_live")
	if live.Status != models.SessionStatusInProgress {
		t.Errorf("in-progress session touched during recovery: %s", live.Status)
	}
	done, _ := st.GetSession("sess_done")
	if done.Status != models.SessionStatusCompleted {
		t.Errorf("completed session touched during recovery: %s", done.Status)
	}
}
