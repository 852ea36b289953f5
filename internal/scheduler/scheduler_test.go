package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/jvvv94/kairos-ai/internal/models"
	"github.com/jvvv94/kairos-ai/internal/store"
)

func seed(t *testing.T, st store.Store, id string, status models.SessionStatus, updatedAt time.Time) {
	t.Helper()
	sess := models.Session{
		ID:        id,
		Context:   models.InterviewContext{Company: "Acme", JobTitle: "Engineer"},
		QA:        []models.QAPair{},
		Status:    status,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	if err := st.CreateSession(sess); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
}

func TestSweep(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	seed(t, st, "sess_idle", models.SessionStatusInProgress, now.Add(-2*time.Hour))
	seed(t, st, "sess_fresh", models.SessionStatusInProgress, now.Add(-time.Minute))
	seed(t, st, "sess_done", models.SessionStatusCompleted, now.Add(-3*time.Hour))

	r := NewReaper(st, WithSessionTTL(time.Hour))
	if got := r.Sweep(); got != 1 {
		t.Errorf("expected 1 expired session, got %d", got)
	}

	idle, _ := st.GetSession("sess_idle")
	if idle.Status != models.SessionStatusExpired {
		t.Errorf("idle session not expired: %s", idle.Status)
	}
	fresh, _ := st.GetSession("sess_fresh")
	if fresh.Status != models.SessionStatusInProgress {
		t.Errorf("fresh session should be untouched: %s", fresh.Status)
	}
	done, _ := st.GetSession("sess_done")
	if done.Status != models.SessionStatusCompleted {
		t.Errorf("terminal session should be untouched: %s", done.Status)
	}
}

func TestSweep_Idempotent(t *testing.T) {
	st := store.NewInMemoryStore()
	seed(t, st, "sess_idle", models.SessionStatusInProgress, time.Now().Add(-2*time.Hour))

	r := NewReaper(st, WithSessionTTL(time.Hour))
	if got := r.Sweep(); got != 1 {
		t.Fatalf("expected 1 expired session, got %d", got)
	}
	if got := r.Sweep(); got != 0 {
		t.Errorf("second sweep should expire nothing, got %d", got)
	}
}

func TestStart_SweepsImmediatelyAndStops(t *testing.T) {
	st := store.NewInMemoryStore()
	seed(t, st, "sess_idle", models.SessionStatusInProgress, time.Now().Add(-2*time.Hour))

	r := NewReaper(st, WithSessionTTL(time.Hour), WithSweepInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	// The initial sweep runs before the first tick.
	deadline := time.After(2 * time.Second)
	for {
		sess, _ := st.GetSession("sess_idle")
		if sess.Status == models.SessionStatusExpired {
			break
		}
		select {
		case <-deadline:
			t.Fatal("initial sweep did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop on context cancellation")
	}
}
