package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jvvv94/kairos-ai/internal/models"
	"github.com/jvvv94/kairos-ai/internal/store"
)

// mockJobClient is a scripted job client: FetchLatestOutput pops from the
// outputs queue and returns ErrEmptyJobOutput once the queue is drained.
type mockJobClient struct {
	outputs   []string
	createErr error
	postErr   error
	submitErr error
	pollErr   error
	hasActive bool
	activeErr error
	submitted []string
	posted    []string
	threads   int
	onSubmit  func(payload string)
}

func (m *mockJobClient) CreateThread(ctx context.Context) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.threads++
	return "thread_1", nil
}

func (m *mockJobClient) PostMessage(ctx context.Context, threadRef, payload string) error {
	if m.postErr != nil {
		return m.postErr
	}
	m.posted = append(m.posted, payload)
	return nil
}

func (m *mockJobClient) SubmitJob(ctx context.Context, threadRef, payload string) (string, error) {
	if m.submitErr != nil {
		return "", m.submitErr
	}
	m.submitted = append(m.submitted, payload)
	if m.onSubmit != nil {
		m.onSubmit(payload)
	}
	return fmt.Sprintf("run_%d", len(m.submitted)), nil
}

func (m *mockJobClient) PollUntilTerminal(ctx context.Context, threadRef, jobID string) error {
	return m.pollErr
}

func (m *mockJobClient) FetchLatestOutput(ctx context.Context, threadRef string) (string, error) {
	if len(m.outputs) == 0 {
		return "", models.ErrEmptyJobOutput
	}
	out := m.outputs[0]
	m.outputs = m.outputs[1:]
	return out, nil
}

func (m *mockJobClient) HasActiveJob(ctx context.Context, threadRef string) (bool, error) {
	return m.hasActive, m.activeErr
}

func seedSession(t *testing.T, st store.Store, id string, turns int, status models.SessionStatus) {
	t.Helper()
	qa := make([]models.QAPair, 0, turns)
	for i := 0; i < turns; i++ {
		qa = append(qa, models.QAPair{Question: fmt.Sprintf("Q%d", i+1), Answer: fmt.Sprintf("A%d", i+1)})
	}
	now := time.Now()
	sess := models.Session{
		ID:        id,
		ThreadRef: "thread_1",
		Context:   models.InterviewContext{Company: "Acme", JobTitle: "Engineer"},
		QA:        qa,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.CreateSession(sess); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
}

func bootstrapRequest() models.TurnRequest {
	return models.TurnRequest{
		Context: &models.InterviewContext{Company: "Acme", JobTitle: "Engineer", JobDescription: "Build things"},
	}
}

func TestSubmitTurn_Bootstrap(t *testing.T) {
	st := store.NewInMemoryStore()
	jobs := &mockJobClient{outputs: []string{"Tell me about yourself."}}
	iv := NewInterview(st, jobs)

	resp, err := iv.SubmitTurn(context.Background(), bootstrapRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("expected a session ID")
	}
	if resp.Question != "Tell me about yourself." {
		t.Errorf("unexpected question: %s", resp.Question)
	}
	// The first call emits question number 1.
	if resp.TurnCount != 1 || resp.IsLastQuestion || resp.IsComplete {
		t.Errorf("unexpected response flags: %+v", resp)
	}
	if jobs.threads != 1 {
		t.Errorf("expected 1 thread created, got %d", jobs.threads)
	}
	if !strings.Contains(jobs.submitted[0], "Acme") {
		t.Errorf("bootstrap payload missing context: %s", jobs.submitted[0])
	}

	sess, _ := st.GetSession(resp.SessionID)
	if sess == nil || sess.Status != models.SessionStatusInProgress {
		t.Errorf("session not persisted as in progress: %+v", sess)
	}
	if sess.ActiveJob != "" {
		t.Errorf("claim not released after bootstrap: %s", sess.ActiveJob)
	}
}

func TestSubmitTurn_BootstrapRequiresContext(t *testing.T) {
	iv := NewInterview(store.NewInMemoryStore(), &mockJobClient{})
	_, err := iv.SubmitTurn(context.Background(), models.TurnRequest{})
	if !errors.Is(err, models.ErrMissingContext) {
		t.Errorf("expected ErrMissingContext, got %v", err)
	}
}

func TestSubmitTurn_BootstrapJobFailureMarksSessionFailed(t *testing.T) {
	st := store.NewInMemoryStore()
	jobs := &mockJobClient{pollErr: fmt.Errorf("run run_1: %w", models.ErrJobFailed)}
	iv := NewInterview(st, jobs)

	_, err := iv.SubmitTurn(context.Background(), bootstrapRequest())
	if !errors.Is(err, models.ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}

	sessions, _ := st.ListSessions()
	if len(sessions) != 1 || sessions[0].Status != models.SessionStatusFailed {
		t.Errorf("expected one failed session, got %+v", sessions)
	}
}

func TestSubmitTurn_NextQuestion(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_1", 2, models.SessionStatusInProgress)
	jobs := &mockJobClient{outputs: []string{"Q3", "Q4"}}
	iv := NewInterview(st, jobs)

	resp, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "my answer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Question != "Q4" || resp.TurnCount != 4 || resp.IsLastQuestion || resp.IsComplete {
		t.Errorf("unexpected response: %+v", resp)
	}

	sess, _ := st.GetSession("sess_1")
	if sess.TurnCount() != 3 {
		t.Fatalf("expected 3 recorded turns, got %d", sess.TurnCount())
	}
	last := sess.QA[2]
	if last.Question != "Q3" || last.Answer != "my answer" {
		t.Errorf("recorded pair mismatch: %+v", last)
	}
	if sess.ActiveJob != "" {
		t.Errorf("claim not released: %s", sess.ActiveJob)
	}
}

func TestSubmitTurn_LastQuestionFlag(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_1", 8, models.SessionStatusInProgress)
	jobs := &mockJobClient{outputs: []string{"Q9", "Q10"}}
	iv := NewInterview(st, jobs, WithMaxTurns(10))

	resp, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "answer 9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsLastQuestion {
		t.Error("expected isLastQuestion for question number 10")
	}
	if resp.TurnCount != 10 {
		t.Errorf("unexpected turn count: %d", resp.TurnCount)
	}
}

func TestSubmitTurn_Completion(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_1", 2, models.SessionStatusInProgress)
	jobs := &mockJobClient{outputs: []string{"Q3", "You presented well overall."}}
	iv := NewInterview(st, jobs, WithMaxTurns(3))

	resp, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "final answer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsComplete || resp.Summary != "You presented well overall." || resp.TurnCount != 3 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Question != "" {
		t.Errorf("completion response should carry no question: %s", resp.Question)
	}

	// The final answer rides on the summary run: it is posted as a plain
	// message and only one run is started for it.
	if len(jobs.posted) != 1 || jobs.posted[0] != "final answer" {
		t.Errorf("final answer not posted as message: %v", jobs.posted)
	}
	if len(jobs.submitted) != 1 || !strings.Contains(jobs.submitted[0], "Summarize the interview") {
		t.Errorf("expected a single summary run, got %v", jobs.submitted)
	}

	sess, _ := st.GetSession("sess_1")
	if sess.Status != models.SessionStatusCompleted {
		t.Errorf("expected completed status, got %s", sess.Status)
	}
	if sess.Summary != "You presented well overall." {
		t.Errorf("summary not persisted: %s", sess.Summary)
	}
	if sess.TurnCount() != 3 {
		t.Errorf("final answer not recorded: %d turns", sess.TurnCount())
	}

	// Completed sessions accept no further answers.
	_, err = iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "one more"})
	if !errors.Is(err, models.ErrSessionCompleted) {
		t.Errorf("expected ErrSessionCompleted, got %v", err)
	}
}

func TestSubmitTurn_ClaimHeldThroughSummary(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_1", 2, models.SessionStatusInProgress)
	jobs := &mockJobClient{outputs: []string{"Q3", "Summary."}}
	// While the summary run is in flight the session must still reject a
	// second submission, even though the session row was saved in between.
	jobs.onSubmit = func(payload string) {
		if !strings.Contains(payload, "Summarize the interview") {
			return
		}
		if err := st.ClaimSessionJob("sess_1", "job_intruder"); !errors.Is(err, models.ErrDuplicateSubmission) {
			t.Errorf("claim was released mid-summary: %v", err)
		}
	}
	iv := NewInterview(st, jobs, WithMaxTurns(3))

	resp, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "final answer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsComplete {
		t.Errorf("expected completion: %+v", resp)
	}

	sess, _ := st.GetSession("sess_1")
	if sess.ActiveJob != "" {
		t.Errorf("claim not released after completion: %s", sess.ActiveJob)
	}
}

func TestSubmitTurn_DuplicateDuringSummary(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_1", 3, models.SessionStatusAwaitingSummary)
	if err := st.ClaimSessionJob("sess_1", "job_in_flight"); err != nil {
		t.Fatalf("failed to claim: %v", err)
	}
	iv := NewInterview(st, &mockJobClient{}, WithMaxTurns(3))

	// A submission racing the summary job reports a duplicate, not a
	// turn-limit violation.
	_, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "again"})
	if !errors.Is(err, models.ErrDuplicateSubmission) {
		t.Errorf("expected ErrDuplicateSubmission, got %v", err)
	}
}

func TestSubmitTurn_UnknownSession(t *testing.T) {
	iv := NewInterview(store.NewInMemoryStore(), &mockJobClient{})
	_, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_missing", Answer: "hello"})
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSubmitTurn_ExpiredSessionBehavesAsNotFound(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_old", 3, models.SessionStatusExpired)
	iv := NewInterview(st, &mockJobClient{})

	_, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_old", Answer: "hello"})
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSubmitTurn_DuplicateSubmission(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_1", 2, models.SessionStatusInProgress)
	if err := st.ClaimSessionJob("sess_1", "run_in_flight"); err != nil {
		t.Fatalf("failed to claim: %v", err)
	}
	iv := NewInterview(st, &mockJobClient{outputs: []string{"Q3", "Q4"}})

	_, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "second"})
	if !errors.Is(err, models.ErrDuplicateSubmission) {
		t.Errorf("expected ErrDuplicateSubmission, got %v", err)
	}

	sess, _ := st.GetSession("sess_1")
	if sess.TurnCount() != 2 {
		t.Errorf("duplicate submission changed turn count: %d", sess.TurnCount())
	}
}

func TestSubmitTurn_DuplicateDetectedOnThread(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_1", 2, models.SessionStatusInProgress)
	jobs := &mockJobClient{hasActive: true, outputs: []string{"Q3", "Q4"}}
	iv := NewInterview(st, jobs)

	_, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "answer"})
	if !errors.Is(err, models.ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}

	// The local claim must be released so the retry can proceed.
	jobs.hasActive = false
	if _, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "answer"}); err != nil {
		t.Errorf("retry after thread-side duplicate failed: %v", err)
	}
}

func TestSubmitTurn_FailedJobLeavesSessionRetryable(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_1", 2, models.SessionStatusInProgress)
	jobs := &mockJobClient{
		outputs: []string{"Q3", "Q3", "Q4"},
		pollErr: fmt.Errorf("run run_1: %w", models.ErrJobFailed),
	}
	iv := NewInterview(st, jobs)

	_, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "answer"})
	if !errors.Is(err, models.ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
	sess, _ := st.GetSession("sess_1")
	if sess.TurnCount() != 2 {
		t.Errorf("failed job changed turn count: %d", sess.TurnCount())
	}

	jobs.pollErr = nil
	resp, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "answer"})
	if err != nil {
		t.Fatalf("retry after failed job errored: %v", err)
	}
	if resp.TurnCount != 4 {
		t.Errorf("unexpected turn count after retry: %d", resp.TurnCount)
	}
}

func TestSubmitTurn_PollTimeoutLeavesSessionRetryable(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_1", 2, models.SessionStatusInProgress)
	jobs := &mockJobClient{
		outputs: []string{"Q3", "Q3", "Q4"},
		pollErr: fmt.Errorf("run run_1: %w", models.ErrPollTimeout),
	}
	iv := NewInterview(st, jobs)

	_, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "answer"})
	if !errors.Is(err, models.ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
	sess, _ := st.GetSession("sess_1")
	if sess.TurnCount() != 2 || sess.ActiveJob != "" {
		t.Errorf("timeout left session dirty: turns=%d activeJob=%q", sess.TurnCount(), sess.ActiveJob)
	}

	jobs.pollErr = nil
	if _, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "answer"}); err != nil {
		t.Errorf("retry after timeout failed: %v", err)
	}
}

func TestSubmitTurn_EmptyOutputMidInterview(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_1", 2, models.SessionStatusInProgress)
	// Only the pending question is available; the answer job yields nothing.
	jobs := &mockJobClient{outputs: []string{"Q3"}}
	iv := NewInterview(st, jobs)

	_, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "answer"})
	if !errors.Is(err, models.ErrEmptyJobOutput) {
		t.Fatalf("expected ErrEmptyJobOutput, got %v", err)
	}
	sess, _ := st.GetSession("sess_1")
	if sess.TurnCount() != 2 {
		t.Errorf("empty output changed turn count: %d", sess.TurnCount())
	}
}

func TestSubmitTurn_EmptyFinalQuestionUsesFallback(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_1", 1, models.SessionStatusInProgress)
	jobs := &mockJobClient{outputs: []string{"Q2"}}
	iv := NewInterview(st, jobs, WithMaxTurns(3), WithFinalQuestionFallback("Anything to add?"))

	resp, err := iv.SubmitTurn(context.Background(), models.TurnRequest{SessionID: "sess_1", Answer: "answer 2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsLastQuestion {
		t.Error("expected isLastQuestion")
	}
	if resp.Question != "Anything to add?" {
		t.Errorf("expected fallback question, got %q", resp.Question)
	}
	sess, _ := st.GetSession("sess_1")
	if sess.TurnCount() != 2 {
		t.Errorf("answer before fallback question not recorded: %d turns", sess.TurnCount())
	}
}

func TestSubmitTurn_AnswerTooLong(t *testing.T) {
	iv := NewInterview(store.NewInMemoryStore(), &mockJobClient{})
	req := models.TurnRequest{SessionID: "sess_1", Answer: strings.Repeat("a", models.MaxAnswerLength+1)}
	_, err := iv.SubmitTurn(context.Background(), req)
	if !errors.Is(err, models.ErrAnswerTooLong) {
		t.Errorf("expected ErrAnswerTooLong, got %v", err)
	}
}

func TestGetSession(t *testing.T) {
	st := store.NewInMemoryStore()
	seedSession(t, st, "sess_1", 2, models.SessionStatusInProgress)
	iv := NewInterview(st, &mockJobClient{})

	snap, err := iv.GetSession("sess_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.SessionID != "sess_1" || snap.TurnCount != 2 || snap.Status != models.SessionStatusInProgress {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if len(snap.QA) != 2 || snap.QA[0].Question != "Q1" {
		t.Errorf("snapshot QA mismatch: %+v", snap.QA)
	}

	_, err = iv.GetSession("sess_missing")
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
