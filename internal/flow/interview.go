package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jvvv94/kairos-ai/internal/models"
	"github.com/jvvv94/kairos-ai/internal/store"
	"github.com/jvvv94/kairos-ai/internal/util"
)

// JobClient drives assistant jobs for interview sessions. Implemented by
// assistant.Client; tests substitute a mock.
type JobClient interface {
	CreateThread(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, threadRef, payload string) error
	SubmitJob(ctx context.Context, threadRef, payload string) (string, error)
	PollUntilTerminal(ctx context.Context, threadRef, jobID string) error
	FetchLatestOutput(ctx context.Context, threadRef string) (string, error)
	HasActiveJob(ctx context.Context, threadRef string) (bool, error)
}

// Opts holds configuration options for the interview orchestrator.
type Opts struct {
	MaxTurns              int
	FinalQuestionFallback string
}

// Option configures the interview orchestrator.
type Option func(*Opts)

// WithMaxTurns sets the number of question/answer exchanges per interview.
func WithMaxTurns(n int) Option {
	return func(o *Opts) { o.MaxTurns = n }
}

// WithFinalQuestionFallback sets the question asked when the assistant
// returns an empty final question.
func WithFinalQuestionFallback(q string) Option {
	return func(o *Opts) { o.FinalQuestionFallback = q }
}

// Interview orchestrates interview sessions: it owns the session state
// machine and turns store state plus assistant jobs into turn responses.
type Interview struct {
	store                 store.Store
	jobs                  JobClient
	maxTurns              int
	finalQuestionFallback string
}

// NewInterview creates an interview orchestrator over the given store and
// job client.
func NewInterview(st store.Store, jobs JobClient, opts ...Option) *Interview {
	cfg := Opts{
		MaxTurns:              models.DefaultMaxTurns,
		FinalQuestionFallback: DefaultFinalQuestionFallback,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxTurns < 1 {
		cfg.MaxTurns = models.DefaultMaxTurns
	}
	if cfg.FinalQuestionFallback == "" {
		cfg.FinalQuestionFallback = DefaultFinalQuestionFallback
	}
	return &Interview{
		store:                 st,
		jobs:                  jobs,
		maxTurns:              cfg.MaxTurns,
		finalQuestionFallback: cfg.FinalQuestionFallback,
	}
}

// SubmitTurn processes one POST /turn request: either bootstraps a new
// session or submits an answer to an existing one. All assistant interaction
// happens synchronously within the call; the QA sequence is only extended
// after the answer reaches the thread, so a failed or timed-out job leaves
// the session unchanged and the call retryable. The turnCount in the
// response numbers the question being emitted, so the first call reports 1.
func (iv *Interview) SubmitTurn(ctx context.Context, req models.TurnRequest) (*models.TurnResponse, error) {
	if err := req.Validate(); err != nil {
		slog.Warn("Interview.SubmitTurn: invalid request", "error", err, "sessionID", req.SessionID)
		return nil, err
	}
	if req.IsBootstrap() {
		return iv.bootstrap(ctx, *req.Context)
	}
	return iv.continueInterview(ctx, req)
}

// bootstrap creates a session, its assistant thread, and asks the first
// question.
func (iv *Interview) bootstrap(ctx context.Context, ic models.InterviewContext) (*models.TurnResponse, error) {
	threadRef, err := iv.jobs.CreateThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("thread creation failed: %v: %w", err, models.ErrJobFailed)
	}

	now := time.Now()
	sess := models.Session{
		ID:        util.GenerateSessionID(),
		ThreadRef: threadRef,
		Context:   ic,
		QA:        []models.QAPair{},
		Status:    models.SessionStatusAwaitingFirstQuestion,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := iv.store.CreateSession(sess); err != nil {
		return nil, err
	}
	jobRef := util.GenerateRandomID("job_", 12)
	if err := iv.store.ClaimSessionJob(sess.ID, jobRef); err != nil {
		return nil, err
	}
	defer iv.releaseJob(sess.ID)
	// Mirror the claim locally so interim saves do not clear it in the store.
	sess.ActiveJob = jobRef

	slog.Info("Interview.SubmitTurn: session bootstrapped", "sessionID", sess.ID, "threadRef", threadRef, "company", ic.Company)

	question, err := iv.runJob(ctx, threadRef, bootstrapPayload(ic))
	if err != nil {
		sess.Status = models.SessionStatusFailed
		sess.UpdatedAt = time.Now()
		if saveErr := iv.store.SaveSession(sess); saveErr != nil {
			slog.Error("Interview.bootstrap: failed to mark session failed", "error", saveErr, "sessionID", sess.ID)
		}
		return nil, err
	}

	sess.Status = models.SessionStatusInProgress
	sess.UpdatedAt = time.Now()
	if err := iv.store.SaveSession(sess); err != nil {
		return nil, err
	}

	return &models.TurnResponse{
		SessionID:      sess.ID,
		Question:       question,
		TurnCount:      1,
		IsLastQuestion: iv.maxTurns == 1,
	}, nil
}

// continueInterview submits an answer to an existing session and returns
// either the next question or the closing summary.
func (iv *Interview) continueInterview(ctx context.Context, req models.TurnRequest) (*models.TurnResponse, error) {
	sess, err := iv.store.GetSession(req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Status == models.SessionStatusExpired {
		return nil, fmt.Errorf("session %s: %w", req.SessionID, models.ErrSessionNotFound)
	}
	if sess.Status == models.SessionStatusCompleted || sess.Status == models.SessionStatusFailed {
		return nil, fmt.Errorf("session %s is %s: %w", sess.ID, sess.Status, models.ErrSessionCompleted)
	}

	// The claim is taken before any further checks so that a submission
	// racing an in-flight job always reports a duplicate, never a
	// turn-limit violation.
	jobRef := util.GenerateRandomID("job_", 12)
	if err := iv.store.ClaimSessionJob(sess.ID, jobRef); err != nil {
		return nil, err
	}
	defer iv.releaseJob(sess.ID)
	sess.ActiveJob = jobRef

	// Belt and braces: the store claim guards this process, the thread's run
	// list guards against other writers on the same thread.
	active, err := iv.jobs.HasActiveJob(ctx, sess.ThreadRef)
	if err != nil {
		return nil, fmt.Errorf("active job check failed: %v: %w", err, models.ErrJobFailed)
	}
	if active {
		slog.Warn("Interview.SubmitTurn: thread has an active run", "sessionID", sess.ID, "threadRef", sess.ThreadRef)
		return nil, fmt.Errorf("session %s: %w", sess.ID, models.ErrDuplicateSubmission)
	}

	if sess.TurnCount() >= iv.maxTurns {
		return nil, fmt.Errorf("session %s: %w", sess.ID, models.ErrTurnLimitExceeded)
	}

	// The newest assistant message on the thread is the question this answer
	// responds to; the thread is the source of truth for it.
	pendingQuestion, err := iv.jobs.FetchLatestOutput(ctx, sess.ThreadRef)
	if err != nil {
		return nil, fmt.Errorf("pending question lookup failed: %v: %w", err, models.ErrJobFailed)
	}

	newCount := sess.TurnCount() + 1
	isLast := newCount == iv.maxTurns-1

	action, err := Decide(newCount, iv.maxTurns)
	if err != nil {
		return nil, err
	}

	if action == ActionRequestFinalSummary {
		// The final answer needs no reply of its own: it is posted to the
		// thread and the summary run answers the whole interview.
		if err := iv.jobs.PostMessage(ctx, sess.ThreadRef, req.Answer); err != nil {
			return nil, fmt.Errorf("final answer post failed: %v: %w", err, models.ErrJobFailed)
		}
		qa := models.QAPair{Question: pendingQuestion, Answer: req.Answer}
		if err := iv.store.AppendTurn(sess.ID, qa, iv.maxTurns); err != nil {
			return nil, err
		}
		sess.QA = append(sess.QA, qa)
		return iv.finishInterview(ctx, sess, newCount)
	}

	output, err := iv.runJob(ctx, sess.ThreadRef, req.Answer)
	if err != nil {
		// Only the final question has fallback text; an empty reply earlier
		// in the interview fails the turn before anything is recorded.
		if !isLast || !errors.Is(err, models.ErrEmptyJobOutput) {
			return nil, err
		}
		output = ""
	}

	qa := models.QAPair{Question: pendingQuestion, Answer: req.Answer}
	if err := iv.store.AppendTurn(sess.ID, qa, iv.maxTurns); err != nil {
		return nil, err
	}
	// Keep the local copy in step so later saves do not clobber the append.
	sess.QA = append(sess.QA, qa)
	slog.Debug("Interview.SubmitTurn: turn recorded", "sessionID", sess.ID, "turnCount", newCount)

	question := strings.TrimSpace(output)
	if question == "" {
		if !isLast {
			return nil, fmt.Errorf("session %s: %w", sess.ID, models.ErrEmptyJobOutput)
		}
		question = iv.finalQuestionFallback
	}

	sess.Status = models.SessionStatusInProgress
	sess.UpdatedAt = time.Now()
	if err := iv.store.SaveSession(*sess); err != nil {
		return nil, err
	}

	return &models.TurnResponse{
		SessionID:      sess.ID,
		Question:       question,
		TurnCount:      newCount + 1,
		IsLastQuestion: isLast,
	}, nil
}

// finishInterview runs the closing summary job after the final answer and
// marks the session completed. The session's claim stays held for the whole
// summary run; the caller's deferred release clears it.
func (iv *Interview) finishInterview(ctx context.Context, sess *models.Session, turnCount int) (*models.TurnResponse, error) {
	sess.Status = models.SessionStatusAwaitingSummary
	sess.UpdatedAt = time.Now()
	if err := iv.store.SaveSession(*sess); err != nil {
		return nil, err
	}

	summary, err := iv.runJob(ctx, sess.ThreadRef, summaryPayload)
	if err != nil {
		// The final answer is already recorded; without a summary the
		// session cannot be resumed, so it is marked failed.
		sess.Status = models.SessionStatusFailed
		sess.UpdatedAt = time.Now()
		if saveErr := iv.store.SaveSession(*sess); saveErr != nil {
			slog.Error("Interview.finishInterview: failed to mark session failed", "error", saveErr, "sessionID", sess.ID)
		}
		return nil, err
	}

	sess.Status = models.SessionStatusCompleted
	sess.Summary = summary
	sess.UpdatedAt = time.Now()
	if err := iv.store.SaveSession(*sess); err != nil {
		return nil, err
	}
	slog.Info("Interview.SubmitTurn: interview completed", "sessionID", sess.ID, "turnCount", turnCount)

	return &models.TurnResponse{
		SessionID:  sess.ID,
		Summary:    summary,
		TurnCount:  turnCount,
		IsComplete: true,
	}, nil
}

// runJob submits a payload to the thread, waits for the run to finish, and
// returns the assistant's reply. Poll errors come back typed from the job
// client; submission transport failures map to ErrJobFailed.
func (iv *Interview) runJob(ctx context.Context, threadRef, payload string) (string, error) {
	jobID, err := iv.jobs.SubmitJob(ctx, threadRef, payload)
	if err != nil {
		return "", fmt.Errorf("job submission failed: %v: %w", err, models.ErrJobFailed)
	}
	if err := iv.jobs.PollUntilTerminal(ctx, threadRef, jobID); err != nil {
		return "", err
	}
	return iv.jobs.FetchLatestOutput(ctx, threadRef)
}

// releaseJob clears the in-flight marker; failures are logged, not returned,
// since the turn outcome is already decided by the time it runs.
func (iv *Interview) releaseJob(sessionID string) {
	if err := iv.store.ReleaseSessionJob(sessionID); err != nil {
		slog.Error("Interview.releaseJob failed", "error", err, "sessionID", sessionID)
	}
}

// GetSession returns a read-only snapshot of the session for GET /session/{id}.
func (iv *Interview) GetSession(id string) (*models.SessionSnapshot, error) {
	sess, err := iv.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrSessionNotFound)
	}
	return &models.SessionSnapshot{
		SessionID: sess.ID,
		Status:    sess.Status,
		TurnCount: sess.TurnCount(),
		QA:        sess.QA,
		Summary:   sess.Summary,
	}, nil
}
