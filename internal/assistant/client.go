// Package assistant wraps the OpenAI Assistants API as an external job client.
//
// A "job" is one assistant run submitted against a session's thread. The
// client knows how to create threads, submit a message plus run, poll the run
// to a terminal status with a bounded fixed-interval loop, and fetch the
// latest assistant message with strict shape validation. Terminal
// non-completed statuses surface as typed errors from the models taxonomy.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jvvv94/kairos-ai/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/pagination"
)

// Default polling configuration, matching the provider's observed latency.
const (
	DefaultPollInterval    = time.Second
	DefaultMaxPollAttempts = 30
	// DefaultModel is the model used when creating a new assistant.
	DefaultModel = openai.ChatModelGPT4o
	// activeRunScanLimit bounds how many recent runs are inspected for the
	// duplicate-submission guard.
	activeRunScanLimit = 5
)

// assistantInstructions configures the interviewer persona when the service
// has to create its own assistant (no KAIROS_ASSISTANT_ID configured).
const assistantInstructions = `You are Kairos, a professional AI interviewer.
You evaluate candidates for job fit and expertise using their resume summary and the job description.
Ask one question at a time. Adapt follow-up questions to the candidate's answers: request concrete
examples, probe decision making, and verify claimed knowledge. Keep questions and reactions short
and clear. After the answer to the 10th question, output "Interview completed".`

// threadAPI is the minimal surface of the provider's thread service.
type threadAPI interface {
	New(ctx context.Context, body openai.BetaThreadNewParams, opts ...option.RequestOption) (*openai.Thread, error)
	Get(ctx context.Context, threadID string, opts ...option.RequestOption) (*openai.Thread, error)
}

// messageAPI is the minimal surface of the provider's thread message service.
type messageAPI interface {
	New(ctx context.Context, threadID string, body openai.BetaThreadMessageNewParams, opts ...option.RequestOption) (*openai.Message, error)
	List(ctx context.Context, threadID string, query openai.BetaThreadMessageListParams, opts ...option.RequestOption) (*pagination.CursorPage[openai.Message], error)
}

// runAPI is the minimal surface of the provider's run service.
type runAPI interface {
	New(ctx context.Context, threadID string, body openai.BetaThreadRunNewParams, opts ...option.RequestOption) (*openai.Run, error)
	Get(ctx context.Context, threadID string, runID string, opts ...option.RequestOption) (*openai.Run, error)
	List(ctx context.Context, threadID string, query openai.BetaThreadRunListParams, opts ...option.RequestOption) (*pagination.CursorPage[openai.Run], error)
}

// assistantAPI is the minimal surface of the provider's assistant service.
type assistantAPI interface {
	New(ctx context.Context, body openai.BetaAssistantNewParams, opts ...option.RequestOption) (*openai.Assistant, error)
	Get(ctx context.Context, assistantID string, opts ...option.RequestOption) (*openai.Assistant, error)
}

// Opts holds configuration options for the assistant client.
type Opts struct {
	APIKey          string
	AssistantID     string
	Model           string
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Option configures the assistant client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithAssistantID sets a pre-provisioned assistant to reuse.
func WithAssistantID(id string) Option {
	return func(o *Opts) { o.AssistantID = id }
}

// WithModel overrides the model used when creating a new assistant.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithPollInterval sets the delay between run status checks.
func WithPollInterval(d time.Duration) Option {
	return func(o *Opts) { o.PollInterval = d }
}

// WithMaxPollAttempts sets the bound on run status checks per job.
func WithMaxPollAttempts(n int) Option {
	return func(o *Opts) { o.MaxPollAttempts = n }
}

// Client drives assistant jobs against the external provider. It keeps no
// per-session state; the only cached value is the resolved assistant ID.
type Client struct {
	threads    threadAPI
	messages   messageAPI
	runs       runAPI
	assistants assistantAPI

	model           string
	pollInterval    time.Duration
	maxPollAttempts int

	mu          sync.Mutex
	assistantID string
}

// NewClient initializes a new assistant client.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = DefaultMaxPollAttempts
	}

	oc := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("assistant.NewClient: client configured", "assistantID_set", cfg.AssistantID != "", "model", cfg.Model,
		"pollInterval", cfg.PollInterval, "maxPollAttempts", cfg.MaxPollAttempts)
	return &Client{
		threads:         &oc.Beta.Threads,
		messages:        &oc.Beta.Threads.Messages,
		runs:            &oc.Beta.Threads.Runs,
		assistants:      &oc.Beta.Assistants,
		model:           cfg.Model,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
		assistantID:     cfg.AssistantID,
	}, nil
}

// ensureAssistant resolves the assistant to run jobs against. A configured ID
// is verified once and cached; otherwise a new assistant is created.
func (c *Client) ensureAssistant(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.assistantID != "" {
		if _, err := c.assistants.Get(ctx, c.assistantID); err == nil {
			return c.assistantID, nil
		} else {
			slog.Warn("assistant.ensureAssistant: configured assistant not retrievable, creating new", "assistantID", c.assistantID, "error", err)
		}
	}

	created, err := c.assistants.New(ctx, openai.BetaAssistantNewParams{
		Model:        c.model,
		Name:         openai.String("Kairos AI Interviewer"),
		Instructions: openai.String(assistantInstructions),
	})
	if err != nil {
		slog.Error("assistant.ensureAssistant: create failed", "error", err)
		return "", fmt.Errorf("failed to create assistant: %w", err)
	}
	slog.Info("assistant.ensureAssistant: created new assistant", "assistantID", created.ID, "model", c.model)
	c.assistantID = created.ID
	return created.ID, nil
}

// CreateThread creates a new provider thread for a session. Called exactly
// once per session; the returned reference is immutable thereafter.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		slog.Error("assistant.CreateThread failed", "error", err)
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	slog.Debug("assistant.CreateThread succeeded", "threadRef", thread.ID)
	return thread.ID, nil
}

// PostMessage appends a user message to the thread without starting a run.
// Used for the final interview answer, which the summary run replies to.
func (c *Client) PostMessage(ctx context.Context, threadRef, payload string) error {
	_, err := c.messages.New(ctx, threadRef, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(payload),
		},
	})
	if err != nil {
		slog.Error("assistant.PostMessage failed", "error", err, "threadRef", threadRef)
		return fmt.Errorf("failed to post message: %w", err)
	}
	slog.Debug("assistant.PostMessage succeeded", "threadRef", threadRef)
	return nil
}

// SubmitJob posts a user message to the thread and starts a run. Returns the
// run ID; the run is still in a non-terminal status when this returns.
func (c *Client) SubmitJob(ctx context.Context, threadRef, payload string) (string, error) {
	assistantID, err := c.ensureAssistant(ctx)
	if err != nil {
		return "", err
	}

	if err := c.PostMessage(ctx, threadRef, payload); err != nil {
		return "", err
	}

	run, err := c.runs.New(ctx, threadRef, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		slog.Error("assistant.SubmitJob: run create failed", "error", err, "threadRef", threadRef)
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	slog.Debug("assistant.SubmitJob succeeded", "threadRef", threadRef, "runID", run.ID, "status", run.Status)
	return run.ID, nil
}

// PollUntilTerminal polls the run at a fixed interval until it reaches a
// terminal status or the attempt bound is exhausted. The wait between
// attempts suspends on a timer and the caller's context, never a busy loop.
// Non-completed terminal statuses map to the typed job errors; attempt
// exhaustion maps to models.ErrPollTimeout.
func (c *Client) PollUntilTerminal(ctx context.Context, threadRef, runID string) error {
	for attempt := 0; attempt < c.maxPollAttempts; attempt++ {
		run, err := c.runs.Get(ctx, threadRef, runID)
		if err != nil {
			slog.Error("assistant.PollUntilTerminal: status check failed", "error", err, "threadRef", threadRef, "runID", runID, "attempt", attempt)
			return fmt.Errorf("failed to check run status: %w", err)
		}

		switch run.Status {
		case openai.RunStatusCompleted:
			slog.Debug("assistant.PollUntilTerminal: run completed", "threadRef", threadRef, "runID", runID, "attempts", attempt+1)
			return nil
		case openai.RunStatusFailed, openai.RunStatusIncomplete:
			slog.Warn("assistant.PollUntilTerminal: run failed", "threadRef", threadRef, "runID", runID, "status", run.Status)
			return fmt.Errorf("run %s: %w", run.ID, models.ErrJobFailed)
		case openai.RunStatusExpired:
			slog.Warn("assistant.PollUntilTerminal: run expired", "threadRef", threadRef, "runID", runID)
			return fmt.Errorf("run %s: %w", run.ID, models.ErrJobExpired)
		case openai.RunStatusCancelled:
			slog.Warn("assistant.PollUntilTerminal: run cancelled", "threadRef", threadRef, "runID", runID)
			return fmt.Errorf("run %s: %w", run.ID, models.ErrJobCancelled)
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	slog.Warn("assistant.PollUntilTerminal: attempts exhausted", "threadRef", threadRef, "runID", runID, "maxAttempts", c.maxPollAttempts)
	return fmt.Errorf("run %s: %w", runID, models.ErrPollTimeout)
}

// FetchLatestOutput returns the text of the newest message on the thread.
// The response shape is validated strictly; a mismatch is reported as a job
// failure rather than propagated as a raw decoding problem.
func (c *Client) FetchLatestOutput(ctx context.Context, threadRef string) (string, error) {
	page, err := c.messages.List(ctx, threadRef, openai.BetaThreadMessageListParams{
		Limit: openai.Int(1),
		Order: openai.BetaThreadMessageListParamsOrderDesc,
	})
	if err != nil {
		slog.Error("assistant.FetchLatestOutput: list failed", "error", err, "threadRef", threadRef)
		return "", fmt.Errorf("failed to list messages: %w", err)
	}
	if page == nil || len(page.Data) == 0 {
		return "", fmt.Errorf("thread %s has no messages: %w", threadRef, models.ErrEmptyJobOutput)
	}

	msg := page.Data[0]
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text.Value != "" {
			return block.Text.Value, nil
		}
	}
	slog.Error("assistant.FetchLatestOutput: unexpected message shape", "threadRef", threadRef, "messageID", msg.ID)
	return "", fmt.Errorf("message %s has no text content: %w", msg.ID, models.ErrJobFailed)
}

// HasActiveJob reports whether the thread has a run in a non-terminal status.
// Used as the duplicate-submission guard before starting a new job.
func (c *Client) HasActiveJob(ctx context.Context, threadRef string) (bool, error) {
	page, err := c.runs.List(ctx, threadRef, openai.BetaThreadRunListParams{
		Limit: openai.Int(activeRunScanLimit),
	})
	if err != nil {
		slog.Error("assistant.HasActiveJob: list failed", "error", err, "threadRef", threadRef)
		return false, fmt.Errorf("failed to list runs: %w", err)
	}
	if page == nil {
		return false, nil
	}
	for _, run := range page.Data {
		switch run.Status {
		case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusRequiresAction, openai.RunStatusCancelling:
			slog.Debug("assistant.HasActiveJob: active run found", "threadRef", threadRef, "runID", run.ID, "status", run.Status)
			return true, nil
		}
	}
	return false, nil
}
