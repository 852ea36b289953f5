package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jvvv94/kairos-ai/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/pagination"
)

type mockThreadAPI struct {
	newFn func(ctx context.Context, body openai.BetaThreadNewParams) (*openai.Thread, error)
	getFn func(ctx context.Context, threadID string) (*openai.Thread, error)
}

func (m *mockThreadAPI) New(ctx context.Context, body openai.BetaThreadNewParams, opts ...option.RequestOption) (*openai.Thread, error) {
	return m.newFn(ctx, body)
}

func (m *mockThreadAPI) Get(ctx context.Context, threadID string, opts ...option.RequestOption) (*openai.Thread, error) {
	return m.getFn(ctx, threadID)
}

type mockMessageAPI struct {
	newFn  func(ctx context.Context, threadID string, body openai.BetaThreadMessageNewParams) (*openai.Message, error)
	listFn func(ctx context.Context, threadID string, query openai.BetaThreadMessageListParams) (*pagination.CursorPage[openai.Message], error)
}

func (m *mockMessageAPI) New(ctx context.Context, threadID string, body openai.BetaThreadMessageNewParams, opts ...option.RequestOption) (*openai.Message, error) {
	return m.newFn(ctx, threadID, body)
}

func (m *mockMessageAPI) List(ctx context.Context, threadID string, query openai.BetaThreadMessageListParams, opts ...option.RequestOption) (*pagination.CursorPage[openai.Message], error) {
	return m.listFn(ctx, threadID, query)
}

type mockRunAPI struct {
	newFn  func(ctx context.Context, threadID string, body openai.BetaThreadRunNewParams) (*openai.Run, error)
	getFn  func(ctx context.Context, threadID, runID string) (*openai.Run, error)
	listFn func(ctx context.Context, threadID string, query openai.BetaThreadRunListParams) (*pagination.CursorPage[openai.Run], error)
}

func (m *mockRunAPI) New(ctx context.Context, threadID string, body openai.BetaThreadRunNewParams, opts ...option.RequestOption) (*openai.Run, error) {
	return m.newFn(ctx, threadID, body)
}

func (m *mockRunAPI) Get(ctx context.Context, threadID, runID string, opts ...option.RequestOption) (*openai.Run, error) {
	return m.getFn(ctx, threadID, runID)
}

func (m *mockRunAPI) List(ctx context.Context, threadID string, query openai.BetaThreadRunListParams, opts ...option.RequestOption) (*pagination.CursorPage[openai.Run], error) {
	return m.listFn(ctx, threadID, query)
}

type mockAssistantAPI struct {
	newFn func(ctx context.Context, body openai.BetaAssistantNewParams) (*openai.Assistant, error)
	getFn func(ctx context.Context, assistantID string) (*openai.Assistant, error)
}

func (m *mockAssistantAPI) New(ctx context.Context, body openai.BetaAssistantNewParams, opts ...option.RequestOption) (*openai.Assistant, error) {
	return m.newFn(ctx, body)
}

func (m *mockAssistantAPI) Get(ctx context.Context, assistantID string, opts ...option.RequestOption) (*openai.Assistant, error) {
	return m.getFn(ctx, assistantID)
}

func newTestClient() *Client {
	return &Client{
		model:           DefaultModel,
		pollInterval:    time.Millisecond,
		maxPollAttempts: 3,
		assistantID:     "asst_test",
		assistants: &mockAssistantAPI{
			getFn: func(ctx context.Context, assistantID string) (*openai.Assistant, error) {
				return &openai.Assistant{ID: assistantID}, nil
			},
		},
	}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("expected error when API key is not set")
	}
	if _, err := NewClient(WithAPIKey("sk-test")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSubmitJob(t *testing.T) {
	c := newTestClient()
	var gotPayload string
	c.messages = &mockMessageAPI{
		newFn: func(ctx context.Context, threadID string, body openai.BetaThreadMessageNewParams) (*openai.Message, error) {
			gotPayload = body.Content.OfString.Value
			return &openai.Message{ID: "msg_1"}, nil
		},
	}
	c.runs = &mockRunAPI{
		newFn: func(ctx context.Context, threadID string, body openai.BetaThreadRunNewParams) (*openai.Run, error) {
			if body.AssistantID != "asst_test" {
				t.Errorf("unexpected assistant ID: %s", body.AssistantID)
			}
			return &openai.Run{ID: "run_1", Status: openai.RunStatusQueued}, nil
		},
	}

	jobID, err := c.SubmitJob(context.Background(), "thread_1", "my answer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobID != "run_1" {
		t.Errorf("unexpected job ID: %s", jobID)
	}
	if gotPayload != "my answer" {
		t.Errorf("unexpected payload: %s", gotPayload)
	}
}

func TestPostMessage(t *testing.T) {
	c := newTestClient()
	var gotPayload string
	c.messages = &mockMessageAPI{
		newFn: func(ctx context.Context, threadID string, body openai.BetaThreadMessageNewParams) (*openai.Message, error) {
			gotPayload = body.Content.OfString.Value
			return &openai.Message{ID: "msg_1"}, nil
		},
	}
	runs := 0
	c.runs = &mockRunAPI{
		newFn: func(ctx context.Context, threadID string, body openai.BetaThreadRunNewParams) (*openai.Run, error) {
			runs++
			return &openai.Run{ID: "run_1"}, nil
		},
	}

	if err := c.PostMessage(context.Background(), "thread_1", "closing answer"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPayload != "closing answer" {
		t.Errorf("unexpected payload: %s", gotPayload)
	}
	if runs != 0 {
		t.Errorf("PostMessage started %d runs", runs)
	}
}

func TestPostMessage_Error(t *testing.T) {
	c := newTestClient()
	c.messages = &mockMessageAPI{
		newFn: func(ctx context.Context, threadID string, body openai.BetaThreadMessageNewParams) (*openai.Message, error) {
			return nil, errors.New("provider down")
		},
	}

	if err := c.PostMessage(context.Background(), "thread_1", "answer"); err == nil {
		t.Error("expected error when message creation fails")
	}
}

func TestSubmitJob_RunCreateError(t *testing.T) {
	c := newTestClient()
	c.messages = &mockMessageAPI{
		newFn: func(ctx context.Context, threadID string, body openai.BetaThreadMessageNewParams) (*openai.Message, error) {
			return &openai.Message{ID: "msg_1"}, nil
		},
	}
	c.runs = &mockRunAPI{
		newFn: func(ctx context.Context, threadID string, body openai.BetaThreadRunNewParams) (*openai.Run, error) {
			return nil, errors.New("provider down")
		},
	}

	if _, err := c.SubmitJob(context.Background(), "thread_1", "answer"); err == nil {
		t.Error("expected error when run creation fails")
	}
}

func TestPollUntilTerminal_Completed(t *testing.T) {
	c := newTestClient()
	statuses := []openai.RunStatus{openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCompleted}
	calls := 0
	c.runs = &mockRunAPI{
		getFn: func(ctx context.Context, threadID, runID string) (*openai.Run, error) {
			st := statuses[calls]
			calls++
			return &openai.Run{ID: runID, Status: st}, nil
		},
	}

	if err := c.PollUntilTerminal(context.Background(), "thread_1", "run_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 status checks, got %d", calls)
	}
}

func TestPollUntilTerminal_TerminalErrors(t *testing.T) {
	tests := []struct {
		status  openai.RunStatus
		wantErr error
	}{
		{openai.RunStatusFailed, models.ErrJobFailed},
		{openai.RunStatusExpired, models.ErrJobExpired},
		{openai.RunStatusCancelled, models.ErrJobCancelled},
	}
	for _, tc := range tests {
		c := newTestClient()
		c.runs = &mockRunAPI{
			getFn: func(ctx context.Context, threadID, runID string) (*openai.Run, error) {
				return &openai.Run{ID: runID, Status: tc.status}, nil
			},
		}
		err := c.PollUntilTerminal(context.Background(), "thread_1", "run_1")
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("status %s: expected %v, got %v", tc.status, tc.wantErr, err)
		}
	}
}

func TestPollUntilTerminal_Timeout(t *testing.T) {
	c := newTestClient()
	calls := 0
	c.runs = &mockRunAPI{
		getFn: func(ctx context.Context, threadID, runID string) (*openai.Run, error) {
			calls++
			return &openai.Run{ID: runID, Status: openai.RunStatusInProgress}, nil
		},
	}

	err := c.PollUntilTerminal(context.Background(), "thread_1", "run_1")
	if !errors.Is(err, models.ErrPollTimeout) {
		t.Errorf("expected ErrPollTimeout, got %v", err)
	}
	if calls != c.maxPollAttempts {
		t.Errorf("expected %d status checks, got %d", c.maxPollAttempts, calls)
	}
}

func TestPollUntilTerminal_ContextCancelled(t *testing.T) {
	c := newTestClient()
	c.pollInterval = time.Minute
	c.runs = &mockRunAPI{
		getFn: func(ctx context.Context, threadID, runID string) (*openai.Run, error) {
			return &openai.Run{ID: runID, Status: openai.RunStatusInProgress}, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.PollUntilTerminal(ctx, "thread_1", "run_1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFetchLatestOutput(t *testing.T) {
	c := newTestClient()
	c.messages = &mockMessageAPI{
		listFn: func(ctx context.Context, threadID string, query openai.BetaThreadMessageListParams) (*pagination.CursorPage[openai.Message], error) {
			return &pagination.CursorPage[openai.Message]{
				Data: []openai.Message{{
					ID: "msg_1",
					Content: []openai.MessageContentUnion{{
						Type: "text",
						Text: openai.Text{Value: "What is your greatest strength?"},
					}},
				}},
			}, nil
		},
	}

	out, err := c.FetchLatestOutput(context.Background(), "thread_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "What is your greatest strength?" {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestFetchLatestOutput_EmptyThread(t *testing.T) {
	c := newTestClient()
	c.messages = &mockMessageAPI{
		listFn: func(ctx context.Context, threadID string, query openai.BetaThreadMessageListParams) (*pagination.CursorPage[openai.Message], error) {
			return &pagination.CursorPage[openai.Message]{}, nil
		},
	}

	_, err := c.FetchLatestOutput(context.Background(), "thread_1")
	if !errors.Is(err, models.ErrEmptyJobOutput) {
		t.Errorf("expected ErrEmptyJobOutput, got %v", err)
	}
}

func TestFetchLatestOutput_NoTextContent(t *testing.T) {
	c := newTestClient()
	c.messages = &mockMessageAPI{
		listFn: func(ctx context.Context, threadID string, query openai.BetaThreadMessageListParams) (*pagination.CursorPage[openai.Message], error) {
			return &pagination.CursorPage[openai.Message]{
				Data: []openai.Message{{
					ID:      "msg_1",
					Content: []openai.MessageContentUnion{{Type: "image_file"}},
				}},
			}, nil
		},
	}

	_, err := c.FetchLatestOutput(context.Background(), "thread_1")
	if !errors.Is(err, models.ErrJobFailed) {
		t.Errorf("expected ErrJobFailed, got %v", err)
	}
}

func TestHasActiveJob(t *testing.T) {
	c := newTestClient()
	active := true
	c.runs = &mockRunAPI{
		listFn: func(ctx context.Context, threadID string, query openai.BetaThreadRunListParams) (*pagination.CursorPage[openai.Run], error) {
			status := openai.RunStatusCompleted
			if active {
				status = openai.RunStatusInProgress
			}
			return &pagination.CursorPage[openai.Run]{
				Data: []openai.Run{{ID: "run_1", Status: status}},
			}, nil
		},
	}

	got, err := c.HasActiveJob(context.Background(), "thread_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("expected active job to be reported")
	}

	active = false
	got, err = c.HasActiveJob(context.Background(), "thread_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error("expected no active job")
	}
}

func TestEnsureAssistant_CreatesWhenUnconfigured(t *testing.T) {
	c := newTestClient()
	c.assistantID = ""
	created := 0
	c.assistants = &mockAssistantAPI{
		newFn: func(ctx context.Context, body openai.BetaAssistantNewParams) (*openai.Assistant, error) {
			created++
			return &openai.Assistant{ID: "asst_new"}, nil
		},
		getFn: func(ctx context.Context, assistantID string) (*openai.Assistant, error) {
			return &openai.Assistant{ID: assistantID}, nil
		},
	}

	id, err := c.ensureAssistant(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "asst_new" {
		t.Errorf("unexpected assistant ID: %s", id)
	}

	// The resolved ID is cached, no second create.
	if _, err := c.ensureAssistant(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Errorf("expected 1 create call, got %d", created)
	}
}
