package flow

import (
	"errors"
	"testing"

	"github.com/jvvv94/kairos-ai/internal/models"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		turnCount int
		maxTurns  int
		want      Action
		wantErr   error
	}{
		{"fresh session", 0, 10, ActionRequestFirstQuestion, nil},
		{"first answer in", 1, 10, ActionRequestNextQuestion, nil},
		{"mid interview", 5, 10, ActionRequestNextQuestion, nil},
		{"one before limit", 9, 10, ActionRequestNextQuestion, nil},
		{"limit reached", 10, 10, ActionRequestFinalSummary, nil},
		{"short interview start", 0, 1, ActionRequestFirstQuestion, nil},
		{"short interview done", 1, 1, ActionRequestFinalSummary, nil},
		{"count above limit", 11, 10, 0, models.ErrInvalidTurnCount},
		{"negative count", -1, 10, 0, models.ErrInvalidTurnCount},
		{"zero max turns", 0, 0, 0, models.ErrInvalidTurnCount},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decide(tc.turnCount, tc.maxTurns)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestActionString(t *testing.T) {
	if ActionRequestFirstQuestion.String() != "request_first_question" {
		t.Errorf("unexpected name: %s", ActionRequestFirstQuestion)
	}
	if Action(42).String() != "unknown_action_42" {
		t.Errorf("unexpected name for unknown action: %s", Action(42))
	}
}
