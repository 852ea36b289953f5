// Package flow implements the interview orchestration: the pure turn policy
// and the session state machine driving assistant jobs.
package flow

import (
	"fmt"

	"github.com/jvvv94/kairos-ai/internal/models"
)

// Action is the next step the orchestrator must take for a session.
type Action int

const (
	// ActionRequestFirstQuestion starts a fresh interview.
	ActionRequestFirstQuestion Action = iota
	// ActionRequestNextQuestion continues an interview in progress.
	ActionRequestNextQuestion
	// ActionRequestFinalSummary closes the interview with a summary job.
	ActionRequestFinalSummary
)

// String returns a human-readable action name for logging.
func (a Action) String() string {
	switch a {
	case ActionRequestFirstQuestion:
		return "request_first_question"
	case ActionRequestNextQuestion:
		return "request_next_question"
	case ActionRequestFinalSummary:
		return "request_final_summary"
	default:
		return fmt.Sprintf("unknown_action_%d", int(a))
	}
}

// Decide maps the number of answered turns to the next action. It is total
// for any turnCount in [0, maxTurns] and any maxTurns >= 1; anything outside
// that range indicates a bookkeeping bug and returns ErrInvalidTurnCount.
func Decide(turnCount, maxTurns int) (Action, error) {
	if maxTurns < 1 {
		return 0, fmt.Errorf("maxTurns %d: %w", maxTurns, models.ErrInvalidTurnCount)
	}
	switch {
	case turnCount == 0:
		return ActionRequestFirstQuestion, nil
	case turnCount > 0 && turnCount < maxTurns:
		return ActionRequestNextQuestion, nil
	case turnCount == maxTurns:
		return ActionRequestFinalSummary, nil
	default:
		return 0, fmt.Errorf("turnCount %d of %d: %w", turnCount, maxTurns, models.ErrInvalidTurnCount)
	}
}
