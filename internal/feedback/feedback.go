// Package feedback turns a finished interview's answers into structured,
// category-scored feedback via a JSON-mode chat completion.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/jvvv94/kairos-ai/internal/models"
)

// Categories is the fixed evaluation rubric. The completion is asked to score
// each category; results are re-keyed against this list so a drifting model
// cannot add or drop categories.
var Categories = []string{
	"Job Fit",
	"Technical Depth",
	"Problem Solving",
	"Communication",
	"Attitude",
}

const (
	minScore = 0.0
	maxScore = 5.0
)

const systemPrompt = `You are an interview evaluator. Score the candidate's interview answers.
Respond with JSON only, in this shape:
{"details":[{"category":"...","score":0.0,"evaluation":"...","improvement":"..."}],"summary":"..."}
Score each of these categories from 0 to 5: Job Fit, Technical Depth, Problem Solving, Communication, Attitude.
"evaluation" explains the score, "improvement" gives one concrete suggestion, "summary" is a short overall verdict.`

// promptClient is the slice of the GenAI client the evaluator needs.
type promptClient interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error
}

// Evaluator produces interview feedback from recorded answers.
type Evaluator struct {
	genai promptClient
}

// NewEvaluator creates a feedback evaluator over the given GenAI client.
func NewEvaluator(genai promptClient) *Evaluator {
	return &Evaluator{genai: genai}
}

// completionResult is the shape requested from the model.
type completionResult struct {
	Details []models.FeedbackDetail `json:"details"`
	Summary string                  `json:"summary"`
}

// Evaluate scores the interview answers against the fixed rubric. Category
// scores are clamped to [0, 5] and snapped to 0.5 steps; the overall score is
// the mean of the category scores.
func (e *Evaluator) Evaluate(ctx context.Context, req models.FeedbackRequest) (*models.Feedback, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result completionResult
	if err := e.genai.GenerateJSON(ctx, systemPrompt, renderAnswers(req.Answers), &result); err != nil {
		slog.Error("Evaluator.Evaluate: completion failed", "error", err, "sessionID", req.SessionID)
		return nil, fmt.Errorf("feedback generation failed: %w", err)
	}

	byCategory := make(map[string]models.FeedbackDetail, len(result.Details))
	for _, d := range result.Details {
		byCategory[strings.ToLower(strings.TrimSpace(d.Category))] = d
	}

	details := make([]models.FeedbackDetail, 0, len(Categories))
	var total float64
	for _, cat := range Categories {
		d, ok := byCategory[strings.ToLower(cat)]
		if !ok {
			slog.Warn("Evaluator.Evaluate: category missing from completion", "category", cat, "sessionID", req.SessionID)
			d = models.FeedbackDetail{Evaluation: "No evaluation was produced for this category."}
		}
		d.Category = cat
		d.Score = NormalizeScore(d.Score)
		total += d.Score
		details = append(details, d)
	}

	overall := math.Round(total/float64(len(Categories))*10) / 10
	slog.Debug("Evaluator.Evaluate succeeded", "sessionID", req.SessionID, "overallScore", overall)
	return &models.Feedback{
		Details:      details,
		OverallScore: overall,
		Summary:      result.Summary,
	}, nil
}

// NormalizeScore clamps a raw score to [0, 5] and snaps it to 0.5 steps.
func NormalizeScore(s float64) float64 {
	if math.IsNaN(s) {
		return minScore
	}
	s = math.Round(s*2) / 2
	if s < minScore {
		return minScore
	}
	if s > maxScore {
		return maxScore
	}
	return s
}

// renderAnswers flattens the QA sequence into the user prompt.
func renderAnswers(answers []models.QAPair) string {
	var b strings.Builder
	b.WriteString("Interview transcript:\n")
	for i, qa := range answers {
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, qa.Question, i+1, qa.Answer)
	}
	return b.String()
}
