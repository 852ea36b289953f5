package flow

import (
	"fmt"
	"strings"

	"github.com/jvvv94/kairos-ai/internal/models"
)

// DefaultFinalQuestionFallback is asked as question number maxTurns when the
// assistant returns an empty final question.
const DefaultFinalQuestionFallback = "This is the final question. Looking back at this interview, is there anything you would like to add or revisit about your answers?"

// summaryPayload asks the assistant to close out the interview.
const summaryPayload = `The interview is now complete. Summarize the interview in a short report:
the candidate's notable strengths, the weakest answers, and an overall impression
of their fit for the role. Address the candidate directly.`

// bootstrapPayload renders the interview context into the opening message for
// a new thread. The assistant is expected to reply with the first question.
func bootstrapPayload(ic models.InterviewContext) string {
	var b strings.Builder
	b.WriteString("A new mock interview is starting. Candidate and role background:\n")
	fmt.Fprintf(&b, "Company: %s\n", ic.Company)
	fmt.Fprintf(&b, "Position: %s\n", ic.JobTitle)
	if ic.JobDescription != "" {
		fmt.Fprintf(&b, "Job description: %s\n", ic.JobDescription)
	}
	if ic.Requirements != "" {
		fmt.Fprintf(&b, "Requirements: %s\n", ic.Requirements)
	}
	if ic.Preferences != "" {
		fmt.Fprintf(&b, "Preferred qualifications: %s\n", ic.Preferences)
	}
	if ic.ResumeSummary != "" {
		fmt.Fprintf(&b, "Resume summary: %s\n", ic.ResumeSummary)
	}
	b.WriteString("Begin the interview with your first question.")
	return b.String()
}
