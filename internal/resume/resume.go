// Package resume extracts text from uploaded PDF resumes and condenses it
// into the short summary carried in interview context.
package resume

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jvvv94/kairos-ai/internal/models"
	"github.com/ledongthuc/pdf"
)

// MaxUploadBytes bounds accepted resume uploads.
const MaxUploadBytes = 10 << 20 // 10 MiB

const summarySystemPrompt = `You condense resumes for interview preparation.
Summarize the resume below in at most 15 lines: career history, key skills,
notable projects and achievements. Plain text, no markdown.`

// promptClient is the slice of the GenAI client the summarizer needs.
type promptClient interface {
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Service extracts and summarizes resume content.
type Service struct {
	genai promptClient
}

// NewService creates a resume service over the given GenAI client.
func NewService(genai promptClient) *Service {
	return &Service{genai: genai}
}

// ExtractText pulls the plain text out of a PDF document. The text is
// whitespace-normalized and truncated to the context length bound.
func ExtractText(ra io.ReaderAt, size int64) (string, error) {
	reader, err := pdf.NewReader(ra, size)
	if err != nil {
		slog.Warn("resume.ExtractText: unreadable PDF", "error", err)
		return "", fmt.Errorf("failed to read PDF: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		slog.Warn("resume.ExtractText: text extraction failed", "error", err)
		return "", fmt.Errorf("failed to extract PDF text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}

	text := NormalizeText(string(raw))
	if text == "" {
		return "", models.ErrMissingResumeText
	}
	slog.Debug("resume.ExtractText succeeded", "chars", len(text))
	return text, nil
}

// Summarize produces the interview-context summary of the resume text.
func (s *Service) Summarize(ctx context.Context, content string) (string, error) {
	content = NormalizeText(content)
	if content == "" {
		return "", models.ErrMissingResumeText
	}

	summary, err := s.genai.GeneratePrompt(ctx, summarySystemPrompt, content)
	if err != nil {
		slog.Error("resume.Summarize: completion failed", "error", err)
		return "", fmt.Errorf("resume summarization failed: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", models.ErrEmptyJobOutput
	}
	slog.Debug("resume.Summarize succeeded", "chars", len(summary))
	return summary, nil
}

// NormalizeText collapses whitespace runs and truncates to the maximum
// resume content length.
func NormalizeText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > models.MaxResumeContentLength {
		s = s[:models.MaxResumeContentLength]
	}
	return s
}
