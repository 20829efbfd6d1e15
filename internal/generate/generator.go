package generate

import (
	"context"
	"errors"
	"strings"

	"draftline/internal/domain"
)

// ErrNoResult means the model answered without producing usable content.
// Callers must treat it as a no-op: no project state may change.
var ErrNoResult = errors.New("model returned no usable result")

// ContentRequest describes one generation call.
type ContentRequest struct {
	Prompt string
	Type   domain.ContentType
	Brief  domain.ContextBrief
	// ReferenceImage optionally grounds text generation on an existing
	// visual, as a data URI.
	ReferenceImage string
}

// Generator produces briefing questions and content drafts.
type Generator interface {
	// ContextQuestions returns short questions that sharpen a vague prompt
	// before committing to a draft.
	ContextQuestions(ctx context.Context, prompt string, t domain.ContentType) ([]string, error)
	// Content produces the draft: a data URI for images, plain text for copy.
	Content(ctx context.Context, req ContentRequest) (string, error)
}

// IterationPrompt combines the original prompt with a refinement instruction.
func IterationPrompt(prompt, instruction string) string {
	return prompt + ". Requested modification: " + instruction
}

// briefLines renders a context brief as prompt lines, skipping empty fields.
func briefLines(b domain.ContextBrief) string {
	var sb strings.Builder
	add := func(label, v string) {
		if strings.TrimSpace(v) == "" {
			return
		}
		sb.WriteString("\n")
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(v)
	}
	add("Objective", b.Objective)
	add("Audience", b.Audience)
	add("Tone", b.Tone)
	add("Style", b.Style)
	add("Restrictions", b.Restrictions)
	return sb.String()
}
