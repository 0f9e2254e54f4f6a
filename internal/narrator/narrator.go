// Package narrator writes the short personal note sent with a completed
// interview.
package narrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/moniker/internal/interview"
	"github.com/MikeSquared-Agency/moniker/internal/profile"
)

const (
	// MaxTokens is the reply budget a note needs.
	MaxTokens      = 200
	maxNoteRunes   = 600
	defaultTimeout = 8 * time.Second
)

const systemPrompt = `You write one short paragraph welcoming a new member to a community.
You are given their assigned identifier and a trait profile from a short questionnaire.
Speak to them directly in the second person. Two or three sentences. No lists, no headings,
no emoji. Do not restate the numbers. Do not invent facts beyond the profile.`

// Completer is satisfied by anthropic.Client.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Narrator struct {
	llm     Completer
	timeout time.Duration
}

func New(llm Completer, timeout time.Duration) *Narrator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Narrator{llm: llm, timeout: timeout}
}

// Describe returns the note or an error; callers fall back to their own text.
func (n *Narrator) Describe(ctx context.Context, s interview.Summary) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	text, err := n.llm.Complete(ctx, systemPrompt, userPrompt(s))
	if err != nil {
		return "", fmt.Errorf("narrate completion: %w", err)
	}
	return clip(strings.TrimSpace(text), maxNoteRunes), nil
}

func userPrompt(s interview.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Identifier: %s\n", s.Identifier)
	if s.AlternatePath {
		sb.WriteString("Path: observer (chose their own label, skipped the questionnaire)\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Dominant trait: %s\n", s.Dominant)
	for _, t := range profile.Traits {
		fmt.Fprintf(&sb, "%s: %d/%d\n", t, s.Scores[t], profile.MaxScore)
	}
	return sb.String()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
