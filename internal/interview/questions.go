package interview

import (
	"strings"
	"unicode"
)

// ObserverKeyword diverts the interview to the alternate path when given as
// the trigger response.
const ObserverKeyword = "observer"

// ObserverPrefix marks identifiers chosen on the alternate path.
const ObserverPrefix = "OBS-"

const (
	maxObserverLabel = 24
	observerFallback = "Unnamed"
	labelSeparator   = '_'
)

const (
	welcomeText   = "Welcome. Before you can take part, we need to register you. It takes a minute."
	triggerText   = "First question: in one word, what are you here to do?"
	observerText  = "Noted. Observers choose their own label. What should we call you?"
	takenText     = "That label is already in use in this group. Pick another one."
	questionHint  = "Answer yes, maybe or no."
	beginChoice   = "Begin"
	lockedSuffix  = " It is locked: changes you make yourself will be reverted."
	assignedLabel = "Your identifier is "
)

// questions are the standard questionnaire, two per trait in trait order.
var questions = [8]string{
	"Do you check the reasoning behind an instruction before following it?",
	"Would you rather measure twice and cut once?",
	"Do you notice when someone in the room goes quiet?",
	"Would you step in to settle an argument between two friends?",
	"Do you usually know where the exits are?",
	"Do you notice small changes in familiar places?",
	"Do you finish what you start even when it stops being fun?",
	"Would you hold your position if everyone else disagreed?",
}

var answerChoices = []string{"yes", "maybe", "no"}

// IsObserverKeyword applies the trigger match: trimmed, case-insensitive,
// whole-string.
func IsObserverKeyword(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), ObserverKeyword)
}

// SanitizeLabel strips everything but letters, digits and whitespace,
// collapses whitespace runs into one separator, keeps case and truncates.
// An empty result becomes a placeholder.
func SanitizeLabel(raw string) string {
	var b strings.Builder
	pendingSpace := false
	n := 0
	for _, r := range raw {
		if n >= maxObserverLabel {
			break
		}
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace {
				if n+1 >= maxObserverLabel {
					n = maxObserverLabel
					continue
				}
				b.WriteRune(labelSeparator)
				n++
				pendingSpace = false
			}
			b.WriteRune(r)
			n++
		}
	}
	if b.Len() == 0 {
		return observerFallback
	}
	return b.String()
}

// ObserverIdentifier builds the alternate-path identifier for a raw label.
func ObserverIdentifier(raw string) string {
	return ObserverPrefix + SanitizeLabel(raw)
}
