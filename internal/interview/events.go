package interview

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/moniker/internal/profile"
)

// Event is an inbound participant or administrative action, already decoded
// from the wire.
type Event interface {
	Participant() (groupID, participantID string)
}

// Target identifies the participant an event concerns.
type Target struct {
	GroupID       string `json:"group_id"`
	ParticipantID string `json:"participant_id"`
}

func (t Target) Participant() (string, string) { return t.GroupID, t.ParticipantID }

// BeginRequested starts an interview. Forced is the administrative variant.
type BeginRequested struct {
	Target
	Forced bool `json:"forced,omitempty"`
}

// StartAcknowledged is the participant pressing Begin on the welcome prompt.
type StartAcknowledged struct {
	Target
}

// AnswerReceived is a multiple-choice answer.
type AnswerReceived struct {
	Target
	QuestionIndex int            `json:"question_index"`
	Choice        profile.Choice `json:"choice"`
}

// FreeTextField names the free-text prompt a reply belongs to.
type FreeTextField string

const (
	FieldTrigger      FreeTextField = "trigger"
	FieldObserverName FreeTextField = "observer_name"
)

// FreeTextReceived is a typed reply to a free-text prompt.
type FreeTextReceived struct {
	Target
	Field FreeTextField `json:"field"`
	Text  string        `json:"text"`
}

// Handle routes a decoded event to the matching operation.
func (m *Machine) Handle(ctx context.Context, ev Event) (*Session, error) {
	switch e := ev.(type) {
	case BeginRequested:
		if e.Forced {
			return m.ForceStart(ctx, e.GroupID, e.ParticipantID)
		}
		return m.Begin(ctx, e.GroupID, e.ParticipantID)
	case StartAcknowledged:
		return m.Acknowledge(ctx, e.GroupID, e.ParticipantID)
	case AnswerReceived:
		return m.Answer(ctx, e.GroupID, e.ParticipantID, e.QuestionIndex, e.Choice)
	case FreeTextReceived:
		switch e.Field {
		case FieldTrigger:
			return m.SubmitTrigger(ctx, e.GroupID, e.ParticipantID, e.Text)
		case FieldObserverName:
			return m.SubmitObserverName(ctx, e.GroupID, e.ParticipantID, e.Text)
		default:
			return nil, fmt.Errorf("unknown free-text field %q", e.Field)
		}
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}
}
