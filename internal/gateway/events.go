package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/moniker/internal/interview"
	"github.com/MikeSquared-Agency/moniker/internal/monitor"
	"github.com/MikeSquared-Agency/moniker/internal/profile"
)

// ErrUnknownSubject is returned by Decode for subjects it does not handle.
var ErrUnknownSubject = errors.New("unknown gateway subject")

type memberPayload struct {
	GroupID       string `json:"group_id"`
	ParticipantID string `json:"participant_id"`
}

func (p memberPayload) validate() error {
	if p.GroupID == "" || p.ParticipantID == "" {
		return errors.New("group_id and participant_id are required")
	}
	return nil
}

func (p memberPayload) target() interview.Target {
	return interview.Target{GroupID: p.GroupID, ParticipantID: p.ParticipantID}
}

type answerPayload struct {
	memberPayload
	QuestionIndex int    `json:"question_index"`
	Choice        string `json:"choice"`
}

type freeTextPayload struct {
	memberPayload
	Field string `json:"field"`
	Text  string `json:"text"`
}

type identityPayload struct {
	memberPayload
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// Decode turns a raw gateway event into an interview.Event or a
// monitor.IdentityChanged.
func Decode(subject string, data []byte) (any, error) {
	switch subject {
	case SubjectMemberJoined, SubjectBegin:
		var p memberPayload
		if err := unmarshal(subject, data, &p); err != nil {
			return nil, err
		}
		return interview.BeginRequested{Target: p.target()}, nil

	case SubjectAcknowledged:
		var p memberPayload
		if err := unmarshal(subject, data, &p); err != nil {
			return nil, err
		}
		return interview.StartAcknowledged{Target: p.target()}, nil

	case SubjectAnswer:
		var p answerPayload
		if err := unmarshal(subject, data, &p); err != nil {
			return nil, err
		}
		choice, err := profile.ParseChoice(p.Choice)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", subject, err)
		}
		if p.QuestionIndex < 0 || p.QuestionIndex >= profile.QuestionCount {
			return nil, fmt.Errorf("decode %s: question_index %d out of range", subject, p.QuestionIndex)
		}
		return interview.AnswerReceived{Target: p.target(), QuestionIndex: p.QuestionIndex, Choice: choice}, nil

	case SubjectFreeText:
		var p freeTextPayload
		if err := unmarshal(subject, data, &p); err != nil {
			return nil, err
		}
		field := interview.FreeTextField(p.Field)
		if field != interview.FieldTrigger && field != interview.FieldObserverName {
			return nil, fmt.Errorf("decode %s: unknown field %q", subject, p.Field)
		}
		return interview.FreeTextReceived{Target: p.target(), Field: field, Text: p.Text}, nil

	case SubjectIdentityChanged:
		var p identityPayload
		if err := unmarshal(subject, data, &p); err != nil {
			return nil, err
		}
		return monitor.IdentityChanged{
			GroupID:       p.GroupID,
			ParticipantID: p.ParticipantID,
			OldValue:      p.OldValue,
			NewValue:      p.NewValue,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
}

type validator interface{ validate() error }

func unmarshal(subject string, data []byte, v validator) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", subject, err)
	}
	if err := v.validate(); err != nil {
		return fmt.Errorf("decode %s: %w", subject, err)
	}
	return nil
}
