package interview

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/moniker/internal/profile"
	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
)

// Stage is a session's position in the interview.
type Stage string

const (
	StageInitiated       Stage = "initiated"
	StageAwaitingTrigger Stage = "awaiting_trigger"
	StageQuestioning     Stage = "questioning"
	StageObserverNaming  Stage = "observer_naming"
	StageCompleted       Stage = "completed"
)

var (
	ErrSessionExists      = fmt.Errorf("interview already in progress: %w", sentinel.ErrConflict)
	ErrNoSession          = fmt.Errorf("no open interview: %w", sentinel.ErrNotFound)
	ErrWrongStage         = fmt.Errorf("event does not fit interview stage: %w", sentinel.ErrInvalidState)
	ErrDuplicateAnswer    = fmt.Errorf("question already answered: %w", sentinel.ErrConflict)
	ErrUnexpectedQuestion = fmt.Errorf("answer is not for the current question: %w", sentinel.ErrInvalidState)
	ErrIdentifierTaken    = fmt.Errorf("identifier already displayed in group: %w", sentinel.ErrConflict)
	ErrInvalidChoice      = errors.New("invalid choice")
)

// Session is one participant's interview. The machine is its only writer.
type Session struct {
	ID                 uuid.UUID        `json:"id"`
	ParticipantID      string           `json:"participant_id"`
	GroupID            string           `json:"group_id"`
	Stage              Stage            `json:"stage"`
	QuestionIndex      int              `json:"question_index"`
	Answers            []profile.Answer `json:"answers"`
	Scores             profile.Scores   `json:"scores"`
	TriggerResponse    string           `json:"trigger_response,omitempty"`
	AssignedIdentifier string           `json:"assigned_identifier,omitempty"`
	AlternatePath      bool             `json:"alternate_path"`
	DeliveryFailed     bool             `json:"delivery_failed"`
	Closed             bool             `json:"closed"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
}

func newSession(groupID, participantID string, now time.Time) *Session {
	return &Session{
		ID:            uuid.New(),
		ParticipantID: participantID,
		GroupID:       groupID,
		Stage:         StageInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Open reports whether the session still accepts events.
func (s *Session) Open() bool {
	return s.Stage != StageCompleted
}

// HasAnswer reports whether questionIndex was already answered.
func (s *Session) HasAnswer(questionIndex int) bool {
	for _, a := range s.Answers {
		if a.QuestionIndex == questionIndex {
			return true
		}
	}
	return false
}

// Profile snapshots the scores and answers.
func (s *Session) Profile() profile.Profile {
	answers := make([]profile.Answer, len(s.Answers))
	copy(answers, s.Answers)
	return profile.Profile{Scores: s.Scores, Answers: answers}
}

func (s *Session) complete(identifier string, now time.Time) {
	s.AssignedIdentifier = identifier
	s.Stage = StageCompleted
	s.UpdatedAt = now
	s.CompletedAt = &now
}

// close ends an open session without an identifier.
func (s *Session) close(now time.Time) {
	s.Closed = true
	s.Stage = StageCompleted
	s.UpdatedAt = now
	s.CompletedAt = &now
}
