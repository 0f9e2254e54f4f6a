// Package interview drives a participant through the registration interview:
// an opening acknowledgement, a free-text trigger question, then either eight
// scored multiple-choice questions or, for observers, a self-chosen label.
// Completion hands the profile to the identifier generator, applies the result
// on the platform and puts it under protection.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/moniker/internal/audit"
	"github.com/MikeSquared-Agency/moniker/internal/callsign"
	"github.com/MikeSquared-Agency/moniker/internal/keylock"
	"github.com/MikeSquared-Agency/moniker/internal/ledger"
	"github.com/MikeSquared-Agency/moniker/internal/metrics"
	"github.com/MikeSquared-Agency/moniker/internal/profile"
	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
)

// SessionStore persists sessions. Create must fail with sentinel.ErrConflict
// when the pair already has an open session.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Save(ctx context.Context, s *Session) error
	// Open returns the pair's open session or sentinel.ErrNotFound.
	Open(ctx context.Context, groupID, participantID string) (*Session, error)
	// Latest returns the pair's most recent session, open or not, or
	// sentinel.ErrNotFound.
	Latest(ctx context.Context, groupID, participantID string) (*Session, error)
}

// Allocator produces unique systematic identifiers.
type Allocator interface {
	Allocate(ctx context.Context, req callsign.Request) (callsign.Record, error)
}

// PromptKind tells the transport what a prompt is for.
type PromptKind string

const (
	PromptWelcome      PromptKind = "welcome"
	PromptTrigger      PromptKind = "trigger"
	PromptQuestion     PromptKind = "question"
	PromptObserverName PromptKind = "observer_name"
	PromptCompletion   PromptKind = "completion"
)

// Prompt is one outbound interactive message.
type Prompt struct {
	GroupID       string     `json:"group_id"`
	ParticipantID string     `json:"participant_id"`
	Kind          PromptKind `json:"kind"`
	QuestionIndex int        `json:"question_index,omitempty"`
	Text          string     `json:"text"`
	Choices       []string   `json:"choices,omitempty"`
}

// Transport reaches participants on the chat platform.
type Transport interface {
	// SendInteractive reports whether the prompt reached the participant.
	SendInteractive(ctx context.Context, p Prompt) (bool, error)
	// Apply sets the participant's displayed identifier.
	Apply(ctx context.Context, groupID, participantID, value, reason string) error
}

// Directory lists identifiers currently displayed in a group.
type Directory interface {
	Displayed(ctx context.Context, groupID string) ([]string, error)
}

// Auditor records operator-facing events.
type Auditor interface {
	Emit(ctx context.Context, e audit.Event) error
}

// Announcer tells other services about new assignments.
type Announcer interface {
	AnnounceAssigned(ctx context.Context, groupID, participantID, identifier string) error
}

// Summary is what a Narrator gets to describe a finished interview.
type Summary struct {
	GroupID       string
	ParticipantID string
	Identifier    string
	AlternatePath bool
	Dominant      profile.Trait
	Scores        profile.Scores
}

// Narrator composes the completion message.
type Narrator interface {
	Describe(ctx context.Context, s Summary) (string, error)
}

type Machine struct {
	sessions  SessionStore
	allocator Allocator
	transport Transport
	directory Directory
	ledger    ledger.Ledger
	auditor   Auditor
	narrator  Narrator
	announcer Announcer
	metrics   *metrics.Metrics
	logger    *slog.Logger

	applyTimeout time.Duration
	now          func() time.Time
	locks        *keylock.Map
}

// Option configures a Machine.
type Option func(*Machine)

func WithNarrator(n Narrator) Option { return func(m *Machine) { m.narrator = n } }

func WithAnnouncer(a Announcer) Option { return func(m *Machine) { m.announcer = a } }

func WithDirectory(d Directory) Option { return func(m *Machine) { m.directory = d } }

func WithMetrics(mt *metrics.Metrics) Option { return func(m *Machine) { m.metrics = mt } }

func WithApplyTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.applyTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }

func New(sessions SessionStore, allocator Allocator, transport Transport, l ledger.Ledger, auditor Auditor, logger *slog.Logger, opts ...Option) *Machine {
	m := &Machine{
		sessions:     sessions,
		allocator:    allocator,
		transport:    transport,
		ledger:       l,
		auditor:      auditor,
		logger:       logger,
		applyTimeout: 5 * time.Second,
		now:          time.Now,
		locks:        keylock.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Begin opens an interview. It is rejected while another one is open; a
// participant who already completed one gets the completed session back
// unchanged.
func (m *Machine) Begin(ctx context.Context, groupID, participantID string) (*Session, error) {
	defer m.locks.Lock(keylock.Key(groupID, participantID))()

	latest, err := m.sessions.Latest(ctx, groupID, participantID)
	switch {
	case err == nil && latest.Open():
		return nil, ErrSessionExists
	case err == nil && !latest.Closed:
		m.logger.Info("participant already registered, ignoring begin",
			"group_id", groupID,
			"participant_id", participantID,
			"identifier", latest.AssignedIdentifier,
		)
		return latest, nil
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return nil, fmt.Errorf("load session: %w", err)
	}
	return m.start(ctx, groupID, participantID)
}

// ForceStart is the administrative begin: any open session is closed first
// and a fresh one is started even if the participant already completed.
func (m *Machine) ForceStart(ctx context.Context, groupID, participantID string) (*Session, error) {
	defer m.locks.Lock(keylock.Key(groupID, participantID))()

	if _, err := m.closeOpen(ctx, groupID, participantID); err != nil && !errors.Is(err, ErrNoSession) {
		return nil, err
	}
	return m.start(ctx, groupID, participantID)
}

// Reset closes the open session without an identifier so a new one can
// start.
func (m *Machine) Reset(ctx context.Context, groupID, participantID string) (*Session, error) {
	defer m.locks.Lock(keylock.Key(groupID, participantID))()
	return m.closeOpen(ctx, groupID, participantID)
}

// Session returns the pair's most recent session.
func (m *Machine) Session(ctx context.Context, groupID, participantID string) (*Session, error) {
	s, err := m.sessions.Latest(ctx, groupID, participantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, ErrNoSession
	}
	return s, err
}

// Acknowledge moves an initiated session on to the trigger question.
func (m *Machine) Acknowledge(ctx context.Context, groupID, participantID string) (*Session, error) {
	defer m.locks.Lock(keylock.Key(groupID, participantID))()

	s, done, err := m.current(ctx, groupID, participantID)
	if err != nil || done {
		return s, err
	}
	switch s.Stage {
	case StageAwaitingTrigger:
		return s, nil
	case StageInitiated:
	default:
		return s, ErrWrongStage
	}

	s.Stage = StageAwaitingTrigger
	s.UpdatedAt = m.now().UTC()
	if err := m.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.send(ctx, Prompt{GroupID: groupID, ParticipantID: participantID, Kind: PromptTrigger, Text: triggerText})
	return s, nil
}

// SubmitTrigger records the free-text trigger answer and branches.
func (m *Machine) SubmitTrigger(ctx context.Context, groupID, participantID, text string) (*Session, error) {
	defer m.locks.Lock(keylock.Key(groupID, participantID))()

	s, done, err := m.current(ctx, groupID, participantID)
	if err != nil || done {
		return s, err
	}
	if s.Stage != StageAwaitingTrigger {
		return s, ErrWrongStage
	}

	s.TriggerResponse = text
	s.UpdatedAt = m.now().UTC()
	next := Prompt{GroupID: groupID, ParticipantID: participantID}
	if IsObserverKeyword(text) {
		s.AlternatePath = true
		s.Stage = StageObserverNaming
		next.Kind, next.Text = PromptObserverName, observerText
	} else {
		s.Stage = StageQuestioning
		s.QuestionIndex = 0
		next = questionPrompt(groupID, participantID, 0)
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.send(ctx, next)
	return s, nil
}

// Answer scores one multiple-choice answer. The last answer completes the
// interview with a systematic identifier.
func (m *Machine) Answer(ctx context.Context, groupID, participantID string, questionIndex int, choice profile.Choice) (*Session, error) {
	defer m.locks.Lock(keylock.Key(groupID, participantID))()

	switch choice {
	case profile.Affirmative, profile.Ambivalent, profile.Negative:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}

	s, done, err := m.current(ctx, groupID, participantID)
	if err != nil || done {
		return s, err
	}
	if s.Stage != StageQuestioning {
		return s, ErrWrongStage
	}
	if s.HasAnswer(questionIndex) {
		return s, ErrDuplicateAnswer
	}
	if questionIndex != s.QuestionIndex {
		return s, ErrUnexpectedQuestion
	}

	now := m.now().UTC()
	s.Answers = append(s.Answers, profile.Answer{QuestionIndex: questionIndex, Choice: choice, AnsweredAt: now})
	s.Scores.Add(profile.TraitFor(questionIndex), choice.Weight())
	s.UpdatedAt = now

	if questionIndex < profile.QuestionCount-1 {
		s.QuestionIndex++
		if err := m.sessions.Save(ctx, s); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		m.send(ctx, questionPrompt(groupID, participantID, s.QuestionIndex))
		return s, nil
	}

	rec, err := m.allocator.Allocate(ctx, callsign.Request{
		GroupID:       groupID,
		ParticipantID: participantID,
		SessionID:     s.ID,
		Profile:       s.Profile(),
	})
	if err != nil {
		return nil, fmt.Errorf("allocate identifier: %w", err)
	}
	s.complete(rec.Identifier, now)
	if err := m.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.finish(ctx, s, "standard")
	return s, nil
}

// SubmitObserverName completes an alternate-path interview with a sanitized
// custom label. A label already displayed in the group is refused and the
// participant is asked again.
func (m *Machine) SubmitObserverName(ctx context.Context, groupID, participantID, text string) (*Session, error) {
	defer m.locks.Lock(keylock.Key(groupID, participantID))()

	s, done, err := m.current(ctx, groupID, participantID)
	if err != nil || done {
		return s, err
	}
	if s.Stage != StageObserverNaming {
		return s, ErrWrongStage
	}

	identifier := ObserverIdentifier(text)

	// The check and the apply in finish must not interleave with another
	// observer of the same group.
	defer m.locks.Lock(keylock.GroupKey(groupID))()

	taken, err := m.labelTaken(ctx, groupID, participantID, identifier)
	if err != nil {
		return nil, err
	}
	if taken {
		m.logger.Warn("observer label collides with an identifier in use",
			"group_id", groupID,
			"participant_id", participantID,
			"identifier", identifier,
		)
		m.send(ctx, Prompt{GroupID: groupID, ParticipantID: participantID, Kind: PromptObserverName, Text: takenText})
		return s, ErrIdentifierTaken
	}

	s.complete(identifier, m.now().UTC())
	if err := m.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.finish(ctx, s, "observer")
	return s, nil
}

// labelTaken reports whether identifier is displayed in the group or
// protected for another participant of it.
func (m *Machine) labelTaken(ctx context.Context, groupID, participantID, identifier string) (bool, error) {
	if m.directory != nil {
		displayed, err := m.directory.Displayed(ctx, groupID)
		if err != nil {
			return false, fmt.Errorf("list displayed identifiers: %w", err)
		}
		for _, d := range displayed {
			if d == identifier {
				return true, nil
			}
		}
	}
	entries, err := m.ledger.List(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("list protections: %w", err)
	}
	for _, e := range entries {
		if e.Value == identifier && e.ParticipantID != participantID {
			return true, nil
		}
	}
	return false, nil
}

// start creates and announces a new session. Callers hold the pair's lock.
func (m *Machine) start(ctx context.Context, groupID, participantID string) (*Session, error) {
	s := newSession(groupID, participantID, m.now().UTC())
	if err := m.sessions.Create(ctx, s); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, ErrSessionExists
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	m.metrics.IncStarted()
	m.logger.Info("interview started", "group_id", groupID, "participant_id", participantID, "session_id", s.ID)

	if m.send(ctx, Prompt{GroupID: groupID, ParticipantID: participantID, Kind: PromptWelcome, Text: welcomeText, Choices: []string{beginChoice}}) {
		return s, nil
	}

	s.DeliveryFailed = true
	s.UpdatedAt = m.now().UTC()
	if err := m.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.metrics.IncDeliveryFailure()
	m.emit(ctx, audit.Event{
		Severity:      audit.SeverityWarning,
		Kind:          audit.KindDeliveryFailed,
		Message:       "could not open a channel to the participant; interview needs manual resumption",
		GroupID:       groupID,
		ParticipantID: participantID,
		Attrs:         map[string]string{"session_id": s.ID.String()},
	})
	return s, nil
}

func (m *Machine) closeOpen(ctx context.Context, groupID, participantID string) (*Session, error) {
	s, err := m.sessions.Open(ctx, groupID, participantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	s.close(m.now().UTC())
	if err := m.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.metrics.IncCompleted("reset")
	m.emit(ctx, audit.Event{
		Severity:      audit.SeverityInfo,
		Kind:          audit.KindInterviewReset,
		Message:       "interview closed by administrator",
		GroupID:       groupID,
		ParticipantID: participantID,
		Attrs:         map[string]string{"session_id": s.ID.String(), "stage": "closed"},
	})
	return s, nil
}

// current loads the session an event applies to. done is true when the pair
// only has a completed session, in which case events are no-ops.
func (m *Machine) current(ctx context.Context, groupID, participantID string) (*Session, bool, error) {
	s, err := m.sessions.Latest(ctx, groupID, participantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, ErrNoSession
	}
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}
	if !s.Open() {
		if s.Closed {
			return nil, false, ErrNoSession
		}
		return s, true, nil
	}
	return s, false, nil
}

// finish applies a completed session's identifier, protects it and tells the
// participant. Failures here are reported; the session is already saved.
func (m *Machine) finish(ctx context.Context, s *Session, path string) {
	m.metrics.IncCompleted(path)
	log := m.logger.With("group_id", s.GroupID, "participant_id", s.ParticipantID, "identifier", s.AssignedIdentifier)

	applyCtx, cancel := context.WithTimeout(ctx, m.applyTimeout)
	err := m.transport.Apply(applyCtx, s.GroupID, s.ParticipantID, s.AssignedIdentifier, "interview completed")
	cancel()
	if err != nil {
		log.Error("failed to apply identifier", "error", err)
		m.emit(ctx, audit.Event{
			Severity:      audit.SeverityWarning,
			Kind:          audit.KindApplyFailed,
			Message:       "identifier assigned but could not be applied; not yet protected",
			GroupID:       s.GroupID,
			ParticipantID: s.ParticipantID,
			Attrs:         map[string]string{"identifier": s.AssignedIdentifier, "error": err.Error()},
		})
	} else {
		entry := ledger.Entry{
			ParticipantID: s.ParticipantID,
			GroupID:       s.GroupID,
			Value:         s.AssignedIdentifier,
			Source:        ledger.SourceInterview,
			AssignedAt:    m.now().UTC(),
		}
		if err := m.ledger.Put(ctx, entry); err != nil {
			log.Error("failed to protect identifier", "error", err)
			m.emit(ctx, audit.Event{
				Severity:      audit.SeverityWarning,
				Kind:          audit.KindProtectFailed,
				Message:       "identifier applied but could not be protected",
				GroupID:       s.GroupID,
				ParticipantID: s.ParticipantID,
				Attrs:         map[string]string{"identifier": s.AssignedIdentifier, "path": path, "error": err.Error()},
			})
		} else {
			m.emit(ctx, audit.Event{
				Severity:      audit.SeverityInfo,
				Kind:          audit.KindIdentifierAssigned,
				Message:       "identifier assigned and protected",
				GroupID:       s.GroupID,
				ParticipantID: s.ParticipantID,
				Attrs:         map[string]string{"identifier": s.AssignedIdentifier, "path": path},
			})
			if m.announcer != nil {
				if err := m.announcer.AnnounceAssigned(ctx, s.GroupID, s.ParticipantID, s.AssignedIdentifier); err != nil {
					log.Warn("failed to announce assignment", "error", err)
				}
			}
		}
	}
	log.Info("interview completed", "path", path)

	m.send(ctx, Prompt{
		GroupID:       s.GroupID,
		ParticipantID: s.ParticipantID,
		Kind:          PromptCompletion,
		Text:          m.describe(ctx, s),
	})
}

func (m *Machine) describe(ctx context.Context, s *Session) string {
	fallback := assignedLabel + s.AssignedIdentifier + "." + lockedSuffix
	if m.narrator == nil {
		return fallback
	}
	text, err := m.narrator.Describe(ctx, Summary{
		GroupID:       s.GroupID,
		ParticipantID: s.ParticipantID,
		Identifier:    s.AssignedIdentifier,
		AlternatePath: s.AlternatePath,
		Dominant:      s.Scores.Dominant(),
		Scores:        s.Scores,
	})
	if err != nil || text == "" {
		if err != nil {
			m.logger.Warn("narrator failed, using template", "participant_id", s.ParticipantID, "error", err)
		}
		return fallback
	}
	return text + "\n\n" + fallback
}

// send delivers a prompt and reports success. Transport errors count as not
// delivered.
func (m *Machine) send(ctx context.Context, p Prompt) bool {
	delivered, err := m.transport.SendInteractive(ctx, p)
	if err != nil {
		m.logger.Warn("failed to send prompt",
			"group_id", p.GroupID,
			"participant_id", p.ParticipantID,
			"kind", string(p.Kind),
			"error", err,
		)
		return false
	}
	return delivered
}

func (m *Machine) emit(ctx context.Context, e audit.Event) {
	if m.auditor == nil {
		return
	}
	if err := m.auditor.Emit(ctx, e); err != nil {
		m.logger.Warn("failed to emit operator event", "kind", e.Kind, "error", err)
	}
}

func questionPrompt(groupID, participantID string, index int) Prompt {
	return Prompt{
		GroupID:       groupID,
		ParticipantID: participantID,
		Kind:          PromptQuestion,
		QuestionIndex: index,
		Text:          fmt.Sprintf("%d/%d. %s %s", index+1, profile.QuestionCount, questions[index], questionHint),
		Choices:       answerChoices,
	}
}
