// Package admin is the operator surface: starting and resetting interviews
// and managing protection entries by hand.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/moniker/internal/audit"
	"github.com/MikeSquared-Agency/moniker/internal/callsign"
	"github.com/MikeSquared-Agency/moniker/internal/interview"
	"github.com/MikeSquared-Agency/moniker/internal/ledger"
	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
)

// ErrEmptyValue is returned when an override has no value.
var ErrEmptyValue = fmt.Errorf("identifier value is required: %w", sentinel.ErrInvalidState)

// Interviews is implemented by interview.Machine.
type Interviews interface {
	ForceStart(ctx context.Context, groupID, participantID string) (*interview.Session, error)
	Reset(ctx context.Context, groupID, participantID string) (*interview.Session, error)
	Session(ctx context.Context, groupID, participantID string) (*interview.Session, error)
}

// Records looks up stored sessions and identifier records. store.Store and
// store.Memory implement it.
type Records interface {
	StalledSessions(ctx context.Context, groupID string) ([]*interview.Session, error)
	ByIdentifier(ctx context.Context, identifier string) (callsign.Record, error)
}

// Platform applies identifiers and reports what a participant displays.
type Platform interface {
	Apply(ctx context.Context, groupID, participantID, value, reason string) error
	Current(ctx context.Context, groupID, participantID string) (string, error)
}

type Auditor interface {
	Emit(ctx context.Context, e audit.Event) error
}

type Service struct {
	interviews Interviews
	records    Records
	ledger     ledger.Ledger
	platform   Platform
	auditor    Auditor
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(interviews Interviews, records Records, l ledger.Ledger, platform Platform, auditor Auditor, logger *slog.Logger) *Service {
	return &Service{
		interviews: interviews,
		records:    records,
		ledger:     l,
		platform:   platform,
		auditor:    auditor,
		logger:     logger,
		now:        time.Now,
	}
}

// OverrideResult reports an override and whether the platform took it.
type OverrideResult struct {
	Entry      ledger.Entry `json:"entry"`
	Applied    bool         `json:"applied"`
	ApplyError string       `json:"apply_error,omitempty"`
}

func (s *Service) ForceStartInterview(ctx context.Context, groupID, participantID string) (*interview.Session, error) {
	sess, err := s.interviews.ForceStart(ctx, groupID, participantID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("interview force-started", "group_id", groupID, "participant_id", participantID, "session_id", sess.ID)
	return sess, nil
}

func (s *Service) ResetInterview(ctx context.Context, groupID, participantID string) (*interview.Session, error) {
	return s.interviews.Reset(ctx, groupID, participantID)
}

func (s *Service) Session(ctx context.Context, groupID, participantID string) (*interview.Session, error) {
	return s.interviews.Session(ctx, groupID, participantID)
}

// StalledInterviews lists the group's open interviews whose opening prompt
// never reached the participant. ForceStartInterview resumes one.
func (s *Service) StalledInterviews(ctx context.Context, groupID string) ([]*interview.Session, error) {
	sessions, err := s.records.StalledSessions(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list stalled interviews: %w", err)
	}
	if sessions == nil {
		sessions = []*interview.Session{}
	}
	return sessions, nil
}

// LookupIdentifier returns who holds a generated identifier.
func (s *Service) LookupIdentifier(ctx context.Context, identifier string) (callsign.Record, error) {
	return s.records.ByIdentifier(ctx, strings.TrimSpace(identifier))
}

// OverrideProtection replaces the protected value and pushes it to the
// platform. The ledger is written first so the resulting change notification
// matches the protected value.
func (s *Service) OverrideProtection(ctx context.Context, groupID, participantID, value string) (OverrideResult, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return OverrideResult{}, ErrEmptyValue
	}
	entry := ledger.Entry{
		ParticipantID: participantID,
		GroupID:       groupID,
		Value:         value,
		Source:        ledger.SourceOverride,
		AssignedAt:    s.now().UTC(),
	}
	if err := s.ledger.Put(ctx, entry); err != nil {
		return OverrideResult{}, fmt.Errorf("write protection entry: %w", err)
	}

	res := OverrideResult{Entry: entry, Applied: true}
	if err := s.platform.Apply(ctx, groupID, participantID, value, "administrative override"); err != nil {
		s.logger.Error("failed to apply override", "group_id", groupID, "participant_id", participantID, "error", err)
		res.Applied = false
		res.ApplyError = err.Error()
	}
	s.emit(ctx, entry, "protection overridden by administrator")
	return res, nil
}

// RemoveProtection drops the entry; later changes go unchecked.
func (s *Service) RemoveProtection(ctx context.Context, groupID, participantID string) error {
	if err := s.ledger.Remove(ctx, groupID, participantID); err != nil {
		return err
	}
	s.emit(ctx, ledger.Entry{GroupID: groupID, ParticipantID: participantID}, "protection removed by administrator")
	return nil
}

// QueryProtectionStatus returns the entry, or nil when the participant is
// not protected.
func (s *Service) QueryProtectionStatus(ctx context.Context, groupID, participantID string) (*ledger.Entry, error) {
	entry, err := s.ledger.Get(ctx, groupID, participantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Service) ListProtections(ctx context.Context, groupID string) ([]ledger.Entry, error) {
	return s.ledger.List(ctx, groupID)
}

// LockCurrentValue protects whatever the participant displays right now.
func (s *Service) LockCurrentValue(ctx context.Context, groupID, participantID string) (ledger.Entry, error) {
	current, err := s.platform.Current(ctx, groupID, participantID)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("look up current identifier: %w", err)
	}
	entry := ledger.Entry{
		ParticipantID: participantID,
		GroupID:       groupID,
		Value:         current,
		Source:        ledger.SourceLock,
		AssignedAt:    s.now().UTC(),
	}
	if err := s.ledger.Put(ctx, entry); err != nil {
		return ledger.Entry{}, fmt.Errorf("write protection entry: %w", err)
	}
	s.emit(ctx, entry, "current identifier locked by administrator")
	return entry, nil
}

func (s *Service) emit(ctx context.Context, entry ledger.Entry, message string) {
	attrs := map[string]string{}
	if entry.Value != "" {
		attrs["value"] = entry.Value
		attrs["source"] = string(entry.Source)
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Severity:      audit.SeverityInfo,
		Kind:          audit.KindProtectionChanged,
		Message:       message,
		GroupID:       entry.GroupID,
		ParticipantID: entry.ParticipantID,
		Attrs:         attrs,
	})
	if err != nil {
		s.logger.Warn("failed to emit operator event", "kind", audit.KindProtectionChanged, "error", err)
	}
}
