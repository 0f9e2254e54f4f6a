// Package monitor guards protected identifiers. Every identity-change
// notification from the platform is checked against the ledger; a change
// nobody privileged made is reverted and the participant is warned.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/moniker/internal/audit"
	"github.com/MikeSquared-Agency/moniker/internal/keylock"
	"github.com/MikeSquared-Agency/moniker/internal/ledger"
	"github.com/MikeSquared-Agency/moniker/internal/metrics"
	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
)

// ActionIdentityUpdate is the action kind the oracle is asked about.
const ActionIdentityUpdate = "member_identity_update"

// Privilege is the standing of whoever performed an action.
type Privilege string

const (
	PrivilegeSystem   Privilege = "system"
	PrivilegeOwner    Privilege = "owner"
	PrivilegeElevated Privilege = "elevated"
	PrivilegeOrdinary Privilege = "ordinary"
)

// Authorized reports whether the privilege may change a protected identifier.
func (p Privilege) Authorized() bool {
	switch p {
	case PrivilegeSystem, PrivilegeOwner, PrivilegeElevated:
		return true
	}
	return false
}

// Attribution names the actor behind a recent action.
type Attribution struct {
	ActorID   string    `json:"actor_id"`
	Privilege Privilege `json:"privilege"`
}

// Oracle looks up who most recently performed an action on a participant.
// A nil attribution with a nil error means nothing was found in the window.
type Oracle interface {
	RecentActor(ctx context.Context, participantID, groupID, kind string, window time.Duration) (*Attribution, error)
}

// Applier sets a participant's displayed identifier.
type Applier interface {
	Apply(ctx context.Context, groupID, participantID, value, reason string) error
}

// Warner sends a one-way message to a participant.
type Warner interface {
	WarnParticipant(ctx context.Context, groupID, participantID, message string) error
}

// Announcer tells other services a protected identifier was restored.
type Announcer interface {
	AnnounceReverted(ctx context.Context, groupID, participantID, restored, attempted string) error
}

type Auditor interface {
	Emit(ctx context.Context, e audit.Event) error
}

// IdentityChanged is the platform's notification that a displayed identifier
// changed.
type IdentityChanged struct {
	GroupID       string `json:"group_id"`
	ParticipantID string `json:"participant_id"`
	OldValue      string `json:"old_value"`
	NewValue      string `json:"new_value"`
}

type Outcome string

const (
	OutcomeUnchanged    Outcome = "unchanged"
	OutcomeUntracked    Outcome = "untracked"
	OutcomeRestored     Outcome = "restored"
	OutcomeAccepted     Outcome = "accepted"
	OutcomeReverted     Outcome = "reverted"
	OutcomeRevertFailed Outcome = "revert_failed"
)

const warningText = "Your identifier is protected and has been restored. Ask a moderator if it needs to change."

type Monitor struct {
	ledger    ledger.Ledger
	oracle    Oracle
	applier   Applier
	warner    Warner
	auditor   Auditor
	announcer Announcer
	metrics   *metrics.Metrics
	logger    *slog.Logger

	window        time.Duration
	oracleTimeout time.Duration
	applyTimeout  time.Duration
	now           func() time.Time
	locks         *keylock.Map
}

type Option func(*Monitor)

func WithAnnouncer(a Announcer) Option { return func(mon *Monitor) { mon.announcer = a } }

func WithMetrics(m *metrics.Metrics) Option { return func(mon *Monitor) { mon.metrics = m } }

// WithWindow sets how far back the oracle looks for the responsible actor.
func WithWindow(d time.Duration) Option {
	return func(mon *Monitor) {
		if d > 0 {
			mon.window = d
		}
	}
}

func WithOracleTimeout(d time.Duration) Option {
	return func(mon *Monitor) {
		if d > 0 {
			mon.oracleTimeout = d
		}
	}
}

func WithApplyTimeout(d time.Duration) Option {
	return func(mon *Monitor) {
		if d > 0 {
			mon.applyTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(mon *Monitor) { mon.now = now } }

func New(l ledger.Ledger, oracle Oracle, applier Applier, warner Warner, auditor Auditor, logger *slog.Logger, opts ...Option) *Monitor {
	mon := &Monitor{
		ledger:        l,
		oracle:        oracle,
		applier:       applier,
		warner:        warner,
		auditor:       auditor,
		logger:        logger,
		window:        5 * time.Second,
		oracleTimeout: 2 * time.Second,
		applyTimeout:  5 * time.Second,
		now:           time.Now,
		locks:         keylock.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mon)
		}
	}
	return mon
}

// Observe decides what to do about one identity change and does it.
// Notifications for the same participant are handled one at a time.
func (m *Monitor) Observe(ctx context.Context, ev IdentityChanged) (Outcome, error) {
	if ev.OldValue == ev.NewValue {
		m.metrics.IncOutcome(string(OutcomeUnchanged))
		return OutcomeUnchanged, nil
	}

	defer m.locks.Lock(keylock.Key(ev.GroupID, ev.ParticipantID))()

	entry, err := m.ledger.Get(ctx, ev.GroupID, ev.ParticipantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		m.metrics.IncOutcome(string(OutcomeUntracked))
		return OutcomeUntracked, nil
	}
	if err != nil {
		return "", fmt.Errorf("load protection entry: %w", err)
	}

	log := m.logger.With(
		"group_id", ev.GroupID,
		"participant_id", ev.ParticipantID,
		"identifier", entry.Value,
		"attempted", ev.NewValue,
	)

	if ev.NewValue == entry.Value {
		m.metrics.IncOutcome(string(OutcomeRestored))
		log.Debug("identifier back at protected value")
		return OutcomeRestored, nil
	}

	if actor, ok := m.authorized(ctx, ev, log); ok {
		entry.Value = ev.NewValue
		entry.AssignedAt = m.now().UTC()
		if err := m.ledger.Put(ctx, entry); err != nil {
			return "", fmt.Errorf("refresh protection entry: %w", err)
		}
		log.Info("authorized identifier change accepted", "actor_id", actor.ActorID, "privilege", string(actor.Privilege))
		m.metrics.IncOutcome(string(OutcomeAccepted))
		return OutcomeAccepted, nil
	}

	return m.revert(ctx, ev, entry, log), nil
}

// authorized fails closed: a slow, failing or empty oracle means no.
func (m *Monitor) authorized(ctx context.Context, ev IdentityChanged, log *slog.Logger) (*Attribution, bool) {
	if m.oracle == nil {
		return nil, false
	}
	octx, cancel := context.WithTimeout(ctx, m.oracleTimeout)
	defer cancel()

	start := m.now()
	actor, err := m.oracle.RecentActor(octx, ev.ParticipantID, ev.GroupID, ActionIdentityUpdate, m.window)
	m.metrics.ObserveOracleLatency(m.now().Sub(start))
	if err != nil {
		log.Warn("authorization lookup failed, treating change as unauthorized", "error", err)
		return nil, false
	}
	if actor == nil {
		log.Info("no actor recorded for identifier change")
		return nil, false
	}
	if !actor.Privilege.Authorized() {
		log.Info("identifier change by unprivileged actor", "actor_id", actor.ActorID, "privilege", string(actor.Privilege))
		return actor, false
	}
	return actor, true
}

func (m *Monitor) revert(ctx context.Context, ev IdentityChanged, entry ledger.Entry, log *slog.Logger) Outcome {
	actx, cancel := context.WithTimeout(ctx, m.applyTimeout)
	err := m.applier.Apply(actx, ev.GroupID, ev.ParticipantID, entry.Value, "protected identifier restored")
	cancel()

	attrs := map[string]string{
		"attempted_value": ev.NewValue,
		"restored_value":  entry.Value,
		"ledger_source":   string(entry.Source),
	}

	if err != nil {
		log.Error("failed to revert identifier", "error", err)
		attrs["error"] = err.Error()
		m.emit(ctx, log, audit.Event{
			Severity:      audit.SeverityCritical,
			Kind:          audit.KindRevertFailed,
			Message:       "unauthorized identifier change could not be reverted; manual action needed",
			GroupID:       ev.GroupID,
			ParticipantID: ev.ParticipantID,
			Attrs:         attrs,
		})
		m.metrics.IncOutcome(string(OutcomeRevertFailed))
		return OutcomeRevertFailed
	}

	if m.warner != nil {
		if err := m.warner.WarnParticipant(ctx, ev.GroupID, ev.ParticipantID, warningText); err != nil {
			log.Warn("failed to warn participant", "error", err)
		}
	}
	m.emit(ctx, log, audit.Event{
		Severity:      audit.SeverityInfo,
		Kind:          audit.KindIdentifierReverted,
		Message:       "unauthorized identifier change reverted",
		GroupID:       ev.GroupID,
		ParticipantID: ev.ParticipantID,
		Attrs:         attrs,
	})
	if m.announcer != nil {
		if err := m.announcer.AnnounceReverted(ctx, ev.GroupID, ev.ParticipantID, entry.Value, ev.NewValue); err != nil {
			log.Warn("failed to announce revert", "error", err)
		}
	}
	log.Info("unauthorized identifier change reverted")
	m.metrics.IncOutcome(string(OutcomeReverted))
	return OutcomeReverted
}

func (m *Monitor) emit(ctx context.Context, log *slog.Logger, e audit.Event) {
	if m.auditor == nil {
		return
	}
	if err := m.auditor.Emit(ctx, e); err != nil {
		log.Warn("failed to emit operator event", "kind", e.Kind, "error", err)
	}
}
