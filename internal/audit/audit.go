// Package audit records operator-facing events. Every event is logged; events
// are also published for downstream consumers, and critical ones are escalated
// to a human channel.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SubjectOperatorEvent is where events are published.
const SubjectOperatorEvent = "moniker.operator.event"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event kinds emitted by the service.
const (
	KindDeliveryFailed     = "interview_delivery_failed"
	KindApplyFailed        = "identifier_apply_failed"
	KindProtectFailed      = "identifier_protect_failed"
	KindIdentifierAssigned = "identifier_assigned"
	KindIdentifierReverted = "identifier_reverted"
	KindRevertFailed       = "identifier_revert_failed"
	KindInterviewReset     = "interview_reset"
	KindProtectionChanged  = "protection_changed"
)

type Event struct {
	Severity      Severity          `json:"severity"`
	Kind          string            `json:"kind"`
	Message       string            `json:"message"`
	ParticipantID string            `json:"participant_id,omitempty"`
	GroupID       string            `json:"group_id,omitempty"`
	Attrs         map[string]string `json:"attrs,omitempty"`
	At            time.Time         `json:"at"`
}

// Publisher is satisfied by hermes.Client.
type Publisher interface {
	Publish(subject string, data any) error
}

// Alerter escalates critical events to humans.
type Alerter interface {
	PostAlert(ctx context.Context, e Event) error
}

// Dispatcher fans an event out to the log, the bus and, for critical events,
// the alert channel. Publisher and Alerter are optional.
type Dispatcher struct {
	publisher Publisher
	alerter   Alerter
	logger    *slog.Logger
	now       func() time.Time
}

func NewDispatcher(p Publisher, a Alerter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{publisher: p, alerter: a, logger: logger, now: time.Now}
}

// Emit never drops the log line; bus and alert failures are returned joined.
func (d *Dispatcher) Emit(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = d.now().UTC()
	}

	attrs := []any{
		"kind", e.Kind,
		"severity", string(e.Severity),
		"participant_id", e.ParticipantID,
		"group_id", e.GroupID,
	}
	for k, v := range e.Attrs {
		attrs = append(attrs, k, v)
	}
	d.logger.Log(ctx, level(e.Severity), e.Message, attrs...)

	var errs []error
	if d.publisher != nil {
		if err := d.publisher.Publish(SubjectOperatorEvent, e); err != nil {
			errs = append(errs, fmt.Errorf("publish operator event: %w", err))
		}
	}
	if e.Severity == SeverityCritical && d.alerter != nil {
		if err := d.alerter.PostAlert(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("post alert: %w", err))
		}
	}
	return errors.Join(errs...)
}

func level(s Severity) slog.Level {
	switch s {
	case SeverityCritical:
		return slog.LevelError
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
