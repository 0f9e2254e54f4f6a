package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/moniker/internal/interview"
	"github.com/MikeSquared-Agency/moniker/internal/monitor"
	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
)

const defaultRequestTimeout = 3 * time.Second

// Bus is the subset of hermes.Client the gateway needs.
type Bus interface {
	Publish(subject string, data any) error
	Request(ctx context.Context, subject string, data, out any) error
}

// Client implements the interview transport and directory plus the
// monitor's oracle, applier and warner over the gateway subjects.
type Client struct {
	bus     Bus
	logger  *slog.Logger
	timeout time.Duration
}

func NewClient(bus Bus, logger *slog.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{bus: bus, logger: logger, timeout: timeout}
}

type sendReply struct {
	Delivered bool `json:"delivered"`
}

// SendInteractive asks the gateway to show p to the participant.
func (c *Client) SendInteractive(ctx context.Context, p interview.Prompt) (bool, error) {
	var reply sendReply
	if err := c.request(ctx, SubjectSend, p, &reply); err != nil {
		return false, err
	}
	return reply.Delivered, nil
}

type applyRequest struct {
	GroupID       string `json:"group_id"`
	ParticipantID string `json:"participant_id"`
	Value         string `json:"value"`
	Reason        string `json:"reason"`
}

type applyReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Apply sets the participant's displayed identifier on the platform.
func (c *Client) Apply(ctx context.Context, groupID, participantID, value, reason string) error {
	var reply applyReply
	req := applyRequest{GroupID: groupID, ParticipantID: participantID, Value: value, Reason: reason}
	if err := c.request(ctx, SubjectApply, req, &reply); err != nil {
		return err
	}
	if !reply.OK {
		msg := reply.Error
		if msg == "" {
			msg = "rejected by platform"
		}
		return fmt.Errorf("apply identifier: %s", msg)
	}
	return nil
}

type directoryRequest struct {
	GroupID       string `json:"group_id"`
	ParticipantID string `json:"participant_id,omitempty"`
}

type directoryReply struct {
	Identifiers []string `json:"identifiers"`
}

// Displayed lists the identifiers currently shown in a group.
func (c *Client) Displayed(ctx context.Context, groupID string) ([]string, error) {
	var reply directoryReply
	if err := c.request(ctx, SubjectDirectory, directoryRequest{GroupID: groupID}, &reply); err != nil {
		return nil, err
	}
	return reply.Identifiers, nil
}

// ErrUnknownParticipant is returned by Current when the gateway does not know
// the participant.
var ErrUnknownParticipant = fmt.Errorf("participant not found in group: %w", sentinel.ErrNotFound)

// Current returns one participant's displayed identifier.
func (c *Client) Current(ctx context.Context, groupID, participantID string) (string, error) {
	var reply directoryReply
	if err := c.request(ctx, SubjectDirectory, directoryRequest{GroupID: groupID, ParticipantID: participantID}, &reply); err != nil {
		return "", err
	}
	if len(reply.Identifiers) == 0 {
		return "", ErrUnknownParticipant
	}
	return reply.Identifiers[0], nil
}

type auditRequest struct {
	GroupID       string `json:"group_id"`
	ParticipantID string `json:"participant_id"`
	Kind          string `json:"kind"`
	WindowMillis  int64  `json:"window_ms"`
}

type auditReply struct {
	Found     bool   `json:"found"`
	ActorID   string `json:"actor_id"`
	Privilege string `json:"privilege"`
}

// RecentActor asks the platform's audit log who last performed kind on the
// participant within window.
func (c *Client) RecentActor(ctx context.Context, participantID, groupID, kind string, window time.Duration) (*monitor.Attribution, error) {
	var reply auditReply
	req := auditRequest{GroupID: groupID, ParticipantID: participantID, Kind: kind, WindowMillis: window.Milliseconds()}
	if err := c.request(ctx, SubjectAuditRecent, req, &reply); err != nil {
		return nil, err
	}
	if !reply.Found {
		return nil, nil
	}
	return &monitor.Attribution{ActorID: reply.ActorID, Privilege: monitor.Privilege(reply.Privilege)}, nil
}

type warning struct {
	GroupID       string `json:"group_id"`
	ParticipantID string `json:"participant_id"`
	Message       string `json:"message"`
}

// WarnParticipant is fire-and-forget.
func (c *Client) WarnParticipant(_ context.Context, groupID, participantID, message string) error {
	return c.bus.Publish(SubjectWarn, warning{GroupID: groupID, ParticipantID: participantID, Message: message})
}

func (c *Client) request(ctx context.Context, subject string, data, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	err := c.bus.Request(ctx, subject, data, out)
	if err != nil {
		c.logger.Warn("gateway request failed", "subject", subject, "duration", time.Since(start), "error", err)
		return fmt.Errorf("gateway %s: %w: %w", subject, sentinel.ErrUnavailable, err)
	}
	return nil
}

// Assignment announces a newly applied identifier.
type Assignment struct {
	GroupID       string    `json:"group_id"`
	ParticipantID string    `json:"participant_id"`
	Identifier    string    `json:"identifier"`
	At            time.Time `json:"at"`
}

// Reversion announces a restored identifier.
type Reversion struct {
	GroupID       string    `json:"group_id"`
	ParticipantID string    `json:"participant_id"`
	Restored      string    `json:"restored"`
	Attempted     string    `json:"attempted"`
	At            time.Time `json:"at"`
}

func (c *Client) AnnounceAssigned(_ context.Context, groupID, participantID, identifier string) error {
	return c.bus.Publish(SubjectIdentityAssigned, Assignment{
		GroupID:       groupID,
		ParticipantID: participantID,
		Identifier:    identifier,
		At:            time.Now().UTC(),
	})
}

func (c *Client) AnnounceReverted(_ context.Context, groupID, participantID, restored, attempted string) error {
	return c.bus.Publish(SubjectIdentityReverted, Reversion{
		GroupID:       groupID,
		ParticipantID: participantID,
		Restored:      restored,
		Attempted:     attempted,
		At:            time.Now().UTC(),
	})
}

// ErrDisconnected reports a lost bus connection.
var ErrDisconnected = fmt.Errorf("gateway bus disconnected: %w", sentinel.ErrUnavailable)
