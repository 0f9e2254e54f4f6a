// Package ledger is the protection registry: which identifier is enforced for
// each participant of a group.
package ledger

import (
	"context"
	"time"
)

// Source records why an entry exists.
type Source string

const (
	SourceInterview Source = "interview_assignment"
	SourceOverride  Source = "administrative_override"
	SourceLock      Source = "manual_current_value_lock"
)

// Entry is the enforced identifier for one (participant, group) pair.
type Entry struct {
	ParticipantID string    `json:"participant_id"`
	GroupID       string    `json:"group_id"`
	Value         string    `json:"value"`
	Source        Source    `json:"source"`
	AssignedAt    time.Time `json:"assigned_at"`
}

// Ledger stores one entry per (participant, group); Put overwrites
// (last writer wins). Get and Remove return sentinel.ErrNotFound for unknown
// pairs.
type Ledger interface {
	Get(ctx context.Context, groupID, participantID string) (Entry, error)
	Put(ctx context.Context, e Entry) error
	Remove(ctx context.Context, groupID, participantID string) error
	List(ctx context.Context, groupID string) ([]Entry, error)
}
