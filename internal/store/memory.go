package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/moniker/internal/callsign"
	"github.com/MikeSquared-Agency/moniker/internal/interview"
	"github.com/MikeSquared-Agency/moniker/internal/profile"
	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
)

// Memory is an in-process store with the same guarantees as the Postgres
// one. It backs the tests of every package that needs sessions or records.
type Memory struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*interview.Session
	order    []uuid.UUID
	records  map[string]callsign.Record
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[uuid.UUID]*interview.Session),
		records:  make(map[string]callsign.Record),
	}
}

func (m *Memory) Create(_ context.Context, sess *interview.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if samePair(existing, sess) && existing.Open() {
			return sentinel.ErrConflict
		}
	}
	m.sessions[sess.ID] = copySession(sess)
	m.order = append(m.order, sess.ID)
	return nil
}

func (m *Memory) Save(_ context.Context, sess *interview.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.ID]; !ok {
		return sentinel.ErrNotFound
	}
	m.sessions[sess.ID] = copySession(sess)
	return nil
}

func (m *Memory) Open(_ context.Context, groupID, participantID string) (*interview.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		s := m.sessions[id]
		if s.GroupID == groupID && s.ParticipantID == participantID && s.Open() {
			return copySession(s), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (m *Memory) Latest(_ context.Context, groupID, participantID string) (*interview.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		s := m.sessions[m.order[i]]
		if s.GroupID == groupID && s.ParticipantID == participantID {
			return copySession(s), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (m *Memory) StalledSessions(_ context.Context, groupID string) ([]*interview.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*interview.Session
	for _, id := range m.order {
		s := m.sessions[id]
		if s.GroupID == groupID && s.DeliveryFailed && s.Stage != interview.StageCompleted {
			out = append(out, copySession(s))
		}
	}
	return out, nil
}

func (m *Memory) InsertIfAbsent(_ context.Context, rec callsign.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Identifier]; ok {
		return false, nil
	}
	if rec.SessionID != uuid.Nil {
		for _, existing := range m.records {
			if existing.SessionID == rec.SessionID {
				return false, sentinel.ErrConflict
			}
		}
	}
	m.records[rec.Identifier] = rec
	return true, nil
}

func (m *Memory) BySession(_ context.Context, sessionID uuid.UUID) (callsign.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.SessionID == sessionID {
			return rec, nil
		}
	}
	return callsign.Record{}, sentinel.ErrNotFound
}

func (m *Memory) ByIdentifier(_ context.Context, identifier string) (callsign.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[identifier]
	if !ok {
		return callsign.Record{}, sentinel.ErrNotFound
	}
	return rec, nil
}

func samePair(a, b *interview.Session) bool {
	return a.GroupID == b.GroupID && a.ParticipantID == b.ParticipantID
}

func copySession(s *interview.Session) *interview.Session {
	c := *s
	c.Answers = append([]profile.Answer(nil), s.Answers...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
