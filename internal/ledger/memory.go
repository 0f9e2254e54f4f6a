package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/MikeSquared-Agency/moniker/internal/keylock"
	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
)

// Memory is a process-local Ledger. Reads run concurrently; writes are
// exclusive.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, groupID, participantID string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[keylock.Key(groupID, participantID)]
	if !ok {
		return Entry{}, sentinel.ErrNotFound
	}
	return e, nil
}

func (m *Memory) Put(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[keylock.Key(e.GroupID, e.ParticipantID)] = e
	return nil
}

func (m *Memory) Remove(_ context.Context, groupID, participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := keylock.Key(groupID, participantID)
	if _, ok := m.entries[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(m.entries, key)
	return nil
}

// List returns a group's entries ordered by participant.
func (m *Memory) List(_ context.Context, groupID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for _, e := range m.entries {
		if e.GroupID == groupID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}
