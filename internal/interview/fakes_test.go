package interview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/moniker/internal/audit"
	"github.com/MikeSquared-Agency/moniker/internal/callsign"
	"github.com/MikeSquared-Agency/moniker/internal/keylock"
	"github.com/MikeSquared-Agency/moniker/internal/ledger"
	"github.com/MikeSquared-Agency/moniker/internal/profile"
	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cloneSession(s *Session) *Session {
	c := *s
	c.Answers = append([]profile.Answer(nil), s.Answers...)
	return &c
}

// fakeSessions keeps every session per pair in creation order and hands out
// copies so unsaved mutations never leak back.
type fakeSessions struct {
	mu      sync.Mutex
	byPair  map[string][]*Session
	saves   int
	saveErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byPair: make(map[string][]*Session)}
}

func (f *fakeSessions) Create(_ context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := keylock.Key(s.GroupID, s.ParticipantID)
	for _, existing := range f.byPair[key] {
		if existing.Open() {
			return sentinel.ErrConflict
		}
	}
	f.byPair[key] = append(f.byPair[key], cloneSession(s))
	return nil
}

func (f *fakeSessions) Save(_ context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	key := keylock.Key(s.GroupID, s.ParticipantID)
	for i, existing := range f.byPair[key] {
		if existing.ID == s.ID {
			f.byPair[key][i] = cloneSession(s)
			f.saves++
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (f *fakeSessions) Open(_ context.Context, groupID, participantID string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byPair[keylock.Key(groupID, participantID)] {
		if s.Open() {
			return cloneSession(s), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (f *fakeSessions) Latest(_ context.Context, groupID, participantID string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.byPair[keylock.Key(groupID, participantID)]
	if len(list) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return cloneSession(list[len(list)-1]), nil
}

func (f *fakeSessions) count(groupID, participantID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byPair[keylock.Key(groupID, participantID)])
}

type fakeRecords struct {
	mu   sync.Mutex
	byID map[string]callsign.Record
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{byID: make(map[string]callsign.Record)}
}

func (f *fakeRecords) InsertIfAbsent(_ context.Context, rec callsign.Record) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[rec.Identifier]; ok {
		return false, nil
	}
	f.byID[rec.Identifier] = rec
	return true, nil
}

func (f *fakeRecords) BySession(_ context.Context, id uuid.UUID) (callsign.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.byID {
		if rec.SessionID == id {
			return rec, nil
		}
	}
	return callsign.Record{}, sentinel.ErrNotFound
}

type failingAllocator struct{ err error }

func (a failingAllocator) Allocate(context.Context, callsign.Request) (callsign.Record, error) {
	return callsign.Record{}, a.err
}

type appliedValue struct {
	GroupID, ParticipantID, Value string
}

type fakeTransport struct {
	mu          sync.Mutex
	prompts     []Prompt
	applied     []appliedValue
	undelivered bool
	sendErr     error
	applyErr    error
}

func (t *fakeTransport) SendInteractive(_ context.Context, p Prompt) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return false, t.sendErr
	}
	t.prompts = append(t.prompts, p)
	return !t.undelivered, nil
}

func (t *fakeTransport) Apply(_ context.Context, groupID, participantID, value, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.applyErr != nil {
		return t.applyErr
	}
	t.applied = append(t.applied, appliedValue{groupID, participantID, value})
	return nil
}

func (t *fakeTransport) last() Prompt {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.prompts) == 0 {
		return Prompt{}
	}
	return t.prompts[len(t.prompts)-1]
}

type fakeDirectory struct{ ids []string }

func (d fakeDirectory) Displayed(context.Context, string) ([]string, error) { return d.ids, nil }

type fakeAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *fakeAuditor) Emit(_ context.Context, e audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *fakeAuditor) kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Kind)
	}
	return out
}

type fakeNarrator struct {
	text string
	err  error
}

func (n fakeNarrator) Describe(context.Context, Summary) (string, error) { return n.text, n.err }

var errBoom = errors.New("boom")

type fakeAnnouncer struct {
	mu        sync.Mutex
	announced []string
}

func (a *fakeAnnouncer) AnnounceAssigned(_ context.Context, _, _, identifier string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.announced = append(a.announced, identifier)
	return nil
}

// unwritableLedger reads like a memory ledger but refuses every write.
type unwritableLedger struct {
	*ledger.Memory
	err error
}

func (l unwritableLedger) Put(context.Context, ledger.Entry) error { return l.err }
