package callsign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/moniker/internal/metrics"
	"github.com/MikeSquared-Agency/moniker/internal/profile"
	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
)

// DefaultMaxAttempts bounds canonical candidate attempts before the random
// draw.
const DefaultMaxAttempts = 64

// fallbackTries bounds how many timestamp suffixes are tried before giving up.
const fallbackTries = 16

// ErrExhausted is returned only when even fallback values keep colliding.
var ErrExhausted = errors.New("identifier space exhausted")

// Source records which path minted an identifier.
type Source string

const (
	SourceCanonical Source = "canonical"
	SourceRandom    Source = "random"
	SourceFallback  Source = "fallback"
)

// Record is a permanently reserved identifier.
type Record struct {
	Identifier    string
	GroupID       string
	ParticipantID string
	SessionID     uuid.UUID
	Profile       profile.Profile
	Source        Source
	Attempts      int
	AssignedAt    time.Time
}

// RecordStore is the single point of truth for identifier uniqueness.
type RecordStore interface {
	// InsertIfAbsent stores rec unless a record with the same identifier
	// exists; it reports whether the insert happened. It must be atomic per
	// identifier.
	InsertIfAbsent(ctx context.Context, rec Record) (bool, error)
	// BySession returns the record allocated for a session, or
	// sentinel.ErrNotFound.
	BySession(ctx context.Context, sessionID uuid.UUID) (Record, error)
}

// Directory lists the identifiers currently displayed in a group.
type Directory interface {
	Displayed(ctx context.Context, groupID string) ([]string, error)
}

// Request describes one allocation.
type Request struct {
	GroupID       string
	ParticipantID string
	SessionID     uuid.UUID
	Profile       profile.Profile
}

type Generator struct {
	records     RecordStore
	directory   Directory
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxAttempts int
	intN        func(int) int
	now         func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

func WithDirectory(d Directory) Option { return func(g *Generator) { g.directory = d } }

func WithMetrics(m *metrics.Metrics) Option { return func(g *Generator) { g.metrics = m } }

func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithRandom replaces the uniform draw used after canonical attempts run out.
func WithRandom(intN func(int) int) Option { return func(g *Generator) { g.intN = intN } }

func WithClock(now func() time.Time) Option { return func(g *Generator) { g.now = now } }

func New(records RecordStore, logger *slog.Logger, opts ...Option) *Generator {
	g := &Generator{
		records:     records,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		intN:        rand.IntN,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Allocate returns a unique identifier for req and records it before
// returning. Calling it again for the same session returns the same record.
func (g *Generator) Allocate(ctx context.Context, req Request) (Record, error) {
	if req.SessionID != uuid.Nil {
		rec, err := g.records.BySession(ctx, req.SessionID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return Record{}, fmt.Errorf("lookup session record: %w", err)
		}
	}

	displayed, err := g.displayed(ctx, req.GroupID)
	if err != nil {
		return Record{}, err
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		candidate := Candidate(req.Profile.Scores, attempt)
		rec, ok, err := g.claim(ctx, req, candidate, SourceCanonical, attempt, displayed)
		if err != nil {
			return Record{}, err
		}
		if ok {
			return rec, nil
		}
		g.logger.Debug("identifier candidate rejected",
			"group_id", req.GroupID,
			"participant_id", req.ParticipantID,
			"candidate", candidate,
			"attempt", attempt,
		)
	}

	attempts := g.maxAttempts + 1
	candidate := FromIndex(g.intN(SpaceSize))
	rec, ok, err := g.claim(ctx, req, candidate, SourceRandom, attempts, displayed)
	if err != nil {
		return Record{}, err
	}
	if ok {
		g.logger.Warn("canonical identifier attempts exhausted, used random draw",
			"group_id", req.GroupID,
			"participant_id", req.ParticipantID,
			"identifier", candidate,
		)
		return rec, nil
	}

	base := g.now().UnixNano()
	for i := range fallbackTries {
		attempts++
		candidate := fmt.Sprintf("%s%s%d", FallbackTag, Separator, base+int64(i))
		rec, ok, err := g.claim(ctx, req, candidate, SourceFallback, attempts, displayed)
		if err != nil {
			return Record{}, err
		}
		if ok {
			g.logger.Warn("identifier space anomaly, minted fallback outside canonical space",
				"group_id", req.GroupID,
				"participant_id", req.ParticipantID,
				"identifier", candidate,
			)
			return rec, nil
		}
	}

	return Record{}, fmt.Errorf("allocate identifier for %s: %w", req.ParticipantID, ErrExhausted)
}

// claim rejects candidates that are on display in the group, then tries the
// atomic insert.
func (g *Generator) claim(ctx context.Context, req Request, candidate string, source Source, attempts int, displayed map[string]struct{}) (Record, bool, error) {
	if _, taken := displayed[candidate]; taken {
		return Record{}, false, nil
	}
	rec := Record{
		Identifier:    candidate,
		GroupID:       req.GroupID,
		ParticipantID: req.ParticipantID,
		SessionID:     req.SessionID,
		Profile:       req.Profile,
		Source:        source,
		Attempts:      attempts,
		AssignedAt:    g.now().UTC(),
	}
	inserted, err := g.records.InsertIfAbsent(ctx, rec)
	if err != nil {
		return Record{}, false, fmt.Errorf("record identifier: %w", err)
	}
	if inserted {
		g.metrics.ObserveAllocation(string(source), attempts)
	}
	return rec, inserted, nil
}

func (g *Generator) displayed(ctx context.Context, groupID string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	if g.directory == nil {
		return set, nil
	}
	ids, err := g.directory.Displayed(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list displayed identifiers: %w", err)
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
