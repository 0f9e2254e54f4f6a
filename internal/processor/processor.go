// Package processor routes gateway events from NATS to the interview machine
// and the protection monitor.
package processor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/moniker/internal/gateway"
	"github.com/MikeSquared-Agency/moniker/internal/interview"
	"github.com/MikeSquared-Agency/moniker/internal/keylock"
	"github.com/MikeSquared-Agency/moniker/internal/monitor"
	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
)

// SubjectGatewayEvents matches every inbound gateway event.
const SubjectGatewayEvents = gateway.SubjectEventPrefix + ">"

const (
	handlerTimeout     = 30 * time.Second
	defaultConcurrency = 64
)

// Interviewer is implemented by interview.Machine.
type Interviewer interface {
	Handle(ctx context.Context, ev interview.Event) (*interview.Session, error)
}

// Observer is implemented by monitor.Monitor.
type Observer interface {
	Observe(ctx context.Context, ev monitor.IdentityChanged) (monitor.Outcome, error)
}

// Processor is the NATS handler for gateway events. Events for one
// participant run in arrival order; different participants run in parallel,
// up to the configured number of workers.
type Processor struct {
	interviews Interviewer
	monitor    Observer
	logger     *slog.Logger

	workers *errgroup.Group
	mu      sync.Mutex
	queues  map[string][]func()
}

// Option configures a Processor.
type Option func(*Processor)

// WithConcurrency bounds how many participants are handled at once.
func WithConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers.SetLimit(n)
		}
	}
}

func New(interviews Interviewer, mon Observer, logger *slog.Logger, opts ...Option) *Processor {
	p := &Processor{
		interviews: interviews,
		monitor:    mon,
		logger:     logger,
		workers:    new(errgroup.Group),
		queues:     make(map[string][]func()),
	}
	p.workers.SetLimit(defaultConcurrency)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleGatewayEvent is subscribed to moniker.gateway.event.>. It decodes on
// the caller's goroutine and hands the work to the participant's queue; it
// only blocks when every worker is busy.
func (p *Processor) HandleGatewayEvent(subject string, data []byte) {
	ev, err := gateway.Decode(subject, data)
	if err != nil {
		p.logger.Error("failed to decode gateway event", "subject", subject, "error", err)
		return
	}

	switch e := ev.(type) {
	case monitor.IdentityChanged:
		p.enqueue(keylock.Key(e.GroupID, e.ParticipantID), func() {
			ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
			defer cancel()
			p.handleIdentityChanged(ctx, e)
		})
	case interview.Event:
		groupID, participantID := e.Participant()
		p.enqueue(keylock.Key(groupID, participantID), func() {
			ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
			defer cancel()
			p.handleInterviewEvent(ctx, subject, e)
		})
	}
}

// Wait blocks until every queued event has been handled.
func (p *Processor) Wait() {
	_ = p.workers.Wait()
}

// enqueue appends work to key's queue and starts a worker for the key unless
// one is already draining it.
func (p *Processor) enqueue(key string, work func()) {
	p.mu.Lock()
	q, running := p.queues[key]
	p.queues[key] = append(q, work)
	p.mu.Unlock()
	if running {
		return
	}
	p.workers.Go(func() error {
		p.drain(key)
		return nil
	})
}

func (p *Processor) drain(key string) {
	for {
		p.mu.Lock()
		q := p.queues[key]
		if len(q) == 0 {
			delete(p.queues, key)
			p.mu.Unlock()
			return
		}
		work := q[0]
		p.queues[key] = q[1:]
		p.mu.Unlock()
		work()
	}
}

func (p *Processor) handleInterviewEvent(ctx context.Context, subject string, ev interview.Event) {
	groupID, participantID := ev.Participant()
	log := p.logger.With("subject", subject, "group_id", groupID, "participant_id", participantID)

	sess, err := p.interviews.Handle(ctx, ev)
	switch {
	case err == nil:
		log.Debug("interview event handled", "stage", string(sess.Stage))
	case expected(err):
		// Duplicate clicks and redeliveries.
		log.Info("interview event ignored", "reason", err.Error())
	default:
		log.Error("interview event failed", "error", err)
	}
}

func (p *Processor) handleIdentityChanged(ctx context.Context, ev monitor.IdentityChanged) {
	outcome, err := p.monitor.Observe(ctx, ev)
	if err != nil {
		p.logger.Error("identity change check failed",
			"group_id", ev.GroupID,
			"participant_id", ev.ParticipantID,
			"error", err,
		)
		return
	}
	p.logger.Debug("identity change checked",
		"group_id", ev.GroupID,
		"participant_id", ev.ParticipantID,
		"outcome", string(outcome),
	)
}

// expected reports errors caused by the participant rather than the system.
func expected(err error) bool {
	return errors.Is(err, sentinel.ErrConflict) ||
		errors.Is(err, sentinel.ErrInvalidState) ||
		errors.Is(err, sentinel.ErrNotFound) ||
		errors.Is(err, interview.ErrInvalidChoice)
}
