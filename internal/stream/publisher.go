// Package stream tails job records and turns their growth into an ordered
// sequence of progress events for one subscriber at a time.
//
// Every subscription keeps its own byte offset into the job's accumulated
// output. It only ever receives the suffix past that offset, so content is
// never delivered twice, and it ends with exactly one status event carrying
// the terminal record.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/store"
)

// DefaultPollInterval is the fallback re-read interval used when none is configured.
const DefaultPollInterval = time.Second

// EventType distinguishes content deltas from the terminal status event.
type EventType string

// Event types.
const (
	EventContent EventType = "content"
	EventStatus  EventType = "status"
)

// Event is one message of a subscription. Data is the new output suffix for
// content events and the terminal *domain.Job for the status event. Offset
// is the subscription cursor after the event.
type Event struct {
	Type   EventType `json:"type"`
	Data   any       `json:"data"`
	Offset int       `json:"-"`
}

// EmitFunc delivers one event. Returning an error ends the subscription.
type EmitFunc func(Event) error

// JobWatcher is the part of the job store a publisher reads.
type JobWatcher interface {
	Watch(ctx context.Context, id uuid.UUID) (*domain.Job, <-chan struct{}, error)
}

// Option configures a subscription.
type Option func(*Subscription)

// FromOffset starts the subscription at byte offset n of the job's output
// instead of at its length at attach time. Offsets past the current end are
// clamped to it, and an offset inside a multi-byte character moves back to
// that character's first byte.
func FromOffset(n int) Option {
	return func(s *Subscription) {
		s.resume = true
		s.cursor = n
	}
}

// Publisher creates subscriptions over a job store.
type Publisher struct {
	jobs         JobWatcher
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewPublisher creates a Publisher. A non-positive poll interval uses
// DefaultPollInterval.
func NewPublisher(jobs JobWatcher, pollInterval time.Duration, logger *slog.Logger) *Publisher {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		jobs:         jobs,
		pollInterval: pollInterval,
		logger:       logger.With("component", "progress_publisher"),
	}
}

// Subscription is one subscriber's view of a job.
type Subscription struct {
	p       *Publisher
	id      uuid.UUID
	job     *domain.Job
	changed <-chan struct{}
	cursor  int
	resume  bool
}

// Subscribe attaches to the job and fixes the subscription cursor.
// Returns store.ErrJobNotFound for unknown IDs.
func (p *Publisher) Subscribe(ctx context.Context, id uuid.UUID, opts ...Option) (*Subscription, error) {
	job, changed, err := p.jobs.Watch(ctx, id)
	if err != nil {
		return nil, err
	}

	s := &Subscription{p: p, id: id, job: job, changed: changed}
	for _, opt := range opts {
		opt(s)
	}
	if !s.resume {
		s.cursor = job.OutputLen()
	}
	s.cursor = job.AlignOffset(s.cursor)

	p.logger.DebugContext(ctx, "subscriber attached", "job_id", id, "offset", s.cursor)
	return s, nil
}

// Offset returns the current cursor.
func (s *Subscription) Offset() int {
	return s.cursor
}

// Run emits events until the job is terminal, the job disappears, ctx ends
// or emit fails. A job evicted while being tailed ends the stream without a
// status event and without an error.
func (s *Subscription) Run(ctx context.Context, emit EmitFunc) error {
	ticker := time.NewTicker(s.p.pollInterval)
	defer ticker.Stop()

	for {
		if delta := s.job.OutputSince(s.cursor); delta != "" {
			s.cursor = s.job.OutputLen()
			if err := emit(Event{Type: EventContent, Data: delta, Offset: s.cursor}); err != nil {
				return err
			}
		}

		if s.job.IsTerminal() {
			s.p.logger.DebugContext(ctx, "job terminal, closing subscription",
				"job_id", s.id, "status", s.job.Status)
			return emit(Event{Type: EventStatus, Data: s.job, Offset: s.cursor})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.changed:
		case <-ticker.C:
		}

		job, changed, err := s.p.jobs.Watch(ctx, s.id)
		if errors.Is(err, store.ErrJobNotFound) {
			s.p.logger.DebugContext(ctx, "job removed while streaming", "job_id", s.id)
			return nil
		}
		if err != nil {
			return err
		}
		s.job, s.changed = job, changed
	}
}

// Stream subscribes to the job and runs the subscription. Unknown IDs fail
// with store.ErrJobNotFound before anything is emitted.
func (p *Publisher) Stream(ctx context.Context, id uuid.UUID, emit EmitFunc, opts ...Option) error {
	sub, err := p.Subscribe(ctx, id, opts...)
	if err != nil {
		return err
	}
	return sub.Run(ctx, emit)
}
