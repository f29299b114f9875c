package audit

import (
	"context"
	"log/slog"
	"time"

	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/requestcontext"
)

// Store is the append-only event log.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]Event, error)
}

// Sink receives every event after it is persisted. Used for the Kafka
// publisher; a nil sink means in-process only.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

const inboxSize = 256

// Pipeline buffers events on a channel and persists them from a background
// worker, so emitting never blocks a request path. A full inbox drops the
// event and logs; the trail is best-effort by design, admission decisions
// never depend on it.
type Pipeline struct {
	store  Store
	sink   Sink
	inbox  chan Event
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithSink(sink Sink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline constructs the audit pipeline over the given store.
func NewPipeline(store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store: store,
		inbox: make(chan Event, inboxSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit queues an event. Never blocks; a saturated inbox drops the event.
func (p *Pipeline) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Operator == "" && requestcontext.Operator(ctx) {
		event.Operator = "operator"
	}
	select {
	case p.inbox <- event:
	default:
		if p.logger != nil {
			p.logger.Warn("audit inbox full, event dropped",
				"category", event.Category,
				"action", event.Action,
			)
		}
	}
}

// Run consumes the inbox until the context ends, then drains what is left.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case event := <-p.inbox:
			p.handle(ctx, event)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, event Event) {
	if err := p.store.Append(ctx, event); err != nil && p.logger != nil {
		p.logger.Warn("audit append failed", "error", err)
	}
	if p.sink != nil {
		if err := p.sink.Publish(ctx, event); err != nil && p.logger != nil {
			p.logger.Warn("audit publish failed", "error", err)
		}
	}
}

// drain flushes buffered events with a short grace period during shutdown.
func (p *Pipeline) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-p.inbox:
			p.handle(ctx, event)
		default:
			return
		}
	}
}

// List returns the persisted trail for one subject.
func (p *Pipeline) List(ctx context.Context, subjectID id.SubjectID) ([]Event, error) {
	return p.store.ListBySubject(ctx, subjectID)
}
