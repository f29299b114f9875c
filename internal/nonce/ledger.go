// Package nonce implements the single-use nonce ledger. A nonce authorizes
// exactly one bridge session establishment; consuming it is the system's
// replay barrier and must succeed at most once per nonce no matter how many
// callers race.
package nonce

import (
	"context"
	"log/slog"
	"time"

	"mirrorgate/internal/nonce/metrics"
	"mirrorgate/internal/nonce/models"
	"mirrorgate/internal/platform/config"
	id "mirrorgate/pkg/domain"
	dErrors "mirrorgate/pkg/domain-errors"
	"mirrorgate/pkg/requestcontext"
)

// Store persists nonces. Consume must be atomic: the store, not the ledger,
// is responsible for the consume-once guarantee.
type Store interface {
	Create(ctx context.Context, nonce *models.Nonce) error
	Consume(ctx context.Context, nonceID id.NonceID, now time.Time) (models.ConsumeResult, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Ledger issues and retires bridge nonces.
type Ledger struct {
	cfg     config.NonceConfig
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// NewLedger constructs the nonce ledger.
func NewLedger(cfg config.NonceConfig, store Store, opts ...Option) *Ledger {
	l := &Ledger{cfg: cfg, store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Issue mints a fresh active nonce for the subject.
func (l *Ledger) Issue(ctx context.Context, subjectID id.SubjectID) (*models.Nonce, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	now := requestcontext.Now(ctx)
	nonce := &models.Nonce{
		ID:        id.NewNonceID(),
		SubjectID: subjectID,
		IssuedAt:  now,
		ExpiresAt: now.Add(l.cfg.TTL),
		Status:    models.StatusActive,
	}
	if err := l.store.Create(ctx, nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store nonce")
	}
	l.metrics.ObserveIssued()
	return nonce, nil
}

// Consume retires a nonce. The outcome is a fact, not an error: callers
// branch on the result and fail closed on anything but ConsumeSuccess.
func (l *Ledger) Consume(ctx context.Context, nonceID id.NonceID) (models.ConsumeResult, error) {
	if nonceID.IsNil() {
		return models.ConsumeNotFound, dErrors.New(dErrors.CodeInvalidInput, "nonce id is required")
	}
	result, err := l.store.Consume(ctx, nonceID, requestcontext.Now(ctx))
	if err != nil {
		return models.ConsumeNotFound, dErrors.Wrap(err, dErrors.CodeInternal, "consume nonce")
	}
	l.metrics.ObserveConsume(string(result))
	if result != models.ConsumeSuccess && l.logger != nil {
		l.logger.WarnContext(ctx, "nonce consume refused", "nonce_id", nonceID, "result", result)
	}
	return result, nil
}

// RunSweeper expires stale nonces on an interval until the context ends.
// Consume also checks expiry on its own, so the sweep is bookkeeping, not a
// correctness requirement.
func (l *Ledger) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := l.store.SweepExpired(ctx, time.Now())
			if err != nil {
				if l.logger != nil {
					l.logger.WarnContext(ctx, "nonce sweep failed", "error", err)
				}
				continue
			}
			if swept > 0 {
				l.metrics.ObserveSwept(swept)
				if l.logger != nil {
					l.logger.DebugContext(ctx, "nonce sweep", "expired", swept)
				}
			}
		}
	}
}
