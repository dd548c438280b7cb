package searchsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/ecojiaflow/ecolojia/internal/domain"
	"github.com/ecojiaflow/ecolojia/internal/search"
	"github.com/ecojiaflow/ecolojia/pkg/logger"
)

// DefaultTimeout bounds one inline index call.
const DefaultTimeout = 2 * time.Second

// Inline calls the indexer during the request, bounded by a timeout on a
// context that ignores request cancellation.
type Inline struct {
	indexer search.Indexer
	timeout time.Duration
	logger  *slog.Logger
}

var _ Dispatcher = (*Inline)(nil)

// NewInline creates an inline dispatcher. A non-positive timeout means
// DefaultTimeout.
func NewInline(indexer search.Indexer, timeout time.Duration, logger *slog.Logger) *Inline {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Inline{indexer: indexer, timeout: timeout, logger: logger}
}

// Upsert implements Dispatcher.
func (d *Inline) Upsert(ctx context.Context, p *domain.Product) error {
	return d.run(ctx, OpUpsert, p.ID, func(ctx context.Context) error {
		return d.indexer.Upsert(ctx, p)
	})
}

// Delete implements Dispatcher.
func (d *Inline) Delete(ctx context.Context, id string) error {
	return d.run(ctx, OpDelete, id, func(ctx context.Context) error {
		return d.indexer.Delete(ctx, id)
	})
}

// Shutdown implements Dispatcher. Nothing is ever pending.
func (d *Inline) Shutdown(context.Context) error {
	return nil
}

func (d *Inline) run(ctx context.Context, op Op, id string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(logger.Detach(ctx), d.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	observe(ModeInline, op, start, err)
	if err != nil {
		return report(ctx, d.logger, ModeInline, op, id, err)
	}
	return nil
}
