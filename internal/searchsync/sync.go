// Package searchsync hands index work to the search adapter after the store
// has committed. Every policy is best effort: failures are logged and
// counted here and never reach the HTTP response.
package searchsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ecojiaflow/ecolojia/internal/domain"
	"github.com/ecojiaflow/ecolojia/internal/search"
	"github.com/ecojiaflow/ecolojia/pkg/logger"
)

// Mode selects a dispatch policy.
type Mode string

const (
	ModeInline Mode = "inline"
	ModeQueue  Mode = "queue"
	ModeKafka  Mode = "kafka"
)

// ParseMode accepts the three policy names, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeInline, ModeQueue, ModeKafka:
		return m, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q", s)
	}
}

// Op names the index operation a sync carried.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

var (
	// ErrQueueFull is returned when the background queue has no free slot.
	ErrQueueFull = errors.New("sync queue full")

	// ErrQueueClosed is returned after Shutdown.
	ErrQueueClosed = errors.New("sync queue closed")

	// ErrPublish marks a failure to hand an event to the broker.
	ErrPublish = errors.New("publish sync event")
)

// SyncError describes a failed propagation to the index.
type SyncError struct {
	Op        Op
	ProductID string
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("search sync %s %s: %v", e.Op, e.ProductID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Dispatcher propagates store writes to the index. A returned error has
// already been logged and counted; callers drop it.
type Dispatcher interface {
	Upsert(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id string) error

	// Shutdown flushes pending work, giving up when ctx is done.
	Shutdown(ctx context.Context) error
}

// Reason classifies err for the failure counter.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	case errors.Is(err, ErrQueueClosed):
		return "queue_closed"
	case errors.Is(err, ErrPublish):
		return "publish_error"
	case errors.Is(err, search.ErrIndexUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "index_error"
	}
}

// report logs and counts a failed sync and returns it as a *SyncError.
func report(ctx context.Context, l *slog.Logger, policy Mode, op Op, id string, err error) error {
	serr := &SyncError{Op: op, ProductID: id, Err: err}
	reason := Reason(err)
	failuresTotal.WithLabelValues(string(op), reason).Inc()

	logger.WithContext(ctx, l).ErrorContext(ctx, "search sync failed",
		slog.String("policy", string(policy)),
		slog.String("op", string(op)),
		slog.String("product_id", id),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	return serr
}

func observe(policy Mode, op Op, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	syncDuration.WithLabelValues(string(policy), string(op), outcome).Observe(time.Since(start).Seconds())
}
