package searchsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecojiaflow/ecolojia/internal/domain"
	"github.com/ecojiaflow/ecolojia/internal/search"
	pkgkafka "github.com/ecojiaflow/ecolojia/pkg/kafka"
	"github.com/ecojiaflow/ecolojia/pkg/logger"
)

// Both event types share one topic keyed by product id, so a partition
// sees every change to a product in write order.
var TopicProductEvents = pkgkafka.Topic("product", "events")

const (
	EventProductUpserted = "catalog.product.upserted"
	EventProductDeleted  = "catalog.product.deleted"
)

const (
	aggregateType = "product"
	eventSource   = "catalog"
)

// ProductDeletedData is the payload of a product deleted event.
type ProductDeletedData struct {
	ID string `json:"id"`
}

// EventPublisher is the part of *pkgkafka.Producer the Kafka policy uses.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Kafka appends every write to the product event log. The
// indexer side is EventHandler, run by a consumer group.
type Kafka struct {
	publisher EventPublisher
	timeout   time.Duration
	logger    *slog.Logger
}

var _ Dispatcher = (*Kafka)(nil)

// NewKafka creates the Kafka dispatcher. A non-positive timeout means
// DefaultTimeout.
func NewKafka(publisher EventPublisher, timeout time.Duration, logger *slog.Logger) *Kafka {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Kafka{publisher: publisher, timeout: timeout, logger: logger}
}

// Upsert publishes the full stored record.
func (d *Kafka) Upsert(ctx context.Context, p *domain.Product) error {
	return d.publish(ctx, OpUpsert, EventProductUpserted, p.ID, p)
}

// Delete publishes a tombstone event for id.
func (d *Kafka) Delete(ctx context.Context, id string) error {
	return d.publish(ctx, OpDelete, EventProductDeleted, id, ProductDeletedData{ID: id})
}

// Shutdown implements Dispatcher. The producer is flushed by its owner.
func (d *Kafka) Shutdown(context.Context) error {
	return nil
}

func (d *Kafka) publish(ctx context.Context, op Op, eventType, id string, data any) error {
	start := time.Now()
	err := d.send(ctx, eventType, id, data)
	observe(ModeKafka, op, start, err)
	if err != nil {
		return report(ctx, d.logger, ModeKafka, op, id, err)
	}
	return nil
}

func (d *Kafka) send(ctx context.Context, eventType, id string, data any) error {
	event, err := pkgkafka.NewEvent(eventType, id, aggregateType, eventSource, data)
	if err != nil {
		return fmt.Errorf("%w: build event: %w", ErrPublish, err)
	}
	event.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	ctx, cancel := context.WithTimeout(logger.Detach(ctx), d.timeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, TopicProductEvents, event); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

// EventHandler applies product events to the index. Wrap Handle with
// pkgkafka.IdempotentHandler so redelivered events are skipped.
type EventHandler struct {
	indexer search.Indexer
	logger  *slog.Logger
}

// NewEventHandler creates a handler writing through indexer.
func NewEventHandler(indexer search.Indexer, logger *slog.Logger) *EventHandler {
	return &EventHandler{indexer: indexer, logger: logger}
}

// Topics lists the topics Handle understands.
func (h *EventHandler) Topics() []string {
	return []string{TopicProductEvents}
}

// Handle processes one event. Unknown event types are skipped.
func (h *EventHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}

	switch event.EventType {
	case EventProductUpserted:
		return h.handleUpserted(ctx, event)
	case EventProductDeleted:
		return h.handleDeleted(ctx, event)
	default:
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (h *EventHandler) handleUpserted(ctx context.Context, event *pkgkafka.Event) error {
	p, err := search.DecodeProduct(event.Data)
	if err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}

	start := time.Now()
	err = h.indexer.Upsert(ctx, p)
	observe(ModeKafka, OpUpsert, start, err)
	if err != nil {
		failuresTotal.WithLabelValues(string(OpUpsert), Reason(err)).Inc()
		return fmt.Errorf("index product from upserted event: %w", err)
	}

	logger.WithContext(ctx, h.logger).DebugContext(ctx, "indexed product from upserted event",
		slog.String("product_id", p.ID),
	)
	return nil
}

func (h *EventHandler) handleDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}
	if data.ID == "" {
		data.ID = event.AggregateID
	}

	start := time.Now()
	err := h.indexer.Delete(ctx, data.ID)
	observe(ModeKafka, OpDelete, start, err)
	if err != nil {
		failuresTotal.WithLabelValues(string(OpDelete), Reason(err)).Inc()
		return fmt.Errorf("delete product from deleted event: %w", err)
	}

	logger.WithContext(ctx, h.logger).DebugContext(ctx, "deleted product from deleted event",
		slog.String("product_id", data.ID),
	)
	return nil
}
