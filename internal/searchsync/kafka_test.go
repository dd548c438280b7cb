package searchsync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecojiaflow/ecolojia/internal/domain"
	"github.com/ecojiaflow/ecolojia/internal/search"
	"github.com/ecojiaflow/ecolojia/internal/search/memory"
	pkgkafka "github.com/ecojiaflow/ecolojia/pkg/kafka"
	"github.com/ecojiaflow/ecolojia/pkg/logger"
)

func TestTopics(t *testing.T) {
	assert.Equal(t, "catalog.product.events", TopicProductEvents)
	assert.Equal(t, "catalog.product.upserted", EventProductUpserted)
	assert.Equal(t, "catalog.product.deleted", EventProductDeleted)
}

func TestKafka_UpsertPublishesFullRecord(t *testing.T) {
	pub := &fakePublisher{}
	d := NewKafka(pub, time.Second, logger.Discard())
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")

	require.NoError(t, d.Upsert(ctx, sampleProduct("p-1")))

	events := pub.all()
	require.Len(t, events, 1)
	got := events[0]
	assert.Equal(t, TopicProductEvents, got.topic)
	assert.Equal(t, EventProductUpserted, got.event.EventType)
	assert.Equal(t, "p-1", got.event.AggregateID)
	assert.Equal(t, "product", got.event.AggregateType)
	assert.Equal(t, "corr-1", got.event.CorrelationID)
	assert.NotEmpty(t, got.event.EventID)
	assert.True(t, got.deadline)

	p, err := search.DecodeProduct(got.event.Data)
	require.NoError(t, err)
	assert.Equal(t, "eco-soap", p.Slug)
	assert.Equal(t, domain.BucketMedium, p.EcoScoreBucket)
	assert.Equal(t, map[string]float64{"EUR": 4.5}, p.Prices)
}

func TestKafka_DeletePublishesTombstone(t *testing.T) {
	pub := &fakePublisher{}
	d := NewKafka(pub, time.Second, logger.Discard())

	require.NoError(t, d.Delete(context.Background(), "p-9"))

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, TopicProductEvents, events[0].topic)
	assert.Equal(t, EventProductDeleted, events[0].event.EventType)
	assert.Equal(t, "p-9", events[0].event.AggregateID)
	assert.JSONEq(t, `{"id":"p-9"}`, string(events[0].event.Data))
}

func TestKafka_PublishFailureIsReported(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	d := NewKafka(pub, time.Second, logger.Discard())

	err := d.Upsert(context.Background(), sampleProduct("p-1"))

	var serr *SyncError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, ErrPublish)
	assert.Equal(t, "publish_error", Reason(err))
	assert.NoError(t, d.Shutdown(context.Background()))
}

func newMemoryHandler() (*EventHandler, *memory.Engine) {
	engine := memory.New()
	return NewEventHandler(search.NewAdapter(engine), logger.Discard()), engine
}

func mustEvent(t *testing.T, eventType, id string, data any) *pkgkafka.Event {
	t.Helper()
	event, err := pkgkafka.NewEvent(eventType, id, "product", "catalog", data)
	require.NoError(t, err)
	return event
}

func TestEventHandler_AppliesUpsertAndDelete(t *testing.T) {
	h, engine := newMemoryHandler()

	require.NoError(t, h.Handle(context.Background(), mustEvent(t, EventProductUpserted, "p-1", sampleProduct("p-1"))))
	doc, ok := engine.Get("p-1")
	require.True(t, ok)
	assert.Equal(t, "Eco Soap", doc.Title)
	assert.Equal(t, "0.8–0.9", doc.EcoScoreBucket)

	require.NoError(t, h.Handle(context.Background(), mustEvent(t, EventProductDeleted, "p-1", ProductDeletedData{ID: "p-1"})))
	_, ok = engine.Get("p-1")
	assert.False(t, ok)
}

func TestEventHandler_StringEncodedScore(t *testing.T) {
	h, engine := newMemoryHandler()
	payload := json.RawMessage(`{"id":"p-2","slug":"legacy","title":"Legacy","eco_score":"0.95"}`)
	event := mustEvent(t, EventProductUpserted, "p-2", payload)

	require.NoError(t, h.Handle(context.Background(), event))

	doc, ok := engine.Get("p-2")
	require.True(t, ok)
	require.NotNil(t, doc.EcoScore)
	assert.InDelta(t, 0.95, *doc.EcoScore, 1e-9)
	assert.Equal(t, "> 0.9", doc.EcoScoreBucket)
}

func TestEventHandler_DeleteFallsBackToAggregateID(t *testing.T) {
	h, engine := newMemoryHandler()
	require.NoError(t, engine.Index(context.Background(), &search.Document{ObjectID: "p-3"}))

	require.NoError(t, h.Handle(context.Background(), mustEvent(t, EventProductDeleted, "p-3", map[string]string{})))
	assert.Equal(t, 0, engine.Len())
}

func TestEventHandler_BadPayload(t *testing.T) {
	h, _ := newMemoryHandler()

	err := h.Handle(context.Background(), mustEvent(t, EventProductUpserted, "p-1", map[string]string{"title": "no id"}))
	assert.Error(t, err)
}

func TestEventHandler_UnknownTypeIsSkipped(t *testing.T) {
	h, engine := newMemoryHandler()

	assert.NoError(t, h.Handle(context.Background(), mustEvent(t, "catalog.product.archived", "p-1", sampleProduct("p-1"))))
	assert.Equal(t, 0, engine.Len())
}

func TestEventHandler_IndexFailureIsReturned(t *testing.T) {
	h := NewEventHandler(&fakeIndexer{err: errors.New("index down")}, logger.Discard())

	err := h.Handle(context.Background(), mustEvent(t, EventProductUpserted, "p-1", sampleProduct("p-1")))
	assert.Error(t, err)
}

func TestEventHandler_IdempotentRedelivery(t *testing.T) {
	idx := &fakeIndexer{}
	h := NewEventHandler(idx, logger.Discard())
	handle := pkgkafka.IdempotentHandler(pkgkafka.NewMemoryIdempotencyStore(time.Hour), h.Handle, logger.Discard())

	event := mustEvent(t, EventProductUpserted, "p-1", sampleProduct("p-1"))
	require.NoError(t, handle(context.Background(), event))
	require.NoError(t, handle(context.Background(), event))

	assert.Len(t, idx.recorded(), 1)
}

func TestEventHandler_Topics(t *testing.T) {
	h, _ := newMemoryHandler()
	assert.Equal(t, []string{"catalog.product.events"}, h.Topics())
}

func TestKafka_ChangesToOneProductShareTopicAndKey(t *testing.T) {
	pub := &fakePublisher{}
	d := NewKafka(pub, time.Second, logger.Discard())

	require.NoError(t, d.Upsert(context.Background(), sampleProduct("p-1")))
	require.NoError(t, d.Delete(context.Background(), "p-1"))

	events := pub.all()
	require.Len(t, events, 2)
	assert.Equal(t, events[0].topic, events[1].topic)
	assert.Equal(t, "p-1", events[0].event.AggregateID)
	assert.Equal(t, "p-1", events[1].event.AggregateID)
	assert.Equal(t, []string{EventProductUpserted, EventProductDeleted},
		[]string{events[0].event.EventType, events[1].event.EventType})
}

// loopbackPublisher delivers events straight to a handler, standing in for
// the broker plus consumer group.
type loopbackPublisher struct {
	handler pkgkafka.Handler
}

func (p loopbackPublisher) Publish(ctx context.Context, _ string, event *pkgkafka.Event) error {
	data, err := event.Marshal()
	if err != nil {
		return err
	}
	decoded, err := pkgkafka.UnmarshalEvent(data)
	if err != nil {
		return err
	}
	return p.handler(ctx, decoded)
}

func TestKafka_EndToEnd(t *testing.T) {
	h, engine := newMemoryHandler()
	d := NewKafka(loopbackPublisher{handler: h.Handle}, time.Second, logger.Discard())

	require.NoError(t, d.Upsert(context.Background(), sampleProduct("p-1")))
	require.NoError(t, d.Upsert(context.Background(), sampleProduct("p-2")))
	require.NoError(t, d.Delete(context.Background(), "p-1"))

	assert.Equal(t, []string{"p-2"}, engine.IDs())
}
