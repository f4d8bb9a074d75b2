package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"polimarket/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestMessageCarrier(t *testing.T) {
	msg := kafka.Message{}
	carrier := NewMessageCarrier(&msg)

	carrier.Set("traceparent", "a")
	carrier.Set("tracestate", "b")
	carrier.Set("traceparent", "c")

	assert.Equal(t, "c", carrier.Get("traceparent"))
	assert.Equal(t, "b", carrier.Get("tracestate"))
	assert.Equal(t, "", carrier.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent", "tracestate"}, carrier.Keys())
	assert.Len(t, msg.Headers, 2)
}

func TestPublisherKeysAndTraceHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "register")
	defer span.End()

	writer := &recordingWriter{}
	publisher := NewEventPublisher(NewProducerWithWriter(writer, "polimarket-events"))

	event := &models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeSaleCompleted,
			Timestamp: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		SaleID: 7001,
		Total:  decimal.RequireFromString("24.00"),
	}
	require.NoError(t, publisher.PublishSaleCompleted(ctx, event))
	require.NoError(t, publisher.PublishStockLow(ctx, &models.StockLowEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeStockLow},
		ProductID: 3,
	}))
	require.NoError(t, publisher.PublishDeliveryStatusChanged(ctx, &models.DeliveryStatusChangedEvent{
		BaseEvent:       models.BaseEvent{EventType: models.EventTypeDeliveryStatusChanged},
		DeliveryOrderID: 9,
	}))
	require.NoError(t, publisher.PublishVendorAuthorized(ctx, &models.VendorAuthorizedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeVendorAuthorized},
		VendorID:  4,
	}))

	require.Len(t, writer.messages, 4)
	assert.Equal(t, "sale-7001", string(writer.messages[0].Key))
	assert.Equal(t, "product-3", string(writer.messages[1].Key))
	assert.Equal(t, "delivery-9", string(writer.messages[2].Key))
	assert.Equal(t, "vendor-4", string(writer.messages[3].Key))

	first := NewMessageCarrier(&writer.messages[0])
	assert.Equal(t, models.EventTypeSaleCompleted, first.Get("event_type"))
	assert.Contains(t, first.Get("traceparent"), span.SpanContext().TraceID().String())

	var decoded models.SaleCompletedEvent
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &decoded))
	assert.Equal(t, int64(7001), decoded.SaleID)
	assert.True(t, decoded.Total.Equal(event.Total))
}

func TestPublishEventWriteError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("leader not available")}
	publisher := NewEventPublisher(NewProducerWithWriter(writer, "polimarket-events"))

	err := publisher.PublishSaleCancelled(context.Background(), &models.SaleCancelledEvent{SaleID: 1})
	assert.ErrorContains(t, err, "leader not available")
}

func encode(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestEventHandlerRouting(t *testing.T) {
	handler := NewEventHandler()

	var completed []int64
	var low []int64
	handler.OnSaleCompleted(func(ctx context.Context, e *models.SaleCompletedEvent) error {
		completed = append(completed, e.SaleID)
		return nil
	})
	handler.OnStockLow(func(ctx context.Context, e *models.StockLowEvent) error {
		low = append(low, e.ProductID)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, handler.HandleMessage(ctx, encode(t, &models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{EventID: "1", EventType: models.EventTypeSaleCompleted},
		SaleID:    7001,
	})))
	require.NoError(t, handler.HandleMessage(ctx, encode(t, &models.StockLowEvent{
		BaseEvent: models.BaseEvent{EventID: "2", EventType: models.EventTypeStockLow},
		ProductID: 5,
	})))
	require.NoError(t, handler.HandleMessage(ctx, encode(t, &models.SaleCancelledEvent{
		BaseEvent: models.BaseEvent{EventID: "3", EventType: models.EventTypeSaleCancelled},
	})))
	require.NoError(t, handler.HandleMessage(ctx, kafka.Message{Value: []byte("{not json")}))

	assert.Equal(t, []int64{7001}, completed)
	assert.Equal(t, []int64{5}, low)
}

func TestEventHandlerPropagatesHandlerError(t *testing.T) {
	handler := NewEventHandler()
	handler.OnSaleCompleted(func(ctx context.Context, e *models.SaleCompletedEvent) error {
		return errors.New("db unavailable")
	})

	err := handler.HandleMessage(context.Background(), encode(t, &models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{EventID: "1", EventType: models.EventTypeSaleCompleted},
	}))
	assert.ErrorContains(t, err, "db unavailable")
}

func newTestConsumer() *Consumer {
	return &Consumer{
		topic:      "polimarket-events",
		groupID:    "test",
		logger:     zap.NewNop(),
		backoff:    time.Millisecond,
		maxBackoff: 4 * time.Millisecond,
	}
}

func TestConsumerRetriesFailedMessage(t *testing.T) {
	c := newTestConsumer()

	var offsets []int64
	handler := func(ctx context.Context, msg kafka.Message) error {
		offsets = append(offsets, msg.Offset)
		if len(offsets) == 1 {
			return errors.New("db unavailable")
		}
		return nil
	}

	err := c.handleWithRetry(context.Background(), kafka.Message{Offset: 42}, handler)
	require.NoError(t, err)
	assert.Equal(t, []int64{42, 42}, offsets)
}

func TestConsumerSkipsPermanentFailure(t *testing.T) {
	c := newTestConsumer()

	calls := 0
	handler := func(ctx context.Context, msg kafka.Message) error {
		calls++
		return Permanent(errors.New("sale not found"))
	}

	require.NoError(t, c.handleWithRetry(context.Background(), kafka.Message{Offset: 7}, handler))
	assert.Equal(t, 1, calls)
}

func TestConsumerStopsRetryingOnCancel(t *testing.T) {
	c := newTestConsumer()
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	handler := func(ctx context.Context, msg kafka.Message) error {
		calls++
		cancel()
		return errors.New("db unavailable")
	}

	err := c.handleWithRetry(ctx, kafka.Message{}, handler)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))

	cause := errors.New("gone")
	err := Permanent(cause)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.ErrorIs(t, err, cause)
}

func TestEventHandlerBadPayloadIsPermanent(t *testing.T) {
	handler := NewEventHandler()
	handler.OnSaleCompleted(func(ctx context.Context, e *models.SaleCompletedEvent) error {
		t.Fatal("handler must not run for an undecodable payload")
		return nil
	})

	err := handler.HandleMessage(context.Background(), kafka.Message{
		Value: []byte(`{"event_id":"9","event_type":"SALE_COMPLETED","sale_id":"not a number"}`),
	})
	assert.ErrorIs(t, err, ErrPermanent)
}
