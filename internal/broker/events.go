package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"polimarket/internal/models"
	"polimarket/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func saleKey(id int64) string     { return fmt.Sprintf("sale-%d", id) }
func productKey(id int64) string  { return fmt.Sprintf("product-%d", id) }
func vendorKey(id int64) string   { return fmt.Sprintf("vendor-%d", id) }
func deliveryKey(id int64) string { return fmt.Sprintf("delivery-%d", id) }

func (ep *EventPublisher) PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, saleKey(event.SaleID), event.EventType, event)
}

func (ep *EventPublisher) PublishSaleCancelled(ctx context.Context, event *models.SaleCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, saleKey(event.SaleID), event.EventType, event)
}

func (ep *EventPublisher) PublishStockRestocked(ctx context.Context, event *models.StockRestockedEvent) error {
	return ep.producer.PublishEvent(ctx, productKey(event.ProductID), event.EventType, event)
}

func (ep *EventPublisher) PublishStockLow(ctx context.Context, event *models.StockLowEvent) error {
	return ep.producer.PublishEvent(ctx, productKey(event.ProductID), event.EventType, event)
}

func (ep *EventPublisher) PublishVendorAuthorized(ctx context.Context, event *models.VendorAuthorizedEvent) error {
	return ep.producer.PublishEvent(ctx, vendorKey(event.VendorID), event.EventType, event)
}

func (ep *EventPublisher) PublishDeliveryStatusChanged(ctx context.Context, event *models.DeliveryStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, deliveryKey(event.DeliveryOrderID), event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onSaleCompleted func(context.Context, *models.SaleCompletedEvent) error
	onStockLow      func(context.Context, *models.StockLowEvent) error
	logger          *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnSaleCompleted registers a handler for SALE_COMPLETED events
func (eh *EventHandler) OnSaleCompleted(handler func(context.Context, *models.SaleCompletedEvent) error) {
	eh.onSaleCompleted = handler
}

// OnStockLow registers a handler for STOCK_LOW events
func (eh *EventHandler) OnStockLow(handler func(context.Context, *models.StockLowEvent) error) {
	eh.onStockLow = handler
}

// HandleMessage routes messages to appropriate handlers. Event types without
// a registered handler are acknowledged and skipped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		util.EventsConsumedTotal.WithLabelValues("unknown", "malformed").Inc()
		eh.logger.Error("Dropping malformed event", zap.ByteString("key", msg.Key), zap.Error(err))
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	err := eh.route(ctx, baseEvent.EventType, msg.Value)
	result := "ok"
	if err != nil {
		result = "error"
	}
	util.EventsConsumedTotal.WithLabelValues(baseEvent.EventType, result).Inc()
	return err
}

func (eh *EventHandler) route(ctx context.Context, eventType string, payload []byte) error {
	switch eventType {
	case models.EventTypeSaleCompleted:
		if eh.onSaleCompleted != nil {
			var event models.SaleCompletedEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return Permanent(fmt.Errorf("failed to unmarshal SaleCompleted event: %w", err))
			}
			return eh.onSaleCompleted(ctx, &event)
		}

	case models.EventTypeStockLow:
		if eh.onStockLow != nil {
			var event models.StockLowEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return Permanent(fmt.Errorf("failed to unmarshal StockLow event: %w", err))
			}
			return eh.onStockLow(ctx, &event)
		}
	}

	return nil
}
