package service

import (
	"context"
	"time"

	"polimarket/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher is satisfied by broker.EventPublisher
type EventPublisher interface {
	PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error
	PublishSaleCancelled(ctx context.Context, event *models.SaleCancelledEvent) error
	PublishStockRestocked(ctx context.Context, event *models.StockRestockedEvent) error
	PublishStockLow(ctx context.Context, event *models.StockLowEvent) error
	PublishVendorAuthorized(ctx context.Context, event *models.VendorAuthorizedEvent) error
	PublishDeliveryStatusChanged(ctx context.Context, event *models.DeliveryStatusChangedEvent) error
}

// SaleCache is satisfied by redisclient.Client. A miss is reported as
// found=false (or a nil invoice), not as an error.
type SaleCache interface {
	GetIdempotentSale(ctx context.Context, key string) (saleID int64, found bool, err error)
	SetIdempotentSale(ctx context.Context, key string, saleID int64, ttl time.Duration) error
	GetInvoice(ctx context.Context, saleID int64) (*models.Invoice, error)
	SetInvoice(ctx context.Context, invoice *models.Invoice, ttl time.Duration) error
	InvalidateInvoice(ctx context.Context, saleID int64) error
}

func newBaseEvent(eventType string, now time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: now,
	}
}

// logPublishError records a failed publish; events never fail the operation
// that produced them.
func logPublishError(logger *zap.Logger, eventType string, err error) {
	if err != nil {
		logger.Error("Failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}
