package worker

import (
	"context"
	"errors"

	"polimarket/internal/broker"
	"polimarket/internal/models"
	"polimarket/internal/service"
	"polimarket/internal/util"

	"go.uber.org/zap"
)

// DeliveryWorker turns SALE_COMPLETED events into delivery orders and
// surfaces STOCK_LOW alerts in the log.
type DeliveryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewDeliveryWorker creates a new delivery worker
func NewDeliveryWorker(consumer *broker.Consumer, delivery *service.DeliveryTracking) *DeliveryWorker {
	w := &DeliveryWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnSaleCompleted(func(ctx context.Context, event *models.SaleCompletedEvent) error {
		return classify(delivery.HandleSaleCompleted(ctx, event))
	})
	w.eventHandler.OnStockLow(w.handleStockLow)

	return w
}

// classify marks errors that no retry can fix: the sale is gone or is not
// in a state that gets a delivery.
func classify(err error) error {
	if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrInvalidTransition) {
		return broker.Permanent(err)
	}
	return err
}

func (w *DeliveryWorker) handleStockLow(ctx context.Context, event *models.StockLowEvent) error {
	w.logger.Warn("Restock needed",
		zap.Int64("product_id", event.ProductID),
		zap.Int("available", event.Available),
		zap.Int("threshold", event.Threshold))
	return nil
}

// Start blocks consuming events until ctx is cancelled
func (w *DeliveryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting delivery worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *DeliveryWorker) Stop() error {
	w.logger.Info("Stopping delivery worker")
	return w.consumer.Close()
}
