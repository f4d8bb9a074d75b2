package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polimarket/config"
	"polimarket/internal/models"
	"polimarket/internal/store"
	"polimarket/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StockLedger guards product availability
type StockLedger struct {
	repo      store.Transactor
	publisher EventPublisher
	alerts    *stockAlerts
	logger    *zap.Logger
	now       func() time.Time
}

func NewStockLedger(repo store.Transactor, publisher EventPublisher, cfg config.BusinessConfig) *StockLedger {
	logger := util.GetLogger()
	return &StockLedger{
		repo:      repo,
		publisher: publisher,
		alerts:    newStockAlerts(publisher, cfg.LowStockThreshold, logger),
		logger:    logger,
		now:       time.Now,
	}
}

// canSell is the single availability rule shared by every stock check.
func canSell(product *models.Product, quantity int) bool {
	return product.Active && product.AvailableStock >= quantity
}

// CheckAvailable reports whether quantity units of the product can be sold.
// A missing product is simply unavailable.
func (l *StockLedger) CheckAvailable(ctx context.Context, productID int64, quantity int) (bool, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.CheckAvailable")
	defer span.End()

	product, err := l.repo.GetProduct(ctx, productID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return canSell(product, quantity), nil
}

// Availability explains the result of CheckAvailable
func (l *StockLedger) Availability(ctx context.Context, productID int64, quantity int) (*models.StockAvailability, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.Availability")
	defer span.End()

	result := &models.StockAvailability{
		ProductID:         productID,
		RequestedQuantity: quantity,
	}

	product, err := l.repo.GetProduct(ctx, productID)
	if errors.Is(err, ErrNotFound) {
		result.Message = "Product not found"
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.ProductName = product.Name
	result.AvailableStock = product.AvailableStock
	result.Available = canSell(product, quantity)

	switch {
	case !product.Active:
		result.Message = "Product is not active"
	case result.Available:
		result.Message = fmt.Sprintf("Stock available: %d units. Requested quantity: %d",
			product.AvailableStock, quantity)
	default:
		result.Message = fmt.Sprintf("Insufficient stock. Available: %d, Requested: %d",
			product.AvailableStock, quantity)
	}
	return result, nil
}

// Reserve removes quantity units from stock and returns what is left
func (l *StockLedger) Reserve(ctx context.Context, productID int64, quantity int) (int, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.Reserve",
		attribute.Int64("product.id", productID), attribute.Int("quantity", quantity))
	var err error
	defer func() { util.EndSpan(span, err) }()

	if quantity <= 0 {
		err = fmt.Errorf("%w: quantity must be positive", ErrInvalidArgument)
		return 0, err
	}

	var remaining int
	err = l.repo.WithTx(ctx, func(tx store.Repository) error {
		var txErr error
		_, remaining, txErr = reserveStock(ctx, tx, productID, quantity)
		return txErr
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		}
		return 0, err
	}

	l.logger.Info("Stock reserved",
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("remaining", remaining))
	l.alerts.check(ctx, productID, remaining, l.now())
	return remaining, nil
}

// reserveStock locks the stock row, re-checks availability, then decrements.
// It returns the product as read under the lock and the remaining stock.
// Must run inside a transaction.
func reserveStock(ctx context.Context, tx store.Repository, productID int64, quantity int) (*models.Product, int, error) {
	if _, err := tx.LockStock(ctx, []int64{productID}); err != nil {
		return nil, 0, err
	}
	product, err := tx.GetProduct(ctx, productID)
	if err != nil {
		return nil, 0, err
	}
	if !canSell(product, quantity) {
		return nil, 0, fmt.Errorf("%w: product %d has %d, requested %d",
			ErrInsufficientStock, productID, product.AvailableStock, quantity)
	}
	remaining, err := tx.DecrementStock(ctx, productID, quantity)
	if err != nil {
		return nil, 0, err
	}
	return product, remaining, nil
}

// Restock returns or adds quantity units and returns the new stock
func (l *StockLedger) Restock(ctx context.Context, productID int64, quantity int) (int, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.Restock",
		attribute.Int64("product.id", productID), attribute.Int("quantity", quantity))
	defer span.End()

	if quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", ErrInvalidArgument)
	}

	var available int
	err := l.repo.WithTx(ctx, func(tx store.Repository) error {
		var txErr error
		available, txErr = tx.IncrementStock(ctx, productID, quantity)
		return txErr
	})
	if err != nil {
		return 0, err
	}

	util.StockRestockedUnits.Add(float64(quantity))
	l.logger.Info("Stock restocked",
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("available", available))

	event := &models.StockRestockedEvent{
		BaseEvent: newBaseEvent(models.EventTypeStockRestocked, l.now()),
		ProductID: productID,
		Quantity:  quantity,
		Available: available,
	}
	logPublishError(l.logger, event.EventType, l.publisher.PublishStockRestocked(ctx, event))
	return available, nil
}

// LowStock lists active products at or below threshold, lowest stock first.
// A non-positive threshold selects the configured default.
func (l *StockLedger) LowStock(ctx context.Context, threshold int) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.LowStock")
	defer span.End()

	if threshold <= 0 {
		threshold = l.alerts.threshold
	}
	return l.repo.ListProducts(ctx, store.ProductFilter{
		ActiveOnly: true,
		MaxStock:   &threshold,
		OrderBy:    store.OrderByStock,
	})
}

// InStock lists active products with stock, by name
func (l *StockLedger) InStock(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.InStock")
	defer span.End()

	return l.repo.ListProducts(ctx, store.ProductFilter{
		ActiveOnly:  true,
		InStockOnly: true,
		OrderBy:     store.OrderByName,
	})
}

// stockAlerts publishes STOCK_LOW when a reservation crosses the threshold
type stockAlerts struct {
	publisher EventPublisher
	threshold int
	logger    *zap.Logger
}

func newStockAlerts(publisher EventPublisher, threshold int, logger *zap.Logger) *stockAlerts {
	if threshold <= 0 {
		threshold = config.DefaultBusiness().LowStockThreshold
	}
	return &stockAlerts{publisher: publisher, threshold: threshold, logger: logger}
}

func (a *stockAlerts) check(ctx context.Context, productID int64, remaining int, now time.Time) {
	if remaining > a.threshold {
		return
	}

	util.StockLowAlertsTotal.Inc()
	a.logger.Warn("Stock low",
		zap.Int64("product_id", productID),
		zap.Int("available", remaining),
		zap.Int("threshold", a.threshold))

	event := &models.StockLowEvent{
		BaseEvent: newBaseEvent(models.EventTypeStockLow, now),
		ProductID: productID,
		Available: remaining,
		Threshold: a.threshold,
	}
	logPublishError(a.logger, event.EventType, a.publisher.PublishStockLow(ctx, event))
}
