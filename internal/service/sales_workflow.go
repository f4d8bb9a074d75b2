package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"polimarket/config"
	"polimarket/internal/models"
	"polimarket/internal/store"
	"polimarket/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SalesWorkflow drives a sale through PENDING -> COMPLETED | CANCELLED
type SalesWorkflow struct {
	repo      store.Transactor
	cache     SaleCache
	publisher EventPublisher
	alerts    *stockAlerts
	cfg       config.BusinessConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewSalesWorkflow(
	repo store.Transactor,
	cache SaleCache,
	publisher EventPublisher,
	cfg config.BusinessConfig,
) *SalesWorkflow {
	logger := util.GetLogger()
	return &SalesWorkflow{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		alerts:    newStockAlerts(publisher, cfg.LowStockThreshold, logger),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterSaleRequest represents a request to register a sale in one step
type RegisterSaleRequest struct {
	VendorID       int64             `json:"vendor_id" binding:"required"`
	ClientID       int64             `json:"client_id" binding:"required"`
	Items          []SaleItemRequest `json:"items" binding:"required,min=1,dive"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// SaleItemRequest represents a requested product line
type SaleItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// RegisterSale validates the vendor, the client and stock for every item, then
// creates the sale, reserves stock and completes it. Either all of it is
// committed or none of it is.
func (w *SalesWorkflow) RegisterSale(ctx context.Context, req *RegisterSaleRequest) (*models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SalesWorkflow.RegisterSale",
		attribute.Int64("vendor.id", req.VendorID),
		attribute.Int64("client.id", req.ClientID),
		attribute.Int("items", len(req.Items)))
	var err error
	defer func() { util.EndSpan(span, err) }()

	if req.IdempotencyKey != "" {
		if sale := w.replay(ctx, req.IdempotencyKey); sale != nil {
			return sale, nil
		}
	}

	start := time.Now()
	now := w.now()

	var sale *models.Sale
	var remaining map[int64]int

	err = w.repo.WithTx(ctx, func(tx store.Repository) error {
		sale, remaining = nil, map[int64]int{}

		if err := w.checkParties(ctx, tx, req.VendorID, req.ClientID, now); err != nil {
			return err
		}

		quantities, order, err := aggregateItems(req.Items)
		if err != nil {
			return err
		}

		products, err := lockAndCheckStock(ctx, tx, quantities)
		if err != nil {
			return err
		}

		sale = &models.Sale{
			VendorID: req.VendorID,
			ClientID: req.ClientID,
			Status:   models.SaleStatusPending,
			Total:    decimal.Zero,
		}
		if err := tx.CreateSale(ctx, sale); err != nil {
			return fmt.Errorf("failed to create sale: %w", err)
		}

		for _, productID := range order {
			quantity := quantities[productID]
			left, err := tx.DecrementStock(ctx, productID, quantity)
			if err != nil {
				return err
			}
			remaining[productID] = left

			item := &models.SaleLineItem{
				SaleID:    sale.ID,
				ProductID: productID,
				Quantity:  quantity,
				UnitPrice: products[productID].UnitPrice,
			}
			if err := tx.UpsertLineItem(ctx, item); err != nil {
				return fmt.Errorf("failed to add line item: %w", err)
			}
		}

		return completeLocked(ctx, tx, sale)
	})
	util.SaleRegistrationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.SalesFailedTotal.WithLabelValues(failureReason(err)).Inc()
		w.logger.Warn("Sale registration rejected",
			zap.Int64("vendor_id", req.VendorID),
			zap.Int64("client_id", req.ClientID),
			zap.Error(err))
		return nil, err
	}

	util.SalesRegisteredTotal.Inc()
	util.SalesCompletedTotal.Inc()
	w.logger.Info("Sale registered",
		zap.Int64("sale_id", sale.ID),
		zap.String("total", sale.Total.StringFixed(2)))

	if req.IdempotencyKey != "" {
		if err := w.cache.SetIdempotentSale(ctx, req.IdempotencyKey, sale.ID, w.cfg.IdempotencyTTL); err != nil {
			w.logger.Warn("Failed to store idempotency key", zap.String("key", req.IdempotencyKey), zap.Error(err))
		}
	}
	for _, productID := range sortedKeys(remaining) {
		w.alerts.check(ctx, productID, remaining[productID], now)
	}
	w.publishCompleted(ctx, sale)

	return sale, nil
}

// replay returns the sale previously registered under key, if any
func (w *SalesWorkflow) replay(ctx context.Context, key string) *models.Sale {
	saleID, found, err := w.cache.GetIdempotentSale(ctx, key)
	if err != nil {
		w.logger.Warn("Idempotency lookup failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}

	sale, err := w.GetSale(ctx, saleID)
	if err != nil {
		w.logger.Warn("Idempotent sale not readable", zap.Int64("sale_id", saleID), zap.Error(err))
		return nil
	}
	w.logger.Info("Duplicate sale request detected",
		zap.String("idempotency_key", key),
		zap.Int64("sale_id", saleID))
	return sale
}

// OpenSale creates an empty PENDING sale for an authorized vendor and an active client
func (w *SalesWorkflow) OpenSale(ctx context.Context, vendorID, clientID int64) (*models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SalesWorkflow.OpenSale")
	defer span.End()

	now := w.now()
	var sale *models.Sale
	err := w.repo.WithTx(ctx, func(tx store.Repository) error {
		if err := w.checkParties(ctx, tx, vendorID, clientID, now); err != nil {
			return err
		}
		sale = &models.Sale{
			VendorID: vendorID,
			ClientID: clientID,
			Status:   models.SaleStatusPending,
			Total:    decimal.Zero,
		}
		return tx.CreateSale(ctx, sale)
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("Sale opened", zap.Int64("sale_id", sale.ID))
	return sale, nil
}

// AddLineItem reserves stock and adds it to a PENDING sale. A second line for
// the same product is merged into the first at the first line's unit price.
func (w *SalesWorkflow) AddLineItem(ctx context.Context, saleID, productID int64, quantity int) (*models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SalesWorkflow.AddLineItem",
		attribute.Int64("sale.id", saleID), attribute.Int64("product.id", productID))
	defer span.End()

	var sale *models.Sale
	var remaining int
	err := w.repo.WithTx(ctx, func(tx store.Repository) error {
		var err error
		sale, err = tx.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != models.SaleStatusPending {
			return fmt.Errorf("%w: cannot add items to a %s sale", ErrInvalidTransition, sale.Status)
		}
		if quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive", ErrInvalidArgument)
		}

		product, left, err := reserveStock(ctx, tx, productID, quantity)
		if err != nil {
			return err
		}
		remaining = left

		item := &models.SaleLineItem{
			SaleID:    saleID,
			ProductID: productID,
			Quantity:  quantity,
			UnitPrice: product.UnitPrice,
		}
		if err := tx.UpsertLineItem(ctx, item); err != nil {
			return err
		}

		if sale.Total, err = tx.SumLineItems(ctx, saleID); err != nil {
			return err
		}
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return err
		}
		sale.Items, err = tx.ListLineItems(ctx, saleID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		}
		return nil, err
	}

	w.invalidateInvoice(ctx, saleID)
	w.alerts.check(ctx, productID, remaining, w.now())
	return sale, nil
}

// CalculateTotal sums the persisted line subtotals of a sale
func (w *SalesWorkflow) CalculateTotal(ctx context.Context, saleID int64) (decimal.Decimal, error) {
	ctx, span := util.StartSpan(ctx, "SalesWorkflow.CalculateTotal")
	defer span.End()

	if _, err := w.repo.GetSale(ctx, saleID); err != nil {
		return decimal.Zero, err
	}
	return w.repo.SumLineItems(ctx, saleID)
}

// CompleteSale finalizes a PENDING sale that has at least one line
func (w *SalesWorkflow) CompleteSale(ctx context.Context, saleID int64) (*models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SalesWorkflow.CompleteSale", attribute.Int64("sale.id", saleID))
	defer span.End()

	var sale *models.Sale
	err := w.repo.WithTx(ctx, func(tx store.Repository) error {
		var err error
		sale, err = tx.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != models.SaleStatusPending {
			return fmt.Errorf("%w: sale %d is %s", ErrInvalidTransition, saleID, sale.Status)
		}
		return completeLocked(ctx, tx, sale)
	})
	if err != nil {
		return nil, err
	}

	util.SalesCompletedTotal.Inc()
	w.logger.Info("Sale completed", zap.Int64("sale_id", saleID), zap.String("total", sale.Total.StringFixed(2)))
	w.invalidateInvoice(ctx, saleID)
	w.publishCompleted(ctx, sale)
	return sale, nil
}

// completeLocked recomputes the total and marks the sale COMPLETED. The sale
// must be PENDING and locked by the caller's transaction.
func completeLocked(ctx context.Context, tx store.Repository, sale *models.Sale) error {
	items, err := tx.ListLineItems(ctx, sale.ID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: sale %d has no items", ErrInvalidArgument, sale.ID)
	}

	total, err := tx.SumLineItems(ctx, sale.ID)
	if err != nil {
		return err
	}
	sale.Total = total
	sale.Status = models.SaleStatusCompleted
	if err := tx.UpdateSale(ctx, sale); err != nil {
		return fmt.Errorf("failed to complete sale: %w", err)
	}
	sale.Items = items
	return nil
}

// CancelSale returns every line's quantity to stock and marks the sale
// CANCELLED. Completed sales cannot be cancelled.
func (w *SalesWorkflow) CancelSale(ctx context.Context, saleID int64) (*models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SalesWorkflow.CancelSale", attribute.Int64("sale.id", saleID))
	defer span.End()

	var sale *models.Sale
	var restocked int
	err := w.repo.WithTx(ctx, func(tx store.Repository) error {
		var err error
		restocked = 0
		sale, err = tx.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != models.SaleStatusPending {
			return fmt.Errorf("%w: sale %d is %s", ErrInvalidTransition, saleID, sale.Status)
		}

		items, err := tx.ListLineItems(ctx, saleID)
		if err != nil {
			return err
		}
		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

		ids := make([]int64, len(items))
		for i, item := range items {
			ids[i] = item.ProductID
		}
		if _, err := tx.LockStock(ctx, ids); err != nil {
			return err
		}
		for _, item := range items {
			if _, err := tx.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("failed to restock product %d: %w", item.ProductID, err)
			}
			restocked += item.Quantity
		}

		sale.Status = models.SaleStatusCancelled
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return err
		}
		sale.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.SalesCancelledTotal.Inc()
	util.StockRestockedUnits.Add(float64(restocked))
	w.logger.Info("Sale cancelled", zap.Int64("sale_id", saleID), zap.Int("units_restocked", restocked))
	w.invalidateInvoice(ctx, saleID)

	event := &models.SaleCancelledEvent{
		BaseEvent: newBaseEvent(models.EventTypeSaleCancelled, w.now()),
		SaleID:    saleID,
		Items:     itemData(sale.Items),
	}
	logPublishError(w.logger, event.EventType, w.publisher.PublishSaleCancelled(ctx, event))
	return sale, nil
}

// GetSale returns a sale with its line items
func (w *SalesWorkflow) GetSale(ctx context.Context, saleID int64) (*models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SalesWorkflow.GetSale")
	defer span.End()

	sale, err := w.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Items, err = w.repo.ListLineItems(ctx, saleID); err != nil {
		return nil, err
	}
	return sale, nil
}

// ListSales returns sale headers, newest first
func (w *SalesWorkflow) ListSales(ctx context.Context, filter store.SaleFilter) ([]models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SalesWorkflow.ListSales")
	defer span.End()

	switch filter.Status {
	case "", models.SaleStatusPending, models.SaleStatusCompleted, models.SaleStatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown sale status %q", ErrInvalidArgument, filter.Status)
	}
	return w.repo.ListSales(ctx, filter)
}

// checkParties enforces the first two registration rules: the vendor must be
// currently authorized, the client must exist and be active.
func (w *SalesWorkflow) checkParties(ctx context.Context, tx store.Repository, vendorID, clientID int64, now time.Time) error {
	vendor, err := tx.GetPerson(ctx, vendorID, models.PersonKindVendor)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: vendor %d does not exist", ErrUnauthorized, vendorID)
	}
	if err != nil {
		return err
	}
	authorized, err := vendorAuthorized(ctx, tx, vendor, now)
	if err != nil {
		return err
	}
	if !authorized {
		return fmt.Errorf("%w: vendor %d", ErrUnauthorized, vendorID)
	}

	client, err := tx.GetPerson(ctx, clientID, models.PersonKindClient)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: client %d does not exist", ErrInvalidClient, clientID)
	}
	if err != nil {
		return err
	}
	if !client.Active {
		return fmt.Errorf("%w: client %d is inactive", ErrInvalidClient, clientID)
	}
	return nil
}

// aggregateItems sums quantities per product and keeps first-seen order
func aggregateItems(items []SaleItemRequest) (map[int64]int, []int64, error) {
	if len(items) == 0 {
		return nil, nil, fmt.Errorf("%w: a sale needs at least one item", ErrInvalidArgument)
	}

	quantities := make(map[int64]int, len(items))
	order := make([]int64, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: quantity for product %d must be positive", ErrInvalidArgument, item.ProductID)
		}
		if _, seen := quantities[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	return quantities, order, nil
}

// lockAndCheckStock locks the stock rows in ascending product id order and
// verifies every product can be sold before anything is written. Missing and
// inactive products count as insufficient stock.
func lockAndCheckStock(ctx context.Context, tx store.Repository, quantities map[int64]int) (map[int64]*models.Product, error) {
	ids := sortedKeys(quantities)
	if _, err := tx.LockStock(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to lock stock: %w", err)
	}

	products := make(map[int64]*models.Product, len(ids))
	for _, id := range ids {
		product, err := tx.GetProduct(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: product %d does not exist", ErrInsufficientStock, id)
		}
		if err != nil {
			return nil, err
		}
		if !canSell(product, quantities[id]) {
			return nil, fmt.Errorf("%w: product %d has %d, requested %d",
				ErrInsufficientStock, id, product.AvailableStock, quantities[id])
		}
		products[id] = product
	}
	return products, nil
}

func (w *SalesWorkflow) publishCompleted(ctx context.Context, sale *models.Sale) {
	event := &models.SaleCompletedEvent{
		BaseEvent: newBaseEvent(models.EventTypeSaleCompleted, w.now()),
		SaleID:    sale.ID,
		VendorID:  sale.VendorID,
		ClientID:  sale.ClientID,
		Total:     sale.Total,
		Items:     itemData(sale.Items),
	}
	logPublishError(w.logger, event.EventType, w.publisher.PublishSaleCompleted(ctx, event))
}

func (w *SalesWorkflow) invalidateInvoice(ctx context.Context, saleID int64) {
	if err := w.cache.InvalidateInvoice(ctx, saleID); err != nil {
		w.logger.Warn("Failed to invalidate cached invoice", zap.Int64("sale_id", saleID), zap.Error(err))
	}
}

func itemData(items []models.SaleLineItem) []models.SaleItemData {
	data := make([]models.SaleItemData, len(items))
	for i, item := range items {
		data[i] = models.SaleItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return data
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidClient):
		return "invalid_client"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	}
	return "error"
}

func sortedKeys(m map[int64]int) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
