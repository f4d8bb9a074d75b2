package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polimarket/internal/models"
	"polimarket/internal/store"
	"polimarket/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DeliveryTracking records the shipment state of completed sales
type DeliveryTracking struct {
	repo      store.Transactor
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewDeliveryTracking(repo store.Transactor, publisher EventPublisher) *DeliveryTracking {
	return &DeliveryTracking{
		repo:      repo,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// Schedule creates the delivery order of a completed sale. Calling it again
// for the same sale returns the existing order.
func (d *DeliveryTracking) Schedule(ctx context.Context, saleID int64) (*models.DeliveryOrder, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryTracking.Schedule", attribute.Int64("sale.id", saleID))
	defer span.End()

	var order *models.DeliveryOrder
	err := d.repo.WithTx(ctx, func(tx store.Repository) error {
		var err error
		order, err = scheduleLocked(ctx, tx, saleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func scheduleLocked(ctx context.Context, tx store.Repository, saleID int64) (*models.DeliveryOrder, error) {
	sale, err := tx.LockSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status != models.SaleStatusCompleted {
		return nil, fmt.Errorf("%w: sale %d is %s, only completed sales are delivered",
			ErrInvalidTransition, saleID, sale.Status)
	}

	existing, err := tx.GetDeliveryOrderBySale(ctx, saleID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	order := &models.DeliveryOrder{
		SaleID: saleID,
		State:  models.DeliveryStateScheduled,
	}
	if err := tx.CreateDeliveryOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// HandleSaleCompleted schedules delivery for a SALE_COMPLETED event exactly once
func (d *DeliveryTracking) HandleSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error {
	ctx, span := util.StartSpan(ctx, "DeliveryTracking.HandleSaleCompleted",
		attribute.String("event.id", event.EventID))
	defer span.End()

	var order *models.DeliveryOrder
	err := d.repo.WithTx(ctx, func(tx store.Repository) error {
		order = nil
		processed, err := tx.IsEventProcessed(ctx, event.EventID)
		if err != nil || processed {
			return err
		}
		if order, err = scheduleLocked(ctx, tx, event.SaleID); err != nil {
			return err
		}
		return tx.MarkEventProcessed(ctx, event.EventID, event.EventType)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule delivery for sale %d: %w", event.SaleID, err)
	}

	if order == nil {
		d.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}
	d.logger.Info("Delivery scheduled",
		zap.Int64("sale_id", event.SaleID),
		zap.Int64("delivery_order_id", order.ID))
	return nil
}

// RecordDelivery moves the order to newState and appends the transition.
// DELIVERED stamps the delivery time.
func (d *DeliveryTracking) RecordDelivery(ctx context.Context, orderID int64, newState string) (*models.DeliveryOrder, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryTracking.RecordDelivery",
		attribute.Int64("delivery.id", orderID), attribute.String("delivery.state", newState))
	defer span.End()

	if !models.ValidDeliveryState(newState) {
		return nil, fmt.Errorf("%w: unknown delivery state %q", ErrInvalidArgument, newState)
	}

	now := d.now()
	var order *models.DeliveryOrder
	var previous string
	err := d.repo.WithTx(ctx, func(tx store.Repository) error {
		var err error
		order, err = tx.LockDeliveryOrder(ctx, orderID)
		if err != nil {
			return err
		}

		previous = order.State
		transition := &models.DeliveryTransition{
			DeliveryOrderID: orderID,
			PreviousState:   previous,
			NewState:        newState,
			ChangedAt:       now,
		}
		if err := tx.CreateDeliveryTransition(ctx, transition); err != nil {
			return err
		}

		order.State = newState
		if newState == models.DeliveryStateDelivered {
			order.DeliveredAt = &now
		}
		return tx.UpdateDeliveryOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	util.DeliveryTransitionsTotal.WithLabelValues(newState).Inc()
	d.logger.Info("Delivery state changed",
		zap.Int64("delivery_order_id", orderID),
		zap.String("previous", previous),
		zap.String("new", newState))

	event := &models.DeliveryStatusChangedEvent{
		BaseEvent:       newBaseEvent(models.EventTypeDeliveryStatusChanged, now),
		DeliveryOrderID: orderID,
		SaleID:          order.SaleID,
		PreviousState:   previous,
		NewState:        newState,
	}
	logPublishError(d.logger, event.EventType, d.publisher.PublishDeliveryStatusChanged(ctx, event))
	return order, nil
}

func (d *DeliveryTracking) Get(ctx context.Context, orderID int64) (*models.DeliveryOrder, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryTracking.Get")
	defer span.End()

	return d.repo.GetDeliveryOrder(ctx, orderID)
}

// TransitionHistory returns the state changes of an order, oldest first
func (d *DeliveryTracking) TransitionHistory(ctx context.Context, orderID int64) ([]models.DeliveryTransition, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryTracking.TransitionHistory")
	defer span.End()

	if _, err := d.repo.GetDeliveryOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return d.repo.ListDeliveryTransitions(ctx, orderID)
}

// Summary renders "Order #<id> - State: <state> - Date: <dd/MM/yyyy>" using
// the delivery date when delivered and the creation date otherwise.
func Summary(order *models.DeliveryOrder) string {
	date := order.CreatedAt
	if order.DeliveredAt != nil {
		date = *order.DeliveredAt
	}
	return fmt.Sprintf("Order #%d - State: %s - Date: %s", order.ID, order.State, date.UTC().Format("02/01/2006"))
}
