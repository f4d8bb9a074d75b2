package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"polimarket/internal/models"

	"github.com/jmoiron/sqlx"
)

const deliveryColumns = `id, sale_id, state, delivered_at, created_at, updated_at`

func (q *queries) CreateDeliveryOrder(ctx context.Context, order *models.DeliveryOrder) error {
	err := sqlx.GetContext(ctx, q.db, order, `
		INSERT INTO delivery_orders (sale_id, state, delivered_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`, order.SaleID, order.State, order.DeliveredAt)
	return translate(err)
}

func (q *queries) GetDeliveryOrder(ctx context.Context, id int64) (*models.DeliveryOrder, error) {
	return q.getDeliveryOrder(ctx, "SELECT "+deliveryColumns+" FROM delivery_orders WHERE id = $1", id)
}

func (q *queries) GetDeliveryOrderBySale(ctx context.Context, saleID int64) (*models.DeliveryOrder, error) {
	return q.getDeliveryOrder(ctx, "SELECT "+deliveryColumns+" FROM delivery_orders WHERE sale_id = $1", saleID)
}

func (q *queries) LockDeliveryOrder(ctx context.Context, id int64) (*models.DeliveryOrder, error) {
	return q.getDeliveryOrder(ctx, "SELECT "+deliveryColumns+" FROM delivery_orders WHERE id = $1 FOR UPDATE", id)
}

func (q *queries) getDeliveryOrder(ctx context.Context, query string, arg int64) (*models.DeliveryOrder, error) {
	var order models.DeliveryOrder
	err := sqlx.GetContext(ctx, q.db, &order, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: delivery order", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (q *queries) UpdateDeliveryOrder(ctx context.Context, order *models.DeliveryOrder) error {
	err := sqlx.GetContext(ctx, q.db, &order.UpdatedAt, `
		UPDATE delivery_orders SET state = $1, delivered_at = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at`, order.State, order.DeliveredAt, order.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: delivery order %d", ErrNotFound, order.ID)
	}
	return err
}

func (q *queries) CreateDeliveryTransition(ctx context.Context, transition *models.DeliveryTransition) error {
	err := sqlx.GetContext(ctx, q.db, &transition.ID, `
		INSERT INTO delivery_transitions (delivery_order_id, previous_state, new_state, changed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		transition.DeliveryOrderID, transition.PreviousState, transition.NewState, transition.ChangedAt)
	return translate(err)
}

// ListDeliveryTransitions returns the history oldest first
func (q *queries) ListDeliveryTransitions(ctx context.Context, orderID int64) ([]models.DeliveryTransition, error) {
	transitions := []models.DeliveryTransition{}
	err := sqlx.SelectContext(ctx, q.db, &transitions, `
		SELECT id, delivery_order_id, previous_state, new_state, changed_at
		FROM delivery_transitions
		WHERE delivery_order_id = $1
		ORDER BY changed_at, id`, orderID)
	return transitions, err
}
