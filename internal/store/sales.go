package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"polimarket/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const saleColumns = `id, vendor_id, client_id, status, total, created_at, updated_at`

// CreateSale inserts a sale header; the id comes from sales_id_seq
func (q *queries) CreateSale(ctx context.Context, sale *models.Sale) error {
	query := `
		INSERT INTO sales (vendor_id, client_id, status, total)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, q.db, sale, query,
		sale.VendorID, sale.ClientID, sale.Status, sale.Total)
	return translate(err)
}

func (q *queries) GetSale(ctx context.Context, id int64) (*models.Sale, error) {
	return q.getSale(ctx, "SELECT "+saleColumns+" FROM sales WHERE id = $1", id)
}

// LockSale reads a sale and holds its row lock until the transaction ends
func (q *queries) LockSale(ctx context.Context, id int64) (*models.Sale, error) {
	return q.getSale(ctx, "SELECT "+saleColumns+" FROM sales WHERE id = $1 FOR UPDATE", id)
}

func (q *queries) getSale(ctx context.Context, query string, id int64) (*models.Sale, error) {
	var sale models.Sale
	err := sqlx.GetContext(ctx, q.db, &sale, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sale %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// ListSales returns sales newest first
func (q *queries) ListSales(ctx context.Context, filter SaleFilter) ([]models.Sale, error) {
	var where []string
	var args []interface{}

	if filter.VendorID != 0 {
		where = append(where, "vendor_id = ?")
		args = append(args, filter.VendorID)
	}
	if filter.ClientID != 0 {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := "SELECT " + saleColumns + " FROM sales"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	sales := []models.Sale{}
	err := sqlx.SelectContext(ctx, q.db, &sales, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	return sales, err
}

// UpdateSale persists status and total
func (q *queries) UpdateSale(ctx context.Context, sale *models.Sale) error {
	err := sqlx.GetContext(ctx, q.db, &sale.UpdatedAt, `
		UPDATE sales SET status = $1, total = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at`, sale.Status, sale.Total, sale.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: sale %d", ErrNotFound, sale.ID)
	}
	return err
}

// ListLineItems retrieves all lines of a sale with product names
func (q *queries) ListLineItems(ctx context.Context, saleID int64) ([]models.SaleLineItem, error) {
	items := []models.SaleLineItem{}
	err := sqlx.SelectContext(ctx, q.db, &items, `
		SELECT i.id, i.sale_id, i.product_id, p.name AS product_name,
		       i.quantity, i.unit_price, i.subtotal
		FROM sale_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.sale_id = $1
		ORDER BY i.id`, saleID)
	return items, err
}

// UpsertLineItem adds a line or, if the product is already on the sale,
// increases its quantity. The stored unit price of an existing line is kept.
func (q *queries) UpsertLineItem(ctx context.Context, item *models.SaleLineItem) error {
	query := `
		INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sale_id, product_id) DO UPDATE
		SET quantity = sale_items.quantity + EXCLUDED.quantity,
		    subtotal = (sale_items.quantity + EXCLUDED.quantity) * sale_items.unit_price
		RETURNING id, quantity, unit_price, subtotal`

	subtotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
	err := sqlx.GetContext(ctx, q.db, item, query,
		item.SaleID, item.ProductID, item.Quantity, item.UnitPrice, subtotal)
	return translate(err)
}

// SumLineItems returns the sum of persisted subtotals, zero when there are none
func (q *queries) SumLineItems(ctx context.Context, saleID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := sqlx.GetContext(ctx, q.db, &total,
		"SELECT COALESCE(SUM(subtotal), 0) FROM sale_items WHERE sale_id = $1", saleID)
	return total, err
}
