package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"polimarket/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const productSelect = `
	SELECT p.id, p.name, p.description, p.unit_price, p.active, p.created_at, p.updated_at,
	       COALESCE(s.available, 0) AS available_stock
	FROM products p
	LEFT JOIN product_stock s ON s.product_id = p.id`

// GetProduct retrieves a product with its current stock
func (q *queries) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.db, &product, productSelect+" WHERE p.id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves products matching the filter
func (q *queries) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	var where []string
	var args []interface{}

	if filter.Search != "" {
		like := "%" + escapeLike(filter.Search) + "%"
		where = append(where, "(p.name ILIKE ? OR p.description ILIKE ?)")
		args = append(args, like, like)
	}
	if filter.ActiveOnly {
		where = append(where, "p.active")
	}
	if filter.InStockOnly {
		where = append(where, "COALESCE(s.available, 0) > 0")
	}
	if filter.MaxStock != nil {
		where = append(where, "COALESCE(s.available, 0) <= ?")
		args = append(args, *filter.MaxStock)
	}

	query := productSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	switch filter.OrderBy {
	case OrderByName:
		query += " ORDER BY p.name, p.id"
	case OrderByStock:
		query += " ORDER BY available_stock, p.id"
	default:
		query += " ORDER BY p.id"
	}

	products := []models.Product{}
	err := sqlx.SelectContext(ctx, q.db, &products, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	return products, err
}

// CreateProduct inserts the product and its stock row
func (q *queries) CreateProduct(ctx context.Context, product *models.Product, initialStock int) error {
	query := `
		INSERT INTO products (name, description, unit_price, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, q.db, product, query,
		product.Name, product.Description, product.UnitPrice, product.Active)
	if err != nil {
		return translate(err)
	}

	_, err = q.db.ExecContext(ctx,
		"INSERT INTO product_stock (product_id, available) VALUES ($1, $2)",
		product.ID, initialStock)
	if err != nil {
		return translate(err)
	}

	product.AvailableStock = initialStock
	return nil
}

// UpdateProduct updates the mutable product fields
func (q *queries) UpdateProduct(ctx context.Context, product *models.Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, unit_price = $3, active = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`

	err := sqlx.GetContext(ctx, q.db, &product.UpdatedAt, query,
		product.Name, product.Description, product.UnitPrice, product.Active, product.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: product %d", ErrNotFound, product.ID)
	}
	return err
}

// LockStock locks the stock rows of the given products in ascending id order.
// Products without a stock row are simply absent from the result.
func (q *queries) LockStock(ctx context.Context, productIDs []int64) ([]models.StockLevel, error) {
	levels := []models.StockLevel{}
	if len(productIDs) == 0 {
		return levels, nil
	}

	err := sqlx.SelectContext(ctx, q.db, &levels, `
		SELECT product_id, available, updated_at
		FROM product_stock
		WHERE product_id = ANY($1)
		ORDER BY product_id
		FOR UPDATE`, pq.Array(productIDs))
	return levels, err
}

// DecrementStock removes quantity units only if that many are available.
// It returns the remaining stock.
func (q *queries) DecrementStock(ctx context.Context, productID int64, quantity int) (int, error) {
	var remaining int
	err := sqlx.GetContext(ctx, q.db, &remaining, `
		UPDATE product_stock
		SET available = available - $1, updated_at = NOW()
		WHERE product_id = $2 AND available >= $1
		RETURNING available`, quantity, productID)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := q.GetProduct(ctx, productID); getErr != nil {
			return 0, getErr
		}
		return 0, fmt.Errorf("%w: product %d", ErrInsufficientStock, productID)
	}
	if err != nil {
		return 0, translate(err)
	}
	return remaining, nil
}

// IncrementStock adds quantity units and returns the new stock
func (q *queries) IncrementStock(ctx context.Context, productID int64, quantity int) (int, error) {
	var available int
	err := sqlx.GetContext(ctx, q.db, &available, `
		UPDATE product_stock
		SET available = available + $1, updated_at = NOW()
		WHERE product_id = $2
		RETURNING available`, quantity, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: product %d", ErrNotFound, productID)
	}
	return available, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
