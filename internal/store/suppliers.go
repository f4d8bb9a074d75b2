package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"polimarket/internal/models"

	"github.com/jmoiron/sqlx"
)

const supplierColumns = `id, name, tax_id, email, phone, active, created_at, updated_at`

func (q *queries) CreateSupplier(ctx context.Context, supplier *models.Supplier) error {
	err := sqlx.GetContext(ctx, q.db, supplier, `
		INSERT INTO suppliers (name, tax_id, email, phone, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		supplier.Name, supplier.TaxID, supplier.Email, supplier.Phone, supplier.Active)
	return translate(err)
}

func (q *queries) GetSupplier(ctx context.Context, id int64) (*models.Supplier, error) {
	var supplier models.Supplier
	err := sqlx.GetContext(ctx, q.db, &supplier,
		"SELECT "+supplierColumns+" FROM suppliers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: supplier %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &supplier, nil
}

func (q *queries) ListSuppliers(ctx context.Context, activeOnly bool) ([]models.Supplier, error) {
	query := "SELECT " + supplierColumns + " FROM suppliers"
	if activeOnly {
		query += " WHERE active"
	}
	query += " ORDER BY name, id"

	suppliers := []models.Supplier{}
	err := sqlx.SelectContext(ctx, q.db, &suppliers, query)
	return suppliers, err
}

func (q *queries) UpdateSupplier(ctx context.Context, supplier *models.Supplier) error {
	err := sqlx.GetContext(ctx, q.db, &supplier.UpdatedAt, `
		UPDATE suppliers SET name = $1, email = $2, phone = $3, active = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`,
		supplier.Name, supplier.Email, supplier.Phone, supplier.Active, supplier.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: supplier %d", ErrNotFound, supplier.ID)
	}
	return err
}

// UpsertSupplierProduct creates or replaces the supplier-product link
func (q *queries) UpsertSupplierProduct(ctx context.Context, link *models.SupplierProduct) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO supplier_products (supplier_id, product_id, last_purchase_at, last_purchase_qty, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (supplier_id, product_id) DO UPDATE
		SET last_purchase_at = EXCLUDED.last_purchase_at,
		    last_purchase_qty = EXCLUDED.last_purchase_qty,
		    active = EXCLUDED.active`,
		link.SupplierID, link.ProductID, link.LastPurchaseAt, link.LastPurchaseQty, link.Active)
	return translate(err)
}

func (q *queries) GetSupplierProduct(ctx context.Context, supplierID, productID int64) (*models.SupplierProduct, error) {
	var link models.SupplierProduct
	err := sqlx.GetContext(ctx, q.db, &link, `
		SELECT supplier_id, product_id, last_purchase_at, last_purchase_qty, active
		FROM supplier_products
		WHERE supplier_id = $1 AND product_id = $2`, supplierID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: supplier %d does not supply product %d", ErrNotFound, supplierID, productID)
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// ListSuppliedProducts returns the products behind the supplier's active links
func (q *queries) ListSuppliedProducts(ctx context.Context, supplierID int64) ([]models.SuppliedProduct, error) {
	products := []models.SuppliedProduct{}
	err := sqlx.SelectContext(ctx, q.db, &products, `
		SELECT p.id, p.name, p.description, p.unit_price, p.active, p.created_at, p.updated_at,
		       COALESCE(s.available, 0) AS available_stock,
		       sp.last_purchase_at, sp.last_purchase_qty
		FROM supplier_products sp
		JOIN products p ON p.id = sp.product_id
		LEFT JOIN product_stock s ON s.product_id = p.id
		WHERE sp.supplier_id = $1 AND sp.active
		ORDER BY p.name, p.id`, supplierID)
	return products, err
}
