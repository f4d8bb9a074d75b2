package service

import (
	"context"
	"fmt"
	"strings"

	"polimarket/internal/models"
	"polimarket/internal/store"
	"polimarket/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductCatalog manages product identity and pricing
type ProductCatalog struct {
	repo   store.Transactor
	logger *zap.Logger
}

func NewProductCatalog(repo store.Transactor) *ProductCatalog {
	return &ProductCatalog{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

type CreateProductRequest struct {
	Name         string          `json:"name" binding:"required"`
	Description  string          `json:"description"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	InitialStock int             `json:"initial_stock" binding:"min=0"`
}

type UpdateProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Active      *bool           `json:"active"`
}

// maxPrice is the first value that no longer fits NUMERIC(12, 2)
var maxPrice = decimal.New(1, 10)

// validatePrice accepts non-negative prices with at most two decimal places,
// the precision unit_price is stored with.
func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidArgument)
	}
	if !price.Equal(price.Round(2)) {
		return fmt.Errorf("%w: unit price %s has more than two decimal places", ErrInvalidArgument, price)
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return fmt.Errorf("%w: unit price %s is too large", ErrInvalidArgument, price)
	}
	return nil
}

func (c *ProductCatalog) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductCatalog.CreateProduct")
	defer span.End()

	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidArgument)
	}
	if err := validatePrice(req.UnitPrice); err != nil {
		return nil, err
	}
	if req.InitialStock < 0 {
		return nil, fmt.Errorf("%w: initial stock must not be negative", ErrInvalidArgument)
	}

	product := &models.Product{
		Name:        req.Name,
		Description: req.Description,
		UnitPrice:   req.UnitPrice,
		Active:      true,
	}
	err := c.repo.WithTx(ctx, func(tx store.Repository) error {
		return tx.CreateProduct(ctx, product, req.InitialStock)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	c.logger.Info("Product created", zap.Int64("product_id", product.ID), zap.String("name", product.Name))
	return product, nil
}

func (c *ProductCatalog) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductCatalog.GetProduct")
	defer span.End()

	return c.repo.GetProduct(ctx, id)
}

// ListProducts returns every product, active or not, ordered by id
func (c *ProductCatalog) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductCatalog.ListProducts")
	defer span.End()

	return c.repo.ListProducts(ctx, store.ProductFilter{})
}

func (c *ProductCatalog) UpdateProduct(ctx context.Context, id int64, req *UpdateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductCatalog.UpdateProduct")
	defer span.End()

	if err := validatePrice(req.UnitPrice); err != nil {
		return nil, err
	}

	var product *models.Product
	err := c.repo.WithTx(ctx, func(tx store.Repository) error {
		var err error
		product, err = tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		product.Name = req.Name
		product.Description = req.Description
		product.UnitPrice = req.UnitPrice
		if req.Active != nil {
			product.Active = *req.Active
		}
		return tx.UpdateProduct(ctx, product)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// DeactivateProduct hides the product from sales without deleting history
func (c *ProductCatalog) DeactivateProduct(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "ProductCatalog.DeactivateProduct")
	defer span.End()

	return c.repo.WithTx(ctx, func(tx store.Repository) error {
		product, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		product.Active = false
		return tx.UpdateProduct(ctx, product)
	})
}

// Search matches term against name or description of active products
func (c *ProductCatalog) Search(ctx context.Context, term string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductCatalog.Search")
	defer span.End()

	return c.repo.ListProducts(ctx, store.ProductFilter{
		Search:     strings.TrimSpace(term),
		ActiveOnly: true,
		OrderBy:    store.OrderByName,
	})
}

// Subtotal prices quantity units of a product at its current price
func (c *ProductCatalog) Subtotal(ctx context.Context, productID int64, quantity int) (decimal.Decimal, error) {
	ctx, span := util.StartSpan(ctx, "ProductCatalog.Subtotal")
	defer span.End()

	if quantity <= 0 {
		return decimal.Zero, fmt.Errorf("%w: quantity must be positive", ErrInvalidArgument)
	}
	product, err := c.repo.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return product.Subtotal(quantity), nil
}
