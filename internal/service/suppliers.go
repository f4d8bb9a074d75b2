package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"polimarket/internal/models"
	"polimarket/internal/store"
	"polimarket/internal/util"

	"go.uber.org/zap"
)

// SupplierDirectory keeps suppliers and records purchases from them
type SupplierDirectory struct {
	repo      store.Transactor
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewSupplierDirectory(repo store.Transactor, publisher EventPublisher) *SupplierDirectory {
	return &SupplierDirectory{
		repo:      repo,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

type SupplierRequest struct {
	Name   string `json:"name" binding:"required"`
	TaxID  string `json:"tax_id" binding:"required"`
	Email  string `json:"email" binding:"omitempty,email"`
	Phone  string `json:"phone"`
	Active *bool  `json:"active"`
}

type PurchaseRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

func (s *SupplierDirectory) Create(ctx context.Context, req *SupplierRequest) (*models.Supplier, error) {
	ctx, span := util.StartSpan(ctx, "SupplierDirectory.Create")
	defer span.End()

	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.TaxID) == "" {
		return nil, fmt.Errorf("%w: name and tax id are required", ErrInvalidArgument)
	}

	supplier := &models.Supplier{
		Name:   req.Name,
		TaxID:  req.TaxID,
		Email:  req.Email,
		Phone:  req.Phone,
		Active: req.Active == nil || *req.Active,
	}
	if err := s.repo.CreateSupplier(ctx, supplier); err != nil {
		return nil, err
	}
	s.logger.Info("Supplier created", zap.Int64("supplier_id", supplier.ID))
	return supplier, nil
}

func (s *SupplierDirectory) Get(ctx context.Context, id int64) (*models.Supplier, error) {
	ctx, span := util.StartSpan(ctx, "SupplierDirectory.Get")
	defer span.End()

	return s.repo.GetSupplier(ctx, id)
}

func (s *SupplierDirectory) List(ctx context.Context, activeOnly bool) ([]models.Supplier, error) {
	ctx, span := util.StartSpan(ctx, "SupplierDirectory.List")
	defer span.End()

	return s.repo.ListSuppliers(ctx, activeOnly)
}

func (s *SupplierDirectory) Update(ctx context.Context, id int64, req *SupplierRequest) (*models.Supplier, error) {
	ctx, span := util.StartSpan(ctx, "SupplierDirectory.Update")
	defer span.End()

	var supplier *models.Supplier
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		var err error
		supplier, err = tx.GetSupplier(ctx, id)
		if err != nil {
			return err
		}
		supplier.Name = req.Name
		supplier.Email = req.Email
		supplier.Phone = req.Phone
		if req.Active != nil {
			supplier.Active = *req.Active
		}
		return tx.UpdateSupplier(ctx, supplier)
	})
	if err != nil {
		return nil, err
	}
	return supplier, nil
}

func (s *SupplierDirectory) Deactivate(ctx context.Context, id int64) error {
	inactive := false
	supplier, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.Update(ctx, id, &SupplierRequest{
		Name:   supplier.Name,
		TaxID:  supplier.TaxID,
		Email:  supplier.Email,
		Phone:  supplier.Phone,
		Active: &inactive,
	})
	return err
}

// SuppliedProducts lists the products the supplier currently provides
func (s *SupplierDirectory) SuppliedProducts(ctx context.Context, supplierID int64) ([]models.SuppliedProduct, error) {
	ctx, span := util.StartSpan(ctx, "SupplierDirectory.SuppliedProducts")
	defer span.End()

	if _, err := s.repo.GetSupplier(ctx, supplierID); err != nil {
		return nil, err
	}
	return s.repo.ListSuppliedProducts(ctx, supplierID)
}

// SupplyInfo describes the last purchase of a product from a supplier
func (s *SupplierDirectory) SupplyInfo(ctx context.Context, supplierID, productID int64) (*models.SupplyInfo, error) {
	ctx, span := util.StartSpan(ctx, "SupplierDirectory.SupplyInfo")
	defer span.End()

	supplier, err := s.repo.GetSupplier(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	link, err := s.repo.GetSupplierProduct(ctx, supplierID, productID)
	if err != nil {
		return nil, err
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	return &models.SupplyInfo{
		SupplierID:      supplier.ID,
		SupplierName:    supplier.Name,
		ProductID:       product.ID,
		ProductName:     product.Name,
		LastPurchaseAt:  link.LastPurchaseAt,
		LastPurchaseQty: link.LastPurchaseQty,
	}, nil
}

// RecordPurchase stores the purchase on the supplier-product link and adds
// the units to stock in the same transaction.
func (s *SupplierDirectory) RecordPurchase(ctx context.Context, supplierID int64, req *PurchaseRequest) (*models.SupplyInfo, error) {
	ctx, span := util.StartSpan(ctx, "SupplierDirectory.RecordPurchase")
	defer span.End()

	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidArgument)
	}

	now := s.now()
	var available int
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		supplier, err := tx.GetSupplier(ctx, supplierID)
		if err != nil {
			return err
		}
		if !supplier.Active {
			return fmt.Errorf("%w: supplier %d is inactive", ErrInvalidArgument, supplierID)
		}
		if _, err := tx.GetProduct(ctx, req.ProductID); err != nil {
			return err
		}

		link := &models.SupplierProduct{
			SupplierID:      supplierID,
			ProductID:       req.ProductID,
			LastPurchaseAt:  &now,
			LastPurchaseQty: req.Quantity,
			Active:          true,
		}
		if err := tx.UpsertSupplierProduct(ctx, link); err != nil {
			return err
		}
		available, err = tx.IncrementStock(ctx, req.ProductID, req.Quantity)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.StockRestockedUnits.Add(float64(req.Quantity))
	s.logger.Info("Purchase recorded",
		zap.Int64("supplier_id", supplierID),
		zap.Int64("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity))

	event := &models.StockRestockedEvent{
		BaseEvent: newBaseEvent(models.EventTypeStockRestocked, now),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Available: available,
	}
	logPublishError(s.logger, event.EventType, s.publisher.PublishStockRestocked(ctx, event))

	return s.SupplyInfo(ctx, supplierID, req.ProductID)
}
