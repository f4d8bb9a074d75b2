package store

import (
	"context"
	"time"

	"polimarket/internal/models"

	"github.com/shopspring/decimal"
)

// Product list orderings
const (
	OrderByID    = ""
	OrderByName  = "name"
	OrderByStock = "stock"
)

type ProductFilter struct {
	Search      string
	ActiveOnly  bool
	InStockOnly bool
	MaxStock    *int
	OrderBy     string
}

type PersonFilter struct {
	Kind       string
	ActiveOnly bool
}

// AuthorizationFilter selects a vendor's records. When ActiveAt is set only
// records valid at that instant are returned.
type AuthorizationFilter struct {
	VendorID int64
	ActiveAt *time.Time
}

type SaleFilter struct {
	VendorID int64
	ClientID int64
	Status   string
}

type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product, initialStock int) error
	UpdateProduct(ctx context.Context, product *models.Product) error
}

// StockRepository manipulates product_stock. LockStock must be called inside
// WithTx to hold the row locks until commit.
type StockRepository interface {
	LockStock(ctx context.Context, productIDs []int64) ([]models.StockLevel, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) (int, error)
	IncrementStock(ctx context.Context, productID int64, quantity int) (int, error)
}

type PersonRepository interface {
	GetPerson(ctx context.Context, id int64, kind string) (*models.Person, error)
	ListPersons(ctx context.Context, filter PersonFilter) ([]models.Person, error)
	CreatePerson(ctx context.Context, person *models.Person) error
	UpdatePerson(ctx context.Context, person *models.Person) error
}

type AuthorizationRepository interface {
	CreateAuthorization(ctx context.Context, auth *models.Authorization) error
	ListAuthorizations(ctx context.Context, filter AuthorizationFilter) ([]models.Authorization, error)
}

type SaleRepository interface {
	CreateSale(ctx context.Context, sale *models.Sale) error
	GetSale(ctx context.Context, id int64) (*models.Sale, error)
	LockSale(ctx context.Context, id int64) (*models.Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]models.Sale, error)
	UpdateSale(ctx context.Context, sale *models.Sale) error

	ListLineItems(ctx context.Context, saleID int64) ([]models.SaleLineItem, error)
	UpsertLineItem(ctx context.Context, item *models.SaleLineItem) error
	SumLineItems(ctx context.Context, saleID int64) (decimal.Decimal, error)
}

type DeliveryRepository interface {
	CreateDeliveryOrder(ctx context.Context, order *models.DeliveryOrder) error
	GetDeliveryOrder(ctx context.Context, id int64) (*models.DeliveryOrder, error)
	GetDeliveryOrderBySale(ctx context.Context, saleID int64) (*models.DeliveryOrder, error)
	LockDeliveryOrder(ctx context.Context, id int64) (*models.DeliveryOrder, error)
	UpdateDeliveryOrder(ctx context.Context, order *models.DeliveryOrder) error
	CreateDeliveryTransition(ctx context.Context, transition *models.DeliveryTransition) error
	ListDeliveryTransitions(ctx context.Context, orderID int64) ([]models.DeliveryTransition, error)
}

type SupplierRepository interface {
	CreateSupplier(ctx context.Context, supplier *models.Supplier) error
	GetSupplier(ctx context.Context, id int64) (*models.Supplier, error)
	ListSuppliers(ctx context.Context, activeOnly bool) ([]models.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier *models.Supplier) error
	UpsertSupplierProduct(ctx context.Context, link *models.SupplierProduct) error
	GetSupplierProduct(ctx context.Context, supplierID, productID int64) (*models.SupplierProduct, error)
	ListSuppliedProducts(ctx context.Context, supplierID int64) ([]models.SuppliedProduct, error)
}

type EventRepository interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Repository is the full set of typed queries. It is implemented both by the
// pooled Store and by the transaction handle passed to WithTx.
type Repository interface {
	ProductRepository
	StockRepository
	PersonRepository
	AuthorizationRepository
	SaleRepository
	DeliveryRepository
	SupplierRepository
	EventRepository
}

// Transactor runs fn atomically. fn may be invoked more than once when the
// database reports a serialization failure or deadlock.
type Transactor interface {
	Repository
	WithTx(ctx context.Context, fn func(Repository) error) error
	Ping(ctx context.Context) error
}
