package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"polimarket/config"
	"polimarket/internal/models"
	"polimarket/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []interface{}
	types  []string
	err    error
}

func (p *fakePublisher) record(eventType string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	p.types = append(p.types, eventType)
	return p.err
}

func (p *fakePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.types {
		if t == eventType {
			n++
		}
	}
	return n
}

func (p *fakePublisher) last(eventType string) interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.types) - 1; i >= 0; i-- {
		if p.types[i] == eventType {
			return p.events[i]
		}
	}
	return nil
}

func (p *fakePublisher) PublishSaleCompleted(ctx context.Context, e *models.SaleCompletedEvent) error {
	return p.record(e.EventType, e)
}

func (p *fakePublisher) PublishSaleCancelled(ctx context.Context, e *models.SaleCancelledEvent) error {
	return p.record(e.EventType, e)
}

func (p *fakePublisher) PublishStockRestocked(ctx context.Context, e *models.StockRestockedEvent) error {
	return p.record(e.EventType, e)
}

func (p *fakePublisher) PublishStockLow(ctx context.Context, e *models.StockLowEvent) error {
	return p.record(e.EventType, e)
}

func (p *fakePublisher) PublishVendorAuthorized(ctx context.Context, e *models.VendorAuthorizedEvent) error {
	return p.record(e.EventType, e)
}

func (p *fakePublisher) PublishDeliveryStatusChanged(ctx context.Context, e *models.DeliveryStatusChangedEvent) error {
	return p.record(e.EventType, e)
}

type fakeCache struct {
	mu       sync.Mutex
	keys     map[string]int64
	invoices map[int64]*models.Invoice
	err      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{keys: map[string]int64{}, invoices: map[int64]*models.Invoice{}}
}

func (c *fakeCache) GetIdempotentSale(ctx context.Context, key string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, false, c.err
	}
	id, ok := c.keys[key]
	return id, ok, nil
}

func (c *fakeCache) SetIdempotentSale(ctx context.Context, key string, saleID int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.keys[key] = saleID
	return nil
}

func (c *fakeCache) GetInvoice(ctx context.Context, saleID int64) (*models.Invoice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.invoices[saleID], nil
}

func (c *fakeCache) SetInvoice(ctx context.Context, invoice *models.Invoice, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.invoices[invoice.SaleID] = invoice
	return nil
}

func (c *fakeCache) InvalidateInvoice(ctx context.Context, saleID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.invoices, saleID)
	return c.err
}

type fixture struct {
	repo      *memstore.Store
	publisher *fakePublisher
	cache     *fakeCache

	catalog   *ProductCatalog
	stock     *StockLedger
	auth      *AuthorizationRegistry
	sales     *SalesWorkflow
	delivery  *DeliveryTracking
	persons   *PersonDirectory
	suppliers *SupplierDirectory

	now    time.Time
	vendor *models.Person
	client *models.Person
}

// newFixture wires every service over one in-memory store and seeds an
// authorized vendor and an active client.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:      memstore.New(),
		publisher: &fakePublisher{},
		cache:     newFakeCache(),
		now:       time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.repo.SetClock(clock)

	cfg := config.DefaultBusiness()
	f.catalog = NewProductCatalog(f.repo)
	f.stock = NewStockLedger(f.repo, f.publisher, cfg)
	f.stock.now = clock
	f.auth = NewAuthorizationRegistry(f.repo, f.publisher, cfg)
	f.auth.now = clock
	f.sales = NewSalesWorkflow(f.repo, f.cache, f.publisher, cfg)
	f.sales.now = clock
	f.delivery = NewDeliveryTracking(f.repo, f.publisher)
	f.delivery.now = clock
	f.persons = NewPersonDirectory(f.repo)
	f.suppliers = NewSupplierDirectory(f.repo, f.publisher)
	f.suppliers.now = clock

	ctx := context.Background()
	f.vendor = f.newPerson(t, models.PersonKindVendor, "V-100", "Ana", "Gomez")
	_, err := f.auth.Authorize(ctx, f.vendor.ID, "AUTH-001")
	require.NoError(t, err)
	f.client = f.newPerson(t, models.PersonKindClient, "C-200", "Luis", "Perez")

	return f
}

func (f *fixture) newPerson(t *testing.T, kind, identification, first, last string) *models.Person {
	t.Helper()
	person, err := f.persons.Create(context.Background(), kind, &PersonRequest{
		Identification: identification,
		FirstName:      first,
		LastName:       last,
	})
	require.NoError(t, err)
	return person
}

func (f *fixture) newProduct(t *testing.T, name, price string, stock int) *models.Product {
	t.Helper()
	product, err := f.catalog.CreateProduct(context.Background(), &CreateProductRequest{
		Name:         name,
		UnitPrice:    decimal.RequireFromString(price),
		InitialStock: stock,
	})
	require.NoError(t, err)
	return product
}

func (f *fixture) available(t *testing.T, productID int64) int {
	t.Helper()
	product, err := f.repo.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return product.AvailableStock
}

func (f *fixture) register(t *testing.T, items ...SaleItemRequest) *models.Sale {
	t.Helper()
	sale, err := f.sales.RegisterSale(context.Background(), &RegisterSaleRequest{
		VendorID: f.vendor.ID,
		ClientID: f.client.ID,
		Items:    items,
	})
	require.NoError(t, err)
	return sale
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
