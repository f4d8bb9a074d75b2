// Package memstore is an in-memory store.Transactor used by service and API
// tests. WithTx serializes transactions and rolls state back when fn fails.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"polimarket/internal/models"
	"polimarket/internal/store"

	"github.com/shopspring/decimal"
)

type state struct {
	products      map[int64]models.Product
	stock         map[int64]models.StockLevel
	persons       map[int64]models.Person
	auths         []models.Authorization
	sales         map[int64]models.Sale
	items         []models.SaleLineItem
	deliveries    map[int64]models.DeliveryOrder
	transitions   []models.DeliveryTransition
	suppliers     map[int64]models.Supplier
	supplierLinks map[[2]int64]models.SupplierProduct
	events        map[string]string

	nextID     int64
	nextSaleID int64
}

func (st *state) clone() *state {
	c := &state{
		products:      make(map[int64]models.Product, len(st.products)),
		stock:         make(map[int64]models.StockLevel, len(st.stock)),
		persons:       make(map[int64]models.Person, len(st.persons)),
		auths:         append([]models.Authorization(nil), st.auths...),
		sales:         make(map[int64]models.Sale, len(st.sales)),
		items:         append([]models.SaleLineItem(nil), st.items...),
		deliveries:    make(map[int64]models.DeliveryOrder, len(st.deliveries)),
		transitions:   append([]models.DeliveryTransition(nil), st.transitions...),
		suppliers:     make(map[int64]models.Supplier, len(st.suppliers)),
		supplierLinks: make(map[[2]int64]models.SupplierProduct, len(st.supplierLinks)),
		events:        make(map[string]string, len(st.events)),
		nextID:        st.nextID,
		nextSaleID:    st.nextSaleID,
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.stock {
		c.stock[k] = v
	}
	for k, v := range st.persons {
		c.persons[k] = v
	}
	for k, v := range st.sales {
		c.sales[k] = v
	}
	for k, v := range st.deliveries {
		c.deliveries[k] = v
	}
	for k, v := range st.suppliers {
		c.suppliers[k] = v
	}
	for k, v := range st.supplierLinks {
		c.supplierLinks[k] = v
	}
	for k, v := range st.events {
		c.events[k] = v
	}
	return c
}

// Store implements store.Transactor in memory
type Store struct {
	mu    *sync.Mutex
	st    **state
	inTx  bool
	clock func() time.Time

	// returned by the next repository call when set
	failNext *error
}

func New() *Store {
	st := &state{
		products:      map[int64]models.Product{},
		stock:         map[int64]models.StockLevel{},
		persons:       map[int64]models.Person{},
		sales:         map[int64]models.Sale{},
		deliveries:    map[int64]models.DeliveryOrder{},
		suppliers:     map[int64]models.Supplier{},
		supplierLinks: map[[2]int64]models.SupplierProduct{},
		events:        map[string]string{},
		nextSaleID:    7001,
	}
	var failNext error
	return &Store{mu: &sync.Mutex{}, st: &st, clock: time.Now, failNext: &failNext}
}

// SetClock overrides the timestamps written by the store
func (s *Store) SetClock(clock func() time.Time) {
	s.clock = clock
}

// FailNext makes the next repository call return err
func (s *Store) FailNext(err error) {
	defer s.lock()()
	*s.failNext = err
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) data() *state {
	return *s.st
}

func (s *Store) injected() error {
	err := *s.failNext
	*s.failNext = nil
	return err
}

func (s *Store) id() int64 {
	st := s.data()
	st.nextID++
	return st.nextID
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// WithTx runs fn with exclusive access, discarding its writes on error
func (s *Store) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data().clone()
	tx := &Store{mu: s.mu, st: s.st, inTx: true, clock: s.clock, failNext: s.failNext}
	if err := fn(tx); err != nil {
		*s.st = snapshot
		return err
	}
	return nil
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%w: %s %d", store.ErrNotFound, what, id)
}

// products

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}
	return s.getProduct(id)
}

func (s *Store) getProduct(id int64) (*models.Product, error) {
	st := s.data()
	p, ok := st.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	p.AvailableStock = st.stock[id].Available
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	term := strings.ToLower(filter.Search)
	products := []models.Product{}
	for id := range s.data().products {
		p, _ := s.getProduct(id)
		if term != "" && !strings.Contains(strings.ToLower(p.Name), term) &&
			!strings.Contains(strings.ToLower(p.Description), term) {
			continue
		}
		if filter.ActiveOnly && !p.Active {
			continue
		}
		if filter.InStockOnly && p.AvailableStock <= 0 {
			continue
		}
		if filter.MaxStock != nil && p.AvailableStock > *filter.MaxStock {
			continue
		}
		products = append(products, *p)
	}

	sort.Slice(products, func(i, j int) bool {
		a, b := products[i], products[j]
		switch filter.OrderBy {
		case store.OrderByName:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		case store.OrderByStock:
			if a.AvailableStock != b.AvailableStock {
				return a.AvailableStock < b.AvailableStock
			}
		}
		return a.ID < b.ID
	})
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product *models.Product, initialStock int) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}
	if initialStock < 0 {
		return fmt.Errorf("%w: negative stock", store.ErrInsufficientStock)
	}

	now := s.clock()
	product.ID = s.id()
	product.CreatedAt, product.UpdatedAt = now, now
	product.AvailableStock = initialStock

	st := s.data()
	st.products[product.ID] = *product
	st.stock[product.ID] = models.StockLevel{ProductID: product.ID, Available: initialStock, UpdatedAt: now}
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}

	st := s.data()
	existing, ok := st.products[product.ID]
	if !ok {
		return notFound("product", product.ID)
	}
	existing.Name = product.Name
	existing.Description = product.Description
	existing.UnitPrice = product.UnitPrice
	existing.Active = product.Active
	existing.UpdatedAt = s.clock()
	st.products[product.ID] = existing
	product.UpdatedAt = existing.UpdatedAt
	return nil
}

// stock

func (s *Store) LockStock(ctx context.Context, productIDs []int64) ([]models.StockLevel, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	levels := []models.StockLevel{}
	for _, id := range productIDs {
		if level, ok := s.data().stock[id]; ok {
			levels = append(levels, level)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].ProductID < levels[j].ProductID })
	return levels, nil
}

func (s *Store) DecrementStock(ctx context.Context, productID int64, quantity int) (int, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return 0, err
	}

	level, ok := s.data().stock[productID]
	if !ok {
		return 0, notFound("product", productID)
	}
	if level.Available < quantity {
		return 0, fmt.Errorf("%w: product %d", store.ErrInsufficientStock, productID)
	}
	level.Available -= quantity
	level.UpdatedAt = s.clock()
	s.data().stock[productID] = level
	return level.Available, nil
}

func (s *Store) IncrementStock(ctx context.Context, productID int64, quantity int) (int, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return 0, err
	}

	level, ok := s.data().stock[productID]
	if !ok {
		return 0, notFound("product", productID)
	}
	level.Available += quantity
	level.UpdatedAt = s.clock()
	s.data().stock[productID] = level
	return level.Available, nil
}

// persons and authorizations

func (s *Store) GetPerson(ctx context.Context, id int64, kind string) (*models.Person, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	p, ok := s.data().persons[id]
	if !ok || p.Kind != kind {
		return nil, notFound(strings.ToLower(kind), id)
	}
	return &p, nil
}

func (s *Store) ListPersons(ctx context.Context, filter store.PersonFilter) ([]models.Person, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	persons := []models.Person{}
	for _, p := range s.data().persons {
		if p.Kind != filter.Kind || (filter.ActiveOnly && !p.Active) {
			continue
		}
		persons = append(persons, p)
	}
	sort.Slice(persons, func(i, j int) bool {
		a, b := persons[i], persons[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID < b.ID
	})
	return persons, nil
}

func (s *Store) CreatePerson(ctx context.Context, person *models.Person) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}

	st := s.data()
	for _, p := range st.persons {
		if p.Kind == person.Kind && p.Identification == person.Identification {
			return fmt.Errorf("%w: identification %s", store.ErrDuplicate, person.Identification)
		}
	}
	now := s.clock()
	person.ID = s.id()
	person.CreatedAt, person.UpdatedAt = now, now
	st.persons[person.ID] = *person
	return nil
}

func (s *Store) UpdatePerson(ctx context.Context, person *models.Person) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}

	st := s.data()
	existing, ok := st.persons[person.ID]
	if !ok || existing.Kind != person.Kind {
		return notFound(strings.ToLower(person.Kind), person.ID)
	}
	updated := *person
	updated.Identification = existing.Identification
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.clock()
	st.persons[person.ID] = updated
	person.UpdatedAt = updated.UpdatedAt
	return nil
}

func (s *Store) CreateAuthorization(ctx context.Context, auth *models.Authorization) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}

	if _, ok := s.data().persons[auth.VendorID]; !ok {
		return notFound("vendor", auth.VendorID)
	}
	auth.ID = s.id()
	auth.CreatedAt = s.clock()
	s.data().auths = append(s.data().auths, *auth)
	return nil
}

func (s *Store) ListAuthorizations(ctx context.Context, filter store.AuthorizationFilter) ([]models.Authorization, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	auths := []models.Authorization{}
	for _, a := range s.data().auths {
		if a.VendorID != filter.VendorID {
			continue
		}
		if filter.ActiveAt != nil && !a.IsCurrent(*filter.ActiveAt) {
			continue
		}
		auths = append(auths, a)
	}
	sort.Slice(auths, func(i, j int) bool {
		if !auths[i].ValidFrom.Equal(auths[j].ValidFrom) {
			return auths[i].ValidFrom.After(auths[j].ValidFrom)
		}
		return auths[i].ID > auths[j].ID
	})
	return auths, nil
}

// sales

func (s *Store) CreateSale(ctx context.Context, sale *models.Sale) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}

	st := s.data()
	now := s.clock()
	sale.ID = st.nextSaleID
	st.nextSaleID++
	sale.CreatedAt, sale.UpdatedAt = now, now
	stored := *sale
	stored.Items = nil
	st.sales[sale.ID] = stored
	return nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*models.Sale, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	sale, ok := s.data().sales[id]
	if !ok {
		return nil, notFound("sale", id)
	}
	return &sale, nil
}

func (s *Store) LockSale(ctx context.Context, id int64) (*models.Sale, error) {
	return s.GetSale(ctx, id)
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]models.Sale, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	sales := []models.Sale{}
	for _, sale := range s.data().sales {
		if filter.VendorID != 0 && sale.VendorID != filter.VendorID {
			continue
		}
		if filter.ClientID != 0 && sale.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		sales = append(sales, sale)
	}
	sort.Slice(sales, func(i, j int) bool {
		if !sales[i].CreatedAt.Equal(sales[j].CreatedAt) {
			return sales[i].CreatedAt.After(sales[j].CreatedAt)
		}
		return sales[i].ID > sales[j].ID
	})
	return sales, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale *models.Sale) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}

	st := s.data()
	existing, ok := st.sales[sale.ID]
	if !ok {
		return notFound("sale", sale.ID)
	}
	existing.Status = sale.Status
	existing.Total = sale.Total
	existing.UpdatedAt = s.clock()
	st.sales[sale.ID] = existing
	sale.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s *Store) ListLineItems(ctx context.Context, saleID int64) ([]models.SaleLineItem, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	items := []models.SaleLineItem{}
	for _, item := range s.data().items {
		if item.SaleID == saleID {
			item.ProductName = s.data().products[item.ProductID].Name
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *Store) UpsertLineItem(ctx context.Context, item *models.SaleLineItem) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}

	st := s.data()
	if _, ok := st.sales[item.SaleID]; !ok {
		return notFound("sale", item.SaleID)
	}
	if _, ok := st.products[item.ProductID]; !ok {
		return notFound("product", item.ProductID)
	}

	for i, existing := range st.items {
		if existing.SaleID == item.SaleID && existing.ProductID == item.ProductID {
			existing.Quantity += item.Quantity
			existing.Subtotal = existing.UnitPrice.Mul(decimal.NewFromInt(int64(existing.Quantity)))
			st.items[i] = existing
			item.ID, item.Quantity, item.UnitPrice, item.Subtotal =
				existing.ID, existing.Quantity, existing.UnitPrice, existing.Subtotal
			return nil
		}
	}

	item.ID = s.id()
	item.Subtotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
	stored := *item
	stored.ProductName = ""
	st.items = append(st.items, stored)
	return nil
}

func (s *Store) SumLineItems(ctx context.Context, saleID int64) (decimal.Decimal, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, item := range s.data().items {
		if item.SaleID == saleID {
			total = total.Add(item.Subtotal)
		}
	}
	return total, nil
}

// deliveries

func (s *Store) CreateDeliveryOrder(ctx context.Context, order *models.DeliveryOrder) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}

	st := s.data()
	for _, existing := range st.deliveries {
		if existing.SaleID == order.SaleID {
			return fmt.Errorf("%w: delivery order for sale %d", store.ErrDuplicate, order.SaleID)
		}
	}
	now := s.clock()
	order.ID = s.id()
	order.CreatedAt, order.UpdatedAt = now, now
	st.deliveries[order.ID] = *order
	return nil
}

func (s *Store) GetDeliveryOrder(ctx context.Context, id int64) (*models.DeliveryOrder, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	order, ok := s.data().deliveries[id]
	if !ok {
		return nil, notFound("delivery order", id)
	}
	return &order, nil
}

func (s *Store) GetDeliveryOrderBySale(ctx context.Context, saleID int64) (*models.DeliveryOrder, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	for _, order := range s.data().deliveries {
		if order.SaleID == saleID {
			return &order, nil
		}
	}
	return nil, fmt.Errorf("%w: delivery order for sale %d", store.ErrNotFound, saleID)
}

func (s *Store) LockDeliveryOrder(ctx context.Context, id int64) (*models.DeliveryOrder, error) {
	return s.GetDeliveryOrder(ctx, id)
}

func (s *Store) UpdateDeliveryOrder(ctx context.Context, order *models.DeliveryOrder) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}

	st := s.data()
	existing, ok := st.deliveries[order.ID]
	if !ok {
		return notFound("delivery order", order.ID)
	}
	existing.State = order.State
	existing.DeliveredAt = order.DeliveredAt
	existing.UpdatedAt = s.clock()
	st.deliveries[order.ID] = existing
	order.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s *Store) CreateDeliveryTransition(ctx context.Context, transition *models.DeliveryTransition) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}

	if _, ok := s.data().deliveries[transition.DeliveryOrderID]; !ok {
		return notFound("delivery order", transition.DeliveryOrderID)
	}
	transition.ID = s.id()
	s.data().transitions = append(s.data().transitions, *transition)
	return nil
}

func (s *Store) ListDeliveryTransitions(ctx context.Context, orderID int64) ([]models.DeliveryTransition, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	transitions := []models.DeliveryTransition{}
	for _, t := range s.data().transitions {
		if t.DeliveryOrderID == orderID {
			transitions = append(transitions, t)
		}
	}
	sort.SliceStable(transitions, func(i, j int) bool {
		if !transitions[i].ChangedAt.Equal(transitions[j].ChangedAt) {
			return transitions[i].ChangedAt.Before(transitions[j].ChangedAt)
		}
		return transitions[i].ID < transitions[j].ID
	})
	return transitions, nil
}

// suppliers

func (s *Store) CreateSupplier(ctx context.Context, supplier *models.Supplier) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}

	st := s.data()
	for _, existing := range st.suppliers {
		if existing.TaxID == supplier.TaxID {
			return fmt.Errorf("%w: tax id %s", store.ErrDuplicate, supplier.TaxID)
		}
	}
	now := s.clock()
	supplier.ID = s.id()
	supplier.CreatedAt, supplier.UpdatedAt = now, now
	st.suppliers[supplier.ID] = *supplier
	return nil
}

func (s *Store) GetSupplier(ctx context.Context, id int64) (*models.Supplier, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	supplier, ok := s.data().suppliers[id]
	if !ok {
		return nil, notFound("supplier", id)
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context, activeOnly bool) ([]models.Supplier, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	suppliers := []models.Supplier{}
	for _, supplier := range s.data().suppliers {
		if activeOnly && !supplier.Active {
			continue
		}
		suppliers = append(suppliers, supplier)
	}
	sort.Slice(suppliers, func(i, j int) bool {
		if suppliers[i].Name != suppliers[j].Name {
			return suppliers[i].Name < suppliers[j].Name
		}
		return suppliers[i].ID < suppliers[j].ID
	})
	return suppliers, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier *models.Supplier) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}

	st := s.data()
	existing, ok := st.suppliers[supplier.ID]
	if !ok {
		return notFound("supplier", supplier.ID)
	}
	existing.Name = supplier.Name
	existing.Email = supplier.Email
	existing.Phone = supplier.Phone
	existing.Active = supplier.Active
	existing.UpdatedAt = s.clock()
	st.suppliers[supplier.ID] = existing
	supplier.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s *Store) UpsertSupplierProduct(ctx context.Context, link *models.SupplierProduct) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}

	st := s.data()
	if _, ok := st.suppliers[link.SupplierID]; !ok {
		return notFound("supplier", link.SupplierID)
	}
	if _, ok := st.products[link.ProductID]; !ok {
		return notFound("product", link.ProductID)
	}
	st.supplierLinks[[2]int64{link.SupplierID, link.ProductID}] = *link
	return nil
}

func (s *Store) GetSupplierProduct(ctx context.Context, supplierID, productID int64) (*models.SupplierProduct, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	link, ok := s.data().supplierLinks[[2]int64{supplierID, productID}]
	if !ok {
		return nil, fmt.Errorf("%w: supplier %d does not supply product %d", store.ErrNotFound, supplierID, productID)
	}
	return &link, nil
}

func (s *Store) ListSuppliedProducts(ctx context.Context, supplierID int64) ([]models.SuppliedProduct, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return nil, err
	}

	products := []models.SuppliedProduct{}
	for key, link := range s.data().supplierLinks {
		if key[0] != supplierID || !link.Active {
			continue
		}
		p, err := s.getProduct(link.ProductID)
		if err != nil {
			continue
		}
		products = append(products, models.SuppliedProduct{
			Product:         *p,
			LastPurchaseAt:  link.LastPurchaseAt,
			LastPurchaseQty: link.LastPurchaseQty,
		})
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Name != products[j].Name {
			return products[i].Name < products[j].Name
		}
		return products[i].ID < products[j].ID
	})
	return products, nil
}

// processed events

func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return false, err
	}
	_, ok := s.data().events[eventID]
	return ok, nil
}

func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	defer s.lock()()
	if err := s.injected(); err != nil {
		return err
	}
	s.data().events[eventID] = eventType
	return nil
}

var _ store.Transactor = (*Store)(nil)
