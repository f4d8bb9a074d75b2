package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry. AvailableStock is read from product_stock.
type Product struct {
	ID             int64           `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Description    string          `db:"description" json:"description"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	Active         bool            `db:"active" json:"active"`
	AvailableStock int             `db:"available_stock" json:"available_stock"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Subtotal returns price * quantity.
func (p *Product) Subtotal(quantity int) decimal.Decimal {
	return p.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// StockLevel is the available quantity of one product
type StockLevel struct {
	ProductID int64     `db:"product_id" json:"product_id"`
	Available int       `db:"available" json:"available"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Person kinds
const (
	PersonKindVendor = "VENDOR"
	PersonKindClient = "CLIENT"
)

// Person is either a vendor or a client, discriminated by Kind.
// Authorized/AuthorizedAt only apply to vendors, ClientCode only to clients.
type Person struct {
	ID             int64      `db:"id" json:"id"`
	Kind           string     `db:"kind" json:"kind"`
	Identification string     `db:"identification" json:"identification"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Email          string     `db:"email" json:"email"`
	Phone          string     `db:"phone" json:"phone"`
	Address        string     `db:"address" json:"address"`
	Active         bool       `db:"active" json:"active"`
	Authorized     bool       `db:"authorized" json:"authorized"`
	AuthorizedAt   *time.Time `db:"authorized_at" json:"authorized_at,omitempty"`
	ClientCode     string     `db:"client_code" json:"client_code,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Authorization types
const (
	AuthorizationTypeSales = "SALES"
)

// Authorization is one validity window granted to a vendor
type Authorization struct {
	ID         int64     `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	VendorID   int64     `db:"vendor_id" json:"vendor_id"`
	Type       string    `db:"type" json:"type"`
	ValidFrom  time.Time `db:"valid_from" json:"valid_from"`
	ValidUntil time.Time `db:"valid_until" json:"valid_until"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// IsCurrent reports valid_from <= at < valid_until.
func (a *Authorization) IsCurrent(at time.Time) bool {
	return !at.Before(a.ValidFrom) && at.Before(a.ValidUntil)
}

// Sale statuses
const (
	SaleStatusPending   = "PENDING"
	SaleStatusCompleted = "COMPLETED"
	SaleStatusCancelled = "CANCELLED"
)

// Sale represents a sale header
type Sale struct {
	ID        int64           `db:"id" json:"id"`
	VendorID  int64           `db:"vendor_id" json:"vendor_id"`
	ClientID  int64           `db:"client_id" json:"client_id"`
	Status    string          `db:"status" json:"status"`
	Total     decimal.Decimal `db:"total" json:"total"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`

	Items []SaleLineItem `db:"-" json:"items,omitempty"`
}

// SaleLineItem is one product line of a sale. UnitPrice is the price at the
// time the line was first added.
type SaleLineItem struct {
	ID          int64           `db:"id" json:"id"`
	SaleID      int64           `db:"sale_id" json:"sale_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal    decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// Delivery states
const (
	DeliveryStateScheduled = "SCHEDULED"
	DeliveryStateInTransit = "IN_TRANSIT"
	DeliveryStateDelivered = "DELIVERED"
	DeliveryStateFailed    = "FAILED"
)

// ValidDeliveryState reports whether state is a known delivery state
func ValidDeliveryState(state string) bool {
	switch state {
	case DeliveryStateScheduled, DeliveryStateInTransit, DeliveryStateDelivered, DeliveryStateFailed:
		return true
	}
	return false
}

// DeliveryOrder tracks shipment of a completed sale
type DeliveryOrder struct {
	ID          int64      `db:"id" json:"id"`
	SaleID      int64      `db:"sale_id" json:"sale_id"`
	State       string     `db:"state" json:"state"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// DeliveryTransition is an append-only history record
type DeliveryTransition struct {
	ID              int64     `db:"id" json:"id"`
	DeliveryOrderID int64     `db:"delivery_order_id" json:"delivery_order_id"`
	PreviousState   string    `db:"previous_state" json:"previous_state"`
	NewState        string    `db:"new_state" json:"new_state"`
	ChangedAt       time.Time `db:"changed_at" json:"changed_at"`
}

// Supplier provides products to the business
type Supplier struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	TaxID     string    `db:"tax_id" json:"tax_id"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SupplierProduct links a supplier to a product it sells us
type SupplierProduct struct {
	SupplierID      int64      `db:"supplier_id" json:"supplier_id"`
	ProductID       int64      `db:"product_id" json:"product_id"`
	LastPurchaseAt  *time.Time `db:"last_purchase_at" json:"last_purchase_at,omitempty"`
	LastPurchaseQty int        `db:"last_purchase_qty" json:"last_purchase_qty"`
	Active          bool       `db:"active" json:"active"`
}

// SuppliedProduct is a product together with its last purchase from a supplier
type SuppliedProduct struct {
	Product
	LastPurchaseAt  *time.Time `db:"last_purchase_at" json:"last_purchase_at,omitempty"`
	LastPurchaseQty int        `db:"last_purchase_qty" json:"last_purchase_qty"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
