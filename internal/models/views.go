package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockAvailability answers "can N units of product X be sold right now"
type StockAvailability struct {
	ProductID         int64  `json:"product_id"`
	ProductName       string `json:"product_name"`
	AvailableStock    int    `json:"available_stock"`
	RequestedQuantity int    `json:"requested_quantity"`
	Available         bool   `json:"available"`
	Message           string `json:"message"`
}

// Authorization status labels
const (
	StatusLabelAuthorized    = "AUTHORIZED"
	StatusLabelNotAuthorized = "NOT_AUTHORIZED"
)

// AuthorizationStatus summarizes whether a vendor may sell
type AuthorizationStatus struct {
	VendorID          int64      `json:"vendor_id"`
	VendorName        string     `json:"vendor_name"`
	IsAuthorized      bool       `json:"is_authorized"`
	AuthorizationDate *time.Time `json:"authorization_date,omitempty"`
	StatusLabel       string     `json:"status_label"`
}

// Invoice is derived from a sale; it is never stored in the database.
type Invoice struct {
	Number     string          `json:"number"`
	Date       time.Time       `json:"date"`
	SaleID     int64           `json:"sale_id"`
	Status     string          `json:"status"`
	Total      decimal.Decimal `json:"total"`
	ClientName string          `json:"client_name"`
	VendorName string          `json:"vendor_name"`
	Lines      []InvoiceLine   `json:"lines"`
}

type InvoiceLine struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// SupplyInfo describes the last purchase of a product from a supplier
type SupplyInfo struct {
	SupplierID      int64      `json:"supplier_id"`
	SupplierName    string     `json:"supplier_name"`
	ProductID       int64      `json:"product_id"`
	ProductName     string     `json:"product_name"`
	LastPurchaseAt  *time.Time `json:"last_purchase_at,omitempty"`
	LastPurchaseQty int        `json:"last_purchase_qty"`
}
