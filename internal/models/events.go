package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSaleCompleted         = "SALE_COMPLETED"
	EventTypeSaleCancelled         = "SALE_CANCELLED"
	EventTypeStockRestocked        = "STOCK_RESTOCKED"
	EventTypeStockLow              = "STOCK_LOW"
	EventTypeVendorAuthorized      = "VENDOR_AUTHORIZED"
	EventTypeDeliveryStatusChanged = "DELIVERY_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCompletedEvent published when a sale reaches COMPLETED
type SaleCompletedEvent struct {
	BaseEvent
	SaleID   int64           `json:"sale_id"`
	VendorID int64           `json:"vendor_id"`
	ClientID int64           `json:"client_id"`
	Total    decimal.Decimal `json:"total"`
	Items    []SaleItemData  `json:"items"`
}

// SaleCancelledEvent published after a pending sale is cancelled and restocked
type SaleCancelledEvent struct {
	BaseEvent
	SaleID int64          `json:"sale_id"`
	Items  []SaleItemData `json:"items"`
}

type StockRestockedEvent struct {
	BaseEvent
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Available int   `json:"available"`
}

// StockLowEvent published when a reservation leaves a product at or below the threshold
type StockLowEvent struct {
	BaseEvent
	ProductID int64 `json:"product_id"`
	Available int   `json:"available"`
	Threshold int   `json:"threshold"`
}

type VendorAuthorizedEvent struct {
	BaseEvent
	VendorID          int64     `json:"vendor_id"`
	AuthorizationCode string    `json:"authorization_code"`
	ValidUntil        time.Time `json:"valid_until"`
}

type DeliveryStatusChangedEvent struct {
	BaseEvent
	DeliveryOrderID int64  `json:"delivery_order_id"`
	SaleID          int64  `json:"sale_id"`
	PreviousState   string `json:"previous_state"`
	NewState        string `json:"new_state"`
}

// SaleItemData represents item data in events
type SaleItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
