package db_models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusSucceeded  OrderStatus = "succeeded"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// Order belongs to the commerce platform. The gateway only reads it and
// changes it through the order store's transition methods.
type Order struct {
	ID     uint64      `gorm:"primaryKey;autoIncrement"`
	Number string      `gorm:"size:64;index"`
	Key    string      `gorm:"size:64;uniqueIndex"`
	Status OrderStatus `gorm:"size:32;not null;default:pending;index"`

	Currency         string          `gorm:"size:10;not null"`
	Total            decimal.Decimal `gorm:"type:numeric(19,4);not null"`
	ShippingTotal    decimal.Decimal `gorm:"type:numeric(19,4);not null;default:0"`
	ShippingMethod   string          `gorm:"size:255"`
	TotalTax         decimal.Decimal `gorm:"type:numeric(19,4);not null;default:0"`
	PricesIncludeTax bool

	BillingFirstName string `gorm:"size:255"`
	BillingLastName  string `gorm:"size:255"`
	BillingEmail     string `gorm:"size:255"`
	BillingPhone     string `gorm:"size:64"`
	BillingAddress1  string `gorm:"size:255"`
	BillingAddress2  string `gorm:"size:255"`
	BillingCity      string `gorm:"size:255"`
	BillingState     string `gorm:"size:255"`
	BillingPostcode  string `gorm:"size:32"`
	BillingCountry   string `gorm:"size:8"`

	PaymentMethod string `gorm:"size:64"`
	// Set by PaymentComplete.
	PaidAt              *time.Time
	TransactionID       string `gorm:"size:255"`
	MoniqOrderID        string `gorm:"size:255;index"`
	MoniqTransactionID  string `gorm:"size:255;index"`
	CheckoutInitiatedAt *time.Time
	StockReduced        bool

	Items []OrderItem `gorm:"foreignKey:OrderID"`
	Fees  []OrderFee  `gorm:"foreignKey:OrderID"`
	Notes []OrderNote `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o *Order) IsPaid() bool { return o.PaidAt != nil }

// HasStatus reports whether the order is in any of statuses.
func (o *Order) HasStatus(statuses ...OrderStatus) bool {
	for _, s := range statuses {
		if o.Status == s {
			return true
		}
	}
	return false
}

// IsFinalForGateway reports whether webhook-driven transitions must leave
// the order alone.
func (o *Order) IsFinalForGateway() bool {
	return o.IsPaid() || o.HasStatus(
		OrderStatusSucceeded,
		OrderStatusCompleted,
		OrderStatusProcessing,
		OrderStatusFailed,
		OrderStatusCancelled,
	)
}

// IsClosedForCheckout reports whether a new payment attempt must be
// refused. Failed orders may be paid again.
func (o *Order) IsClosedForCheckout() bool {
	return o.IsPaid() || o.HasStatus(
		OrderStatusSucceeded,
		OrderStatusCompleted,
		OrderStatusProcessing,
		OrderStatusCancelled,
	)
}

type OrderItem struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	OrderID   uint64 `gorm:"index;not null"`
	ProductID *uint64
	Name      string `gorm:"size:512"`
	Quantity  int
	// Line subtotal before discounts and excluding tax.
	Subtotal decimal.Decimal `gorm:"type:numeric(19,4);not null"`
}

type OrderFee struct {
	ID      uint64          `gorm:"primaryKey;autoIncrement"`
	OrderID uint64          `gorm:"index;not null"`
	Name    string          `gorm:"size:512"`
	Total   decimal.Decimal `gorm:"type:numeric(19,4);not null"`
}

type OrderNote struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	OrderID   uint64 `gorm:"index;not null"`
	Content   string `gorm:"type:text"`
	CreatedAt time.Time
}
