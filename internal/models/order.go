package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every status an order may be moved to.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ShippingAddress is stored inline on the orders table with a shipping_ prefix.
type ShippingAddress struct {
	AddressLine1 string `json:"address_line1" gorm:"not null;type:varchar(255)" validate:"required,max=255"`
	AddressLine2 string `json:"address_line2,omitempty" gorm:"type:varchar(255)" validate:"omitempty,max=255"`
	City         string `json:"city" gorm:"not null;type:varchar(100)" validate:"required,max=100"`
	State        string `json:"state" gorm:"not null;type:varchar(100)" validate:"required,max=100"`
	PostalCode   string `json:"postal_code" gorm:"not null;type:varchar(20)" validate:"required,max=20"`
	Country      string `json:"country" gorm:"not null;type:varchar(100)" validate:"required,max=100"`
}

// OrderItem represents a single item within an order.
type OrderItem struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID     string          `json:"order_id" gorm:"not null;index;type:varchar(36)"`
	ProductID   string          `json:"product_id" gorm:"not null;index;type:varchar(36)"`
	ProductName string          `json:"product_name" gorm:"type:varchar(200)"` // name at the time of order
	Quantity    int             `json:"quantity" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"not null;type:decimal(10,2)"` // price at the time of order
	Subtotal    decimal.Decimal `json:"subtotal" gorm:"not null;type:decimal(10,2)"`
}

// Order represents a customer order.
type Order struct {
	ID              string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID          string          `json:"user_id" gorm:"not null;index;type:varchar(36)"`
	OrderDate       time.Time       `json:"order_date" gorm:"not null;index"`
	Status          OrderStatus     `json:"status" gorm:"not null;index;type:varchar(20)"`
	TotalAmount     decimal.Decimal `json:"total_amount" gorm:"not null;type:decimal(10,2)"`
	ShippingAddress ShippingAddress `json:"shipping_address" gorm:"embedded;embeddedPrefix:shipping_"`
	Items           []OrderItem     `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
