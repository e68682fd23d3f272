package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rfigueroa/shopworks-backend/pkg/enums"
)

// Order is created atomically from a cart at checkout. Its item list is
// immutable after creation; only whole-order cancellation exists.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber       string              `gorm:"column:order_number;not null;uniqueIndex"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Status            enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	SubtotalCents     int                 `gorm:"column:subtotal_cents;not null"`
	TaxCents          int                 `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents     int                 `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents     int                 `gorm:"column:discount_cents;not null;default:0"`
	TotalCents        int                 `gorm:"column:total_cents;not null"`
	ShippingAddressID uuid.UUID           `gorm:"column:shipping_address_id;type:uuid;not null"`
	BillingAddressID  uuid.UUID           `gorm:"column:billing_address_id;type:uuid;not null"`
	EstimatedDelivery *time.Time          `gorm:"column:estimated_delivery"`
	DeliveredAt       *time.Time          `gorm:"column:delivered_at"`
	CancelledAt       *time.Time          `gorm:"column:cancelled_at"`
	Notes             *string             `gorm:"column:notes"`
	Items             []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
