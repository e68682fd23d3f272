package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem freezes the product name, sku and unit price at order time.
// ProductID is kept for traceability, never for live pricing; deleting the
// product leaves the denormalized fields intact.
type OrderItem struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID       *uuid.UUID `gorm:"column:product_id;type:uuid"`
	ProductName     string     `gorm:"column:product_name;not null"`
	ProductSKU      string     `gorm:"column:product_sku;not null"`
	Quantity        int        `gorm:"column:quantity;not null"`
	UnitPriceCents  int        `gorm:"column:unit_price_cents;not null"`
	TotalPriceCents int        `gorm:"column:total_price_cents;not null"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
}
