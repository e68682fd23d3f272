package models

import (
	"time"

	"github.com/google/uuid"
)

// Cart is the per-user staging area for an order. One active cart per user;
// it is cleared, never deleted, on successful checkout.
type Cart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// SubtotalCents sums the line subtotals at their snapshot prices.
func (c Cart) SubtotalCents() int {
	total := 0
	for _, item := range c.Items {
		total += item.UnitPriceCents * item.Quantity
	}
	return total
}
