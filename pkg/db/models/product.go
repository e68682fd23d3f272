package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Product represents the canonical catalog listing. StockQuantity is only
// mutated through the inventory ledger or the admin stock write; the cache
// layer never touches it.
type Product struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CategoryID     *uuid.UUID     `gorm:"column:category_id;type:uuid"`
	SKU            string         `gorm:"column:sku;not null;uniqueIndex"`
	Name           string         `gorm:"column:name;not null"`
	Description    *string        `gorm:"column:description"`
	Tags           pq.StringArray `gorm:"column:tags;type:text[]"`
	PriceCents     int            `gorm:"column:price_cents;not null"`
	SalePriceCents *int           `gorm:"column:sale_price_cents"`
	StockQuantity  int            `gorm:"column:stock_quantity;not null;default:0"`
	MinStockLevel  int            `gorm:"column:min_stock_level;not null;default:0"`
	MaxStockLevel  int            `gorm:"column:max_stock_level;not null;default:0"`
	IsActive       bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// EffectivePriceCents returns the sale price when one is set, else the list price.
func (p Product) EffectivePriceCents() int {
	if p.SalePriceCents != nil && *p.SalePriceCents < p.PriceCents {
		return *p.SalePriceCents
	}
	return p.PriceCents
}
