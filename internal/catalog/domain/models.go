// Package domain contains persistence models for the product catalog.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Product groups the sellable plans.
type Product struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }

// Plan is a priced tier of a product. Limits maps metric name to the numeric
// cap, and is the authoritative denominator for utilization.
type Plan struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	ProductID      snowflake.ID      `gorm:"not null;index" json:"product_id"`
	Name           string            `gorm:"type:text;not null" json:"name"`
	Version        int               `gorm:"not null;default:1" json:"version"`
	PriceMonthly   float64           `gorm:"not null" json:"price_monthly"`
	PriceAnnual    *float64          `gorm:"" json:"price_annual,omitempty"`
	Currency       string            `gorm:"type:text;not null;default:USD" json:"currency"`
	Limits         datatypes.JSONMap `gorm:"type:jsonb" json:"limits"`
	Features       datatypes.JSONMap `gorm:"type:jsonb" json:"features,omitempty"`
	EffectiveFrom  time.Time         `gorm:"not null" json:"effective_from"`
	EffectiveUntil *time.Time        `gorm:"" json:"effective_until,omitempty"`
	IsActive       bool              `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

// LimitFor returns the plan limit for a metric. The second return value is
// false when the metric is unlimited or the configured limit is non-positive.
func (p Plan) LimitFor(metric string) (float64, bool) {
	if p.Limits == nil {
		return 0, false
	}
	raw, ok := p.Limits[metric]
	if !ok {
		return 0, false
	}
	limit, ok := toFloat(raw)
	if !ok || limit <= 0 {
		return 0, false
	}
	return limit, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
