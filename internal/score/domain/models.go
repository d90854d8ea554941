// Package domain contains the customer expansion-readiness score model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ExpansionCategory buckets a customer's expansion readiness.
type ExpansionCategory string

const (
	CategorySafeToUpsell  ExpansionCategory = "safe_to_upsell"
	CategoryNeutral       ExpansionCategory = "neutral"
	CategoryDoNotTouch    ExpansionCategory = "do_not_touch"
	CategoryLikelyToChurn ExpansionCategory = "likely_to_churn"
)

// CustomerScore holds one row per customer; recalculation updates the row in
// place, never duplicating it.
type CustomerScore struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	CustomerID      string            `gorm:"type:text;not null;uniqueIndex" json:"customer_id"`
	SubscriptionID  snowflake.ID      `gorm:"not null" json:"subscription_id"`
	ExpansionScore  float64           `gorm:"not null;default:0" json:"expansion_score"`
	Category        ExpansionCategory `gorm:"type:text;not null;index" json:"category"`
	TenureDays      int               `gorm:"not null;default:0" json:"tenure_days"`
	UsageTrend      float64           `gorm:"not null;default:0" json:"usage_trend"`
	EngagementScore float64           `gorm:"not null;default:0" json:"engagement_score"`
	CalculatedAt    time.Time         `gorm:"not null" json:"calculated_at"`
}

// TableName sets the database table name.
func (CustomerScore) TableName() string { return "customer_scores" }
