// Package domain contains persistence models for metered usage.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageRecord stores one unit of metered activity. Rows are immutable once
// created; multiple rows per (subscription, metric) within a period are
// summed, never overwritten.
type UsageRecord struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID `gorm:"not null;index:idx_usage_subscription_metric,priority:1" json:"subscription_id"`
	MetricName     string       `gorm:"type:text;not null;index:idx_usage_subscription_metric,priority:2" json:"metric_name"`
	Quantity       float64      `gorm:"not null" json:"quantity"`
	Limit          *float64     `gorm:"column:limit_value" json:"limit,omitempty"` // plan limit snapshot at record time
	PeriodStart    time.Time    `gorm:"not null" json:"period_start"`
	PeriodEnd      time.Time    `gorm:"not null" json:"period_end"`
	RecordedAt     time.Time    `gorm:"not null;index" json:"recorded_at"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// MetricSummary aggregates one metric's usage inside a period.
type MetricSummary struct {
	Total       float64  `json:"total"`
	Limit       *float64 `json:"limit,omitempty"`
	Utilization float64  `json:"utilization"`
}
