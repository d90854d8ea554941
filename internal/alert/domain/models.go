// Package domain contains the alert model and its typed context payloads.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AlertSeverity levels, in ascending order of urgency.
type AlertSeverity string

const (
	SeverityInformational AlertSeverity = "informational"
	SeverityWarning       AlertSeverity = "warning"
	SeverityCritical      AlertSeverity = "critical"
)

// AlertType enumerates the detector-produced alert families.
type AlertType string

const (
	TypeDecliningUsage    AlertType = "declining_usage"
	TypePaymentRetry      AlertType = "payment_retry"
	TypePlanDowngrade     AlertType = "plan_downgrade"
	TypeUsageMismatchHigh AlertType = "usage_mismatch_high"
	TypeUsageMismatchLow  AlertType = "usage_mismatch_low"
	TypeMRRDecline        AlertType = "mrr_decline"
)

// Alert is a durable detector output. At most one unresolved alert exists per
// (customer_id, alert_type); resolution is an explicit operator action.
type Alert struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	AlertType         AlertType         `gorm:"type:text;not null;index:idx_alert_customer_type,priority:2" json:"alert_type"`
	Severity          AlertSeverity     `gorm:"type:text;not null" json:"severity"`
	SubscriptionID    *snowflake.ID     `gorm:"index" json:"subscription_id,omitempty"`
	CustomerID        string            `gorm:"type:text;index:idx_alert_customer_type,priority:1" json:"customer_id"`
	Title             string            `gorm:"type:text;not null" json:"title"`
	Description       string            `gorm:"type:text" json:"description"`
	Context           datatypes.JSONMap `gorm:"type:jsonb" json:"context,omitempty"`
	RecommendedAction string            `gorm:"type:text" json:"recommended_action"`
	IsResolved        bool              `gorm:"not null;default:false;index" json:"is_resolved"`
	ResolvedAt        *time.Time        `gorm:"" json:"resolved_at,omitempty"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Alert) TableName() string { return "alerts" }
