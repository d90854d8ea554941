// Package domain contains the revenue-event ledger and MRR snapshot models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// RevenueEventType enumerates the normalized billing facts the engine
// consumes.
type RevenueEventType string

const (
	EventSubscriptionCreated    RevenueEventType = "subscription_created"
	EventSubscriptionCanceled   RevenueEventType = "subscription_canceled"
	EventSubscriptionUpgraded   RevenueEventType = "subscription_upgraded"
	EventSubscriptionDowngraded RevenueEventType = "subscription_downgraded"
	EventPaymentSucceeded       RevenueEventType = "payment_succeeded"
	EventPaymentFailed          RevenueEventType = "payment_failed"
	EventMRRDelta               RevenueEventType = "mrr_delta"
)

// Known reports whether t is one of the recognized event kinds.
func (t RevenueEventType) Known() bool {
	switch t {
	case EventSubscriptionCreated, EventSubscriptionCanceled,
		EventSubscriptionUpgraded, EventSubscriptionDowngraded,
		EventPaymentSucceeded, EventPaymentFailed, EventMRRDelta:
		return true
	}
	return false
}

// RevenueEvent is an append-only ledger row. It is the source of truth for
// MRR movement decomposition.
type RevenueEvent struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	SubscriptionID *snowflake.ID     `gorm:"index" json:"subscription_id,omitempty"`
	EventType      RevenueEventType  `gorm:"type:text;not null;index" json:"event_type"`
	SourceEventID  *string           `gorm:"type:text;uniqueIndex" json:"source_event_id,omitempty"`
	Amount         float64           `gorm:"not null;default:0" json:"amount"`
	Currency       string            `gorm:"type:text;not null;default:USD" json:"currency"`
	MRRDelta       float64           `gorm:"not null;default:0" json:"mrr_delta"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	OccurredAt     time.Time         `gorm:"not null;index" json:"occurred_at"`
	ProcessedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"processed_at"`
}

// TableName sets the database table name.
func (RevenueEvent) TableName() string { return "revenue_events" }

// AttemptCount reads the payment attempt counter from event metadata,
// defaulting to 1 when absent.
func (e RevenueEvent) AttemptCount() int {
	if e.Metadata == nil {
		return 1
	}
	raw, ok := e.Metadata["attempt_count"]
	if !ok {
		return 1
	}
	switch n := raw.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 1
	}
}

// MRRSnapshot is one row per calendar date: total MRR plus the day's
// movement decomposition. Components are non-negative magnitudes.
type MRRSnapshot struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	Date             time.Time         `gorm:"not null;uniqueIndex" json:"date"`
	TotalMRR         float64           `gorm:"not null;default:0" json:"total_mrr"`
	NewMRR           float64           `gorm:"not null;default:0" json:"new_mrr"`
	ExpansionMRR     float64           `gorm:"not null;default:0" json:"expansion_mrr"`
	ContractionMRR   float64           `gorm:"not null;default:0" json:"contraction_mrr"`
	ChurnedMRR       float64           `gorm:"not null;default:0" json:"churned_mrr"`
	ProductBreakdown datatypes.JSONMap `gorm:"type:jsonb" json:"product_breakdown,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (MRRSnapshot) TableName() string { return "mrr_snapshots" }
