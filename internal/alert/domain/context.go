package domain

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Context is the structured payload attached to an alert. Each alert type has
// exactly one context shape, so the type of the payload pins the alert type
// at compile time.
type Context interface {
	AlertType() AlertType
}

// DecliningUsageContext accompanies declining_usage alerts.
type DecliningUsageContext struct {
	Trend        float64 `json:"trend"`
	LookbackDays int     `json:"lookback_days"`
}

func (DecliningUsageContext) AlertType() AlertType { return TypeDecliningUsage }

// PaymentRetryContext accompanies payment_retry alerts.
type PaymentRetryContext struct {
	AttemptCount int     `json:"attempt_count"`
	Amount       float64 `json:"amount"`
}

func (PaymentRetryContext) AlertType() AlertType { return TypePaymentRetry }

// DowngradeContext accompanies plan_downgrade alerts.
type DowngradeContext struct {
	MRRDelta   float64   `json:"mrr_delta"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (DowngradeContext) AlertType() AlertType { return TypePlanDowngrade }

// MRRDeclineContext accompanies mrr_decline alerts.
type MRRDeclineContext struct {
	DeclinePercent float64 `json:"decline_percent"`
	CurrentMRR     float64 `json:"current_mrr"`
	PreviousMRR    float64 `json:"previous_mrr"`
	ChurnedMRR     float64 `json:"churned_mrr"`
	NewMRR         float64 `json:"new_mrr"`
	LookbackDays   int     `json:"lookback_days"`
}

func (MRRDeclineContext) AlertType() AlertType { return TypeMRRDecline }

// UsageMismatchContext accompanies both usage_mismatch alert types; High
// selects between them.
type UsageMismatchContext struct {
	Utilization float64            `json:"utilization"`
	Metrics     map[string]float64 `json:"metrics"`
	High        bool               `json:"high"`
}

func (c UsageMismatchContext) AlertType() AlertType {
	if c.High {
		return TypeUsageMismatchHigh
	}
	return TypeUsageMismatchLow
}

// MarshalContext renders a typed context into the JSON column shape.
func MarshalContext(c Context) (datatypes.JSONMap, error) {
	if c == nil {
		return nil, nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var out datatypes.JSONMap
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
