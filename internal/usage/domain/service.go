package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordUsageRequest struct {
	CustomerID  string     `json:"customer_id"`
	MetricName  string     `json:"metric_name"`
	Quantity    float64    `json:"quantity"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
}

// BulkImportResult reports per-item isolation: failed items are logged and
// skipped, never aborting the batch.
type BulkImportResult struct {
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
}

type Service interface {
	// Record resolves the customer's active subscription, snapshots the
	// plan limit for the metric and appends a usage row.
	Record(ctx context.Context, req RecordUsageRequest) (*UsageRecord, error)
	// Summary sums quantities per metric for a subscription, optionally
	// bounded to a period.
	Summary(ctx context.Context, subscriptionID snowflake.ID, periodStart, periodEnd *time.Time) (map[string]MetricSummary, error)
	// RecordsSince returns usage rows recorded on or after the cutoff,
	// ordered by recorded_at ascending.
	RecordsSince(ctx context.Context, subscriptionID snowflake.ID, since time.Time) ([]*UsageRecord, error)
	// LimitedRecords returns all rows carrying a positive limit snapshot.
	LimitedRecords(ctx context.Context, subscriptionID snowflake.ID) ([]*UsageRecord, error)
	BulkImport(ctx context.Context, items []RecordUsageRequest) (BulkImportResult, error)
}

var (
	ErrInvalidCustomer      = errors.New("invalid_customer")
	ErrInvalidMetric        = errors.New("invalid_metric")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrNoActiveSubscription = errors.New("no_active_subscription")
)
