package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// OpenAlertRequest carries everything a detector knows about a finding. The
// alert type is derived from the typed context payload.
type OpenAlertRequest struct {
	Severity          AlertSeverity
	SubscriptionID    *snowflake.ID
	CustomerID        string
	Title             string
	Description       string
	Context           Context
	RecommendedAction string
}

type ListAlertsRequest struct {
	CustomerID string `form:"customer_id"`
	Severity   string `form:"severity"`
	Resolved   *bool  `form:"resolved"`
	Limit      int    `form:"limit,default=100"`
}

type Service interface {
	// Open applies the dedup gate: when an unresolved alert already exists
	// for (customer_id, alert type) it is returned unchanged and created is
	// false. The existence check and insert run in one transaction.
	Open(ctx context.Context, req OpenAlertRequest) (alert *Alert, created bool, err error)
	Resolve(ctx context.Context, id snowflake.ID) (*Alert, error)
	List(ctx context.Context, req ListAlertsRequest) ([]*Alert, error)
}

var (
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrMissingContext  = errors.New("missing_alert_context")
	ErrAlertNotFound   = errors.New("alert_not_found")
)
