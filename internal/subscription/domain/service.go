package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateSubscriptionRequest struct {
	CustomerID         string    `json:"customer_id"`
	PlanID             string    `json:"plan_id"`
	MRR                float64   `json:"mrr"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
}

// PlanChange mutates the billing shape of a live subscription.
type PlanChange struct {
	NewMRR             float64
	NewPlanID          *snowflake.ID
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	Status             *SubscriptionStatus
}

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	Get(ctx context.Context, id snowflake.ID) (*Subscription, error)
	// GetActiveByCustomerID returns nil without error when the customer has
	// no active subscription.
	GetActiveByCustomerID(ctx context.Context, customerID string) (*Subscription, error)
	ListActive(ctx context.Context) ([]*Subscription, error)
	ListActiveByPlan(ctx context.Context, planID snowflake.ID) ([]*Subscription, error)
	// ActiveMRRTotal sums MRR over active subscriptions at call time.
	ActiveMRRTotal(ctx context.Context) (float64, error)
	ApplyPlanChange(ctx context.Context, id snowflake.ID, change PlanChange) (*Subscription, error)
	// Cancel marks the subscription canceled, stamps canceled_at and zeroes
	// MRR.
	Cancel(ctx context.Context, id snowflake.ID, at time.Time) (*Subscription, error)
}

var (
	ErrInvalidCustomer      = errors.New("invalid_customer")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrInvalidMRR           = errors.New("invalid_mrr")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)
