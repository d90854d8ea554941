// Package ingestion applies already-normalized billing events to the
// subscription store and the revenue ledger. Providers are normalized
// upstream; this package never talks to one.
package ingestion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/moneyradar/moneyradar/internal/clock"
	revenuedomain "github.com/moneyradar/moneyradar/internal/revenue/domain"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	"github.com/moneyradar/moneyradar/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrUnknownEventKind = errors.New("unknown_event_kind")
	ErrMissingCustomer  = errors.New("missing_customer")
	ErrMissingPlan      = errors.New("missing_plan")
	ErrUnknownSub       = errors.New("unknown_subscription")
)

// NormalizedEvent is the provider-agnostic wire shape delivered by the
// upstream adapter.
type NormalizedEvent struct {
	SourceEventID string                                `json:"source_event_id"`
	Kind          revenuedomain.RevenueEventType        `json:"kind"`
	CustomerID    string                                `json:"customer_id"`
	PlanID        *snowflake.ID                         `json:"plan_id,omitempty,string"`
	MRR           float64                               `json:"mrr"`
	Status        subscriptiondomain.SubscriptionStatus `json:"status,omitempty"`
	PeriodStart   *time.Time                            `json:"period_start,omitempty"`
	PeriodEnd     *time.Time                            `json:"period_end,omitempty"`
	Amount        float64                               `json:"amount"`
	Currency      string                                `json:"currency,omitempty"`
	AttemptCount  int                                   `json:"attempt_count,omitempty"`
	OccurredAt    time.Time                             `json:"occurred_at"`
}

// ProcessResult reports what one event did to the store.
type ProcessResult struct {
	Duplicate    bool                             `json:"duplicate"`
	Subscription *subscriptiondomain.Subscription `json:"subscription,omitempty"`
	Event        *revenuedomain.RevenueEvent      `json:"event,omitempty"`
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	SubSvc     subscriptiondomain.Service
	RevenueSvc revenuedomain.Service
}

// Processor folds normalized events into subscription state and appends one
// immutable ledger row per event.
type Processor struct {
	log        *zap.Logger
	clock      clock.Clock
	subSvc     subscriptiondomain.Service
	revenueSvc revenuedomain.Service
}

func New(p Params) *Processor {
	return &Processor{
		log:        p.Log.Named("ingestion.processor"),
		clock:      p.Clock,
		subSvc:     p.SubSvc,
		revenueSvc: p.RevenueSvc,
	}
}

// Process applies one event. Redelivery of a source event id is not an
// error; the result is marked duplicate and nothing changes.
func (p *Processor) Process(ctx context.Context, evt NormalizedEvent) (*ProcessResult, error) {
	if strings.TrimSpace(evt.CustomerID) == "" {
		return nil, ErrMissingCustomer
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = p.clock.Now()
	}

	// The replay check runs before any state mutation: a redelivered event
	// must not touch the subscription again, whatever has happened to it
	// since the first delivery.
	if id := strings.TrimSpace(evt.SourceEventID); id != "" {
		seen, err := p.revenueSvc.EventBySourceID(ctx, id)
		if err != nil {
			return nil, err
		}
		if seen != nil {
			p.log.Info("duplicate source event skipped", zap.String("source_event_id", id))
			return &ProcessResult{Duplicate: true, Event: seen}, nil
		}
	}

	switch evt.Kind {
	case revenuedomain.EventSubscriptionCreated:
		return p.handleCreated(ctx, evt)
	case revenuedomain.EventSubscriptionUpgraded,
		revenuedomain.EventSubscriptionDowngraded,
		revenuedomain.EventMRRDelta:
		return p.handleChanged(ctx, evt)
	case revenuedomain.EventSubscriptionCanceled:
		return p.handleCanceled(ctx, evt)
	case revenuedomain.EventPaymentSucceeded:
		return p.handlePayment(ctx, evt, revenuedomain.EventPaymentSucceeded)
	case revenuedomain.EventPaymentFailed:
		return p.handlePayment(ctx, evt, revenuedomain.EventPaymentFailed)
	default:
		return nil, ErrUnknownEventKind
	}
}

func (p *Processor) handleCreated(ctx context.Context, evt NormalizedEvent) (*ProcessResult, error) {
	if evt.PlanID == nil {
		return nil, ErrMissingPlan
	}

	// Redelivered creation events fold into a plan change instead of a
	// second subscription.
	existing, err := p.subSvc.GetActiveByCustomerID(ctx, evt.CustomerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return p.handleChanged(ctx, evt)
	}

	periodStart := evt.OccurredAt
	if evt.PeriodStart != nil {
		periodStart = *evt.PeriodStart
	}
	periodEnd := periodStart.AddDate(0, 1, 0)
	if evt.PeriodEnd != nil {
		periodEnd = *evt.PeriodEnd
	}

	sub, err := p.subSvc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		CustomerID:         evt.CustomerID,
		PlanID:             evt.PlanID.String(),
		MRR:                evt.MRR,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
	})
	if err != nil {
		return nil, err
	}

	ledger, dup, err := p.appendLedger(ctx, evt, revenuedomain.AppendEventRequest{
		SubscriptionID: &sub.ID,
		EventType:      revenuedomain.EventSubscriptionCreated,
		Amount:         evt.MRR,
		Currency:       evt.Currency,
		MRRDelta:       evt.MRR,
		Metadata:       map[string]any{"plan_id": evt.PlanID.String()},
		OccurredAt:     evt.OccurredAt,
	})
	if err != nil {
		return nil, err
	}
	return &ProcessResult{Duplicate: dup, Subscription: sub, Event: ledger}, nil
}

func (p *Processor) handleChanged(ctx context.Context, evt NormalizedEvent) (*ProcessResult, error) {
	sub, err := p.subSvc.GetActiveByCustomerID(ctx, evt.CustomerID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		// A change for a customer we never saw is treated as creation,
		// mirroring out-of-order delivery from the provider.
		if evt.PlanID != nil {
			return p.handleCreated(ctx, evt)
		}
		return nil, ErrUnknownSub
	}

	oldMRR := sub.MRR
	delta := evt.MRR - oldMRR

	change := subscriptiondomain.PlanChange{
		NewMRR:             evt.MRR,
		NewPlanID:          evt.PlanID,
		CurrentPeriodStart: evt.PeriodStart,
		CurrentPeriodEnd:   evt.PeriodEnd,
	}
	if evt.Status != "" {
		status := evt.Status
		change.Status = &status
	}

	sub, err = p.subSvc.ApplyPlanChange(ctx, sub.ID, change)
	if err != nil {
		return nil, err
	}

	// The ledger row kind follows the sign of the delta, never the label
	// the producer chose.
	eventType := revenuedomain.EventMRRDelta
	if delta > 0 {
		eventType = revenuedomain.EventSubscriptionUpgraded
	} else if delta < 0 {
		eventType = revenuedomain.EventSubscriptionDowngraded
	}

	if delta == 0 {
		return &ProcessResult{Subscription: sub}, nil
	}

	ledger, dup, err := p.appendLedger(ctx, evt, revenuedomain.AppendEventRequest{
		SubscriptionID: &sub.ID,
		EventType:      eventType,
		Currency:       evt.Currency,
		MRRDelta:       delta,
		Metadata:       map[string]any{"old_mrr": oldMRR, "new_mrr": evt.MRR},
		OccurredAt:     evt.OccurredAt,
	})
	if err != nil {
		return nil, err
	}
	return &ProcessResult{Duplicate: dup, Subscription: sub, Event: ledger}, nil
}

func (p *Processor) handleCanceled(ctx context.Context, evt NormalizedEvent) (*ProcessResult, error) {
	sub, err := p.subSvc.GetActiveByCustomerID(ctx, evt.CustomerID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrUnknownSub
	}

	canceledMRR := sub.MRR
	sub, err = p.subSvc.Cancel(ctx, sub.ID, evt.OccurredAt)
	if err != nil {
		return nil, err
	}

	ledger, dup, err := p.appendLedger(ctx, evt, revenuedomain.AppendEventRequest{
		SubscriptionID: &sub.ID,
		EventType:      revenuedomain.EventSubscriptionCanceled,
		Currency:       evt.Currency,
		MRRDelta:       -canceledMRR,
		Metadata:       map[string]any{"canceled_mrr": canceledMRR},
		OccurredAt:     evt.OccurredAt,
	})
	if err != nil {
		return nil, err
	}
	return &ProcessResult{Duplicate: dup, Subscription: sub, Event: ledger}, nil
}

func (p *Processor) handlePayment(ctx context.Context, evt NormalizedEvent, eventType revenuedomain.RevenueEventType) (*ProcessResult, error) {
	sub, err := p.subSvc.GetActiveByCustomerID(ctx, evt.CustomerID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrUnknownSub
	}

	metadata := map[string]any{}
	if eventType == revenuedomain.EventPaymentFailed {
		attempts := evt.AttemptCount
		if attempts <= 0 {
			attempts = 1
		}
		metadata["attempt_count"] = attempts
	}

	ledger, dup, err := p.appendLedger(ctx, evt, revenuedomain.AppendEventRequest{
		SubscriptionID: &sub.ID,
		EventType:      eventType,
		Amount:         evt.Amount,
		Currency:       evt.Currency,
		Metadata:       metadata,
		OccurredAt:     evt.OccurredAt,
	})
	if err != nil {
		return nil, err
	}
	return &ProcessResult{Duplicate: dup, Subscription: sub, Event: ledger}, nil
}

// appendLedger writes the ledger row. The unique index on source_event_id
// backstops the replay check in Process against concurrent redelivery.
func (p *Processor) appendLedger(ctx context.Context, evt NormalizedEvent, req revenuedomain.AppendEventRequest) (*revenuedomain.RevenueEvent, bool, error) {
	if id := strings.TrimSpace(evt.SourceEventID); id != "" {
		req.SourceEventID = &id
	}
	row, err := p.revenueSvc.AppendEvent(ctx, req)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			p.log.Info("duplicate source event skipped", zap.String("source_event_id", evt.SourceEventID))
			return nil, true, nil
		}
		return nil, false, err
	}
	return row, false, nil
}
