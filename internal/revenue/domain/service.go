package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type AppendEventRequest struct {
	SubscriptionID *snowflake.ID
	EventType      RevenueEventType
	SourceEventID  *string
	Amount         float64
	Currency       string
	MRRDelta       float64
	Metadata       map[string]any
	OccurredAt     time.Time
}

// MRROverview is the read model served by the revenue API.
type MRROverview struct {
	CurrentMRR     float64      `json:"current_mrr"`
	LatestSnapshot *MRRSnapshot `json:"latest_snapshot"`
}

type Service interface {
	// AppendEvent writes one immutable row to the revenue ledger.
	AppendEvent(ctx context.Context, req AppendEventRequest) (*RevenueEvent, error)
	EventsSince(ctx context.Context, eventType RevenueEventType, since time.Time) ([]*RevenueEvent, error)
	// EventBySourceID returns the ledger row carrying the upstream source
	// event id, nil when the id has not been seen.
	EventBySourceID(ctx context.Context, sourceEventID string) (*RevenueEvent, error)

	// CalculateDailySnapshot computes the snapshot for the given calendar
	// date (UTC midnight of today when zero). An existing snapshot for the
	// date is returned unchanged.
	CalculateDailySnapshot(ctx context.Context, date time.Time) (*MRRSnapshot, error)
	// RecentSnapshots returns up to limit snapshots dated on or after since,
	// newest first.
	RecentSnapshots(ctx context.Context, since time.Time, limit int) ([]*MRRSnapshot, error)
	SnapshotsSince(ctx context.Context, since time.Time) ([]*MRRSnapshot, error)
	Overview(ctx context.Context) (*MRROverview, error)
}

var (
	ErrUnknownEventType = errors.New("unknown_event_type")
	ErrInvalidOccurred  = errors.New("invalid_occurred_at")
)
