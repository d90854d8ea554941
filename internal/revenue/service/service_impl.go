package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/moneyradar/moneyradar/internal/clock"
	revenuedomain "github.com/moneyradar/moneyradar/internal/revenue/domain"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	"github.com/moneyradar/moneyradar/pkg/db"
	"github.com/moneyradar/moneyradar/pkg/db/option"
	"github.com/moneyradar/moneyradar/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	SubSvc subscriptiondomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	subSvc subscriptiondomain.Service

	events    repository.Repository[revenuedomain.RevenueEvent]
	snapshots repository.Repository[revenuedomain.MRRSnapshot]
}

func New(p Params) revenuedomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("revenue.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		subSvc: p.SubSvc,

		events:    repository.ProvideStore[revenuedomain.RevenueEvent](p.DB),
		snapshots: repository.ProvideStore[revenuedomain.MRRSnapshot](p.DB),
	}
}

func (s *Service) AppendEvent(ctx context.Context, req revenuedomain.AppendEventRequest) (*revenuedomain.RevenueEvent, error) {
	if !req.EventType.Known() {
		return nil, revenuedomain.ErrUnknownEventType
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now()
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	event := revenuedomain.RevenueEvent{
		ID:             s.genID.Generate(),
		SubscriptionID: req.SubscriptionID,
		EventType:      req.EventType,
		SourceEventID:  req.SourceEventID,
		Amount:         req.Amount,
		Currency:       currency,
		MRRDelta:       req.MRRDelta,
		Metadata:       datatypes.JSONMap(req.Metadata),
		OccurredAt:     occurredAt,
		ProcessedAt:    s.clock.Now(),
	}
	if err := s.events.Create(ctx, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *Service) EventBySourceID(ctx context.Context, sourceEventID string) (*revenuedomain.RevenueEvent, error) {
	return s.events.FindOne(ctx, &revenuedomain.RevenueEvent{},
		option.ApplyOperator(option.Condition{Field: "source_event_id", Operator: option.EQ, Value: sourceEventID}),
	)
}

func (s *Service) EventsSince(ctx context.Context, eventType revenuedomain.RevenueEventType, since time.Time) ([]*revenuedomain.RevenueEvent, error) {
	return s.events.Find(ctx, &revenuedomain.RevenueEvent{EventType: eventType},
		option.ApplyOperator(option.Condition{Field: "occurred_at", Operator: option.GTE, Value: since}),
		option.WithSortBy(option.WithQuerySortBy("occurred_at", "asc", map[string]bool{"occurred_at": true})),
	)
}

func (s *Service) CalculateDailySnapshot(ctx context.Context, date time.Time) (*revenuedomain.MRRSnapshot, error) {
	if date.IsZero() {
		date = s.clock.Now()
	}
	date = date.UTC().Truncate(24 * time.Hour)

	existing, err := s.snapshotForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	totalMRR, err := s.subSvc.ActiveMRRTotal(ctx)
	if err != nil {
		return nil, err
	}

	startOfDay := date
	endOfDay := date.Add(24 * time.Hour)

	var events []*revenuedomain.RevenueEvent
	err = s.db.WithContext(ctx).
		Where("occurred_at >= ? AND occurred_at < ?", startOfDay, endOfDay).
		Find(&events).Error
	if err != nil {
		return nil, err
	}

	snapshot := revenuedomain.MRRSnapshot{
		ID:        s.genID.Generate(),
		Date:      date,
		TotalMRR:  totalMRR,
		CreatedAt: s.clock.Now(),
	}

	for _, event := range events {
		switch event.EventType {
		case revenuedomain.EventSubscriptionCreated:
			snapshot.NewMRR += event.MRRDelta
		case revenuedomain.EventSubscriptionUpgraded:
			snapshot.ExpansionMRR += event.MRRDelta
		case revenuedomain.EventSubscriptionDowngraded:
			snapshot.ContractionMRR += math.Abs(event.MRRDelta)
		case revenuedomain.EventSubscriptionCanceled:
			snapshot.ChurnedMRR += math.Abs(event.MRRDelta)
		}
	}

	if err := s.snapshots.Create(ctx, &snapshot); err != nil {
		// A concurrent calculation for the same date won the insert; the
		// unique index on date keeps one row, return it.
		if db.IsDuplicateKeyErr(err) {
			return s.snapshotForDate(ctx, date)
		}
		return nil, err
	}

	s.log.Info("mrr snapshot calculated",
		zap.Time("date", date),
		zap.Float64("total_mrr", snapshot.TotalMRR),
		zap.Float64("new_mrr", snapshot.NewMRR),
		zap.Float64("churned_mrr", snapshot.ChurnedMRR),
	)
	return &snapshot, nil
}

func (s *Service) RecentSnapshots(ctx context.Context, since time.Time, limit int) ([]*revenuedomain.MRRSnapshot, error) {
	return s.snapshots.Find(ctx, &revenuedomain.MRRSnapshot{},
		option.ApplyOperator(option.Condition{Field: "date", Operator: option.GTE, Value: since}),
		option.WithSortBy(option.WithQuerySortBy("date", "desc", map[string]bool{"date": true})),
		option.WithLimit(limit),
	)
}

func (s *Service) SnapshotsSince(ctx context.Context, since time.Time) ([]*revenuedomain.MRRSnapshot, error) {
	return s.snapshots.Find(ctx, &revenuedomain.MRRSnapshot{},
		option.ApplyOperator(option.Condition{Field: "date", Operator: option.GTE, Value: since}),
		option.WithSortBy(option.WithQuerySortBy("date", "asc", map[string]bool{"date": true})),
	)
}

func (s *Service) Overview(ctx context.Context) (*revenuedomain.MRROverview, error) {
	currentMRR, err := s.subSvc.ActiveMRRTotal(ctx)
	if err != nil {
		return nil, err
	}

	latest, err := s.snapshots.FindOne(ctx, &revenuedomain.MRRSnapshot{},
		option.WithSortBy(option.WithQuerySortBy("date", "desc", map[string]bool{"date": true})),
	)
	if err != nil {
		return nil, err
	}

	return &revenuedomain.MRROverview{
		CurrentMRR:     currentMRR,
		LatestSnapshot: latest,
	}, nil
}

func (s *Service) snapshotForDate(ctx context.Context, date time.Time) (*revenuedomain.MRRSnapshot, error) {
	return s.snapshots.FindOne(ctx, &revenuedomain.MRRSnapshot{Date: date})
}
