package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/moneyradar/moneyradar/internal/catalog/domain"
	"github.com/moneyradar/moneyradar/internal/clock"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	usagedomain "github.com/moneyradar/moneyradar/internal/usage/domain"
	"github.com/moneyradar/moneyradar/pkg/db/option"
	"github.com/moneyradar/moneyradar/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	SubSvc     subscriptiondomain.Service
	CatalogSvc catalogdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	subSvc     subscriptiondomain.Service
	catalogSvc catalogdomain.Service
	repo       repository.Repository[usagedomain.UsageRecord]
}

func New(p Params) usagedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("usage.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		subSvc:     p.SubSvc,
		catalogSvc: p.CatalogSvc,
		repo:       repository.ProvideStore[usagedomain.UsageRecord](p.DB),
	}
}

func (s *Service) Record(ctx context.Context, req usagedomain.RecordUsageRequest) (*usagedomain.UsageRecord, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return nil, usagedomain.ErrInvalidCustomer
	}
	metricName := strings.TrimSpace(req.MetricName)
	if metricName == "" {
		return nil, usagedomain.ErrInvalidMetric
	}
	if req.Quantity < 0 {
		return nil, usagedomain.ErrInvalidQuantity
	}

	sub, err := s.subSvc.GetActiveByCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, usagedomain.ErrNoActiveSubscription
	}

	periodStart := sub.CurrentPeriodStart
	if req.PeriodStart != nil {
		periodStart = *req.PeriodStart
	}
	periodEnd := sub.CurrentPeriodEnd
	if req.PeriodEnd != nil {
		periodEnd = *req.PeriodEnd
	}

	var limit *float64
	plan, err := s.catalogSvc.GetPlan(ctx, sub.PlanID)
	if err == nil && plan != nil {
		if v, ok := plan.LimitFor(metricName); ok {
			limit = &v
		}
	}

	record := usagedomain.UsageRecord{
		ID:             s.genID.Generate(),
		SubscriptionID: sub.ID,
		MetricName:     metricName,
		Quantity:       req.Quantity,
		Limit:          limit,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		RecordedAt:     s.clock.Now(),
	}
	if err := s.repo.Create(ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Service) Summary(ctx context.Context, subscriptionID snowflake.ID, periodStart, periodEnd *time.Time) (map[string]usagedomain.MetricSummary, error) {
	opts := []option.QueryOption{}
	if periodStart != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "period_start", Operator: option.GTE, Value: *periodStart}))
	}
	if periodEnd != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "period_end", Operator: option.LTE, Value: *periodEnd}))
	}

	records, err := s.repo.Find(ctx, &usagedomain.UsageRecord{SubscriptionID: subscriptionID}, opts...)
	if err != nil {
		return nil, err
	}

	summary := make(map[string]usagedomain.MetricSummary)
	for _, record := range records {
		entry := summary[record.MetricName]
		entry.Total += record.Quantity
		if record.Limit != nil {
			entry.Limit = record.Limit
		}
		if entry.Limit != nil && *entry.Limit > 0 {
			entry.Utilization = entry.Total / *entry.Limit
		}
		summary[record.MetricName] = entry
	}
	return summary, nil
}

func (s *Service) RecordsSince(ctx context.Context, subscriptionID snowflake.ID, since time.Time) ([]*usagedomain.UsageRecord, error) {
	return s.repo.Find(ctx, &usagedomain.UsageRecord{SubscriptionID: subscriptionID},
		option.ApplyOperator(option.Condition{Field: "recorded_at", Operator: option.GTE, Value: since}),
		option.WithSortBy(option.WithQuerySortBy("recorded_at", "asc", map[string]bool{"recorded_at": true})),
	)
}

func (s *Service) LimitedRecords(ctx context.Context, subscriptionID snowflake.ID) ([]*usagedomain.UsageRecord, error) {
	return s.repo.Find(ctx, &usagedomain.UsageRecord{SubscriptionID: subscriptionID},
		option.ApplyOperator(option.Condition{Field: "limit_value", Operator: option.GT, Value: 0}),
	)
}

func (s *Service) BulkImport(ctx context.Context, items []usagedomain.RecordUsageRequest) (usagedomain.BulkImportResult, error) {
	var result usagedomain.BulkImportResult
	for _, item := range items {
		if _, err := s.Record(ctx, item); err != nil {
			result.Failed++
			s.log.Error("bulk usage import item failed",
				zap.String("customer_id", item.CustomerID),
				zap.String("metric", item.MetricName),
				zap.Error(err),
			)
			continue
		}
		result.Imported++
	}
	return result, nil
}
