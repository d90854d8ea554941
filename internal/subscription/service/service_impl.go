package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/moneyradar/moneyradar/internal/clock"
	"github.com/moneyradar/moneyradar/internal/subscription/domain"
	"github.com/moneyradar/moneyradar/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository[domain.Subscription]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  repository.ProvideStore[domain.Subscription](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return nil, domain.ErrInvalidCustomer
	}
	planID, err := snowflake.ParseString(strings.TrimSpace(req.PlanID))
	if err != nil {
		return nil, domain.ErrInvalidPlan
	}
	if req.MRR < 0 {
		return nil, domain.ErrInvalidMRR
	}

	now := s.clock.Now()
	periodStart := req.CurrentPeriodStart
	if periodStart.IsZero() {
		periodStart = now
	}
	periodEnd := req.CurrentPeriodEnd
	if periodEnd.IsZero() {
		periodEnd = periodStart.AddDate(0, 1, 0)
	}

	sub := domain.Subscription{
		ID:                 s.genID.Generate(),
		CustomerID:         customerID,
		PlanID:             planID,
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
		MRR:                req.MRR,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Subscription, error) {
	sub, err := s.repo.FindOne(ctx, &domain.Subscription{ID: id})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) GetActiveByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	return s.repo.FindOne(ctx, &domain.Subscription{
		CustomerID: customerID,
		Status:     domain.SubscriptionStatusActive,
	})
}

func (s *Service) ListActive(ctx context.Context) ([]*domain.Subscription, error) {
	return s.repo.Find(ctx, &domain.Subscription{Status: domain.SubscriptionStatusActive})
}

func (s *Service) ListActiveByPlan(ctx context.Context, planID snowflake.ID) ([]*domain.Subscription, error) {
	return s.repo.Find(ctx, &domain.Subscription{
		PlanID: planID,
		Status: domain.SubscriptionStatusActive,
	})
}

func (s *Service) ActiveMRRTotal(ctx context.Context) (float64, error) {
	var total *float64
	err := s.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Select("SUM(mrr)").
		Where("status = ?", domain.SubscriptionStatusActive).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (s *Service) ApplyPlanChange(ctx context.Context, id snowflake.ID, change domain.PlanChange) (*domain.Subscription, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if change.NewMRR < 0 {
		return nil, domain.ErrInvalidMRR
	}

	updates := map[string]any{
		"mrr":        change.NewMRR,
		"updated_at": s.clock.Now(),
	}
	if change.NewPlanID != nil {
		updates["plan_id"] = *change.NewPlanID
	}
	if change.CurrentPeriodStart != nil {
		updates["current_period_start"] = *change.CurrentPeriodStart
	}
	if change.CurrentPeriodEnd != nil {
		updates["current_period_end"] = *change.CurrentPeriodEnd
	}
	if change.Status != nil {
		updates["status"] = *change.Status
	}

	if err := s.repo.Update(ctx, sub.ID.String(), updates); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID, at time.Time) (*domain.Subscription, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = s.clock.Now()
	}

	// Canceled subscriptions carry zero MRR.
	updates := map[string]any{
		"status":      domain.SubscriptionStatusCanceled,
		"mrr":         0.0,
		"canceled_at": at,
		"updated_at":  at,
	}
	if err := s.repo.Update(ctx, sub.ID.String(), updates); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}
