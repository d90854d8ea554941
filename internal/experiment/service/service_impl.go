package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/moneyradar/moneyradar/internal/clock"
	"github.com/moneyradar/moneyradar/internal/experiment/domain"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	"github.com/moneyradar/moneyradar/pkg/db/option"
	"github.com/moneyradar/moneyradar/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
	repo  repository.Repository[domain.Experiment]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("experiment.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  repository.ProvideStore[domain.Experiment](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateExperimentRequest) (*domain.Experiment, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	hypothesis := strings.TrimSpace(req.Hypothesis)
	if hypothesis == "" {
		return nil, domain.ErrInvalidHypothesis
	}

	now := s.clock.Now()
	exp := domain.Experiment{
		ID:                s.genID.Generate(),
		Name:              name,
		Hypothesis:        hypothesis,
		ChangeDescription: strings.TrimSpace(req.ChangeDescription),
		MetricTracked:     strings.TrimSpace(req.MetricTracked),
		AffectedSegment:   datatypes.JSONMap(req.AffectedSegment),
		BaselineValue:     req.BaselineValue,
		TargetValue:       req.TargetValue,
		Status:            domain.StatusDraft,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

func (s *Service) Start(ctx context.Context, id snowflake.ID) (*domain.Experiment, error) {
	exp, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != domain.StatusDraft {
		return nil, domain.ErrNotDraft
	}

	baseline := exp.BaselineValue
	if baseline == nil {
		v, err := s.segmentMetric(ctx, exp.MetricTracked, exp.AffectedSegment)
		if err != nil {
			return nil, err
		}
		baseline = &v
	}

	total, err := s.segmentCount(ctx, exp.AffectedSegment)
	if err != nil {
		return nil, err
	}
	// Naive halves stand in for real assignment.
	control := total / 2
	variant := total - control

	now := s.clock.Now()
	updates := map[string]any{
		"baseline_value":     baseline,
		"control_group_size": control,
		"variant_group_size": variant,
		"status":             domain.StatusRunning,
		"started_at":         now,
		"updated_at":         now,
	}
	if err := s.repo.Update(ctx, exp.ID.String(), updates); err != nil {
		return nil, err
	}
	return s.get(ctx, id)
}

func (s *Service) RecordResult(ctx context.Context, id snowflake.ID, req domain.RecordResultRequest) (*domain.Experiment, error) {
	exp, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	updates := map[string]any{
		"actual_value": req.ActualValue,
		"outcome":      strings.TrimSpace(req.Outcome),
		"status":       domain.StatusCompleted,
		"ended_at":     now,
		"updated_at":   now,
	}
	if err := s.repo.Update(ctx, exp.ID.String(), updates); err != nil {
		return nil, err
	}
	return s.get(ctx, id)
}

func (s *Service) Analyze(ctx context.Context, id snowflake.ID) (*domain.Analysis, error) {
	exp, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != domain.StatusRunning && exp.Status != domain.StatusCompleted {
		return nil, domain.ErrNotStarted
	}

	current, err := s.segmentMetric(ctx, exp.MetricTracked, exp.AffectedSegment)
	if err != nil {
		return nil, err
	}

	var baseline float64
	if exp.BaselineValue != nil {
		baseline = *exp.BaselineValue
	}

	analysis := domain.Analysis{
		ExperimentID:  exp.ID,
		Name:          exp.Name,
		Status:        exp.Status,
		Metric:        exp.MetricTracked,
		BaselineValue: baseline,
		CurrentValue:  current,
		TargetValue:   exp.TargetValue,
	}

	if baseline > 0 {
		analysis.Improvement = current - baseline
		analysis.ImprovementPercent = (analysis.Improvement / baseline) * 100
	}

	// Targets below the baseline mean the metric should go down.
	if exp.TargetValue != nil {
		if *exp.TargetValue > baseline {
			analysis.TargetMet = current >= *exp.TargetValue
		} else {
			analysis.TargetMet = current <= *exp.TargetValue
		}
	}

	if exp.StartedAt != nil {
		analysis.DaysRunning = int(s.clock.Now().Sub(*exp.StartedAt).Hours() / 24)
	}
	return &analysis, nil
}

func (s *Service) Active(ctx context.Context) ([]*domain.Experiment, error) {
	return s.repo.Find(ctx, &domain.Experiment{Status: domain.StatusRunning})
}

func (s *Service) History(ctx context.Context, metric string, limit int) ([]*domain.Experiment, error) {
	filter := &domain.Experiment{
		Status:        domain.StatusCompleted,
		MetricTracked: strings.TrimSpace(metric),
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.Find(ctx, filter,
		option.WithSortBy(option.WithQuerySortBy("ended_at", "desc", map[string]bool{"ended_at": true})),
		option.WithLimit(limit),
	)
}

func (s *Service) get(ctx context.Context, id snowflake.ID) (*domain.Experiment, error) {
	exp, err := s.repo.FindOne(ctx, &domain.Experiment{ID: id})
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, domain.ErrExperimentNotFound
	}
	return exp, nil
}

// segmentQuery narrows active subscriptions to the experiment's segment. The
// only supported attribute filter is plan_id.
func (s *Service) segmentQuery(ctx context.Context, segment datatypes.JSONMap) *gorm.DB {
	q := s.db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("status = ?", subscriptiondomain.SubscriptionStatusActive)
	if segment != nil {
		if raw, ok := segment["plan_id"]; ok {
			q = q.Where("plan_id = ?", toPlanID(raw))
		}
	}
	return q
}

func (s *Service) segmentCount(ctx context.Context, segment datatypes.JSONMap) (int, error) {
	var count int64
	if err := s.segmentQuery(ctx, segment).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// segmentMetric computes a naive point-in-time metric for the segment.
// Unknown metric names yield 0 rather than an error, so a typo in an
// experiment definition never blocks analysis.
func (s *Service) segmentMetric(ctx context.Context, metric string, segment datatypes.JSONMap) (float64, error) {
	var subs []*subscriptiondomain.Subscription
	if err := s.segmentQuery(ctx, segment).Find(&subs).Error; err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		return 0, nil
	}

	switch metric {
	case "arpu":
		var total float64
		for _, sub := range subs {
			total += sub.MRR
		}
		return total / float64(len(subs)), nil

	case "mrr":
		var total float64
		for _, sub := range subs {
			total += sub.MRR
		}
		return total, nil

	case "churn_rate":
		cutoff := s.clock.Now().AddDate(0, 0, -30)
		var churned int64
		err := s.db.WithContext(ctx).
			Model(&subscriptiondomain.Subscription{}).
			Where("status = ? AND canceled_at >= ?", subscriptiondomain.SubscriptionStatusCanceled, cutoff).
			Count(&churned).Error
		if err != nil {
			return 0, err
		}
		return float64(churned) / float64(len(subs)) * 100, nil

	default:
		return 0, nil
	}
}

// toPlanID normalizes the JSON-decoded plan id, which arrives as a float64
// or a string depending on the producer.
func toPlanID(raw any) int64 {
	switch v := raw.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		id, err := snowflake.ParseString(v)
		if err != nil {
			return 0
		}
		return int64(id)
	default:
		return 0
	}
}
