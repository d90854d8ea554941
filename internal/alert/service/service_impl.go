package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/moneyradar/moneyradar/internal/alert/domain"
	"github.com/moneyradar/moneyradar/internal/clock"
	obsmetrics "github.com/moneyradar/moneyradar/internal/observability/metrics"
	"github.com/moneyradar/moneyradar/pkg/db/option"
	"github.com/moneyradar/moneyradar/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *obsmetrics.Metrics
	repo    repository.Repository[alertdomain.Alert]
}

func New(p Params) alertdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("alert.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
		repo:    repository.ProvideStore[alertdomain.Alert](p.DB),
	}
}

func (s *Service) Open(ctx context.Context, req alertdomain.OpenAlertRequest) (*alertdomain.Alert, bool, error) {
	// Account-wide alerts (MRR decline) carry an empty customer id; the
	// dedup pair is then ("", alert_type).
	customerID := strings.TrimSpace(req.CustomerID)
	if req.Context == nil {
		return nil, false, alertdomain.ErrMissingContext
	}

	alertType := req.Context.AlertType()
	payload, err := alertdomain.MarshalContext(req.Context)
	if err != nil {
		return nil, false, err
	}

	var (
		result  *alertdomain.Alert
		created bool
	)

	// Existence check and insert share one transaction so concurrent scans
	// cannot double-create an alert for the same customer and type.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := s.repo.WithTrx(tx)

		var existing alertdomain.Alert
		err := tx.WithContext(ctx).
			Where("customer_id = ? AND alert_type = ? AND is_resolved = ?", customerID, alertType, false).
			First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		alert := alertdomain.Alert{
			ID:                s.genID.Generate(),
			AlertType:         alertType,
			Severity:          req.Severity,
			SubscriptionID:    req.SubscriptionID,
			CustomerID:        customerID,
			Title:             req.Title,
			Description:       req.Description,
			Context:           payload,
			RecommendedAction: req.RecommendedAction,
			CreatedAt:         s.clock.Now(),
		}
		if err := txRepo.Create(ctx, &alert); err != nil {
			return err
		}
		result = &alert
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if s.metrics != nil {
		if created {
			s.metrics.AlertsCreated(string(alertType), string(req.Severity))
		} else {
			s.metrics.AlertsDeduplicated(string(alertType))
		}
	}
	if created {
		s.log.Info("alert opened",
			zap.String("alert_type", string(alertType)),
			zap.String("severity", string(req.Severity)),
			zap.String("customer_id", customerID),
		)
	}
	return result, created, nil
}

func (s *Service) Resolve(ctx context.Context, id snowflake.ID) (*alertdomain.Alert, error) {
	alert, err := s.repo.FindOne(ctx, &alertdomain.Alert{ID: id})
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alertdomain.ErrAlertNotFound
	}
	if alert.IsResolved {
		return alert, nil
	}

	now := s.clock.Now()
	if err := s.repo.Update(ctx, alert.ID.String(), map[string]any{
		"is_resolved": true,
		"resolved_at": now,
	}); err != nil {
		return nil, err
	}
	alert.IsResolved = true
	alert.ResolvedAt = &now
	return alert, nil
}

func (s *Service) List(ctx context.Context, req alertdomain.ListAlertsRequest) ([]*alertdomain.Alert, error) {
	filter := &alertdomain.Alert{
		CustomerID: strings.TrimSpace(req.CustomerID),
		Severity:   alertdomain.AlertSeverity(strings.TrimSpace(req.Severity)),
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.WithQuerySortBy("created_at", "desc", map[string]bool{"created_at": true})),
	}
	if req.Resolved != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "is_resolved", Operator: option.EQ, Value: *req.Resolved}))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	opts = append(opts, option.WithLimit(limit))

	return s.repo.Find(ctx, filter, opts...)
}
