package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bwmarrin/snowflake"
	"github.com/moneyradar/moneyradar/internal/clock"
	scoredomain "github.com/moneyradar/moneyradar/internal/score/domain"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	usagedomain "github.com/moneyradar/moneyradar/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoActiveSubscription is returned when a customer without a live
// subscription is scored.
var ErrNoActiveSubscription = errors.New("no_active_subscription")

// expansionTrendLookbackDays is the window the scorer's trend factor reads.
const expansionTrendLookbackDays = 30

// ExpansionScorerParams wires the scorer's collaborators.
type ExpansionScorerParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	SubSvc   subscriptiondomain.Service
	UsageSvc usagedomain.Service
	Scores   scoredomain.Repository
}

// ExpansionScorer rates customers on a 0-100 expansion-readiness scale from
// tenure, usage trend and engagement.
type ExpansionScorer struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	subSvc   subscriptiondomain.Service
	usageSvc usagedomain.Service
	scores   scoredomain.Repository
}

func NewExpansionScorer(p ExpansionScorerParams) *ExpansionScorer {
	return &ExpansionScorer{
		db:       p.DB,
		log:      p.Log.Named("analysis.expansion"),
		genID:    p.GenID,
		clock:    p.Clock,
		subSvc:   p.SubSvc,
		usageSvc: p.UsageSvc,
		scores:   p.Scores,
	}
}

// ScoreCustomer recalculates the customer's expansion score and persists it,
// one row per customer.
func (s *ExpansionScorer) ScoreCustomer(ctx context.Context, customerID string) (*scoredomain.CustomerScore, error) {
	sub, err := s.subSvc.GetActiveByCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveSubscription, customerID)
	}

	now := s.clock.Now()
	tenureDays := int(now.Sub(sub.CreatedAt).Hours() / 24)

	records, err := s.usageSvc.RecordsSince(ctx, sub.ID, now.AddDate(0, 0, -expansionTrendLookbackDays))
	if err != nil {
		return nil, err
	}
	usageTrend := Trend(quantities(records))

	avgUsage, err := s.averageUtilization(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	score := 0.0

	// Tenure factor, up to 30 points.
	switch {
	case tenureDays > 365:
		score += 30
	case tenureDays > 180:
		score += 20
	case tenureDays > 90:
		score += 10
	}

	// Usage trend factor, up to 40 points.
	switch {
	case usageTrend > 0.5:
		score += 40
	case usageTrend > 0.2:
		score += 25
	case usageTrend > 0:
		score += 10
	}

	// Engagement factor, up to 30 points.
	engagement := math.Min(30, avgUsage*30)
	score += engagement

	var category scoredomain.ExpansionCategory
	switch {
	case score >= 70:
		category = scoredomain.CategorySafeToUpsell
	case score >= 40:
		category = scoredomain.CategoryNeutral
	default:
		category = scoredomain.CategoryDoNotTouch
	}

	// Declining usage overrides everything else.
	if usageTrend < decliningUsageCutoff {
		category = scoredomain.CategoryLikelyToChurn
		score = math.Max(0, score-30)
	}

	row := &scoredomain.CustomerScore{
		ID:              s.genID.Generate(),
		CustomerID:      customerID,
		SubscriptionID:  sub.ID,
		ExpansionScore:  score,
		Category:        category,
		TenureDays:      tenureDays,
		UsageTrend:      usageTrend,
		EngagementScore: engagement,
		CalculatedAt:    now,
	}
	if err := s.scores.Upsert(ctx, s.db, row); err != nil {
		return nil, err
	}

	// The upsert keeps the original row id on conflict; read the persisted
	// row back so callers see it.
	persisted, err := s.scores.FindByCustomerID(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}
	if persisted == nil {
		return row, nil
	}
	return persisted, nil
}

// GetScore returns the stored score for a customer, nil when never scored.
func (s *ExpansionScorer) GetScore(ctx context.Context, customerID string) (*scoredomain.CustomerScore, error) {
	return s.scores.FindByCustomerID(ctx, s.db, customerID)
}

// ListByCategory returns stored scores, highest first, optionally filtered.
func (s *ExpansionScorer) ListByCategory(ctx context.Context, category scoredomain.ExpansionCategory) ([]*scoredomain.CustomerScore, error) {
	return s.scores.ListByCategory(ctx, s.db, category)
}

// averageUtilization means quantity/limit over every limited usage row the
// subscription has recorded.
func (s *ExpansionScorer) averageUtilization(ctx context.Context, subscriptionID snowflake.ID) (float64, error) {
	records, err := s.usageSvc.LimitedRecords(ctx, subscriptionID)
	if err != nil {
		return 0, err
	}

	ratios := make([]float64, 0, len(records))
	for _, r := range records {
		if r.Limit != nil && *r.Limit > 0 {
			ratios = append(ratios, r.Quantity/(*r.Limit))
		}
	}
	if len(ratios) == 0 {
		return 0, nil
	}
	return mean(ratios), nil
}
