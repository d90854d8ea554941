package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	alertdomain "github.com/moneyradar/moneyradar/internal/alert/domain"
	alertservice "github.com/moneyradar/moneyradar/internal/alert/service"
	catalogdomain "github.com/moneyradar/moneyradar/internal/catalog/domain"
	catalogservice "github.com/moneyradar/moneyradar/internal/catalog/service"
	"github.com/moneyradar/moneyradar/internal/clock"
	"github.com/moneyradar/moneyradar/internal/config"
	revenuedomain "github.com/moneyradar/moneyradar/internal/revenue/domain"
	revenueservice "github.com/moneyradar/moneyradar/internal/revenue/service"
	scoredomain "github.com/moneyradar/moneyradar/internal/score/domain"
	scorerepository "github.com/moneyradar/moneyradar/internal/score/repository"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	subscriptionservice "github.com/moneyradar/moneyradar/internal/subscription/service"
	usagedomain "github.com/moneyradar/moneyradar/internal/usage/domain"
	usageservice "github.com/moneyradar/moneyradar/internal/usage/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type testEnv struct {
	db    *gorm.DB
	node  *snowflake.Node
	clk   *clock.FakeClock
	now   time.Time
	thr   config.Thresholds
	log   *zap.Logger
	cat   catalogdomain.Service
	subs  subscriptiondomain.Service
	usage usagedomain.Service
	rev   revenuedomain.Service
	alert alertdomain.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&catalogdomain.Product{},
		&catalogdomain.Plan{},
		&subscriptiondomain.Subscription{},
		&usagedomain.UsageRecord{},
		&revenuedomain.RevenueEvent{},
		&revenuedomain.MRRSnapshot{},
		&alertdomain.Alert{},
		&scoredomain.CustomerScore{},
	)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)

	cat := catalogservice.New(catalogservice.Params{DB: db, Log: log, GenID: node})
	subs := subscriptionservice.New(subscriptionservice.Params{DB: db, Log: log, GenID: node, Clock: clk})
	usage := usageservice.New(usageservice.Params{DB: db, Log: log, GenID: node, Clock: clk, SubSvc: subs, CatalogSvc: cat})
	rev := revenueservice.New(revenueservice.Params{DB: db, Log: log, GenID: node, Clock: clk, SubSvc: subs})
	alert := alertservice.New(alertservice.Params{DB: db, Log: log, GenID: node, Clock: clk})

	return &testEnv{
		db:    db,
		node:  node,
		clk:   clk,
		now:   now,
		thr:   config.DefaultThresholds(),
		log:   log,
		cat:   cat,
		subs:  subs,
		usage: usage,
		rev:   rev,
		alert: alert,
	}
}

func (e *testEnv) mismatchDetector() *MismatchDetector {
	return NewMismatchDetector(MismatchDetectorParams{
		Log:        e.log,
		Thresholds: e.thr,
		SubSvc:     e.subs,
		CatalogSvc: e.cat,
		UsageSvc:   e.usage,
		AlertSvc:   e.alert,
	})
}

func (e *testEnv) riskDetector() *RiskDetector {
	return NewRiskDetector(RiskDetectorParams{
		Log:        e.log,
		Thresholds: e.thr,
		Clock:      e.clk,
		SubSvc:     e.subs,
		UsageSvc:   e.usage,
		RevenueSvc: e.rev,
		AlertSvc:   e.alert,
	})
}

func (e *testEnv) expansionScorer() *ExpansionScorer {
	return NewExpansionScorer(ExpansionScorerParams{
		DB:       e.db,
		Log:      e.log,
		GenID:    e.node,
		Clock:    e.clk,
		SubSvc:   e.subs,
		UsageSvc: e.usage,
		Scores:   scorerepository.Provide(),
	})
}

// seedPlan creates a product and a plan carrying the given metric limits.
func (e *testEnv) seedPlan(t *testing.T, name string, priceMonthly float64, limits map[string]any) *catalogdomain.Plan {
	t.Helper()
	product := &catalogdomain.Product{ID: e.node.Generate(), Name: "Acme " + name, CreatedAt: e.now, UpdatedAt: e.now}
	require.NoError(t, e.db.Create(product).Error)

	plan := &catalogdomain.Plan{
		ID:            e.node.Generate(),
		ProductID:     product.ID,
		Name:          name,
		Version:       1,
		PriceMonthly:  priceMonthly,
		Currency:      "USD",
		Limits:        datatypes.JSONMap(limits),
		EffectiveFrom: e.now.AddDate(-1, 0, 0),
		IsActive:      true,
		CreatedAt:     e.now,
		UpdatedAt:     e.now,
	}
	require.NoError(t, e.db.Create(plan).Error)
	return plan
}

// seedTier adds a sibling plan on an existing product.
func (e *testEnv) seedTier(t *testing.T, productID snowflake.ID, name string, priceMonthly float64, limits map[string]any) *catalogdomain.Plan {
	t.Helper()
	plan := &catalogdomain.Plan{
		ID:            e.node.Generate(),
		ProductID:     productID,
		Name:          name,
		Version:       1,
		PriceMonthly:  priceMonthly,
		Currency:      "USD",
		Limits:        datatypes.JSONMap(limits),
		EffectiveFrom: e.now.AddDate(-1, 0, 0),
		IsActive:      true,
		CreatedAt:     e.now,
		UpdatedAt:     e.now,
	}
	require.NoError(t, e.db.Create(plan).Error)
	return plan
}

func (e *testEnv) seedSubscription(t *testing.T, customerID string, plan *catalogdomain.Plan, mrr float64, createdAt time.Time) *subscriptiondomain.Subscription {
	t.Helper()
	sub := &subscriptiondomain.Subscription{
		ID:                 e.node.Generate(),
		CustomerID:         customerID,
		PlanID:             plan.ID,
		Status:             subscriptiondomain.SubscriptionStatusActive,
		CurrentPeriodStart: e.now.AddDate(0, 0, -15),
		CurrentPeriodEnd:   e.now.AddDate(0, 0, 15),
		MRR:                mrr,
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}
	require.NoError(t, e.db.Create(sub).Error)
	return sub
}

// seedUsage inserts one usage row inside the subscription's current period.
func (e *testEnv) seedUsage(t *testing.T, sub *subscriptiondomain.Subscription, metric string, quantity float64, limit *float64, recordedAt time.Time) {
	t.Helper()
	row := &usagedomain.UsageRecord{
		ID:             e.node.Generate(),
		SubscriptionID: sub.ID,
		MetricName:     metric,
		Quantity:       quantity,
		Limit:          limit,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
		RecordedAt:     recordedAt,
	}
	require.NoError(t, e.db.Create(row).Error)
}

func (e *testEnv) seedEvent(t *testing.T, sub *subscriptiondomain.Subscription, eventType revenuedomain.RevenueEventType, mrrDelta float64, occurredAt time.Time, metadata map[string]any) {
	t.Helper()
	var subID *snowflake.ID
	if sub != nil {
		subID = &sub.ID
	}
	row := &revenuedomain.RevenueEvent{
		ID:             e.node.Generate(),
		SubscriptionID: subID,
		EventType:      eventType,
		Currency:       "USD",
		MRRDelta:       mrrDelta,
		Metadata:       datatypes.JSONMap(metadata),
		OccurredAt:     occurredAt,
		ProcessedAt:    occurredAt,
	}
	require.NoError(t, e.db.Create(row).Error)
}

func (e *testEnv) seedSnapshot(t *testing.T, date time.Time, totalMRR, newMRR, churnedMRR float64) {
	t.Helper()
	row := &revenuedomain.MRRSnapshot{
		ID:         e.node.Generate(),
		Date:       date.UTC().Truncate(24 * time.Hour),
		TotalMRR:   totalMRR,
		NewMRR:     newMRR,
		ChurnedMRR: churnedMRR,
		CreatedAt:  date,
	}
	require.NoError(t, e.db.Create(row).Error)
}

func (e *testEnv) openAlerts(t *testing.T, customerID string) []*alertdomain.Alert {
	t.Helper()
	resolved := false
	alerts, err := e.alert.List(context.Background(), alertdomain.ListAlertsRequest{
		CustomerID: customerID,
		Resolved:   &resolved,
		Limit:      100,
	})
	require.NoError(t, err)
	return alerts
}

func floatPtr(f float64) *float64 { return &f }
