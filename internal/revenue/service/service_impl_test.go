package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/moneyradar/moneyradar/internal/catalog/domain"
	"github.com/moneyradar/moneyradar/internal/clock"
	revenuedomain "github.com/moneyradar/moneyradar/internal/revenue/domain"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	subscriptionservice "github.com/moneyradar/moneyradar/internal/subscription/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type revEnv struct {
	t      *testing.T
	db     *gorm.DB
	genID  *snowflake.Node
	clk    *clock.FakeClock
	subSvc subscriptiondomain.Service
	svc    revenuedomain.Service
}

func newRevEnv(t *testing.T) *revEnv {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&catalogdomain.Plan{},
		&subscriptiondomain.Subscription{},
		&revenuedomain.RevenueEvent{},
		&revenuedomain.MRRSnapshot{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	subSvc := subscriptionservice.New(subscriptionservice.Params{DB: conn, Log: log, GenID: node, Clock: clk})
	svc := New(Params{DB: conn, Log: log, GenID: node, Clock: clk, SubSvc: subSvc})

	return &revEnv{t: t, db: conn, genID: node, clk: clk, subSvc: subSvc, svc: svc}
}

func (e *revEnv) seedSubscription(customerID string, mrr float64) *subscriptiondomain.Subscription {
	e.t.Helper()
	now := e.clk.Now()
	sub := &subscriptiondomain.Subscription{
		ID:                 e.genID.Generate(),
		CustomerID:         customerID,
		PlanID:             e.genID.Generate(),
		Status:             subscriptiondomain.SubscriptionStatusActive,
		MRR:                mrr,
		CurrentPeriodStart: now.AddDate(0, 0, -15),
		CurrentPeriodEnd:   now.AddDate(0, 0, 15),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(e.t, e.db.Create(sub).Error)
	return sub
}

func (e *revEnv) appendEvent(eventType revenuedomain.RevenueEventType, delta float64, at time.Time) {
	e.t.Helper()
	_, err := e.svc.AppendEvent(context.Background(), revenuedomain.AppendEventRequest{
		EventType:  eventType,
		MRRDelta:   delta,
		OccurredAt: at,
	})
	require.NoError(e.t, err)
}

func TestAppendEvent_Defaults(t *testing.T) {
	env := newRevEnv(t)

	event, err := env.svc.AppendEvent(context.Background(), revenuedomain.AppendEventRequest{
		EventType: revenuedomain.EventPaymentSucceeded,
		Amount:    29,
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", event.Currency)
	assert.Equal(t, env.clk.Now(), event.OccurredAt.UTC())
}

func TestAppendEvent_UnknownTypeRejected(t *testing.T) {
	env := newRevEnv(t)

	_, err := env.svc.AppendEvent(context.Background(), revenuedomain.AppendEventRequest{
		EventType: revenuedomain.RevenueEventType("refund"),
	})
	assert.ErrorIs(t, err, revenuedomain.ErrUnknownEventType)
}

func TestCalculateDailySnapshot_Decomposition(t *testing.T) {
	env := newRevEnv(t)
	ctx := context.Background()
	now := env.clk.Now()

	env.seedSubscription("cust_1", 99)
	env.seedSubscription("cust_2", 29)

	env.appendEvent(revenuedomain.EventSubscriptionCreated, 29, now)
	env.appendEvent(revenuedomain.EventSubscriptionUpgraded, 70, now)
	env.appendEvent(revenuedomain.EventSubscriptionDowngraded, -20, now)
	env.appendEvent(revenuedomain.EventSubscriptionCanceled, -49, now)
	// Outside the snapshot day, must not count.
	env.appendEvent(revenuedomain.EventSubscriptionCreated, 500, now.AddDate(0, 0, -2))

	snapshot, err := env.svc.CalculateDailySnapshot(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), snapshot.Date)
	assert.Equal(t, 128.0, snapshot.TotalMRR)
	assert.Equal(t, 29.0, snapshot.NewMRR)
	assert.Equal(t, 70.0, snapshot.ExpansionMRR)
	assert.Equal(t, 20.0, snapshot.ContractionMRR)
	assert.Equal(t, 49.0, snapshot.ChurnedMRR)
}

func TestCalculateDailySnapshot_ExistingDateReturnedUnchanged(t *testing.T) {
	env := newRevEnv(t)
	ctx := context.Background()

	env.seedSubscription("cust_1", 99)
	first, err := env.svc.CalculateDailySnapshot(ctx, env.clk.Now())
	require.NoError(t, err)

	// MRR moves after the snapshot; recalculating the same date must not
	// rewrite the stored row.
	env.seedSubscription("cust_2", 29)
	second, err := env.svc.CalculateDailySnapshot(ctx, env.clk.Now())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 99.0, second.TotalMRR)
}

func TestCalculateDailySnapshot_ZeroDateUsesToday(t *testing.T) {
	env := newRevEnv(t)

	snapshot, err := env.svc.CalculateDailySnapshot(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), snapshot.Date)
}

func TestRecentSnapshots_NewestFirstWithLimit(t *testing.T) {
	env := newRevEnv(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := env.svc.CalculateDailySnapshot(ctx, env.clk.Now())
		require.NoError(t, err)
		env.clk.Advance(24 * time.Hour)
	}

	since := env.clk.Now().AddDate(0, 0, -3)
	snapshots, err := env.svc.RecentSnapshots(ctx, since, 2)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.True(t, snapshots[0].Date.After(snapshots[1].Date))
}

func TestOverview(t *testing.T) {
	env := newRevEnv(t)
	ctx := context.Background()

	env.seedSubscription("cust_1", 99)

	overview, err := env.svc.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 99.0, overview.CurrentMRR)
	assert.Nil(t, overview.LatestSnapshot)

	_, err = env.svc.CalculateDailySnapshot(ctx, env.clk.Now())
	require.NoError(t, err)

	overview, err = env.svc.Overview(ctx)
	require.NoError(t, err)
	require.NotNil(t, overview.LatestSnapshot)
	assert.Equal(t, 99.0, overview.LatestSnapshot.TotalMRR)
}
