package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/moneyradar/moneyradar/internal/clock"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (subscriptiondomain.Service, *snowflake.Node) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&subscriptiondomain.Subscription{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(testNow)
	return New(Params{DB: conn, Log: zap.NewNop(), GenID: node, Clock: clk}), node
}

func createSub(t *testing.T, svc subscriptiondomain.Service, node *snowflake.Node, customerID string, mrr float64) *subscriptiondomain.Subscription {
	t.Helper()
	sub, err := svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		CustomerID: customerID,
		PlanID:     node.Generate().String(),
		MRR:        mrr,
	})
	require.NoError(t, err)
	return sub
}

func TestCreate_DefaultsPeriodToOneMonth(t *testing.T) {
	svc, node := newTestService(t)

	sub := createSub(t, svc, node, "cust_1", 29)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, testNow, sub.CurrentPeriodStart)
	assert.Equal(t, sub.CurrentPeriodStart.AddDate(0, 1, 0), sub.CurrentPeriodEnd)
	assert.Equal(t, testNow, sub.CreatedAt)
}

func TestCreate_Validation(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{PlanID: node.Generate().String(), MRR: 29})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidCustomer)

	_, err = svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{CustomerID: "cust_1", PlanID: "not-an-id", MRR: 29})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidPlan)

	_, err = svc.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{CustomerID: "cust_1", PlanID: node.Generate().String(), MRR: -1})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidMRR)
}

func TestGetActiveByCustomerID(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	sub := createSub(t, svc, node, "cust_1", 29)

	found, err := svc.GetActiveByCustomerID(ctx, "cust_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, sub.ID, found.ID)

	// No active subscription is nil, not an error.
	missing, err := svc.GetActiveByCustomerID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = svc.Cancel(ctx, sub.ID, time.Time{})
	require.NoError(t, err)
	gone, err := svc.GetActiveByCustomerID(ctx, "cust_1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestActiveMRRTotal_IgnoresCanceled(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	createSub(t, svc, node, "cust_1", 99)
	second := createSub(t, svc, node, "cust_2", 29)

	total, err := svc.ActiveMRRTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 128.0, total)

	_, err = svc.Cancel(ctx, second.ID, time.Time{})
	require.NoError(t, err)

	total, err = svc.ActiveMRRTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 99.0, total)
}

func TestActiveMRRTotal_EmptyIsZero(t *testing.T) {
	svc, _ := newTestService(t)

	total, err := svc.ActiveMRRTotal(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestApplyPlanChange(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	sub := createSub(t, svc, node, "cust_1", 29)
	newPlan := node.Generate()

	changed, err := svc.ApplyPlanChange(ctx, sub.ID, subscriptiondomain.PlanChange{
		NewMRR:    99,
		NewPlanID: &newPlan,
	})
	require.NoError(t, err)
	assert.Equal(t, 99.0, changed.MRR)
	assert.Equal(t, newPlan, changed.PlanID)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, changed.Status)

	_, err = svc.ApplyPlanChange(ctx, sub.ID, subscriptiondomain.PlanChange{NewMRR: -1})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidMRR)
}

func TestCancel_ZeroesMRRAndStampsTime(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	sub := createSub(t, svc, node, "cust_1", 29)
	at := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)

	canceled, err := svc.Cancel(ctx, sub.ID, at)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCanceled, canceled.Status)
	assert.Zero(t, canceled.MRR)
	require.NotNil(t, canceled.CanceledAt)
	assert.Equal(t, at, canceled.CanceledAt.UTC())
	assert.False(t, canceled.Live())
}

func TestCancel_ZeroTimeUsesClock(t *testing.T) {
	svc, node := newTestService(t)
	ctx := context.Background()

	sub := createSub(t, svc, node, "cust_1", 29)

	canceled, err := svc.Cancel(ctx, sub.ID, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, canceled.CanceledAt)
	assert.Equal(t, testNow, canceled.CanceledAt.UTC())
}

func TestGet_Unknown(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), snowflake.ID(404))
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}
