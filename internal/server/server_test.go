package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	alertdomain "github.com/moneyradar/moneyradar/internal/alert/domain"
	alertservice "github.com/moneyradar/moneyradar/internal/alert/service"
	"github.com/moneyradar/moneyradar/internal/analysis"
	catalogdomain "github.com/moneyradar/moneyradar/internal/catalog/domain"
	catalogservice "github.com/moneyradar/moneyradar/internal/catalog/service"
	"github.com/moneyradar/moneyradar/internal/clock"
	"github.com/moneyradar/moneyradar/internal/config"
	experimentdomain "github.com/moneyradar/moneyradar/internal/experiment/domain"
	experimentservice "github.com/moneyradar/moneyradar/internal/experiment/service"
	"github.com/moneyradar/moneyradar/internal/ingestion"
	revenuedomain "github.com/moneyradar/moneyradar/internal/revenue/domain"
	revenueservice "github.com/moneyradar/moneyradar/internal/revenue/service"
	scoredomain "github.com/moneyradar/moneyradar/internal/score/domain"
	scorerepository "github.com/moneyradar/moneyradar/internal/score/repository"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	subscriptionservice "github.com/moneyradar/moneyradar/internal/subscription/service"
	usagedomain "github.com/moneyradar/moneyradar/internal/usage/domain"
	usageservice "github.com/moneyradar/moneyradar/internal/usage/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type httpEnv struct {
	t      *testing.T
	srv    *Server
	engine *gin.Engine
	clk    *clock.FakeClock
}

func newHTTPEnv(t *testing.T) *httpEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&catalogdomain.Product{},
		&catalogdomain.Plan{},
		&subscriptiondomain.Subscription{},
		&usagedomain.UsageRecord{},
		&revenuedomain.RevenueEvent{},
		&revenuedomain.MRRSnapshot{},
		&alertdomain.Alert{},
		&scoredomain.CustomerScore{},
		&experimentdomain.Experiment{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	thresholds := config.DefaultThresholds()

	catalogSvc := catalogservice.New(catalogservice.Params{DB: conn, Log: log, GenID: node})
	subSvc := subscriptionservice.New(subscriptionservice.Params{DB: conn, Log: log, GenID: node, Clock: clk})
	usageSvc := usageservice.New(usageservice.Params{DB: conn, Log: log, GenID: node, Clock: clk, SubSvc: subSvc, CatalogSvc: catalogSvc})
	revenueSvc := revenueservice.New(revenueservice.Params{DB: conn, Log: log, GenID: node, Clock: clk, SubSvc: subSvc})
	alertSvc := alertservice.New(alertservice.Params{DB: conn, Log: log, GenID: node, Clock: clk})
	scores := scorerepository.Provide()
	expSvc := experimentservice.New(experimentservice.Params{DB: conn, Log: log, GenID: node, Clock: clk})
	expRpt := experimentservice.NewReporter(experimentservice.ReporterParams{DB: conn, Log: log})

	mismatch := analysis.NewMismatchDetector(analysis.MismatchDetectorParams{
		Log: log, Thresholds: thresholds, SubSvc: subSvc, CatalogSvc: catalogSvc, UsageSvc: usageSvc, AlertSvc: alertSvc,
	})
	risk := analysis.NewRiskDetector(analysis.RiskDetectorParams{
		Log: log, Thresholds: thresholds, Clock: clk, SubSvc: subSvc, UsageSvc: usageSvc, RevenueSvc: revenueSvc, AlertSvc: alertSvc,
	})
	scorer := analysis.NewExpansionScorer(analysis.ExpansionScorerParams{
		DB: conn, Log: log, GenID: node, Clock: clk, SubSvc: subSvc, UsageSvc: usageSvc, Scores: scores,
	})
	processor := ingestion.New(ingestion.Params{Log: log, Clock: clk, SubSvc: subSvc, RevenueSvc: revenueSvc})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{HTTPAddr: ":0"},
		DB:              conn,
		Log:             log,
		GenID:           node,
		Clock:           clk,
		CatalogSvc:      catalogSvc,
		SubscriptionSvc: subSvc,
		UsageSvc:        usageSvc,
		RevenueSvc:      revenueSvc,
		AlertSvc:        alertSvc,
		Mismatch:        mismatch,
		Risk:            risk,
		Scorer:          scorer,
		Processor:       processor,
		ExperimentSvc:   expSvc,
		ExperimentRpt:   expRpt,
	})

	return &httpEnv{t: t, srv: srv, engine: engine, clk: clk}
}

func (e *httpEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (e *httpEnv) createPlan(name string, price float64, limits map[string]any) *catalogdomain.Plan {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/v1/products", catalogdomain.CreateProductRequest{Name: "Acme " + name})
	require.Equal(e.t, http.StatusCreated, rec.Code)
	product := decode[catalogdomain.Product](e.t, rec)

	rec = e.do(http.MethodPost, "/v1/plans", catalogdomain.CreatePlanRequest{
		ProductID:    product.ID.String(),
		Name:         name,
		PriceMonthly: price,
		Currency:     "USD",
		Limits:       limits,
	})
	require.Equal(e.t, http.StatusCreated, rec.Code)
	plan := decode[catalogdomain.Plan](e.t, rec)
	return &plan
}

func (e *httpEnv) createSubscription(customerID string, plan *catalogdomain.Plan, mrr float64) *subscriptiondomain.Subscription {
	e.t.Helper()
	now := e.clk.Now()
	rec := e.do(http.MethodPost, "/v1/subscriptions", subscriptiondomain.CreateSubscriptionRequest{
		CustomerID:         customerID,
		PlanID:             plan.ID.String(),
		MRR:                mrr,
		CurrentPeriodStart: now.AddDate(0, 0, -15),
		CurrentPeriodEnd:   now.AddDate(0, 0, 15),
	})
	require.Equal(e.t, http.StatusCreated, rec.Code)
	sub := decode[subscriptiondomain.Subscription](e.t, rec)
	return &sub
}

func TestServer_SubscriptionLifecycle(t *testing.T) {
	env := newHTTPEnv(t)

	plan := env.createPlan("Starter", 29, map[string]any{"api_calls": 1000.0})
	sub := env.createSubscription("cust_1", plan, 29)

	rec := env.do(http.MethodGet, "/v1/subscriptions/"+sub.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/v1/subscriptions/"+sub.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	canceled := decode[subscriptiondomain.Subscription](t, rec)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCanceled, canceled.Status)
	assert.Zero(t, canceled.MRR)
}

func TestServer_UnknownSubscriptionIs404(t *testing.T) {
	env := newHTTPEnv(t)

	rec := env.do(http.MethodGet, "/v1/subscriptions/123456789", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Error.Type)
}

func TestServer_RecordUsageAndSummary(t *testing.T) {
	env := newHTTPEnv(t)

	plan := env.createPlan("Starter", 29, map[string]any{"api_calls": 1000.0})
	sub := env.createSubscription("cust_1", plan, 29)

	rec := env.do(http.MethodPost, "/v1/usage", usagedomain.RecordUsageRequest{
		CustomerID: "cust_1",
		MetricName: "api_calls",
		Quantity:   250,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	record := decode[usagedomain.UsageRecord](t, rec)
	require.NotNil(t, record.Limit)
	assert.Equal(t, 1000.0, *record.Limit)

	rec = env.do(http.MethodGet, "/v1/subscriptions/"+sub.ID.String()+"/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		Metrics map[string]usagedomain.MetricSummary `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 250.0, summary.Metrics["api_calls"].Total)
}

func TestServer_UsageWithoutSubscriptionIs404(t *testing.T) {
	env := newHTTPEnv(t)

	rec := env.do(http.MethodPost, "/v1/usage", usagedomain.RecordUsageRequest{
		CustomerID: "ghost",
		MetricName: "api_calls",
		Quantity:   1,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_EventWebhookDeduplicates(t *testing.T) {
	env := newHTTPEnv(t)

	plan := env.createPlan("Starter", 29, map[string]any{"api_calls": 1000.0})
	planID := plan.ID
	evt := ingestion.NormalizedEvent{
		SourceEventID: "evt_1",
		Kind:          revenuedomain.EventSubscriptionCreated,
		CustomerID:    "cust_1",
		PlanID:        &planID,
		MRR:           29,
		OccurredAt:    env.clk.Now(),
	}

	rec := env.do(http.MethodPost, "/v1/events", evt)
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decode[ingestion.ProcessResult](t, rec)
	assert.False(t, first.Duplicate)

	rec = env.do(http.MethodPost, "/v1/events", evt)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[ingestion.ProcessResult](t, rec)
	assert.True(t, second.Duplicate)
}

func TestServer_SnapshotCalculateIsIdempotent(t *testing.T) {
	env := newHTTPEnv(t)

	plan := env.createPlan("Pro", 99, map[string]any{"api_calls": 50000.0})
	env.createSubscription("cust_1", plan, 99)

	rec := env.do(http.MethodPost, "/v1/revenue/snapshots/calculate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[revenuedomain.MRRSnapshot](t, rec)
	assert.Equal(t, 99.0, first.TotalMRR)

	rec = env.do(http.MethodPost, "/v1/revenue/snapshots/calculate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[revenuedomain.MRRSnapshot](t, rec)
	assert.Equal(t, first.ID, second.ID)

	rec = env.do(http.MethodGet, "/v1/revenue/snapshots?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Snapshots []revenuedomain.MRRSnapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Len(t, listing.Snapshots, 1)
}

func TestServer_MismatchScanOpensAlert(t *testing.T) {
	env := newHTTPEnv(t)

	plan := env.createPlan("Starter", 29, map[string]any{"api_calls": 1000.0})
	env.createSubscription("cust_hot", plan, 29)
	rec := env.do(http.MethodPost, "/v1/usage", usagedomain.RecordUsageRequest{
		CustomerID: "cust_hot",
		MetricName: "api_calls",
		Quantity:   900,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPost, "/v1/analysis/mismatch", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[analysis.MismatchReport](t, rec)
	require.Len(t, report.UpgradeCandidates, 1)

	rec = env.do(http.MethodGet, "/v1/alerts?resolved=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var alerts struct {
		Alerts []alertdomain.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	require.Len(t, alerts.Alerts, 1)

	rec = env.do(http.MethodPost, fmt.Sprintf("/v1/alerts/%s/resolve", alerts.Alerts[0].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[alertdomain.Alert](t, rec)
	assert.True(t, resolved.IsResolved)
}

func TestServer_ScoreEndpoints(t *testing.T) {
	env := newHTTPEnv(t)

	plan := env.createPlan("Pro", 99, map[string]any{"api_calls": 50000.0})
	env.createSubscription("cust_1", plan, 99)

	rec := env.do(http.MethodPost, "/v1/customers/cust_1/score", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	score := decode[scoredomain.CustomerScore](t, rec)
	assert.Equal(t, "cust_1", score.CustomerID)

	rec = env.do(http.MethodGet, "/v1/customers/cust_1/score", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/v1/customers/ghost/score", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/v1/scores?category=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/v1/scores?category="+string(score.Category), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ExperimentLifecycle(t *testing.T) {
	env := newHTTPEnv(t)

	plan := env.createPlan("Pro", 99, map[string]any{"api_calls": 50000.0})
	env.createSubscription("cust_1", plan, 99)

	rec := env.do(http.MethodPost, "/v1/experiments", experimentdomain.CreateExperimentRequest{
		Name:          "Pro price test",
		Hypothesis:    "raising Pro to $109 keeps churn flat",
		MetricTracked: "mrr",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	exp := decode[experimentdomain.Experiment](t, rec)

	rec = env.do(http.MethodGet, fmt.Sprintf("/v1/experiments/%s/analysis", exp.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, fmt.Sprintf("/v1/experiments/%s/start", exp.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/v1/experiments/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, fmt.Sprintf("/v1/experiments/%s/result", exp.ID), experimentdomain.RecordResultRequest{
		ActualValue: 108,
		Outcome:     "kept churn flat",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/v1/experiments/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[experimentdomain.SummaryReport](t, rec)
	assert.Equal(t, 1, summary.TotalExperiments)
}
