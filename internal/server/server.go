package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/moneyradar/moneyradar/internal/alert"
	alertdomain "github.com/moneyradar/moneyradar/internal/alert/domain"
	"github.com/moneyradar/moneyradar/internal/analysis"
	"github.com/moneyradar/moneyradar/internal/catalog"
	catalogdomain "github.com/moneyradar/moneyradar/internal/catalog/domain"
	"github.com/moneyradar/moneyradar/internal/clock"
	"github.com/moneyradar/moneyradar/internal/config"
	"github.com/moneyradar/moneyradar/internal/experiment"
	experimentdomain "github.com/moneyradar/moneyradar/internal/experiment/domain"
	"github.com/moneyradar/moneyradar/internal/ingestion"
	obsmetrics "github.com/moneyradar/moneyradar/internal/observability/metrics"
	"github.com/moneyradar/moneyradar/internal/ratelimit"
	"github.com/moneyradar/moneyradar/internal/revenue"
	revenuedomain "github.com/moneyradar/moneyradar/internal/revenue/domain"
	"github.com/moneyradar/moneyradar/internal/score"
	"github.com/moneyradar/moneyradar/internal/subscription"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	"github.com/moneyradar/moneyradar/internal/usage"
	usagedomain "github.com/moneyradar/moneyradar/internal/usage/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	catalog.Module,
	subscription.Module,
	usage.Module,
	revenue.Module,
	alert.Module,
	score.Module,
	analysis.Module,
	experiment.Module,
	ingestion.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type engineParams struct {
	fx.In

	Metrics *obsmetrics.Metrics `optional:"true"`
}

func registerGin(p engineParams) *gin.Engine {
	return NewEngine(p.Metrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clk             clock.Clock
	catalogSvc      catalogdomain.Service
	subscriptionSvc subscriptiondomain.Service
	usageSvc        usagedomain.Service
	revenueSvc      revenuedomain.Service
	alertSvc        alertdomain.Service
	mismatch        *analysis.MismatchDetector
	risk            *analysis.RiskDetector
	scorer          *analysis.ExpansionScorer
	processor       *ingestion.Processor
	experimentSvc   experimentdomain.Service
	experimentRpt   experimentdomain.Reporter
	usageLimiter    *ratelimit.UsageIngestLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	CatalogSvc      catalogdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	UsageSvc        usagedomain.Service
	RevenueSvc      revenuedomain.Service
	AlertSvc        alertdomain.Service
	Mismatch        *analysis.MismatchDetector
	Risk            *analysis.RiskDetector
	Scorer          *analysis.ExpansionScorer
	Processor       *ingestion.Processor
	ExperimentSvc   experimentdomain.Service
	ExperimentRpt   experimentdomain.Reporter
	UsageLimiter    *ratelimit.UsageIngestLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics           `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("server"),
		genID:           p.GenID,
		clk:             p.Clock,
		catalogSvc:      p.CatalogSvc,
		subscriptionSvc: p.SubscriptionSvc,
		usageSvc:        p.UsageSvc,
		revenueSvc:      p.RevenueSvc,
		alertSvc:        p.AlertSvc,
		mismatch:        p.Mismatch,
		risk:            p.Risk,
		scorer:          p.Scorer,
		processor:       p.Processor,
		experimentSvc:   p.ExperimentSvc,
		experimentRpt:   p.ExperimentRpt,
		usageLimiter:    p.UsageLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/products", s.CreateProduct)
	v1.POST("/plans", s.CreatePlan)
	v1.GET("/plans", s.ListPlans)
	v1.GET("/plans/:id", s.GetPlan)

	v1.POST("/subscriptions", s.CreateSubscription)
	v1.GET("/subscriptions/:id", s.GetSubscription)
	v1.POST("/subscriptions/:id/cancel", s.CancelSubscription)
	v1.GET("/subscriptions/:id/usage", s.UsageSummary)

	v1.POST("/usage", s.RecordUsage)
	v1.POST("/usage/bulk", s.BulkImportUsage)

	v1.POST("/events", s.IngestEvent)

	v1.GET("/revenue/overview", s.RevenueOverview)
	v1.GET("/revenue/snapshots", s.ListSnapshots)
	v1.POST("/revenue/snapshots/calculate", s.CalculateSnapshot)

	v1.GET("/alerts", s.ListAlerts)
	v1.POST("/alerts/:id/resolve", s.ResolveAlert)

	v1.POST("/analysis/mismatch", s.ScanMismatch)
	v1.GET("/analysis/plan-mispricing", s.PlanMispricing)
	v1.POST("/analysis/risk", s.ScanRisks)

	v1.POST("/customers/:customer_id/score", s.ScoreCustomer)
	v1.GET("/customers/:customer_id/score", s.GetCustomerScore)
	v1.GET("/scores", s.ListScores)

	v1.POST("/experiments", s.CreateExperiment)
	v1.GET("/experiments/active", s.ActiveExperiments)
	v1.GET("/experiments/history", s.ExperimentHistory)
	v1.GET("/experiments/summary", s.ExperimentSummary)
	v1.GET("/experiments/learnings", s.ExperimentLearnings)
	v1.POST("/experiments/:id/start", s.StartExperiment)
	v1.POST("/experiments/:id/result", s.RecordExperimentResult)
	v1.GET("/experiments/:id/analysis", s.AnalyzeExperiment)
}
