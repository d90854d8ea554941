package analysis

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/moneyradar/moneyradar/internal/alert/domain"
	catalogdomain "github.com/moneyradar/moneyradar/internal/catalog/domain"
	"github.com/moneyradar/moneyradar/internal/config"
	obsmetrics "github.com/moneyradar/moneyradar/internal/observability/metrics"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	usagedomain "github.com/moneyradar/moneyradar/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MismatchType classifies how well a subscription's plan fits its usage.
type MismatchType string

const (
	MismatchUnderpriced MismatchType = "underpriced"
	MismatchOverpriced  MismatchType = "overpriced"
	MismatchAppropriate MismatchType = "appropriate"
	MismatchNoData      MismatchType = "no_data"
)

// planMispricingCutoff is the stricter utilization bar for the plan-wide
// scan: individual nudges fire at the configured threshold, systemic plan
// redesign signals only above this.
const planMispricingCutoff = 0.8

// SubscriptionMismatch is one subscription's plan-fit assessment.
type SubscriptionMismatch struct {
	SubscriptionID snowflake.ID       `json:"subscription_id"`
	CustomerID     string             `json:"customer_id"`
	PlanName       string             `json:"plan_name,omitempty"`
	MRR            float64            `json:"mrr"`
	Utilization    float64            `json:"utilization"`
	UsageDetails   map[string]float64 `json:"usage_details,omitempty"`
	Type           MismatchType       `json:"type"`
	Recommendation string             `json:"recommendation,omitempty"`
}

// MismatchReport groups assessed subscriptions into actionable buckets.
// Subscriptions with no limited usage are excluded from both lists.
type MismatchReport struct {
	UpgradeCandidates   []SubscriptionMismatch `json:"upgrade_candidates"`
	OverpricedCustomers []SubscriptionMismatch `json:"overpriced_customers"`
}

// PlanMispricing flags a plan where the majority of subscribers run close to
// its limits.
type PlanMispricing struct {
	PlanID           snowflake.ID `json:"plan_id"`
	PlanName         string       `json:"plan_name"`
	HighUsagePercent float64      `json:"high_usage_percentage"`
	TotalCustomers   int          `json:"total_customers"`
	Recommendation   string       `json:"recommendation"`
}

// MismatchDetectorParams wires the detector's collaborators.
type MismatchDetectorParams struct {
	fx.In

	Log        *zap.Logger
	Thresholds config.Thresholds
	SubSvc     subscriptiondomain.Service
	CatalogSvc catalogdomain.Service
	UsageSvc   usagedomain.Service
	AlertSvc   alertdomain.Service
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

// MismatchDetector classifies active subscriptions as underpriced,
// overpriced or appropriate from their billing-period utilization.
type MismatchDetector struct {
	log        *zap.Logger
	threshold  float64
	subSvc     subscriptiondomain.Service
	catalogSvc catalogdomain.Service
	usageSvc   usagedomain.Service
	alertSvc   alertdomain.Service
	metrics    *obsmetrics.Metrics
}

func NewMismatchDetector(p MismatchDetectorParams) *MismatchDetector {
	return &MismatchDetector{
		log:        p.Log.Named("analysis.mismatch"),
		threshold:  p.Thresholds.UsageMismatchThreshold,
		subSvc:     p.SubSvc,
		catalogSvc: p.CatalogSvc,
		usageSvc:   p.UsageSvc,
		alertSvc:   p.AlertSvc,
		metrics:    p.Metrics,
	}
}

// AnalyzeAll assesses every active subscription and opens mismatch alerts
// through the dedup gate.
func (d *MismatchDetector) AnalyzeAll(ctx context.Context) (*MismatchReport, error) {
	subs, err := d.subSvc.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	report := &MismatchReport{
		UpgradeCandidates:   []SubscriptionMismatch{},
		OverpricedCustomers: []SubscriptionMismatch{},
	}

	for _, sub := range subs {
		mismatch, err := d.analyzeSubscription(ctx, sub)
		if err != nil {
			return nil, err
		}
		switch mismatch.Type {
		case MismatchUnderpriced:
			report.UpgradeCandidates = append(report.UpgradeCandidates, mismatch)
		case MismatchOverpriced:
			report.OverpricedCustomers = append(report.OverpricedCustomers, mismatch)
		}
	}

	if d.metrics != nil {
		d.metrics.ScanRun("mismatch")
	}
	return report, nil
}

func (d *MismatchDetector) analyzeSubscription(ctx context.Context, sub *subscriptiondomain.Subscription) (SubscriptionMismatch, error) {
	ratios, err := d.usageRatios(ctx, sub)
	if err != nil {
		return SubscriptionMismatch{}, err
	}

	result := SubscriptionMismatch{
		SubscriptionID: sub.ID,
		CustomerID:     sub.CustomerID,
		MRR:            sub.MRR,
		UsageDetails:   ratios,
	}

	plan, err := d.catalogSvc.GetPlan(ctx, sub.PlanID)
	if err == nil && plan != nil {
		result.PlanName = plan.Name
	}

	if len(ratios) == 0 {
		result.Type = MismatchNoData
		return result, nil
	}

	utilization := MeanUtilization(ratios)
	result.Utilization = utilization

	switch {
	case utilization > d.threshold:
		result.Type = MismatchUnderpriced
		result.Recommendation = d.suggestUpgrade(ctx, plan)

		_, _, err := d.alertSvc.Open(ctx, alertdomain.OpenAlertRequest{
			Severity:       alertdomain.SeverityWarning,
			SubscriptionID: &sub.ID,
			CustomerID:     sub.CustomerID,
			Title:          fmt.Sprintf("Upgrade Candidate: %s", sub.CustomerID),
			Description:    fmt.Sprintf("Customer is using %.1f%% of plan limits", utilization*100),
			Context: alertdomain.UsageMismatchContext{
				Utilization: utilization,
				Metrics:     ratios,
				High:        true,
			},
			RecommendedAction: result.Recommendation,
		})
		if err != nil {
			return SubscriptionMismatch{}, err
		}

	case utilization < (1 - d.threshold):
		result.Type = MismatchOverpriced
		result.Recommendation = "Customer may be overpaying"

		_, _, err := d.alertSvc.Open(ctx, alertdomain.OpenAlertRequest{
			Severity:       alertdomain.SeverityInformational,
			SubscriptionID: &sub.ID,
			CustomerID:     sub.CustomerID,
			Title:          fmt.Sprintf("Low Utilization: %s", sub.CustomerID),
			Description:    fmt.Sprintf("Customer is only using %.1f%% of plan limits", utilization*100),
			Context: alertdomain.UsageMismatchContext{
				Utilization: utilization,
				Metrics:     ratios,
				High:        false,
			},
			RecommendedAction: "Consider offering a more appropriate plan",
		})
		if err != nil {
			return SubscriptionMismatch{}, err
		}

	default:
		result.Type = MismatchAppropriate
	}

	return result, nil
}

// usageRatios sums the current billing period's quantities per metric and
// divides by the plan limit snapshot. Metrics without a positive limit are
// left out entirely.
func (d *MismatchDetector) usageRatios(ctx context.Context, sub *subscriptiondomain.Subscription) (map[string]float64, error) {
	summary, err := d.usageSvc.Summary(ctx, sub.ID, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd)
	if err != nil {
		return nil, err
	}

	ratios := make(map[string]float64)
	for metric, entry := range summary {
		if ratio, ok := UtilizationRatio(entry.Total, entry.Limit); ok {
			ratios[metric] = ratio
		}
	}
	return ratios, nil
}

func (d *MismatchDetector) suggestUpgrade(ctx context.Context, current *catalogdomain.Plan) string {
	if current == nil {
		return "No higher tier available - consider custom pricing"
	}

	next, err := d.catalogSvc.NextTier(ctx, current)
	if err != nil || next == nil {
		return "No higher tier available - consider custom pricing"
	}

	increase := next.PriceMonthly - current.PriceMonthly
	return fmt.Sprintf("Upgrade to %s ($%.2f/mo) for $%.2f additional MRR", next.Name, next.PriceMonthly, increase)
}

// DetectPlanMispricing scans each active plan for a majority of subscribers
// running above the stricter plan-wide utilization bar.
func (d *MismatchDetector) DetectPlanMispricing(ctx context.Context) ([]PlanMispricing, error) {
	plans, err := d.catalogSvc.ListActivePlans(ctx)
	if err != nil {
		return nil, err
	}

	results := []PlanMispricing{}
	for _, plan := range plans {
		subs, err := d.subSvc.ListActiveByPlan(ctx, plan.ID)
		if err != nil {
			return nil, err
		}
		if len(subs) == 0 {
			continue
		}

		highUsage := 0
		for _, sub := range subs {
			ratios, err := d.usageRatios(ctx, sub)
			if err != nil {
				return nil, err
			}
			if len(ratios) == 0 {
				continue
			}
			if MeanUtilization(ratios) > planMispricingCutoff {
				highUsage++
			}
		}

		fraction := float64(highUsage) / float64(len(subs))
		if fraction > 0.5 {
			results = append(results, PlanMispricing{
				PlanID:           plan.ID,
				PlanName:         plan.Name,
				HighUsagePercent: fraction * 100,
				TotalCustomers:   len(subs),
				Recommendation:   "Consider increasing limits or price for this plan",
			})
		}
	}

	if d.metrics != nil {
		d.metrics.ScanRun("plan_mispricing")
	}
	return results, nil
}
