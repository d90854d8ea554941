package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	alertdomain "github.com/moneyradar/moneyradar/internal/alert/domain"
	"github.com/moneyradar/moneyradar/internal/clock"
	"github.com/moneyradar/moneyradar/internal/config"
	obsmetrics "github.com/moneyradar/moneyradar/internal/observability/metrics"
	revenuedomain "github.com/moneyradar/moneyradar/internal/revenue/domain"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	usagedomain "github.com/moneyradar/moneyradar/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// decliningUsageCutoff marks the trend below which a customer is considered
// at risk. A trend of -0.2 means usage halved-pace: the second half of the
// window averages 20% below the first.
const decliningUsageCutoff = -0.2

// RiskReport buckets newly opened alerts by severity. Findings suppressed by
// the dedup gate do not appear.
type RiskReport struct {
	Critical      []*alertdomain.Alert `json:"critical"`
	Warning       []*alertdomain.Alert `json:"warning"`
	Informational []*alertdomain.Alert `json:"informational"`
}

func (r *RiskReport) add(alert *alertdomain.Alert) {
	switch alert.Severity {
	case alertdomain.SeverityCritical:
		r.Critical = append(r.Critical, alert)
	case alertdomain.SeverityWarning:
		r.Warning = append(r.Warning, alert)
	default:
		r.Informational = append(r.Informational, alert)
	}
}

// RiskDetectorParams wires the detector's collaborators.
type RiskDetectorParams struct {
	fx.In

	Log        *zap.Logger
	Thresholds config.Thresholds
	Clock      clock.Clock
	SubSvc     subscriptiondomain.Service
	UsageSvc   usagedomain.Service
	RevenueSvc revenuedomain.Service
	AlertSvc   alertdomain.Service
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

// RiskDetector runs the early-warning scans over usage, the revenue ledger
// and the snapshot history.
type RiskDetector struct {
	log        *zap.Logger
	thresholds config.Thresholds
	clock      clock.Clock
	subSvc     subscriptiondomain.Service
	usageSvc   usagedomain.Service
	revenueSvc revenuedomain.Service
	alertSvc   alertdomain.Service
	metrics    *obsmetrics.Metrics
}

func NewRiskDetector(p RiskDetectorParams) *RiskDetector {
	return &RiskDetector{
		log:        p.Log.Named("analysis.risk"),
		thresholds: p.Thresholds,
		clock:      p.Clock,
		subSvc:     p.SubSvc,
		usageSvc:   p.UsageSvc,
		revenueSvc: p.RevenueSvc,
		alertSvc:   p.AlertSvc,
		metrics:    p.Metrics,
	}
}

// ScanAllRisks runs every detection pass and returns the newly created
// alerts grouped by severity. Running it twice back to back yields an empty
// report the second time.
func (d *RiskDetector) ScanAllRisks(ctx context.Context) (*RiskReport, error) {
	report := &RiskReport{
		Critical:      []*alertdomain.Alert{},
		Warning:       []*alertdomain.Alert{},
		Informational: []*alertdomain.Alert{},
	}

	passes := []func(context.Context) ([]*alertdomain.Alert, error){
		d.DetectDecliningUsage,
		d.DetectPaymentIssues,
		d.DetectDowngrades,
		d.DetectMRRDecline,
	}
	for _, pass := range passes {
		alerts, err := pass(ctx)
		if err != nil {
			return nil, err
		}
		for _, alert := range alerts {
			report.add(alert)
		}
	}

	if d.metrics != nil {
		d.metrics.ScanRun("risk")
	}
	return report, nil
}

// DetectDecliningUsage flags active subscriptions whose usage trend over the
// lookback window fell below the decline cutoff.
func (d *RiskDetector) DetectDecliningUsage(ctx context.Context) ([]*alertdomain.Alert, error) {
	lookback := d.thresholds.UsageDeclineLookbackDays
	cutoff := d.clock.Now().AddDate(0, 0, -lookback)

	subs, err := d.subSvc.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	created := []*alertdomain.Alert{}
	for _, sub := range subs {
		records, err := d.usageSvc.RecordsSince(ctx, sub.ID, cutoff)
		if err != nil {
			return nil, err
		}
		trend := Trend(quantities(records))
		if trend >= decliningUsageCutoff {
			continue
		}

		alert, isNew, err := d.alertSvc.Open(ctx, alertdomain.OpenAlertRequest{
			Severity:       alertdomain.SeverityWarning,
			SubscriptionID: &sub.ID,
			CustomerID:     sub.CustomerID,
			Title:          fmt.Sprintf("Declining Usage: %s", sub.CustomerID),
			Description:    fmt.Sprintf("Usage declined %.1f%% over %d days", math.Abs(trend)*100, lookback),
			Context: alertdomain.DecliningUsageContext{
				Trend:        trend,
				LookbackDays: lookback,
			},
			RecommendedAction: "Reach out to understand usage decline",
		})
		if err != nil {
			return nil, err
		}
		if isNew {
			created = append(created, alert)
		}
	}
	return created, nil
}

// DetectPaymentIssues walks recent payment_failed ledger rows. Three or more
// recorded attempts escalate the alert to critical.
func (d *RiskDetector) DetectPaymentIssues(ctx context.Context) ([]*alertdomain.Alert, error) {
	cutoff := d.clock.Now().AddDate(0, 0, -d.thresholds.PaymentFailureLookbackDays)

	events, err := d.revenueSvc.EventsSince(ctx, revenuedomain.EventPaymentFailed, cutoff)
	if err != nil {
		return nil, err
	}

	created := []*alertdomain.Alert{}
	for _, event := range events {
		if event.SubscriptionID == nil {
			continue
		}
		sub, err := d.subSvc.Get(ctx, *event.SubscriptionID)
		if err != nil {
			// A ledger row may outlive its subscription; skip, don't abort.
			if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
				continue
			}
			return nil, err
		}

		attempts := event.AttemptCount()
		severity := alertdomain.SeverityWarning
		if attempts >= 3 {
			severity = alertdomain.SeverityCritical
		}

		alert, isNew, err := d.alertSvc.Open(ctx, alertdomain.OpenAlertRequest{
			Severity:       severity,
			SubscriptionID: &sub.ID,
			CustomerID:     sub.CustomerID,
			Title:          fmt.Sprintf("Payment Issue: %s", sub.CustomerID),
			Description:    fmt.Sprintf("Payment failed (attempt %d)", attempts),
			Context: alertdomain.PaymentRetryContext{
				AttemptCount: attempts,
				Amount:       event.Amount,
			},
			RecommendedAction: "Contact customer about payment method",
		})
		if err != nil {
			return nil, err
		}
		if isNew {
			created = append(created, alert)
		}
	}
	return created, nil
}

// DetectDowngrades flags subscriptions downgraded within the lookback window.
func (d *RiskDetector) DetectDowngrades(ctx context.Context) ([]*alertdomain.Alert, error) {
	cutoff := d.clock.Now().AddDate(0, 0, -d.thresholds.DowngradeLookbackDays)

	events, err := d.revenueSvc.EventsSince(ctx, revenuedomain.EventSubscriptionDowngraded, cutoff)
	if err != nil {
		return nil, err
	}

	created := []*alertdomain.Alert{}
	for _, event := range events {
		if event.SubscriptionID == nil {
			continue
		}
		sub, err := d.subSvc.Get(ctx, *event.SubscriptionID)
		if err != nil {
			if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
				continue
			}
			return nil, err
		}

		alert, isNew, err := d.alertSvc.Open(ctx, alertdomain.OpenAlertRequest{
			Severity:       alertdomain.SeverityWarning,
			SubscriptionID: &sub.ID,
			CustomerID:     sub.CustomerID,
			Title:          fmt.Sprintf("Recent Downgrade: %s", sub.CustomerID),
			Description:    fmt.Sprintf("Plan downgraded, MRR decreased by $%.2f", math.Abs(event.MRRDelta)),
			Context: alertdomain.DowngradeContext{
				MRRDelta:   event.MRRDelta,
				OccurredAt: event.OccurredAt,
			},
			RecommendedAction: "Follow up to understand reason for downgrade",
		})
		if err != nil {
			return nil, err
		}
		if isNew {
			created = append(created, alert)
		}
	}
	return created, nil
}

// DetectMRRDecline compares the newest and oldest snapshots of the lookback
// window. The resulting alert is account-wide, so it carries an empty
// customer id and still flows through the dedup gate.
func (d *RiskDetector) DetectMRRDecline(ctx context.Context) ([]*alertdomain.Alert, error) {
	lookback := d.thresholds.MRRDeclineLookbackDays
	since := d.clock.Now().Add(-time.Duration(lookback) * 24 * time.Hour)

	snapshots, err := d.revenueSvc.RecentSnapshots(ctx, since, lookback)
	if err != nil {
		return nil, err
	}
	if len(snapshots) < 2 {
		return []*alertdomain.Alert{}, nil
	}

	latest := snapshots[0]
	earliest := snapshots[len(snapshots)-1]
	if earliest.TotalMRR == 0 {
		return []*alertdomain.Alert{}, nil
	}

	declinePercent := ((latest.TotalMRR - earliest.TotalMRR) / earliest.TotalMRR) * 100
	if declinePercent >= 0 {
		return []*alertdomain.Alert{}, nil
	}

	absDecline := math.Abs(declinePercent)
	var severity alertdomain.AlertSeverity
	switch {
	case absDecline > d.thresholds.MRRDeclineCriticalPercent:
		severity = alertdomain.SeverityCritical
	case absDecline > d.thresholds.MRRDeclineWarningPercent:
		severity = alertdomain.SeverityWarning
	default:
		return []*alertdomain.Alert{}, nil
	}

	alert, isNew, err := d.alertSvc.Open(ctx, alertdomain.OpenAlertRequest{
		Severity:    severity,
		Title:       "MRR Decline Alert",
		Description: fmt.Sprintf("MRR declined %.1f%% over %d days", absDecline, lookback),
		Context: alertdomain.MRRDeclineContext{
			DeclinePercent: declinePercent,
			CurrentMRR:     latest.TotalMRR,
			PreviousMRR:    earliest.TotalMRR,
			ChurnedMRR:     latest.ChurnedMRR,
			NewMRR:         latest.NewMRR,
			LookbackDays:   lookback,
		},
		RecommendedAction: "Review churn reasons and retention strategy",
	})
	if err != nil {
		return nil, err
	}
	if !isNew {
		return []*alertdomain.Alert{}, nil
	}
	return []*alertdomain.Alert{alert}, nil
}

func quantities(records []*usagedomain.UsageRecord) []float64 {
	out := make([]float64, 0, len(records))
	for _, r := range records {
		out = append(out, r.Quantity)
	}
	return out
}
