package service

import (
	"context"
	"time"

	"github.com/moneyradar/moneyradar/internal/experiment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ReporterParams struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type reporter struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewReporter(p ReporterParams) domain.Reporter {
	return &reporter{
		db:  p.DB,
		log: p.Log.Named("experiment.reporter"),
	}
}

func (r *reporter) Summary(ctx context.Context) (*domain.SummaryReport, error) {
	var experiments []*domain.Experiment
	if err := r.db.WithContext(ctx).Find(&experiments).Error; err != nil {
		return nil, err
	}

	report := domain.SummaryReport{
		TotalExperiments: len(experiments),
		ByStatus:         map[string]int{},
	}

	for _, exp := range experiments {
		report.ByStatus[string(exp.Status)]++

		if exp.Status != domain.StatusCompleted || exp.ActualValue == nil || exp.TargetValue == nil {
			continue
		}
		var baseline float64
		if exp.BaselineValue != nil {
			baseline = *exp.BaselineValue
		}
		if (*exp.TargetValue > baseline && *exp.ActualValue >= *exp.TargetValue) ||
			(*exp.TargetValue < baseline && *exp.ActualValue <= *exp.TargetValue) {
			report.SuccessfulExperiments++
		}
	}

	if report.TotalExperiments > 0 {
		report.SuccessRate = float64(report.SuccessfulExperiments) / float64(report.TotalExperiments) * 100
	}
	return &report, nil
}

func (r *reporter) Learnings(ctx context.Context, metric string) ([]domain.Learning, error) {
	var experiments []*domain.Experiment
	err := r.db.WithContext(ctx).
		Where("metric_tracked = ? AND status = ?", metric, domain.StatusCompleted).
		Order("ended_at desc").
		Find(&experiments).Error
	if err != nil {
		return nil, err
	}

	learnings := []domain.Learning{}
	for _, exp := range experiments {
		if exp.BaselineValue == nil || *exp.BaselineValue == 0 || exp.ActualValue == nil {
			continue
		}
		learning := domain.Learning{
			Name:               exp.Name,
			Hypothesis:         exp.Hypothesis,
			Change:             exp.ChangeDescription,
			ImprovementPercent: (*exp.ActualValue - *exp.BaselineValue) / *exp.BaselineValue * 100,
			Outcome:            exp.Outcome,
		}
		if exp.EndedAt != nil {
			learning.EndedAt = exp.EndedAt.Format(time.RFC3339)
		}
		learnings = append(learnings, learning)
	}
	return learnings, nil
}
