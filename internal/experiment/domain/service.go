package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateExperimentRequest struct {
	Name              string         `json:"name"`
	Hypothesis        string         `json:"hypothesis"`
	ChangeDescription string         `json:"change_description"`
	MetricTracked     string         `json:"metric_tracked"`
	AffectedSegment   map[string]any `json:"affected_segment"`
	BaselineValue     *float64       `json:"baseline_value,omitempty"`
	TargetValue       *float64       `json:"target_value,omitempty"`
}

type RecordResultRequest struct {
	ActualValue float64 `json:"actual_value"`
	Outcome     string  `json:"outcome"`
}

// Analysis is the read model comparing a running experiment against its
// baseline.
type Analysis struct {
	ExperimentID       snowflake.ID     `json:"experiment_id"`
	Name               string           `json:"name"`
	Status             ExperimentStatus `json:"status"`
	Metric             string           `json:"metric"`
	BaselineValue      float64          `json:"baseline_value"`
	CurrentValue       float64          `json:"current_value"`
	TargetValue        *float64         `json:"target_value,omitempty"`
	Improvement        float64          `json:"improvement"`
	ImprovementPercent float64          `json:"improvement_percent"`
	TargetMet          bool             `json:"target_met"`
	DaysRunning        int              `json:"days_running"`
}

// SummaryReport aggregates outcomes over every experiment ever run.
type SummaryReport struct {
	TotalExperiments      int            `json:"total_experiments"`
	ByStatus              map[string]int `json:"by_status"`
	SuccessfulExperiments int            `json:"successful_experiments"`
	SuccessRate           float64        `json:"success_rate"`
}

// Learning is one completed experiment's takeaway for a metric.
type Learning struct {
	Name               string  `json:"name"`
	Hypothesis         string  `json:"hypothesis"`
	Change             string  `json:"change"`
	ImprovementPercent float64 `json:"improvement_percent"`
	Outcome            string  `json:"outcome"`
	EndedAt            string  `json:"ended_at,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateExperimentRequest) (*Experiment, error)
	// Start moves a draft to running, computing the segment baseline when
	// the creator left it unset.
	Start(ctx context.Context, id snowflake.ID) (*Experiment, error)
	// RecordResult completes the experiment with its measured value.
	RecordResult(ctx context.Context, id snowflake.ID, req RecordResultRequest) (*Experiment, error)
	Analyze(ctx context.Context, id snowflake.ID) (*Analysis, error)
	Active(ctx context.Context) ([]*Experiment, error)
	// History lists completed experiments, newest first, optionally
	// filtered to one metric.
	History(ctx context.Context, metric string, limit int) ([]*Experiment, error)
}

type Reporter interface {
	Summary(ctx context.Context) (*SummaryReport, error)
	Learnings(ctx context.Context, metric string) ([]Learning, error)
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidHypothesis  = errors.New("invalid_hypothesis")
	ErrExperimentNotFound = errors.New("experiment_not_found")
	ErrNotDraft           = errors.New("experiment_not_draft")
	ErrNotStarted         = errors.New("experiment_not_started")
)
