// Package domain contains the pricing-experiment model. The tracker exists
// so pricing changes leave a written record instead of folklore.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ExperimentStatus is the lifecycle state of an experiment.
type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusRunning   ExperimentStatus = "running"
	StatusCompleted ExperimentStatus = "completed"
	StatusCanceled  ExperimentStatus = "canceled"
)

// Experiment records one pricing or packaging change and its outcome.
type Experiment struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name              string            `gorm:"type:text;not null" json:"name"`
	Hypothesis        string            `gorm:"type:text;not null" json:"hypothesis"`
	ChangeDescription string            `gorm:"type:text" json:"change_description"`
	MetricTracked     string            `gorm:"type:text" json:"metric_tracked"`
	AffectedSegment   datatypes.JSONMap `gorm:"type:jsonb" json:"affected_segment,omitempty"`
	ControlGroupSize  int               `gorm:"not null;default:0" json:"control_group_size"`
	VariantGroupSize  int               `gorm:"not null;default:0" json:"variant_group_size"`
	BaselineValue     *float64          `gorm:"" json:"baseline_value,omitempty"`
	TargetValue       *float64          `gorm:"" json:"target_value,omitempty"`
	ActualValue       *float64          `gorm:"" json:"actual_value,omitempty"`
	Outcome           string            `gorm:"type:text" json:"outcome"`
	Status            ExperimentStatus  `gorm:"type:text;not null;index" json:"status"`
	StartedAt         *time.Time        `gorm:"" json:"started_at,omitempty"`
	EndedAt           *time.Time        `gorm:"" json:"ended_at,omitempty"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Experiment) TableName() string { return "experiments" }
