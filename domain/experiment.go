package domain

import (
	"time"

	"gorm.io/datatypes"
)

// CREATE TABLE public.ab_experiments (
//     id                  BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
//     name                TEXT NOT NULL,
//     description         TEXT,
//     variants            JSONB NOT NULL,
//     success_metric      TEXT NOT NULL DEFAULT 'conversion',
//     target_sample_size  INTEGER NOT NULL DEFAULT 100,
//     status              TEXT NOT NULL DEFAULT 'draft',
//     created_by          BIGINT,
//     start_date          TIMESTAMPTZ,
//     end_date            TIMESTAMPTZ,
//     created_at          TIMESTAMPTZ DEFAULT NOW(),
//     updated_at          TIMESTAMPTZ DEFAULT NOW()
// );

type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusActive    ExperimentStatus = "active"
	StatusCompleted ExperimentStatus = "completed"
)

func (s ExperimentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusCompleted:
		return true
	}
	return false
}

const (
	DefaultSuccessMetric    = "conversion"
	DefaultTargetSampleSize = 100
	MinVariants             = 2
)

// Variant is one arm of an experiment. The first variant of an experiment is
// its control.
type Variant struct {
	Name   string  `json:"name" validate:"required"`
	Weight float64 `json:"weight"`
}

// EffectiveWeight returns the allocation weight, treating missing, zero and
// negative weights as 1.
func (v Variant) EffectiveWeight() float64 {
	if v.Weight > 0 {
		return v.Weight
	}
	return 1
}

type Experiment struct {
	ID               uint64                       `gorm:"primaryKey;column:id;autoIncrement" json:"id"`
	Name             string                       `gorm:"column:name;type:text;not null" json:"name"`
	Description      string                       `gorm:"column:description;type:text" json:"description"`
	Variants         datatypes.JSONSlice[Variant] `gorm:"column:variants;type:jsonb;not null" json:"variants"`
	SuccessMetric    string                       `gorm:"column:success_metric;type:text;not null;default:conversion" json:"success_metric"`
	TargetSampleSize int                          `gorm:"column:target_sample_size;not null;default:100" json:"target_sample_size"`
	Status           ExperimentStatus             `gorm:"column:status;type:text;not null;default:draft;index" json:"status"`
	CreatedBy        *uint64                      `gorm:"column:created_by" json:"created_by"`
	StartDate        *time.Time                   `gorm:"column:start_date" json:"start_date"`
	EndDate          *time.Time                   `gorm:"column:end_date" json:"end_date"`
	CreatedAt        time.Time                    `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                    `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Experiment) TableName() string {
	return "ab_experiments"
}

// Control returns the variant every treatment is compared against.
func (e Experiment) Control() (Variant, bool) {
	if len(e.Variants) == 0 {
		return Variant{}, false
	}
	return e.Variants[0], true
}

func (e Experiment) VariantNames() []string {
	names := make([]string, 0, len(e.Variants))
	for _, v := range e.Variants {
		names = append(names, v.Name)
	}
	return names
}

// ExperimentCounts is an experiment row joined with its assignment totals.
type ExperimentCounts struct {
	Experiment
	TotalAssignments int64 `gorm:"column:total_assignments"`
	TotalConversions int64 `gorm:"column:total_conversions"`
}

// ExperimentSummary is the list/dashboard view of an experiment.
type ExperimentSummary struct {
	ID                    uint64           `json:"id"`
	Name                  string           `json:"name"`
	Description           string           `json:"description"`
	Status                ExperimentStatus `json:"status"`
	StartDate             *time.Time       `json:"startDate"`
	EndDate               *time.Time       `json:"endDate"`
	TargetSampleSize      int              `json:"targetSampleSize"`
	SuccessMetric         string           `json:"successMetric"`
	Variants              []Variant        `json:"variants"`
	TotalAssignments      int64            `json:"totalAssignments"`
	TotalConversions      int64            `json:"totalConversions"`
	OverallConversionRate float64          `json:"overallConversionRate"`
	CreatedAt             time.Time        `json:"createdAt"`
}

type ExperimentOverview struct {
	ID               uint64           `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	Status           ExperimentStatus `json:"status"`
	StartDate        *time.Time       `json:"startDate"`
	EndDate          *time.Time       `json:"endDate"`
	TargetSampleSize int              `json:"targetSampleSize"`
	SuccessMetric    string           `json:"successMetric"`
	Variants         []Variant        `json:"variants"`
}

type ExperimentResults struct {
	Experiment              ExperimentOverview `json:"experiment"`
	TotalParticipants       int                `json:"totalParticipants"`
	VariantStats            []VariantStats     `json:"variantStats"`
	StatisticalSignificance SignificanceResult `json:"statisticalSignificance"`
	Recommendation          string             `json:"recommendation"`
}

type DashboardCounts struct {
	TotalExperiments      int     `json:"totalExperiments"`
	ActiveCount           int     `json:"activeCount"`
	CompletedCount        int     `json:"completedCount"`
	DraftCount            int     `json:"draftCount"`
	TotalParticipants     int64   `json:"totalParticipants"`
	TotalConversions      int64   `json:"totalConversions"`
	OverallConversionRate float64 `json:"overallConversionRate"`
}

type Dashboard struct {
	Summary           DashboardCounts     `json:"summary"`
	ActiveExperiments []ExperimentResults `json:"activeExperiments"`
	RecentCompleted   []ExperimentSummary `json:"recentCompleted"`
	Drafts            []ExperimentSummary `json:"drafts"`
}
