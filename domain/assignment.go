package domain

import "time"

// CREATE TABLE public.ab_experiment_assignments (
//     id                BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
//     experiment_id     BIGINT NOT NULL REFERENCES ab_experiments(id) ON DELETE CASCADE,
//     user_id           BIGINT NOT NULL,
//     user_type         TEXT NOT NULL,
//     variant           TEXT NOT NULL,
//     converted         BOOLEAN NOT NULL DEFAULT FALSE,
//     converted_at      TIMESTAMPTZ,
//     engagement_score  DOUBLE PRECISION,
//     time_to_action    DOUBLE PRECISION,
//     created_at        TIMESTAMPTZ DEFAULT NOW(),
//     UNIQUE (experiment_id, user_id, user_type)
// );

type Assignment struct {
	ID              uint64     `gorm:"primaryKey;column:id;autoIncrement" json:"id"`
	ExperimentID    uint64     `gorm:"column:experiment_id;not null;uniqueIndex:idx_ab_assignment_identity,priority:1" json:"experiment_id"`
	UserID          uint64     `gorm:"column:user_id;not null;uniqueIndex:idx_ab_assignment_identity,priority:2" json:"user_id"`
	UserType        string     `gorm:"column:user_type;type:text;not null;uniqueIndex:idx_ab_assignment_identity,priority:3" json:"user_type"`
	Variant         string     `gorm:"column:variant;type:text;not null" json:"variant"`
	Converted       bool       `gorm:"column:converted;not null;default:false" json:"converted"`
	ConvertedAt     *time.Time `gorm:"column:converted_at" json:"converted_at"`
	EngagementScore *float64   `gorm:"column:engagement_score" json:"engagement_score"`
	TimeToAction    *float64   `gorm:"column:time_to_action" json:"time_to_action"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`

	Experiment *Experiment `gorm:"foreignKey:ExperimentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Assignment) TableName() string {
	return "ab_experiment_assignments"
}

// AssignmentKey identifies one participant of one experiment.
type AssignmentKey struct {
	ExperimentID uint64
	UserID       uint64
	UserType     string
}

// Conversion carries the optional metrics attached to a conversion. Nil
// fields leave the stored value untouched.
type Conversion struct {
	EngagementScore *float64
	TimeToAction    *float64
}
