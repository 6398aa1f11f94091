package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"abExperiments/business/experiment"
	"abExperiments/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssignmentRepository struct {
	DB *gorm.DB
}

var _ experiment.AssignmentRepository = (*AssignmentRepository)(nil)

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{DB: db}
}

func (r *AssignmentRepository) identity(ctx context.Context, key domain.AssignmentKey) *gorm.DB {
	return r.DB.WithContext(ctx).
		Where("experiment_id = ? AND user_id = ? AND user_type = ?", key.ExperimentID, key.UserID, key.UserType)
}

func (r *AssignmentRepository) GetAssignment(ctx context.Context, key domain.AssignmentKey) (*domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var a domain.Assignment
	err := r.identity(ctx, key).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query assignment: %w", err)
	}

	return &a, nil
}

// CreateAssignment inserts the binding unless one exists. On conflict the
// stored row is returned with created=false, so concurrent first calls
// agree on a single variant.
func (r *AssignmentRepository) CreateAssignment(ctx context.Context, key domain.AssignmentKey, variant string) (domain.Assignment, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Assignment{}, false, fmt.Errorf("context error: %w", err)
	}

	a := domain.Assignment{
		ExperimentID: key.ExperimentID,
		UserID:       key.UserID,
		UserType:     key.UserType,
		Variant:      variant,
	}

	result := r.DB.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "experiment_id"}, {Name: "user_id"}, {Name: "user_type"}},
			DoNothing: true,
		},
	).Create(&a)
	if result.Error != nil {
		return domain.Assignment{}, false, fmt.Errorf("failed to insert assignment: %w", result.Error)
	}

	if result.RowsAffected == 1 {
		return a, true, nil
	}

	existing, err := r.GetAssignment(ctx, key)
	if err != nil {
		return domain.Assignment{}, false, err
	}
	if existing == nil {
		return domain.Assignment{}, false, fmt.Errorf("assignment vanished after conflict")
	}

	return *existing, false, nil
}

func (r *AssignmentRepository) RecordConversion(
	ctx context.Context,
	key domain.AssignmentKey,
	conv domain.Conversion,
	at time.Time,
) (*domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	// COALESCE keeps previously stored metrics when the caller omits them
	updateData := map[string]interface{}{
		"converted":        true,
		"converted_at":     gorm.Expr("COALESCE(converted_at, ?)", at),
		"engagement_score": gorm.Expr("COALESCE(?, engagement_score)", nullable(conv.EngagementScore)),
		"time_to_action":   gorm.Expr("COALESCE(?, time_to_action)", nullable(conv.TimeToAction)),
	}

	result := r.identity(ctx, key).Model(&domain.Assignment{}).Updates(updateData)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to record conversion: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	return r.GetAssignment(ctx, key)
}

func (r *AssignmentRepository) AggregateByVariant(ctx context.Context, experimentID uint64) ([]domain.VariantAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var rows []domain.VariantAggregate
	err := r.DB.WithContext(ctx).
		Model(&domain.Assignment{}).
		Select(`variant,
			COUNT(*) AS total_users,
			COUNT(*) FILTER (WHERE converted = TRUE) AS conversions,
			AVG(engagement_score) AS avg_engagement,
			AVG(time_to_action) AS avg_time_to_action`).
		Where("experiment_id = ?", experimentID).
		Group("variant").
		Order("variant").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate assignments: %w", err)
	}

	return rows, nil
}

// nullable turns a nil pointer into an untyped SQL NULL.
func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
