package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"abExperiments/business/experiment"
	"abExperiments/domain"

	"gorm.io/gorm"
)

type ExperimentRepository struct {
	DB *gorm.DB
}

var _ experiment.ExperimentRepository = (*ExperimentRepository)(nil)

func NewExperimentRepository(db *gorm.DB) *ExperimentRepository {
	return &ExperimentRepository{
		DB: db,
	}
}

func (r *ExperimentRepository) Create(ctx context.Context, e *domain.Experiment) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if err := r.DB.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to create experiment: %w", err)
	}

	return nil
}

func (r *ExperimentRepository) FindByID(ctx context.Context, id uint64) (domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Experiment{}, fmt.Errorf("context error: %w", err)
	}

	var e domain.Experiment

	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Experiment{}, domain.ErrExperimentNotFound
		}
		return domain.Experiment{}, fmt.Errorf("failed to find experiment: %w", err)
	}

	return e, nil
}

func (r *ExperimentRepository) FindAllWithCounts(ctx context.Context, status domain.ExperimentStatus) ([]domain.ExperimentCounts, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := r.DB.WithContext(ctx).
		Table("ab_experiments AS e").
		Select(`e.*,
			COUNT(a.id) AS total_assignments,
			COUNT(a.id) FILTER (WHERE a.converted = TRUE) AS total_conversions`).
		Joins("LEFT JOIN ab_experiment_assignments a ON a.experiment_id = e.id")

	if status != "" {
		q = q.Where("e.status = ?", status)
	}

	var rows []domain.ExperimentCounts
	err := q.Group("e.id").Order("e.created_at DESC, e.id DESC").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find experiments: %w", err)
	}

	return rows, nil
}

func (r *ExperimentRepository) Transition(
	ctx context.Context,
	id uint64,
	from []domain.ExperimentStatus,
	to domain.ExperimentStatus,
	at time.Time,
) (domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Experiment{}, fmt.Errorf("context error: %w", err)
	}

	updateData := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case domain.StatusActive:
		updateData["start_date"] = at
	case domain.StatusCompleted:
		updateData["end_date"] = at
	}

	// guarded update: the status check and the write happen in one statement
	q := r.DB.WithContext(ctx).Model(&domain.Experiment{}).Where("id = ?", id)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}

	result := q.Updates(updateData)
	if result.Error != nil {
		return domain.Experiment{}, fmt.Errorf("failed to update experiment status: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return domain.Experiment{}, err
		}
		return domain.Experiment{}, domain.ErrInvalidTransition
	}

	return r.FindByID(ctx, id)
}

func (r *ExperimentRepository) DeleteDraft(ctx context.Context, id uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	// assignments go with it through ON DELETE CASCADE
	result := r.DB.WithContext(ctx).
		Where("id = ? AND status = ?", id, domain.StatusDraft).
		Delete(&domain.Experiment{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete experiment: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}
