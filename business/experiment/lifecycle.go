package experiment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"abExperiments/domain"
	"abExperiments/pkg/logger"
	"abExperiments/pkg/metrics"

	"github.com/go-playground/validator/v10"
)

type CreateExperimentInput struct {
	Name             string `validate:"required"`
	Description      string
	Variants         []domain.Variant `validate:"min=2,unique=Name,dive"`
	SuccessMetric    string
	TargetSampleSize int `validate:"gte=0"`
	CreatedBy        *uint64
}

func (s *ExperimentService) CreateExperiment(ctx context.Context, input CreateExperimentInput) (*domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		logger.ErrorContext(ctx, "context error when create experiment")
		return nil, fmt.Errorf("context error: %w", err)
	}

	input.Name = strings.TrimSpace(input.Name)
	if err := s.validate.Struct(&input); err != nil {
		logger.ErrorContext(ctx, "Invalid experiment data", "error", err)
		return nil, validationError(err)
	}

	successMetric := input.SuccessMetric
	if successMetric == "" {
		successMetric = domain.DefaultSuccessMetric
	}
	targetSampleSize := input.TargetSampleSize
	if targetSampleSize == 0 {
		targetSampleSize = domain.DefaultTargetSampleSize
	}

	experiment := &domain.Experiment{
		Name:             input.Name,
		Description:      input.Description,
		Variants:         input.Variants,
		SuccessMetric:    successMetric,
		TargetSampleSize: targetSampleSize,
		Status:           domain.StatusDraft,
		CreatedBy:        input.CreatedBy,
	}

	if err := s.experimentRepo.Create(ctx, experiment); err != nil {
		logger.ErrorContext(ctx, "failed to create new experiment", "error", err)
		return nil, fmt.Errorf("failed to create experiment: %w", err)
	}

	logger.InfoContext(ctx, "experiment created",
		"experiment_id", experiment.ID,
		"variants", strings.Join(experiment.VariantNames(), ","),
	)

	return experiment, nil
}

func (s *ExperimentService) GetExperiment(ctx context.Context, id uint64) (domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Experiment{}, fmt.Errorf("context error: %w", err)
	}

	return s.experimentRepo.FindByID(ctx, id)
}

// StartExperiment moves a draft (or already active) experiment to active.
// Completed experiments cannot be restarted.
func (s *ExperimentService) StartExperiment(ctx context.Context, id uint64) (domain.Experiment, error) {
	return s.transition(ctx, id,
		[]domain.ExperimentStatus{domain.StatusDraft, domain.StatusActive},
		domain.StatusActive,
	)
}

// CompleteExperiment moves an experiment in any status to completed.
func (s *ExperimentService) CompleteExperiment(ctx context.Context, id uint64) (domain.Experiment, error) {
	return s.transition(ctx, id, nil, domain.StatusCompleted)
}

func (s *ExperimentService) transition(
	ctx context.Context,
	id uint64,
	from []domain.ExperimentStatus,
	to domain.ExperimentStatus,
) (domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Experiment{}, fmt.Errorf("context error: %w", err)
	}

	current, err := s.experimentRepo.FindByID(ctx, id)
	if err != nil {
		logger.ErrorContext(ctx, "experiment not found", "experiment_id", id, "error", err)
		return domain.Experiment{}, err
	}

	if len(from) > 0 && !containsStatus(from, current.Status) {
		return domain.Experiment{}, fmt.Errorf("%w: cannot move %s experiment to %s",
			domain.ErrInvalidTransition, current.Status, to)
	}

	updated, err := s.experimentRepo.Transition(ctx, id, from, to, s.cfg.Now())
	if err != nil {
		logger.ErrorContext(ctx, "failed to update experiment status", "experiment_id", id, "error", err)
		return domain.Experiment{}, err
	}

	metrics.ExperimentTransitionsTotal.WithLabelValues(string(to)).Inc()
	logger.InfoContext(ctx, "experiment status changed",
		"experiment_id", id,
		"from", current.Status,
		"to", to,
	)

	return updated, nil
}

// DeleteExperiment removes a draft experiment and its assignments. It
// reports false, without error, when nothing was deleted.
func (s *ExperimentService) DeleteExperiment(ctx context.Context, id uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	deleted, err := s.experimentRepo.DeleteDraft(ctx, id)
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete experiment", "experiment_id", id, "error", err)
		return false, fmt.Errorf("failed to delete experiment: %w", err)
	}

	if deleted {
		logger.InfoContext(ctx, "experiment deleted", "experiment_id", id)
	}

	return deleted, nil
}

func containsStatus(list []domain.ExperimentStatus, s domain.ExperimentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// validationError rewrites validator output into a client-facing message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch {
		case fe.StructField() == "Name" && strings.Contains(fe.Namespace(), "Variants["):
			msgs = append(msgs, "variant name is required")
		case fe.StructField() == "Name":
			msgs = append(msgs, "name is required")
		case fe.StructField() == "Variants" && fe.Tag() == "min":
			msgs = append(msgs, "at least "+strconv.Itoa(domain.MinVariants)+" variants are required")
		case fe.StructField() == "Variants" && fe.Tag() == "unique":
			msgs = append(msgs, "variant names must be unique")
		case fe.StructField() == "TargetSampleSize":
			msgs = append(msgs, "target_sample_size must not be negative")
		default:
			msgs = append(msgs, fe.Error())
		}
	}

	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, "; "))
}
