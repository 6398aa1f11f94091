package experiment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"abExperiments/domain"
	"abExperiments/pkg/logger"
	"abExperiments/pkg/metrics"
)

// AssignUser returns the participant's variant, binding one on first call.
// A bound user is never re-bucketed: the lookup below is the fast path and
// the store's unique constraint settles concurrent first calls.
func (s *ExperimentService) AssignUser(ctx context.Context, key domain.AssignmentKey) (domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Assignment{}, fmt.Errorf("context error: %w", err)
	}
	if key.UserID == 0 {
		return domain.Assignment{}, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	key = s.normalizeKey(key)

	// 1) existing binding
	existing, err := s.assignmentRepo.GetAssignment(ctx, key)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load assignment", "error", err)
		return domain.Assignment{}, fmt.Errorf("failed to load assignment: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	// 2) experiment must be running
	experiment, err := s.experimentRepo.FindByID(ctx, key.ExperimentID)
	if err != nil {
		if errors.Is(err, domain.ErrExperimentNotFound) {
			return domain.Assignment{}, domain.ErrExperimentNotActive
		}
		return domain.Assignment{}, err
	}
	if experiment.Status != domain.StatusActive {
		return domain.Assignment{}, domain.ErrExperimentNotActive
	}

	// 3) weighted draw + persist
	variant, ok := s.selector.Select(experiment.Variants)
	if !ok {
		return domain.Assignment{}, fmt.Errorf("%w: experiment has no variants", domain.ErrValidation)
	}

	assignment, created, err := s.assignmentRepo.CreateAssignment(ctx, key, variant.Name)
	if err != nil {
		logger.ErrorContext(ctx, "failed to create assignment", "error", err)
		return domain.Assignment{}, fmt.Errorf("failed to create assignment: %w", err)
	}

	s.cacheVariant(ctx, key, assignment.Variant)

	if created {
		metrics.ExperimentAssignmentsTotal.
			WithLabelValues(strconv.FormatUint(key.ExperimentID, 10), assignment.Variant).
			Inc()

		logger.DebugContext(ctx, "user assigned",
			"experiment_id", key.ExperimentID,
			"user_id", key.UserID,
			"user_type", key.UserType,
			"variant", assignment.Variant,
		)
	}

	return assignment, nil
}

// RecordConversion marks the participant converted. Metrics that are nil in
// conv keep their stored values; converted_at is only stamped once.
func (s *ExperimentService) RecordConversion(
	ctx context.Context,
	key domain.AssignmentKey,
	conv domain.Conversion,
) (domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Assignment{}, fmt.Errorf("context error: %w", err)
	}
	if key.UserID == 0 {
		return domain.Assignment{}, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	key = s.normalizeKey(key)

	assignment, err := s.assignmentRepo.RecordConversion(ctx, key, conv, s.cfg.Now())
	if err != nil {
		logger.ErrorContext(ctx, "failed to record conversion", "error", err)
		return domain.Assignment{}, fmt.Errorf("failed to record conversion: %w", err)
	}
	if assignment == nil {
		return domain.Assignment{}, domain.ErrAssignmentNotFound
	}

	metrics.ExperimentConversionsTotal.
		WithLabelValues(strconv.FormatUint(key.ExperimentID, 10), assignment.Variant).
		Inc()

	logger.DebugContext(ctx, "conversion recorded",
		"experiment_id", key.ExperimentID,
		"user_id", key.UserID,
		"user_type", key.UserType,
		"variant", assignment.Variant,
	)

	return *assignment, nil
}

// GetUserVariant returns the bound variant name, or false when the user has
// not been assigned.
func (s *ExperimentService) GetUserVariant(ctx context.Context, key domain.AssignmentKey) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("context error: %w", err)
	}
	key = s.normalizeKey(key)

	if s.variantCache != nil {
		variant, ok, err := s.variantCache.GetVariant(ctx, key)
		if err != nil {
			logger.WarnContext(ctx, "variant cache read failed", "error", err)
		} else if ok {
			return variant, true, nil
		}
	}

	assignment, err := s.assignmentRepo.GetAssignment(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to load assignment: %w", err)
	}
	if assignment == nil {
		return "", false, nil
	}

	s.cacheVariant(ctx, key, assignment.Variant)

	return assignment.Variant, true, nil
}

// cacheVariant is best effort; the store stays authoritative.
func (s *ExperimentService) cacheVariant(ctx context.Context, key domain.AssignmentKey, variant string) {
	if s.variantCache == nil {
		return
	}
	if err := s.variantCache.SetVariant(ctx, key, variant); err != nil {
		logger.WarnContext(ctx, "variant cache write failed", "error", err)
	}
}
