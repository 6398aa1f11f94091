package experiment

import (
	"context"
	"fmt"
	"time"

	"abExperiments/domain"
	"abExperiments/pkg/logger"
	"abExperiments/pkg/metrics"
)

// GetResults aggregates assignments per variant, tests every treatment
// against the control and derives a recommendation.
func (s *ExperimentService) GetResults(ctx context.Context, id uint64) (*domain.ExperimentResults, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	start := time.Now()
	defer func() {
		metrics.ResultsComputeDuration.Observe(time.Since(start).Seconds())
	}()

	experiment, err := s.experimentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	aggregates, err := s.assignmentRepo.AggregateByVariant(ctx, id)
	if err != nil {
		logger.ErrorContext(ctx, "failed to aggregate assignments", "experiment_id", id, "error", err)
		return nil, fmt.Errorf("failed to aggregate assignments: %w", err)
	}

	stats := buildVariantStats(experiment, aggregates)
	significance := ComputeSignificance(stats)

	total := 0
	for _, v := range stats {
		total += v.TotalUsers
	}

	return &domain.ExperimentResults{
		Experiment:              overview(experiment),
		TotalParticipants:       total,
		VariantStats:            stats,
		StatisticalSignificance: significance,
		Recommendation:          Recommend(stats, significance),
	}, nil
}

// buildVariantStats orders stats by the experiment's variant definition so
// the control is always index 0. Configured variants without assignments
// appear with zero counts; unknown variant names found in storage are
// appended after them.
func buildVariantStats(experiment domain.Experiment, aggregates []domain.VariantAggregate) []domain.VariantStats {
	byName := make(map[string]domain.VariantAggregate, len(aggregates))
	for _, a := range aggregates {
		byName[a.Variant] = a
	}

	stats := make([]domain.VariantStats, 0, len(experiment.Variants)+len(aggregates))
	seen := make(map[string]struct{}, len(experiment.Variants))

	for _, v := range experiment.Variants {
		seen[v.Name] = struct{}{}
		agg, ok := byName[v.Name]
		if !ok {
			agg = domain.VariantAggregate{Variant: v.Name}
		}
		stats = append(stats, toVariantStats(agg))
	}

	for _, a := range aggregates {
		if _, ok := seen[a.Variant]; ok {
			continue
		}
		stats = append(stats, toVariantStats(a))
	}

	return stats
}

func toVariantStats(a domain.VariantAggregate) domain.VariantStats {
	rate := 0.0
	if a.TotalUsers > 0 {
		rate = float64(a.Conversions) / float64(a.TotalUsers)
	}

	return domain.VariantStats{
		Variant:         a.Variant,
		TotalUsers:      int(a.TotalUsers),
		Conversions:     int(a.Conversions),
		ConversionRate:  rate,
		AvgEngagement:   a.AvgEngagement,
		AvgTimeToAction: a.AvgTimeToAction,
	}
}

func overview(e domain.Experiment) domain.ExperimentOverview {
	return domain.ExperimentOverview{
		ID:               e.ID,
		Name:             e.Name,
		Description:      e.Description,
		Status:           e.Status,
		StartDate:        e.StartDate,
		EndDate:          e.EndDate,
		TargetSampleSize: e.TargetSampleSize,
		SuccessMetric:    e.SuccessMetric,
		Variants:         []domain.Variant(e.Variants),
	}
}
