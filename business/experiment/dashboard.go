package experiment

import (
	"context"
	"fmt"

	"abExperiments/domain"
	"abExperiments/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// ListExperiments returns experiment summaries, newest first, optionally
// filtered by status.
func (s *ExperimentService) ListExperiments(ctx context.Context, status domain.ExperimentStatus) ([]domain.ExperimentSummary, error) {
	if err := ctx.Err(); err != nil {
		logger.ErrorContext(ctx, "context error when list experiments")
		return nil, fmt.Errorf("context error: %w", err)
	}

	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}

	rows, err := s.experimentRepo.FindAllWithCounts(ctx, status)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to find all experiments", "error", err)
		return nil, err
	}

	out := make([]domain.ExperimentSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, summarize(row))
	}

	return out, nil
}

// Dashboard summarizes every experiment and computes full results for the
// active ones concurrently.
func (s *ExperimentService) Dashboard(ctx context.Context) (*domain.Dashboard, error) {
	all, err := s.ListExperiments(ctx, "")
	if err != nil {
		return nil, err
	}

	var (
		active    []domain.ExperimentSummary
		completed []domain.ExperimentSummary
		drafts    = []domain.ExperimentSummary{}
		counts    domain.DashboardCounts
	)

	for _, e := range all {
		switch e.Status {
		case domain.StatusActive:
			active = append(active, e)
		case domain.StatusCompleted:
			completed = append(completed, e)
		case domain.StatusDraft:
			drafts = append(drafts, e)
		}
		counts.TotalParticipants += e.TotalAssignments
		counts.TotalConversions += e.TotalConversions
	}

	counts.TotalExperiments = len(all)
	counts.ActiveCount = len(active)
	counts.CompletedCount = len(completed)
	counts.DraftCount = len(drafts)
	counts.OverallConversionRate = percent(counts.TotalConversions, counts.TotalParticipants)

	results := make([]domain.ExperimentResults, len(active))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DashboardConcurrency)
	for i, e := range active {
		g.Go(func() error {
			r, err := s.GetResults(gctx, e.ID)
			if err != nil {
				return fmt.Errorf("results for experiment %d: %w", e.ID, err)
			}
			results[i] = *r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.ErrorContext(ctx, "failed to compute dashboard results", "error", err)
		return nil, err
	}

	if len(completed) > recentCompletedLimit {
		completed = completed[:recentCompletedLimit]
	}
	if completed == nil {
		completed = []domain.ExperimentSummary{}
	}

	return &domain.Dashboard{
		Summary:           counts,
		ActiveExperiments: results,
		RecentCompleted:   completed,
		Drafts:            drafts,
	}, nil
}

func summarize(row domain.ExperimentCounts) domain.ExperimentSummary {
	return domain.ExperimentSummary{
		ID:                    row.ID,
		Name:                  row.Name,
		Description:           row.Description,
		Status:                row.Status,
		StartDate:             row.StartDate,
		EndDate:               row.EndDate,
		TargetSampleSize:      row.TargetSampleSize,
		SuccessMetric:         row.SuccessMetric,
		Variants:              []domain.Variant(row.Variants),
		TotalAssignments:      row.TotalAssignments,
		TotalConversions:      row.TotalConversions,
		OverallConversionRate: percent(row.TotalConversions, row.TotalAssignments),
		CreatedAt:             row.CreatedAt,
	}
}

// percent is part/whole as a percentage with one decimal, 0 for an empty
// whole.
func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return round(float64(part)/float64(whole)*100, 1)
}
