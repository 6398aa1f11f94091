// Package memory keeps experiments and assignments in process memory. It
// enforces the same (experiment_id, user_id, user_type) uniqueness as the
// Postgres schema and is used by tests and STORE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"abExperiments/business/experiment"
	"abExperiments/domain"
)

type Store struct {
	mu sync.RWMutex

	nextExperimentID uint64
	nextAssignmentID uint64

	experiments map[uint64]*domain.Experiment
	assignments map[domain.AssignmentKey]*domain.Assignment
}

var (
	_ experiment.ExperimentRepository = (*Store)(nil)
	_ experiment.AssignmentRepository = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		experiments: make(map[uint64]*domain.Experiment),
		assignments: make(map[domain.AssignmentKey]*domain.Assignment),
	}
}

// ---- Experiments ----

func (s *Store) Create(ctx context.Context, e *domain.Experiment) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextExperimentID++
	now := time.Now().UTC()

	e.ID = s.nextExperimentID
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Status == "" {
		e.Status = domain.StatusDraft
	}

	stored := copyExperiment(*e)
	s.experiments[e.ID] = &stored

	return nil
}

func (s *Store) FindByID(ctx context.Context, id uint64) (domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Experiment{}, fmt.Errorf("context error: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.experiments[id]
	if !ok {
		return domain.Experiment{}, domain.ErrExperimentNotFound
	}

	return copyExperiment(*e), nil
}

func (s *Store) FindAllWithCounts(ctx context.Context, status domain.ExperimentStatus) ([]domain.ExperimentCounts, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[uint64][2]int64, len(s.experiments))
	for key, a := range s.assignments {
		t := totals[key.ExperimentID]
		t[0]++
		if a.Converted {
			t[1]++
		}
		totals[key.ExperimentID] = t
	}

	out := make([]domain.ExperimentCounts, 0, len(s.experiments))
	for id, e := range s.experiments {
		if status != "" && e.Status != status {
			continue
		}
		t := totals[id]
		out = append(out, domain.ExperimentCounts{
			Experiment:       copyExperiment(*e),
			TotalAssignments: t[0],
			TotalConversions: t[1],
		})
	}

	// newest first
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (s *Store) Transition(
	ctx context.Context,
	id uint64,
	from []domain.ExperimentStatus,
	to domain.ExperimentStatus,
	at time.Time,
) (domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Experiment{}, fmt.Errorf("context error: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.experiments[id]
	if !ok {
		return domain.Experiment{}, domain.ErrExperimentNotFound
	}
	if len(from) > 0 && !slices.Contains(from, e.Status) {
		return domain.Experiment{}, domain.ErrInvalidTransition
	}

	stamp := at.UTC()
	e.Status = to
	e.UpdatedAt = stamp
	switch to {
	case domain.StatusActive:
		e.StartDate = &stamp
	case domain.StatusCompleted:
		e.EndDate = &stamp
	}

	return copyExperiment(*e), nil
}

func (s *Store) DeleteDraft(ctx context.Context, id uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.experiments[id]
	if !ok || e.Status != domain.StatusDraft {
		return false, nil
	}

	delete(s.experiments, id)
	for key := range s.assignments {
		if key.ExperimentID == id {
			delete(s.assignments, key)
		}
	}

	return true, nil
}

// ---- Assignments ----

func (s *Store) GetAssignment(ctx context.Context, key domain.AssignmentKey) (*domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[key]
	if !ok {
		return nil, nil
	}

	out := copyAssignment(*a)
	return &out, nil
}

func (s *Store) CreateAssignment(ctx context.Context, key domain.AssignmentKey, variant string) (domain.Assignment, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Assignment{}, false, fmt.Errorf("context error: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.experiments[key.ExperimentID]; !ok {
		return domain.Assignment{}, false, domain.ErrExperimentNotFound
	}

	// unique (experiment_id, user_id, user_type)
	if existing, ok := s.assignments[key]; ok {
		return copyAssignment(*existing), false, nil
	}

	s.nextAssignmentID++
	a := &domain.Assignment{
		ID:           s.nextAssignmentID,
		ExperimentID: key.ExperimentID,
		UserID:       key.UserID,
		UserType:     key.UserType,
		Variant:      variant,
		CreatedAt:    time.Now().UTC(),
	}
	s.assignments[key] = a

	return copyAssignment(*a), true, nil
}

func (s *Store) RecordConversion(
	ctx context.Context,
	key domain.AssignmentKey,
	conv domain.Conversion,
	at time.Time,
) (*domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments[key]
	if !ok {
		return nil, nil
	}

	a.Converted = true
	if a.ConvertedAt == nil {
		stamp := at.UTC()
		a.ConvertedAt = &stamp
	}
	if conv.EngagementScore != nil {
		v := *conv.EngagementScore
		a.EngagementScore = &v
	}
	if conv.TimeToAction != nil {
		v := *conv.TimeToAction
		a.TimeToAction = &v
	}

	out := copyAssignment(*a)
	return &out, nil
}

func (s *Store) AggregateByVariant(ctx context.Context, experimentID uint64) ([]domain.VariantAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type acc struct {
		agg                domain.VariantAggregate
		engSum, ttaSum     float64
		engCount, ttaCount int
	}

	byVariant := make(map[string]*acc)
	order := make([]string, 0)

	for key, a := range s.assignments {
		if key.ExperimentID != experimentID {
			continue
		}
		v, ok := byVariant[a.Variant]
		if !ok {
			v = &acc{agg: domain.VariantAggregate{Variant: a.Variant}}
			byVariant[a.Variant] = v
			order = append(order, a.Variant)
		}
		v.agg.TotalUsers++
		if a.Converted {
			v.agg.Conversions++
		}
		if a.EngagementScore != nil {
			v.engSum += *a.EngagementScore
			v.engCount++
		}
		if a.TimeToAction != nil {
			v.ttaSum += *a.TimeToAction
			v.ttaCount++
		}
	}

	sort.Strings(order)

	out := make([]domain.VariantAggregate, 0, len(order))
	for _, name := range order {
		v := byVariant[name]
		if v.engCount > 0 {
			avg := v.engSum / float64(v.engCount)
			v.agg.AvgEngagement = &avg
		}
		if v.ttaCount > 0 {
			avg := v.ttaSum / float64(v.ttaCount)
			v.agg.AvgTimeToAction = &avg
		}
		out = append(out, v.agg)
	}

	return out, nil
}

func copyExperiment(e domain.Experiment) domain.Experiment {
	e.Variants = slices.Clone(e.Variants)
	if e.StartDate != nil {
		t := *e.StartDate
		e.StartDate = &t
	}
	if e.EndDate != nil {
		t := *e.EndDate
		e.EndDate = &t
	}
	if e.CreatedBy != nil {
		v := *e.CreatedBy
		e.CreatedBy = &v
	}
	return e
}

func copyAssignment(a domain.Assignment) domain.Assignment {
	a.Experiment = nil
	if a.ConvertedAt != nil {
		t := *a.ConvertedAt
		a.ConvertedAt = &t
	}
	if a.EngagementScore != nil {
		v := *a.EngagementScore
		a.EngagementScore = &v
	}
	if a.TimeToAction != nil {
		v := *a.TimeToAction
		a.TimeToAction = &v
	}
	return a
}
