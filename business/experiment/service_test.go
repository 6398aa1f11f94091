package experiment_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"abExperiments/business/experiment"
	"abExperiments/domain"
	"abExperiments/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alternatingSource returns the draws in order, cycling.
type alternatingSource struct {
	mu    sync.Mutex
	draws []float64
	i     int
}

func (a *alternatingSource) Float64() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := a.draws[a.i%len(a.draws)]
	a.i++
	return v
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[domain.AssignmentKey]string
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[domain.AssignmentKey]string)}
}

func (f *fakeCache) GetVariant(_ context.Context, key domain.AssignmentKey) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.entries[key]
	if ok {
		f.hits++
	}
	return v, ok, nil
}

func (f *fakeCache) SetVariant(_ context.Context, key domain.AssignmentKey, variant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = variant
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func newService(t *testing.T, cache experiment.VariantCache, rnd experiment.RandomSource) (*experiment.ExperimentService, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	cfg := experiment.DefaultConfig()
	cfg.Now = (&clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}).Now

	svc := experiment.NewExperimentService(store, store, cache, experiment.NewVariantSelector(rnd), nil, cfg)
	return svc, store
}

func ctaColor() experiment.CreateExperimentInput {
	return experiment.CreateExperimentInput{
		Name: "CTA Color",
		Variants: []domain.Variant{
			{Name: "control", Weight: 50},
			{Name: "red", Weight: 50},
		},
	}
}

func createActive(t *testing.T, svc *experiment.ExperimentService) domain.Experiment {
	t.Helper()
	ctx := context.Background()

	created, err := svc.CreateExperiment(ctx, ctaColor())
	require.NoError(t, err)

	started, err := svc.StartExperiment(ctx, created.ID)
	require.NoError(t, err)
	return started
}

func TestCreateExperiment_Defaults(t *testing.T) {
	svc, _ := newService(t, nil, nil)

	created, err := svc.CreateExperiment(context.Background(), ctaColor())
	require.NoError(t, err)

	assert.NotZero(t, created.ID)
	assert.Equal(t, domain.StatusDraft, created.Status)
	assert.Equal(t, "conversion", created.SuccessMetric)
	assert.Equal(t, 100, created.TargetSampleSize)
	assert.Nil(t, created.StartDate)
	assert.Equal(t, []string{"control", "red"}, created.VariantNames())
}

func TestCreateExperiment_Validation(t *testing.T) {
	svc, _ := newService(t, nil, nil)

	cases := map[string]experiment.CreateExperimentInput{
		"missing name": {
			Variants: []domain.Variant{{Name: "a"}, {Name: "b"}},
		},
		"blank name": {
			Name:     "   ",
			Variants: []domain.Variant{{Name: "a"}, {Name: "b"}},
		},
		"one variant": {
			Name:     "x",
			Variants: []domain.Variant{{Name: "a"}},
		},
		"duplicate variant names": {
			Name:     "x",
			Variants: []domain.Variant{{Name: "a"}, {Name: "a"}},
		},
		"unnamed variant": {
			Name:     "x",
			Variants: []domain.Variant{{Name: "a"}, {Name: ""}},
		},
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateExperiment(context.Background(), input)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestLifecycle(t *testing.T) {
	svc, _ := newService(t, nil, nil)
	ctx := context.Background()

	created, err := svc.CreateExperiment(ctx, ctaColor())
	require.NoError(t, err)

	started, err := svc.StartExperiment(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, started.Status)
	require.NotNil(t, started.StartDate)

	// starting an active experiment is allowed and restamps start_date
	restarted, err := svc.StartExperiment(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, restarted.Status)
	assert.True(t, restarted.StartDate.After(*started.StartDate))

	completed, err := svc.CompleteExperiment(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	require.NotNil(t, completed.EndDate)

	_, err = svc.StartExperiment(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.StartExperiment(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrExperimentNotFound)

	_, err = svc.CompleteExperiment(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrExperimentNotFound)
}

func TestCompleteExperiment_FromDraft(t *testing.T) {
	svc, _ := newService(t, nil, nil)
	ctx := context.Background()

	created, err := svc.CreateExperiment(ctx, ctaColor())
	require.NoError(t, err)

	completed, err := svc.CompleteExperiment(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
}

func TestAssignUser_RequiresActiveExperiment(t *testing.T) {
	svc, _ := newService(t, nil, nil)
	ctx := context.Background()

	draft, err := svc.CreateExperiment(ctx, ctaColor())
	require.NoError(t, err)

	_, err = svc.AssignUser(ctx, domain.AssignmentKey{ExperimentID: draft.ID, UserID: 1})
	assert.ErrorIs(t, err, domain.ErrExperimentNotActive)

	_, err = svc.AssignUser(ctx, domain.AssignmentKey{ExperimentID: 9999, UserID: 1})
	assert.ErrorIs(t, err, domain.ErrExperimentNotActive)

	_, err = svc.AssignUser(ctx, domain.AssignmentKey{ExperimentID: draft.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAssignUser_Idempotent(t *testing.T) {
	svc, _ := newService(t, nil, &alternatingSource{draws: []float64{0.1, 0.9}})
	ctx := context.Background()
	e := createActive(t, svc)

	key := domain.AssignmentKey{ExperimentID: e.ID, UserID: 42}

	first, err := svc.AssignUser(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "control", first.Variant)
	assert.Equal(t, "contractor", first.UserType)

	// the next draw would pick "red"; the binding must not move
	second, err := svc.AssignUser(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Variant, second.Variant)

	// user_type is part of the identity
	other, err := svc.AssignUser(ctx, domain.AssignmentKey{ExperimentID: e.ID, UserID: 42, UserType: "partner"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, "red", other.Variant)
}

func TestAssignUser_ConcurrentFirstCalls(t *testing.T) {
	svc, store := newService(t, nil, nil)
	ctx := context.Background()
	e := createActive(t, svc)

	const workers = 50
	variants := make([]string, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := svc.AssignUser(ctx, domain.AssignmentKey{ExperimentID: e.ID, UserID: 7})
			if err == nil {
				variants[i] = a.Variant
			}
		}(i)
	}
	wg.Wait()

	for _, v := range variants {
		assert.Equal(t, variants[0], v)
	}

	aggs, err := store.AggregateByVariant(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, int64(1), aggs[0].TotalUsers)
}

func TestRecordConversion(t *testing.T) {
	svc, _ := newService(t, nil, nil)
	ctx := context.Background()
	e := createActive(t, svc)

	key := domain.AssignmentKey{ExperimentID: e.ID, UserID: 5}

	_, err := svc.RecordConversion(ctx, key, domain.Conversion{})
	assert.ErrorIs(t, err, domain.ErrAssignmentNotFound)

	_, err = svc.AssignUser(ctx, key)
	require.NoError(t, err)

	score := 8.5
	first, err := svc.RecordConversion(ctx, key, domain.Conversion{EngagementScore: &score})
	require.NoError(t, err)
	assert.True(t, first.Converted)
	require.NotNil(t, first.ConvertedAt)
	require.NotNil(t, first.EngagementScore)
	assert.Nil(t, first.TimeToAction)

	tta := 12.0
	second, err := svc.RecordConversion(ctx, key, domain.Conversion{TimeToAction: &tta})
	require.NoError(t, err)

	// merge: earlier metrics survive, converted_at is stamped once
	require.NotNil(t, second.EngagementScore)
	assert.Equal(t, 8.5, *second.EngagementScore)
	require.NotNil(t, second.TimeToAction)
	assert.Equal(t, 12.0, *second.TimeToAction)
	assert.Equal(t, *first.ConvertedAt, *second.ConvertedAt)

	_, err = svc.RecordConversion(ctx, domain.AssignmentKey{ExperimentID: e.ID}, domain.Conversion{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetUserVariant(t *testing.T) {
	cache := newFakeCache()
	svc, _ := newService(t, cache, &alternatingSource{draws: []float64{0.9}})
	ctx := context.Background()
	e := createActive(t, svc)

	key := domain.AssignmentKey{ExperimentID: e.ID, UserID: 3}

	_, ok, err := svc.GetUserVariant(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.AssignUser(ctx, key)
	require.NoError(t, err)

	variant, ok, err := svc.GetUserVariant(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "red", variant)
	assert.Equal(t, 1, cache.hits)

	// a different user type has no binding
	_, ok, err = svc.GetUserVariant(ctx, domain.AssignmentKey{ExperimentID: e.ID, UserID: 3, UserType: "partner"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteExperiment(t *testing.T) {
	svc, _ := newService(t, nil, nil)
	ctx := context.Background()

	active := createActive(t, svc)
	deleted, err := svc.DeleteExperiment(ctx, active.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	draft, err := svc.CreateExperiment(ctx, ctaColor())
	require.NoError(t, err)

	deleted, err = svc.DeleteExperiment(ctx, draft.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = svc.GetResults(ctx, draft.ID)
	assert.ErrorIs(t, err, domain.ErrExperimentNotFound)

	deleted, err = svc.DeleteExperiment(ctx, draft.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestGetResults_NoData(t *testing.T) {
	svc, _ := newService(t, nil, nil)
	ctx := context.Background()

	draft, err := svc.CreateExperiment(ctx, ctaColor())
	require.NoError(t, err)

	results, err := svc.GetResults(ctx, draft.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, results.TotalParticipants)
	require.Len(t, results.VariantStats, 2)
	assert.Equal(t, "control", results.VariantStats[0].Variant)
	assert.False(t, results.StatisticalSignificance.IsSignificant)
	assert.Equal(t, "No data available yet.", results.Recommendation)
}

func TestEndToEnd_CTAColor(t *testing.T) {
	// 0.25 lands in control, 0.75 in red: an exact 100/100 split
	svc, _ := newService(t, nil, &alternatingSource{draws: []float64{0.25, 0.75}})
	ctx := context.Background()
	e := createActive(t, svc)

	byVariant := map[string][]uint64{}
	for user := uint64(1); user <= 200; user++ {
		a, err := svc.AssignUser(ctx, domain.AssignmentKey{ExperimentID: e.ID, UserID: user})
		require.NoError(t, err)
		byVariant[a.Variant] = append(byVariant[a.Variant], user)
	}
	require.Len(t, byVariant["control"], 100)
	require.Len(t, byVariant["red"], 100)

	convert := func(variant string, n int) {
		for _, user := range byVariant[variant][:n] {
			_, err := svc.RecordConversion(ctx, domain.AssignmentKey{ExperimentID: e.ID, UserID: user}, domain.Conversion{})
			require.NoError(t, err)
		}
	}
	convert("control", 12)
	convert("red", 28)

	results, err := svc.GetResults(ctx, e.ID)
	require.NoError(t, err)

	assert.Equal(t, 200, results.TotalParticipants)
	require.Len(t, results.VariantStats, 2)
	assert.InDelta(t, 0.12, results.VariantStats[0].ConversionRate, 1e-9)
	assert.InDelta(t, 0.28, results.VariantStats[1].ConversionRate, 1e-9)

	sig := results.StatisticalSignificance
	require.NotNil(t, sig.Winner)
	assert.Equal(t, "red", *sig.Winner)
	assert.Equal(t, 133.3, sig.Comparisons[0].Lift)
	assert.Contains(t, results.Recommendation, `Winner: "red" outperforms "control" by 133.3%`)
}

func TestListExperiments(t *testing.T) {
	svc, _ := newService(t, nil, nil)
	ctx := context.Background()

	active := createActive(t, svc)
	for i := 0; i < 3; i++ {
		input := ctaColor()
		input.Name = fmt.Sprintf("draft %d", i)
		_, err := svc.CreateExperiment(ctx, input)
		require.NoError(t, err)
	}

	for user := uint64(1); user <= 4; user++ {
		_, err := svc.AssignUser(ctx, domain.AssignmentKey{ExperimentID: active.ID, UserID: user})
		require.NoError(t, err)
	}
	_, err := svc.RecordConversion(ctx, domain.AssignmentKey{ExperimentID: active.ID, UserID: 1}, domain.Conversion{})
	require.NoError(t, err)

	all, err := svc.ListExperiments(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "draft 2", all[0].Name)

	actives, err := svc.ListExperiments(ctx, domain.StatusActive)
	require.NoError(t, err)
	require.Len(t, actives, 1)
	assert.Equal(t, int64(4), actives[0].TotalAssignments)
	assert.Equal(t, int64(1), actives[0].TotalConversions)
	assert.Equal(t, 25.0, actives[0].OverallConversionRate)

	_, err = svc.ListExperiments(ctx, "paused")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDashboard(t *testing.T) {
	svc, _ := newService(t, nil, nil)
	ctx := context.Background()

	var activeIDs []uint64
	for i := 0; i < 3; i++ {
		input := ctaColor()
		input.Name = fmt.Sprintf("active %d", i)
		created, err := svc.CreateExperiment(ctx, input)
		require.NoError(t, err)
		_, err = svc.StartExperiment(ctx, created.ID)
		require.NoError(t, err)
		activeIDs = append(activeIDs, created.ID)

		for user := uint64(1); user <= 10; user++ {
			_, err := svc.AssignUser(ctx, domain.AssignmentKey{ExperimentID: created.ID, UserID: user})
			require.NoError(t, err)
		}
		_, err = svc.RecordConversion(ctx, domain.AssignmentKey{ExperimentID: created.ID, UserID: 1}, domain.Conversion{})
		require.NoError(t, err)
	}

	for i := 0; i < 7; i++ {
		input := ctaColor()
		input.Name = fmt.Sprintf("done %d", i)
		created, err := svc.CreateExperiment(ctx, input)
		require.NoError(t, err)
		_, err = svc.CompleteExperiment(ctx, created.ID)
		require.NoError(t, err)
	}

	_, err := svc.CreateExperiment(ctx, ctaColor())
	require.NoError(t, err)

	dashboard, err := svc.Dashboard(ctx)
	require.NoError(t, err)

	assert.Equal(t, 11, dashboard.Summary.TotalExperiments)
	assert.Equal(t, 3, dashboard.Summary.ActiveCount)
	assert.Equal(t, 7, dashboard.Summary.CompletedCount)
	assert.Equal(t, 1, dashboard.Summary.DraftCount)
	assert.Equal(t, int64(30), dashboard.Summary.TotalParticipants)
	assert.Equal(t, int64(3), dashboard.Summary.TotalConversions)
	assert.Equal(t, 10.0, dashboard.Summary.OverallConversionRate)

	require.Len(t, dashboard.ActiveExperiments, 3)
	// newest first, same order as the list
	assert.Equal(t, activeIDs[2], dashboard.ActiveExperiments[0].Experiment.ID)
	assert.Equal(t, activeIDs[0], dashboard.ActiveExperiments[2].Experiment.ID)
	for _, r := range dashboard.ActiveExperiments {
		assert.Equal(t, 10, r.TotalParticipants)
	}

	assert.Len(t, dashboard.RecentCompleted, 5)
	assert.Equal(t, "done 6", dashboard.RecentCompleted[0].Name)
	assert.Len(t, dashboard.Drafts, 1)
}
