//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"abExperiments/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	require.NoError(t, db.Exec("TRUNCATE ab_experiment_assignments, ab_experiments RESTART IDENTITY CASCADE").Error)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func seed(t *testing.T, repo *ExperimentRepository, name string) domain.Experiment {
	t.Helper()

	e := &domain.Experiment{
		Name:             name,
		Variants:         []domain.Variant{{Name: "control", Weight: 50}, {Name: "red", Weight: 50}},
		SuccessMetric:    domain.DefaultSuccessMetric,
		TargetSampleSize: domain.DefaultTargetSampleSize,
		Status:           domain.StatusDraft,
	}
	require.NoError(t, repo.Create(context.Background(), e))
	return *e
}

func TestExperimentRepository_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewExperimentRepository(db)
	ctx := context.Background()

	e := seed(t, repo, "lifecycle")
	require.NotZero(t, e.ID)

	found, err := repo.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"control", "red"}, found.VariantNames())

	_, err = repo.FindByID(ctx, e.ID+100)
	assert.ErrorIs(t, err, domain.ErrExperimentNotFound)

	at := time.Now().UTC().Truncate(time.Second)
	started, err := repo.Transition(ctx, e.ID, []domain.ExperimentStatus{domain.StatusDraft}, domain.StatusActive, at)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, started.Status)
	require.NotNil(t, started.StartDate)

	_, err = repo.Transition(ctx, e.ID, []domain.ExperimentStatus{domain.StatusDraft}, domain.StatusActive, at)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	deleted, err := repo.DeleteDraft(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestAssignmentRepository_UniqueAndMerge(t *testing.T) {
	db := openTestDB(t)
	experiments := NewExperimentRepository(db)
	assignments := NewAssignmentRepository(db)
	ctx := context.Background()

	e := seed(t, experiments, "assignments")
	key := domain.AssignmentKey{ExperimentID: e.ID, UserID: 10, UserType: "contractor"}

	first, created, err := assignments.CreateAssignment(ctx, key, "control")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := assignments.CreateAssignment(ctx, key, "red")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "control", second.Variant)

	score := 6.0
	convertedAt := time.Now().UTC().Truncate(time.Second)
	_, err = assignments.RecordConversion(ctx, key, domain.Conversion{EngagementScore: &score}, convertedAt)
	require.NoError(t, err)

	tta := 30.0
	merged, err := assignments.RecordConversion(ctx, key, domain.Conversion{TimeToAction: &tta}, convertedAt.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.True(t, merged.Converted)
	assert.Equal(t, 6.0, *merged.EngagementScore)
	assert.Equal(t, 30.0, *merged.TimeToAction)
	assert.True(t, merged.ConvertedAt.Equal(convertedAt))

	missing, err := assignments.RecordConversion(ctx, domain.AssignmentKey{ExperimentID: e.ID, UserID: 99, UserType: "contractor"}, domain.Conversion{}, time.Now())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAssignmentRepository_Aggregates(t *testing.T) {
	db := openTestDB(t)
	experiments := NewExperimentRepository(db)
	assignments := NewAssignmentRepository(db)
	ctx := context.Background()

	e := seed(t, experiments, "aggregates")
	for user := uint64(1); user <= 4; user++ {
		variant := "control"
		if user%2 == 0 {
			variant = "red"
		}
		_, _, err := assignments.CreateAssignment(ctx, domain.AssignmentKey{ExperimentID: e.ID, UserID: user, UserType: "contractor"}, variant)
		require.NoError(t, err)
	}
	score := 4.0
	_, err := assignments.RecordConversion(ctx, domain.AssignmentKey{ExperimentID: e.ID, UserID: 2, UserType: "contractor"}, domain.Conversion{EngagementScore: &score}, time.Now())
	require.NoError(t, err)

	aggs, err := assignments.AggregateByVariant(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, "control", aggs[0].Variant)
	assert.Equal(t, int64(2), aggs[0].TotalUsers)
	assert.Nil(t, aggs[0].AvgEngagement)
	assert.Equal(t, int64(1), aggs[1].Conversions)
	require.NotNil(t, aggs[1].AvgEngagement)
	assert.Equal(t, 4.0, *aggs[1].AvgEngagement)

	rows, err := experiments.FindAllWithCounts(ctx, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(4), rows[0].TotalAssignments)
	assert.Equal(t, int64(1), rows[0].TotalConversions)

	// deleting a draft cascades to its assignments
	deleted, err := experiments.DeleteDraft(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	a, err := assignments.GetAssignment(ctx, domain.AssignmentKey{ExperimentID: e.ID, UserID: 1, UserType: "contractor"})
	require.NoError(t, err)
	assert.Nil(t, a)
}
