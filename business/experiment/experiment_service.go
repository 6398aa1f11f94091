package experiment

import (
	"context"
	"time"

	"abExperiments/domain"

	"github.com/go-playground/validator/v10"
)

// ---- Repository interfaces ----

type ExperimentRepository interface {
	Create(ctx context.Context, experiment *domain.Experiment) error
	FindByID(ctx context.Context, id uint64) (domain.Experiment, error)
	// FindAllWithCounts lists experiments newest first. An empty status
	// disables the filter.
	FindAllWithCounts(ctx context.Context, status domain.ExperimentStatus) ([]domain.ExperimentCounts, error)
	// Transition moves an experiment whose status is in from (any status when
	// from is empty) to the target status, stamping start_date or end_date.
	Transition(ctx context.Context, id uint64, from []domain.ExperimentStatus, to domain.ExperimentStatus, at time.Time) (domain.Experiment, error)
	DeleteDraft(ctx context.Context, id uint64) (bool, error)
}

// AssignmentRepository must enforce uniqueness of
// (experiment_id, user_id, user_type); CreateAssignment returns the stored
// row when another writer won the race.
type AssignmentRepository interface {
	GetAssignment(ctx context.Context, key domain.AssignmentKey) (*domain.Assignment, error)
	CreateAssignment(ctx context.Context, key domain.AssignmentKey, variant string) (domain.Assignment, bool, error)
	RecordConversion(ctx context.Context, key domain.AssignmentKey, conv domain.Conversion, at time.Time) (*domain.Assignment, error)
	AggregateByVariant(ctx context.Context, experimentID uint64) ([]domain.VariantAggregate, error)
}

// VariantCache holds bound variant names. Bindings never change, so entries
// need no invalidation.
type VariantCache interface {
	GetVariant(ctx context.Context, key domain.AssignmentKey) (string, bool, error)
	SetVariant(ctx context.Context, key domain.AssignmentKey, variant string) error
}

// ---- Service ----

type Config struct {
	DefaultUserType string
	// concurrent results computations in the dashboard
	DashboardConcurrency int
	Now                  func() time.Time
}

const (
	defaultUserType             = "contractor"
	defaultDashboardConcurrency = 4
	recentCompletedLimit        = 5
)

func DefaultConfig() Config {
	return Config{
		DefaultUserType:      defaultUserType,
		DashboardConcurrency: defaultDashboardConcurrency,
		Now:                  time.Now,
	}
}

type ExperimentService struct {
	experimentRepo ExperimentRepository
	assignmentRepo AssignmentRepository
	variantCache   VariantCache
	selector       *VariantSelector
	validate       *validator.Validate
	cfg            Config
}

// NewExperimentService wires the service. variantCache and selector may be
// nil.
func NewExperimentService(
	experimentRepo ExperimentRepository,
	assignmentRepo AssignmentRepository,
	variantCache VariantCache,
	selector *VariantSelector,
	validate *validator.Validate,
	cfg Config,
) *ExperimentService {
	if selector == nil {
		selector = NewVariantSelector(nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.DefaultUserType == "" {
		cfg.DefaultUserType = defaultUserType
	}
	if cfg.DashboardConcurrency <= 0 {
		cfg.DashboardConcurrency = defaultDashboardConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &ExperimentService{
		experimentRepo: experimentRepo,
		assignmentRepo: assignmentRepo,
		variantCache:   variantCache,
		selector:       selector,
		validate:       validate,
		cfg:            cfg,
	}
}

// normalizeKey fills in the default user type.
func (s *ExperimentService) normalizeKey(key domain.AssignmentKey) domain.AssignmentKey {
	if key.UserType == "" {
		key.UserType = s.cfg.DefaultUserType
	}
	return key
}
