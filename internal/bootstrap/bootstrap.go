// Package bootstrap builds the experiment service from configuration. It is
// shared by the HTTP server and the abctl CLI.
package bootstrap

import (
	"fmt"

	"abExperiments/business/experiment"
	"abExperiments/internal/repository/memory"
	psqlRepo "abExperiments/internal/repository/postgres"
	redisRepo "abExperiments/internal/repository/redis"
	"abExperiments/pkg/config"
	"abExperiments/pkg/database"
	redisdb "abExperiments/pkg/database/redis"
	"abExperiments/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type App struct {
	Service *experiment.ExperimentService
	DB      *gorm.DB

	redisClient *redis.Client
}

type Options struct {
	// skip AutoMigrate even when DB_AUTO_MIGRATE is set
	SkipMigrate bool
	// leave the Redis variant cache out
	SkipCache bool
}

func Open(cfg *config.Config, opts Options) (*App, error) {
	app := &App{}

	var (
		experimentRepo experiment.ExperimentRepository
		assignmentRepo experiment.AssignmentRepository
	)

	switch cfg.Database.Driver {
	case config.StoreDriverMemory:
		store := memory.NewStore()
		experimentRepo, assignmentRepo = store, store
		logger.Warn("Using in-memory store, data will not survive a restart")

	default:
		db, err := database.InitPostgres(cfg)
		if err != nil {
			return nil, err
		}
		app.DB = db
		logger.Info("Database connected successfully")

		if cfg.Database.AutoMigrate && !opts.SkipMigrate {
			if err := psqlRepo.AutoMigrate(db); err != nil {
				app.Close()
				return nil, err
			}
		}

		experimentRepo = psqlRepo.NewExperimentRepository(db)
		assignmentRepo = psqlRepo.NewAssignmentRepository(db)
	}

	var variantCache experiment.VariantCache
	if cfg.Redis.Enabled && !opts.SkipCache {
		client, err := redisdb.NewRedisClient(cfg)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to init variant cache: %w", err)
		}
		app.redisClient = client
		variantCache = redisRepo.NewVariantCache(client, cfg.Redis.VariantCacheTTL)
		logger.Info("Redis variant cache enabled", "ttl", cfg.Redis.VariantCacheTTL)
	}

	serviceCfg := experiment.DefaultConfig()
	serviceCfg.DefaultUserType = cfg.Experiment.DefaultUserType

	app.Service = experiment.NewExperimentService(
		experimentRepo,
		assignmentRepo,
		variantCache,
		experiment.NewVariantSelector(nil),
		validator.New(),
		serviceCfg,
	)

	return app, nil
}

func (a *App) Close() {
	if err := redisdb.CloseRedisClient(a.redisClient); err != nil {
		logger.Error("Failed to close redis", err)
	}
	if err := database.ClosePostgres(a.DB); err != nil {
		logger.Error("Failed to close database", err)
	}
}
