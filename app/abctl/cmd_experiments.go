package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"abExperiments/domain"
	"abExperiments/internal/bootstrap"
	psqlRepo "abExperiments/internal/repository/postgres"
	"abExperiments/pkg/config"
	"abExperiments/pkg/database"
	"abExperiments/pkg/logger"

	"github.com/spf13/cobra"
)

type experimentService interface {
	ListExperiments(ctx context.Context, status domain.ExperimentStatus) ([]domain.ExperimentSummary, error)
	GetResults(ctx context.Context, id uint64) (*domain.ExperimentResults, error)
	StartExperiment(ctx context.Context, id uint64) (domain.Experiment, error)
	CompleteExperiment(ctx context.Context, id uint64) (domain.Experiment, error)
	DeleteExperiment(ctx context.Context, id uint64) (bool, error)
}

// openService is replaced in tests.
var openService = func() (experimentService, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	app, err := bootstrap.Open(cfg, bootstrap.Options{SkipMigrate: true, SkipCache: true})
	if err != nil {
		return nil, nil, err
	}

	return app.Service, app.Close, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := "warn"
	if verbose {
		level = cfg.App.LogLevel
	}
	logger.InitWithLevel(cfg.App.Environment, level)

	return cfg, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate needs STORE_DRIVER=%s, got %q", config.StoreDriverPostgres, cfg.Database.Driver)
	}

	db, err := database.InitPostgres(cfg)
	if err != nil {
		return err
	}
	defer database.ClosePostgres(db)

	if err := psqlRepo.AutoMigrate(db); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "experiment tables are up to date")
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	svc, closeFn, err := openService()
	if err != nil {
		return err
	}
	defer closeFn()

	experiments, err := svc.ListExperiments(cmd.Context(), domain.ExperimentStatus(statusFilter))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tVARIANTS\tASSIGNED\tCONVERTED\tRATE")
	for _, e := range experiments {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%.1f%%\n",
			e.ID, e.Name, e.Status, len(e.Variants),
			e.TotalAssignments, e.TotalConversions, e.OverallConversionRate)
	}
	return w.Flush()
}

func runResults(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	svc, closeFn, err := openService()
	if err != nil {
		return err
	}
	defer closeFn()

	results, err := svc.GetResults(cmd.Context(), id)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func runStart(cmd *cobra.Command, args []string) error {
	return runTransition(cmd, args[0], "started", func(svc experimentService, ctx context.Context, id uint64) (domain.Experiment, error) {
		return svc.StartExperiment(ctx, id)
	})
}

func runComplete(cmd *cobra.Command, args []string) error {
	return runTransition(cmd, args[0], "completed", func(svc experimentService, ctx context.Context, id uint64) (domain.Experiment, error) {
		return svc.CompleteExperiment(ctx, id)
	})
}

func runTransition(
	cmd *cobra.Command,
	rawID string,
	verb string,
	move func(experimentService, context.Context, uint64) (domain.Experiment, error),
) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}

	svc, closeFn, err := openService()
	if err != nil {
		return err
	}
	defer closeFn()

	e, err := move(svc, cmd.Context(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "experiment %d (%s) %s\n", e.ID, e.Name, verb)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	svc, closeFn, err := openService()
	if err != nil {
		return err
	}
	defer closeFn()

	deleted, err := svc.DeleteExperiment(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !deleted {
		return errors.New("could not delete experiment (must be in draft status)")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "experiment %d deleted\n", id)
	return nil
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid experiment id %q", raw)
	}
	return id, nil
}
