package main

import (
	"github.com/spf13/cobra"
)

var (
	statusFilter string
	verbose      bool

	rootCmd = &cobra.Command{
		Use:           "abctl",
		Short:         "Operate A/B experiments from the command line",
		SilenceUsage:  true,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the experiment tables",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List experiments, newest first",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	resultsCmd = &cobra.Command{
		Use:   "results [id]",
		Short: "Print the results and significance test of an experiment as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runResults,
	}

	startCmd = &cobra.Command{
		Use:   "start [id]",
		Short: "Start a draft experiment",
		Args:  cobra.ExactArgs(1),
		RunE:  runStart,
	}

	completeCmd = &cobra.Command{
		Use:   "complete [id]",
		Short: "Complete an experiment",
		Args:  cobra.ExactArgs(1),
		RunE:  runComplete,
	}

	deleteCmd = &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a draft experiment and its assignments",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured LOG_LEVEL instead of warn")
	listCmd.Flags().StringVar(&statusFilter, "status", "", "filter by status (draft, active, completed)")

	rootCmd.AddCommand(migrateCmd, listCmd, resultsCmd, startCmd, completeCmd, deleteCmd)
}
