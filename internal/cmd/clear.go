package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/dynastore/internal/observability"
)

var clearForce bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all jobs, triggers, calendars, and group state",
	Long: `Remove all scheduling data from the store.

Scheduler liveness records are left alone so running instances keep
their leases. Requires --force.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().BoolVar(&clearForce, "force", false, "Confirm destructive data removal")
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !clearForce {
		return exitError(foundry.ExitInvalidArgument, "Refusing to clear scheduling data without --force", fmt.Errorf("pass --force to confirm"))
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	store, err := openJobStore(ctx, cfg)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to DynamoDB", err)
	}

	if err := store.ClearAllSchedulingData(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to clear scheduling data", err)
	}

	observability.CLILogger.Info("Scheduling data cleared")
	return nil
}
