package cmd

import (
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/dynastore/internal/observability"
	"github.com/3leaps/dynastore/pkg/bundle"
	"github.com/3leaps/dynastore/pkg/jobstore"
)

var (
	loadReplace bool
	loadDryRun  bool
)

var loadCmd = &cobra.Command{
	Use:   "load <bundle-file>",
	Short: "Load a scheduling data bundle into the store",
	Long: `Load jobs, triggers, and calendars from a YAML or JSON bundle file.

The bundle is schema-validated before anything is written. Without
--replace, the load fails if any declared job, trigger, or calendar
already exists.

Examples:
  dynastore load jobs.yaml
  dynastore load jobs.yaml --replace
  dynastore load jobs.yaml --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().BoolVar(&loadReplace, "replace", false, "Overwrite existing jobs, triggers, and calendars")
	loadCmd.Flags().BoolVar(&loadDryRun, "dry-run", false, "Validate and build the bundle without writing")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	b, err := bundle.Load(path)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid bundle", err)
	}
	if loadReplace {
		b.Replace = true
	}

	now := time.Now()

	if loadDryRun {
		sets, cals, err := b.Build(now)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid bundle", err)
		}
		triggers := 0
		for _, set := range sets {
			triggers += len(set.Triggers)
		}
		observability.CLILogger.Info("Bundle valid",
			zap.String("file", path),
			zap.Int("jobs", len(sets)),
			zap.Int("triggers", triggers),
			zap.Int("calendars", len(cals)))
		return nil
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	store, err := openJobStore(ctx, cfg)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to DynamoDB", err)
	}

	result, err := bundle.Apply(ctx, store, b, now)
	if err != nil {
		if jobstore.IsAlreadyExists(err) {
			return exitError(foundry.ExitInvalidArgument, "Bundle conflicts with existing data (use --replace)", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to load bundle", err)
	}

	observability.CLILogger.Info("Bundle loaded",
		zap.String("file", path),
		zap.Int("jobs", result.Jobs),
		zap.Int("triggers", result.Triggers),
		zap.Int("calendars", result.Calendars))
	return nil
}
