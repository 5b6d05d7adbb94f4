package cmd

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/dynastore/internal/observability"
	"github.com/3leaps/dynastore/pkg/jobstore"
	"github.com/3leaps/dynastore/pkg/storage"
)

var doctorEndpoint string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks against the configured DynamoDB backend and
report anything that would keep a scheduler cluster from running.

Examples:
  dynastore doctor                         # Full environment and store check
  dynastore doctor --endpoint http://localhost:8000`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().StringVar(&doctorEndpoint, "endpoint", "", "DynamoDB endpoint URL (overrides config)")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := observability.CLILogger

	log.Info("=== dynastore doctor ===")
	log.Info("")
	log.Info("Running diagnostic checks...")
	log.Info("")

	healthy := true
	checkNum := 1
	totalChecks := 5

	// Check 1: runtime
	log.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s %s/%s",
		checkNum, totalChecks, runtime.Version(), runtime.GOOS, runtime.GOARCH),
		zap.String("go_version", runtime.Version()),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	// Check 2: configuration
	var overrides []map[string]any
	if doctorEndpoint != "" {
		overrides = append(overrides, map[string]any{"dynamo": map[string]any{"endpoint": doctorEndpoint}})
	}
	cfg, err := loadConfig(ctx, overrides...)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking configuration... ❌ invalid", checkNum, totalChecks),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking configuration... ✅ region %s, prefix %q",
		checkNum, totalChecks, cfg.Dynamo.Region, cfg.Dynamo.TablePrefix),
		zap.String("region", cfg.Dynamo.Region),
		zap.String("table_prefix", cfg.Dynamo.TablePrefix),
		zap.String("instance_id", cfg.Store.InstanceID))
	checkNum++

	// Check 3: backend connectivity
	store, err := openStorage(ctx, cfg)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking DynamoDB connectivity... ❌ cannot build client", checkNum, totalChecks),
			zap.Error(err))
		printCredentialsHelp(log)
		return exitError(foundry.ExitExternalServiceUnavailable, "Cannot reach DynamoDB", err)
	}
	if _, err := store.DescribeTable(ctx, jobstore.TableJob); err != nil && !storage.IsTableNotFound(err) {
		log.Error(fmt.Sprintf("[%d/%d] Checking DynamoDB connectivity... ❌ request failed", checkNum, totalChecks),
			zap.Error(err))
		printCredentialsHelp(log)
		return exitError(foundry.ExitExternalServiceUnavailable, "Cannot reach DynamoDB", err)
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking DynamoDB connectivity... ✅ reachable", checkNum, totalChecks))
	checkNum++

	// Check 4: table inventory
	names := make([]string, 0, len(jobstore.TableSpecs()))
	for name := range jobstore.TableSpecs() {
		names = append(names, name)
	}
	sort.Strings(names)
	missing := 0
	for _, name := range names {
		if _, err := store.DescribeTable(ctx, name); err != nil {
			if storage.IsTableNotFound(err) {
				missing++
				continue
			}
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to describe table", err)
		}
	}
	if missing > 0 {
		log.Warn(fmt.Sprintf("[%d/%d] Checking tables... ⚠️  %d of %d missing (run 'dynastore tables init')",
			checkNum, totalChecks, missing, len(names)),
			zap.Int("missing", missing))
		healthy = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking tables... ✅ all %d present", checkNum, totalChecks, len(names)))
	}
	checkNum++

	// Check 5: store contents, skipped when tables are missing
	if missing == 0 {
		js := jobstore.New(store, jobstore.Config{InstanceID: cfg.Store.InstanceID}, log)
		jobs, err := js.GetNumberOfJobs(ctx)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to read job table", err)
		}
		triggers, err := js.GetNumberOfTriggers(ctx)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to read trigger table", err)
		}
		calendars, err := js.GetNumberOfCalendars(ctx)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to read calendar table", err)
		}
		log.Info(fmt.Sprintf("[%d/%d] Checking store contents... ✅ %d jobs, %d triggers, %d calendars",
			checkNum, totalChecks, jobs, triggers, calendars),
			zap.Int("jobs", jobs),
			zap.Int("triggers", triggers),
			zap.Int("calendars", calendars))
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking store contents... ⚠️  skipped, tables missing", checkNum, totalChecks))
	}

	log.Info("")
	if healthy {
		log.Info("✅ All checks passed. The store is ready for schedulers.")
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("")
	log.Info("=== End Diagnostics ===")
	return nil
}

// printCredentialsHelp prints help for configuring DynamoDB access.
func printCredentialsHelp(log *zap.Logger) {
	log.Info("")
	log.Info("To configure DynamoDB access:")
	log.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	log.Info("  2. Run 'aws configure' to set up a profile, or")
	log.Info("  3. Use an IAM role when running on AWS infrastructure")
	log.Info("")
	log.Info("For DynamoDB Local, set dynamo.endpoint or use --endpoint:")
	log.Info("  dynastore doctor --endpoint http://localhost:8000")
	log.Info("")
}
