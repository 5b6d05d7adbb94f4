package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/dynastore/internal/observability"
	"github.com/3leaps/dynastore/pkg/jobstore"
	"github.com/3leaps/dynastore/pkg/storage"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Manage the job store's DynamoDB tables",
}

var tablesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create all job store tables (idempotent)",
	Args:  cobra.NoArgs,
	RunE:  runTablesInit,
}

var tablesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show table status and item counts",
	Args:  cobra.NoArgs,
	RunE:  runTablesStatus,
}

var (
	tablesDropForce bool
)

var tablesDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete all job store tables",
	Long: `Delete every job store table, including the scheduler liveness table.

All scheduling data is lost. Requires --force.`,
	Args: cobra.NoArgs,
	RunE: runTablesDrop,
}

func init() {
	rootCmd.AddCommand(tablesCmd)
	tablesCmd.AddCommand(tablesInitCmd)
	tablesCmd.AddCommand(tablesStatusCmd)
	tablesCmd.AddCommand(tablesDropCmd)

	tablesDropCmd.Flags().BoolVar(&tablesDropForce, "force", false, "Confirm destructive table deletion")
}

func runTablesInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to DynamoDB", err)
	}

	if err := jobstore.EnsureTables(ctx, store); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to create tables", err)
	}

	names := make([]string, 0, len(jobstore.TableSpecs()))
	for name := range jobstore.TableSpecs() {
		names = append(names, name)
	}
	sort.Strings(names)
	observability.CLILogger.Info("Tables ready",
		zap.Strings("tables", names),
		zap.String("prefix", cfg.Dynamo.TablePrefix))
	return nil
}

func runTablesStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to DynamoDB", err)
	}

	names := make([]string, 0, len(jobstore.TableSpecs()))
	for name := range jobstore.TableSpecs() {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tSTATUS\tITEMS")
	for _, name := range names {
		info, err := store.DescribeTable(ctx, name)
		if err != nil {
			if storage.IsTableNotFound(err) {
				fmt.Fprintf(w, "%s\tMISSING\t-\n", name)
				continue
			}
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to describe table", err)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\n", name, info.Status, info.ItemCount)
	}
	return w.Flush()
}

func runTablesDrop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !tablesDropForce {
		return exitError(foundry.ExitInvalidArgument, "Refusing to drop tables without --force", fmt.Errorf("pass --force to confirm"))
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to DynamoDB", err)
	}

	if err := jobstore.DropTables(ctx, store); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to drop tables", err)
	}
	observability.CLILogger.Info("Tables dropped", zap.String("prefix", cfg.Dynamo.TablePrefix))
	return nil
}
