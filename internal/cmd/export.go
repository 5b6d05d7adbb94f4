package cmd

import (
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/dynastore/internal/observability"
	"github.com/3leaps/dynastore/pkg/export"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export scheduling data as newline-delimited JSON",
	Long: `Export every job, trigger, and calendar as one JSON record per line,
followed by a summary record. Trigger records include live protocol
state (owner, next fire time), so exports double as a cluster
inspection tool.

Examples:
  dynastore export
  dynastore export -o snapshot.jsonl
  dynastore export | jq 'select(.type == "trigger") | .data.state'`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to a file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	store, err := openJobStore(ctx, cfg)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to DynamoDB", err)
	}

	out := os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to create output file", err)
		}
		defer f.Close()
		out = f
	}

	w := export.NewJSONLWriter(out, cfg.Store.InstanceID)
	defer w.Close()

	sum, err := export.Export(ctx, store, w)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Export failed", err)
	}

	observability.CLILogger.Info("Export complete",
		zap.Int("jobs", sum.Jobs),
		zap.Int("triggers", sum.Triggers),
		zap.Int("calendars", sum.Calendars))
	return nil
}
