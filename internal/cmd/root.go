package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/dynastore/internal/config"
	"github.com/3leaps/dynastore/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "dynastore",
	Short: "DynamoDB-backed job store for distributed schedulers",
	Long: `dynastore manages the persistence layer of a clustered job scheduler:
jobs, triggers, calendars, and scheduler liveness records stored in
DynamoDB tables.

Commands cover table lifecycle (init/status/drop), loading declarative
scheduling bundles, exporting store contents, diagnostics, clearing
scheduling data, and running the admin server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagLogLevel == "" && flagLogProfile == "" {
			return nil
		}
		level := flagLogLevel
		if level == "" {
			level = "info"
		}
		profile := flagLogProfile
		if profile == "" {
			profile = "console"
		}
		return observability.InitLogging(level, profile)
	},
}

var (
	flagConfig     string
	flagLogLevel   string
	flagLogProfile string
)

// versionInfo carries build metadata injected via ldflags.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = version
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: dynastore.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&flagLogProfile, "log-profile", "", "Log profile (structured|console|dev)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dynastore %s (commit %s, built %s)\n",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	},
}

// loadConfig resolves runtime configuration for a command invocation.
func loadConfig(ctx context.Context, overrides ...map[string]any) (*config.Config, error) {
	return config.Load(ctx, flagConfig, overrides...)
}

// cliError pairs a process exit code with a user-facing message.
type cliError struct {
	code    int
	message string
	err     error
}

func (e *cliError) Error() string {
	if e.err == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.err)
}

func (e *cliError) Unwrap() error { return e.err }

// exitError wraps an error with the foundry exit code the process
// should terminate with.
func exitError[Code ~int](code Code, message string, err error) error {
	return &cliError{code: int(code), message: message, err: err}
}

// Execute runs the root command, translating cliError exit codes into
// process exit status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	var ce *cliError
	if errors.As(err, &ce) {
		observability.CLILogger.Error(ce.message, zap.Error(ce.err))
		_ = observability.CLILogger.Sync()
		os.Exit(ce.code)
	}

	observability.CLILogger.Error("command failed", zap.Error(err))
	_ = observability.CLILogger.Sync()
	os.Exit(1)
}
