package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/3leaps/dynastore/internal/observability"
	"github.com/3leaps/dynastore/internal/server"
	"github.com/3leaps/dynastore/internal/server/handlers"
	"github.com/3leaps/dynastore/pkg/jobstore"
	"github.com/3leaps/dynastore/pkg/storage"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin HTTP server",
	Long: `Run the admin server exposing health checks and store statistics.

Endpoints:
  GET /health        aggregated health (storage reachability)
  GET /health/ready  process readiness
  GET /stats         job, trigger, and calendar counts
  GET /version       build version`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var overrides []map[string]any
	if serveHost != "" || servePort != 0 {
		section := map[string]any{}
		if serveHost != "" {
			section["host"] = serveHost
		}
		if servePort != 0 {
			section["port"] = servePort
		}
		overrides = append(overrides, map[string]any{"server": section})
	}

	cfg, err := loadConfig(ctx, overrides...)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	dyn, err := openStorage(ctx, cfg)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to DynamoDB", err)
	}
	store := jobstore.New(dyn, jobstore.Config{
		InstanceID:       cfg.Store.InstanceID,
		MisfireThreshold: cfg.Store.MisfireThreshold,
		LeaseDuration:    cfg.Store.LeaseDuration,
	}, observability.CLILogger)

	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithVersion(versionInfo.Version),
		server.WithHealthChecker("dynamodb", storageChecker{dyn}),
		server.WithStats(storeStats(store)),
	)

	observability.CLILogger.Info("Admin server starting",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return exitError(foundry.ExitExternalServiceUnavailable, "Admin server failed", err)
	}
	observability.CLILogger.Info("Admin server stopped")
	return nil
}

// storageChecker reports storage health by describing the trigger
// table, the hottest table in the schema.
type storageChecker struct {
	store interface {
		DescribeTable(ctx context.Context, table string) (*storage.TableInfo, error)
	}
}

func (c storageChecker) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := c.store.DescribeTable(ctx, jobstore.TableTrigger)
	return err
}

func storeStats(store *jobstore.JobStore) handlers.StatsFunc {
	return func(ctx context.Context) (any, error) {
		jobs, err := store.GetNumberOfJobs(ctx)
		if err != nil {
			return nil, err
		}
		triggers, err := store.GetNumberOfTriggers(ctx)
		if err != nil {
			return nil, err
		}
		calendars, err := store.GetNumberOfCalendars(ctx)
		if err != nil {
			return nil, err
		}
		paused, err := store.GetPausedTriggerGroups(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"jobs":                  jobs,
			"triggers":              triggers,
			"calendars":             calendars,
			"paused_trigger_groups": paused,
		}, nil
	}
}
