package cmd

import (
	"context"

	"github.com/3leaps/dynastore/internal/config"
	"github.com/3leaps/dynastore/internal/observability"
	"github.com/3leaps/dynastore/pkg/jobstore"
	"github.com/3leaps/dynastore/pkg/storage/dynamo"
)

// openStorage builds the DynamoDB storage backend from configuration.
func openStorage(ctx context.Context, cfg *config.Config) (*dynamo.Store, error) {
	return dynamo.New(ctx, dynamo.Config{
		Region:          cfg.Dynamo.Region,
		Endpoint:        cfg.Dynamo.Endpoint,
		Profile:         cfg.Dynamo.Profile,
		AccessKeyID:     cfg.Dynamo.AccessKeyID,
		SecretAccessKey: cfg.Dynamo.SecretAccessKey,
		TablePrefix:     cfg.Dynamo.TablePrefix,
		RateLimit:       cfg.Dynamo.RateLimit,
		WriteAttempts:   cfg.Dynamo.WriteAttempts,
		ReadAttempts:    cfg.Dynamo.ReadAttempts,
	})
}

// openJobStore builds a job store over the configured backend.
func openJobStore(ctx context.Context, cfg *config.Config) (*jobstore.JobStore, error) {
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	js := jobstore.New(store, jobstore.Config{
		InstanceID:       cfg.Store.InstanceID,
		MisfireThreshold: cfg.Store.MisfireThreshold,
		LeaseDuration:    cfg.Store.LeaseDuration,
	}, observability.CLILogger)
	return js, nil
}
