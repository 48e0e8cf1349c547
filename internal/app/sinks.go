package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	gcstorage "cloud.google.com/go/storage"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
	sha "github.com/JakeFAU/headless-page-crawler/internal/hash/sha256"
	"github.com/JakeFAU/headless-page-crawler/internal/progress"
	"github.com/JakeFAU/headless-page-crawler/internal/progress/sinks"
	pubsubpub "github.com/JakeFAU/headless-page-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/headless-page-crawler/internal/storage/gcs"
	"github.com/JakeFAU/headless-page-crawler/internal/storage/local"
	"github.com/JakeFAU/headless-page-crawler/internal/storage/memory"
	"github.com/JakeFAU/headless-page-crawler/internal/storage/postgres"
)

// buildSinks opens the backends enabled under sinks.* and returns the
// progress sinks fed by the hub. It also sets a.runs.
func (a *App) buildSinks(ctx context.Context, o options, ids crawler.IDGenerator) ([]progress.Sink, error) {
	cfg := a.cfg.Sinks
	var out []progress.Sink

	if cfg.Log {
		out = append(out, sinks.NewLogSink(a.logger.Named("pages")))
	}

	promSink, err := sinks.NewPrometheusSink(o.registrar)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	out = append(out, promSink)

	storeSink, err := a.buildStoreSink(ctx, ids)
	if err != nil {
		return nil, err
	}
	out = append(out, storeSink)

	hasher := sha.New()
	if cfg.File.Dir != "" {
		blobs, err := local.New(local.Config{BaseDir: cfg.File.Dir}, a.logger.Named("files"))
		if err != nil {
			return nil, fmt.Errorf("init file sink: %w", err)
		}
		out = append(out, sinks.NewBlobSink(blobs, hasher, "", a.logger.Named("files")))
	}

	if cfg.GCS.Bucket != "" {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.onClose("gcs client", func(context.Context) error { return client.Close() })
		blobs, err := gcs.New(client, gcs.Config{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix}, a.logger.Named("gcs"))
		if err != nil {
			return nil, fmt.Errorf("init gcs sink: %w", err)
		}
		out = append(out, sinks.NewBlobSink(blobs, hasher, "", a.logger.Named("gcs")))
	}

	if cfg.PubSub.ProjectID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		a.onClose("pubsub client", func(context.Context) error { return client.Close() })
		pub, err := pubsubpub.New(client, cfg.PubSub.Topic, a.logger.Named("pubsub"))
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.onClose("pubsub publisher", func(context.Context) error {
			pub.Close()
			return nil
		})
		out = append(out, sinks.NewPublishSink(pub, cfg.PubSub.Topic, a.logger.Named("pubsub")))
	}

	return append(out, o.sinks...), nil
}

// buildStoreSink persists runs to Postgres when a DSN is configured and to
// memory otherwise, so the ops routes always have a repository to read.
func (a *App) buildStoreSink(ctx context.Context, ids crawler.IDGenerator) (*sinks.StoreSink, error) {
	pg := a.cfg.Sinks.Postgres
	logger := a.logger.Named("store")
	if pg.DSN == "" {
		runs := memory.NewRunStore()
		a.runs = runs
		return sinks.NewStoreSink(runs, logger, sinks.WithResultStore(runs, ids)), nil
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: pg.DSN, MaxConns: pg.MaxConns})
	if err != nil {
		return nil, err
	}
	a.onClose("postgres pool", func(context.Context) error {
		pool.Close()
		return nil
	})
	a.ping = pool.Ping
	if pg.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		logger.Info("postgres schema applied")
	}
	runs, err := postgres.NewRunStore(pool)
	if err != nil {
		return nil, err
	}
	results, err := postgres.NewResultStore(pool, pg.Table)
	if err != nil {
		return nil, err
	}
	a.runs = runs
	return sinks.NewStoreSink(runs, logger, sinks.WithResultStore(results, ids)), nil
}
