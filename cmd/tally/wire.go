package main

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/aggregate"
	"tally/internal/anomaly"
	"tally/internal/ingest"
	"tally/internal/platform/config"
	"tally/internal/platform/kafka"
	"tally/internal/platform/logger"
	"tally/internal/platform/metrics"
	"tally/internal/platform/postgres"
	"tally/internal/platform/redis"
	"tally/internal/registry/store"
	"tally/internal/snapshot"
)

// app holds everything the commands share. cleanup releases it in reverse
// order of acquisition.
type app struct {
	cfg       config.Server
	logger    *slog.Logger
	metrics   *metrics.Metrics
	service   *snapshot.Service
	rebuilder *snapshot.Rebuilder
	cleanup   []func()
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func wire(ctx context.Context, cfg config.Server) (_ *app, err error) {
	a := &app{
		cfg:     cfg,
		logger:  logger.New(cfg.LogFormat, cfg.LogLevel),
		metrics: metrics.New(),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	thresholds, err := config.LoadThresholds(cfg.ThresholdsPath)
	if err != nil {
		return nil, err
	}

	snapshots, entities, err := a.stores(ctx)
	if err != nil {
		return nil, err
	}

	publisher, err := a.publisher(ctx)
	if err != nil {
		return nil, err
	}

	a.service, err = snapshot.New(snapshots,
		snapshot.WithLogger(a.logger),
		snapshot.WithMetrics(a.metrics),
		snapshot.WithPublisher(publisher),
	)
	if err != nil {
		return nil, err
	}

	detector := anomaly.NewDetector(thresholds,
		anomaly.WithLogger(a.logger),
		anomaly.WithMetrics(a.metrics),
	)
	pipeline := aggregate.NewPipeline(detector,
		aggregate.WithLogger(a.logger),
		aggregate.WithMetrics(a.metrics),
		aggregate.WithWorkers(cfg.Workers),
	)
	builder := ingest.NewBuilder(
		ingest.WithLogger(a.logger),
		ingest.WithMetrics(a.metrics),
	)

	var opts []snapshot.RebuildOption
	if entities != nil {
		opts = append(opts, snapshot.WithEntities(entities))
	}
	a.rebuilder = snapshot.NewRebuilder(snapshot.DirSource(cfg.InputDir), builder, pipeline, a.service, a.logger, opts...)
	return a, nil
}

// stores picks the snapshot store: Postgres when DATABASE_URL is set, a bbolt
// file when SNAPSHOT_BOLT_PATH is set, memory otherwise. Redis, when
// configured, caches in front of it.
func (a *app) stores(ctx context.Context) (snapshot.Store, snapshot.EntityStore, error) {
	var (
		primary  snapshot.Store
		entities snapshot.EntityStore
	)
	switch {
	case a.cfg.Postgres.URL != "":
		pool, err := postgres.NewPool(ctx, a.cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		a.cleanup = append(a.cleanup, pool.Close)
		pg := snapshot.NewPostgresStore(pool, a.metrics)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		primary = pg

		db, err := postgres.OpenSQLX(ctx, a.cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		a.cleanup = append(a.cleanup, func() { _ = db.Close() })
		reg := store.NewPostgres(db)
		if err := reg.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		entities = reg
	case a.cfg.Bolt.Path != "":
		bolt, err := snapshot.OpenBolt(a.cfg.Bolt.Path, a.metrics)
		if err != nil {
			return nil, nil, err
		}
		a.cleanup = append(a.cleanup, func() { _ = bolt.Close() })
		primary = bolt
	default:
		a.logger.WarnContext(ctx, "no snapshot store configured, keeping snapshots in memory")
		primary = snapshot.NewMemoryStore()
	}

	client, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return primary, entities, nil
	}
	a.cleanup = append(a.cleanup, func() { _ = client.Close() })
	return snapshot.NewRedisCache(client, primary, a.cfg.Redis.TTL, a.logger, a.metrics), entities, nil
}

func (a *app) publisher(ctx context.Context) (snapshot.EventPublisher, error) {
	client, err := kafka.NewClient(a.cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return snapshot.NopPublisher{}, nil
	}
	a.cleanup = append(a.cleanup, client.Close)
	if err := kafka.EnsureTopic(ctx, client, a.cfg.Kafka); err != nil {
		return nil, fmt.Errorf("kafka topic: %w", err)
	}
	return snapshot.NewKafkaPublisher(client, a.cfg.Kafka.Topic), nil
}
