package snapshot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/aggregate"
	"tally/internal/ingest"
	"tally/internal/registry"
	dErrors "tally/pkg/domain-errors"
)

// Source yields the batch to rebuild from.
type Source func(ctx context.Context) (*ingest.Batch, error)

// DirSource reads a batch laid out for ingest.LoadDir.
func DirSource(dir string) Source {
	return func(context.Context) (*ingest.Batch, error) {
		return ingest.LoadDir(dir)
	}
}

// EntityStore persists the entity registry of a run.
type EntityStore interface {
	SaveAll(ctx context.Context, records []registry.Record) error
}

// RebuildOption configures a Rebuilder.
type RebuildOption func(*Rebuilder)

// WithEntities persists every run's entity registry to s after publishing.
func WithEntities(s EntityStore) RebuildOption {
	return func(r *Rebuilder) {
		r.entities = s
	}
}

// Rebuilder runs ingestion and the pipeline over a source and publishes the
// result. Only one rebuild runs at a time.
type Rebuilder struct {
	source   Source
	builder  *ingest.Builder
	pipeline *aggregate.Pipeline
	service  *Service
	entities EntityStore
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// NewRebuilder wires a Rebuilder.
func NewRebuilder(source Source, builder *ingest.Builder, pipeline *aggregate.Pipeline, service *Service, logger *slog.Logger, opts ...RebuildOption) *Rebuilder {
	r := &Rebuilder{
		source:   source,
		builder:  builder,
		pipeline: pipeline,
		service:  service,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rebuild produces and publishes a new dataset. On any error the previously
// published dataset stays current.
func (r *Rebuilder) Rebuild(ctx context.Context) (*Dataset, error) {
	if !r.mu.TryLock() {
		return nil, dErrors.New(dErrors.CodeConflict, "rebuild already in progress")
	}
	defer r.mu.Unlock()

	runID := uuid.New()
	start := r.now()

	batch, err := r.source(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "load batch")
	}
	res, err := r.builder.Build(ctx, batch)
	if err != nil {
		return nil, r.fail(ctx, runID, "ingest", err)
	}
	out, err := r.pipeline.Run(ctx, res)
	if err != nil {
		return nil, r.fail(ctx, runID, "pipeline", err)
	}
	ds := FromRun(res, out, runID, r.now())
	if err := r.service.Publish(ctx, ds); err != nil {
		return nil, r.fail(ctx, runID, "publish", err)
	}
	if r.entities != nil {
		if err := r.entities.SaveAll(ctx, ds.Entities); err != nil && r.logger != nil {
			r.logger.WarnContext(ctx, "entity registry not persisted",
				"run_id", runID.String(),
				"error", err,
			)
		}
	}
	if r.logger != nil {
		r.logger.InfoContext(ctx, "rebuild finished",
			"run_id", runID.String(),
			"duration_ms", r.now().Sub(start).Milliseconds(),
		)
	}
	return ds, nil
}

func (r *Rebuilder) fail(ctx context.Context, runID uuid.UUID, stage string, err error) error {
	if r.logger != nil {
		r.logger.ErrorContext(ctx, "rebuild failed",
			"run_id", runID.String(),
			"stage", stage,
			"error", err,
		)
	}
	return err
}
