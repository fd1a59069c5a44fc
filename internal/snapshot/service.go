package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"tally/internal/platform/metrics"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/sentinel"
)

// Service publishes validated datasets and serves the current one.
type Service struct {
	store     Store
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	current   atomic.Pointer[Dataset]
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the service's metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPublisher sets where "snapshot published" events go.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// New returns a Service backed by store.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("snapshot store is required")
	}
	s := &Service{store: store, publisher: NopPublisher{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Publish validates ds, stamps its digest and saves it. Until Save succeeds
// the previously published dataset stays current. A failed event is logged
// and does not fail the publish.
func (s *Service) Publish(ctx context.Context, ds *Dataset) error {
	if err := Validate(ds); err != nil {
		s.metrics.IncrementPublish("invalid")
		return err
	}
	digest, err := Digest(ds)
	if err != nil {
		s.metrics.IncrementPublish("failed")
		return dErrors.Wrap(err, dErrors.CodeInternal, "digest dataset")
	}
	ds.Digest = digest

	if err := s.store.Save(ctx, ds); err != nil {
		s.metrics.IncrementPublish("failed")
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "save dataset")
	}
	s.current.Store(ds)
	s.metrics.IncrementPublish("published")

	if err := s.publisher.Published(ctx, NewPublishedEvent(ds)); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "snapshot event not delivered",
			"run_id", ds.RunID.String(),
			"error", err,
		)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "snapshot published",
			"run_id", ds.RunID.String(),
			"digest", ds.Digest,
			"commissions", len(ds.Commissions),
		)
	}
	return nil
}

// Current returns the dataset readers should see. It falls back to the
// store on first use. A stale stored dataset is reported as
// sentinel.ErrStale so the caller can rebuild.
func (s *Service) Current(ctx context.Context) (*Dataset, error) {
	if ds := s.current.Load(); ds != nil {
		return ds, nil
	}
	ds, err := s.store.Latest(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrStale) || errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if ds.Version != Version {
		return nil, sentinel.ErrStale
	}
	s.current.CompareAndSwap(nil, ds)
	return s.current.Load(), nil
}
