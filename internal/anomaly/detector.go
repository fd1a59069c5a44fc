// Package anomaly flags statistically or arithmetically suspicious protocols.
// Flags are metadata on the protocol; counters are never corrected.
package anomaly

import (
	"context"
	"log/slog"

	"tally/internal/platform/metrics"
	"tally/internal/protocol"
)

// Detector runs the anomaly checks and reports what it flags.
type Detector struct {
	thresholds Thresholds
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger for flagged protocols.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

// NewDetector returns a detector using th.
func NewDetector(th Thresholds, opts ...Option) *Detector {
	d := &Detector{thresholds: th}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Thresholds returns the detector's thresholds.
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// Leaf runs the single-protocol checks on a precinct protocol.
func (d *Detector) Leaf(p *protocol.Protocol) {
	CheckChecksum(p)
}

// Races runs the cross-race check for one commission and election.
func (d *Detector) Races(party, personal *protocol.Protocol) {
	CheckExceeded(party, personal)
}

// CoLocated runs the stuffing heuristic on precincts sharing an address.
func (d *Detector) CoLocated(ctx context.Context, group []*protocol.Protocol) {
	for _, p := range DetectStuffing(group, d.thresholds) {
		if d.logger != nil {
			d.logger.InfoContext(ctx, "stuffing suspected",
				"commission_id", p.Commission.ID,
				"race", p.Race.String(),
				"baseline_id", p.Analysis.Stuffing.Baseline,
				"estimated_votes", p.Analysis.Stuffing.EstimatedVotes,
			)
		}
	}
}

// Aggregate re-runs the checks on an aggregate protocol whose entries have
// already been placed. surplus and stuffed are the sums over its children.
func (d *Detector) Aggregate(p *protocol.Protocol, surplus, stuffed int64, formulas [][]protocol.FormulaTerm) {
	CheckChecksum(p)
	ApplyExceeded(p, surplus, SumFormula(formulas...))
	p.Analysis.Stuffing = nil
	p.Analysis.StuffedVotes = stuffed
	p.Analysis.RepeatedPercentages = false
	for _, e := range p.Entries {
		if e.Profile != nil && len(e.Profile.RepeatedPercentages) > 0 {
			p.Analysis.RepeatedPercentages = true
			break
		}
	}
}

// Record counts p's flags in metrics and returns them.
func (d *Detector) Record(p *protocol.Protocol) []protocol.AnomalyKind {
	kinds := p.Analysis.Kinds()
	for _, k := range kinds {
		d.metrics.IncrementAnomaly(string(k), string(p.Commission.Level))
	}
	return kinds
}
