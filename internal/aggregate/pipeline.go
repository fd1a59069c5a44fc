package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"tally/internal/anomaly"
	"tally/internal/ingest"
	"tally/internal/mathtarget"
	"tally/internal/placement"
	"tally/internal/platform/metrics"
	"tally/internal/platform/tracing"
	"tally/internal/protocol"
	"tally/pkg/domain"
)

// RaceResults holds one race's protocols by commission id.
type RaceResults map[domain.CommissionID]*protocol.Protocol

// Output is the result of a pipeline run.
type Output struct {
	Races []protocol.Race
	// Results is indexed by level, then race, then commission.
	Results map[domain.Level]map[domain.RaceKey]RaceResults
	// Counters holds anomaly counts per commission, precinct flags rolled up
	// to every ancestor.
	Counters map[domain.CommissionRef]anomaly.Counters
}

// Protocol returns one protocol, or nil.
func (o *Output) Protocol(level domain.Level, race domain.RaceKey, id domain.CommissionID) *protocol.Protocol {
	return o.Results[level][race][id]
}

// Pipeline runs placement, anomaly detection and aggregation over an
// ingested batch. Races are independent and processed in parallel.
type Pipeline struct {
	detector *anomaly.Detector
	profile  mathtarget.ProfileOptions
	workers  int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics sets the pipeline's metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithWorkers bounds how many races are processed at once.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		p.workers = n
	}
}

// NewPipeline returns a Pipeline using detector. Entry profiles cluster
// percentages the way the detector's thresholds ask for.
func NewPipeline(detector *anomaly.Detector, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector: detector,
		profile:  detector.Thresholds().ProfileOptions(),
		workers:  runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers <= 0 {
		p.workers = 1
	}
	return p
}

// raceGroup is one race's working set. Each group is touched by a single
// goroutine at a time.
type raceGroup struct {
	race   protocol.Race
	leaves RaceResults
	levels map[domain.Level]RaceResults
}

// Run processes res. Any failing race cancels the others and the partial
// output is discarded.
func (p *Pipeline) Run(ctx context.Context, res *ingest.Result) (out *Output, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "pipeline.run",
		attribute.Int("races", len(res.Races)),
		attribute.Int("protocols", len(res.Leaves)),
	)
	defer func() { tracing.End(span, err) }()

	groups := make([]*raceGroup, len(res.Races))
	byKey := make(map[domain.RaceKey]*raceGroup, len(res.Races))
	for i, race := range res.Races {
		g := &raceGroup{race: race, leaves: make(RaceResults), levels: make(map[domain.Level]RaceResults)}
		groups[i] = g
		byKey[race.Key] = g
	}
	for _, leaf := range res.Leaves {
		g, ok := byKey[leaf.Race]
		if !ok {
			return nil, fmt.Errorf("protocol for unknown race %s", leaf.Race)
		}
		g.leaves[leaf.Commission.ID] = leaf
	}

	if err := p.parallel(ctx, "pipeline.leaves", groups, p.placeLeaves); err != nil {
		return nil, err
	}
	p.crossRace(ctx, res, byKey)
	if err := p.parallel(ctx, "pipeline.aggregate", groups, func(ctx context.Context, g *raceGroup) error {
		return p.aggregateRace(ctx, res.Index, g)
	}); err != nil {
		return nil, err
	}

	out = p.assemble(res, groups)
	p.metrics.ObservePipeline(time.Since(start))
	if p.logger != nil {
		p.logger.InfoContext(ctx, "pipeline finished",
			"races", len(groups),
			"protocols", len(res.Leaves),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return out, nil
}

func (p *Pipeline) parallel(ctx context.Context, stage string, groups []*raceGroup, fn func(context.Context, *raceGroup) error) (err error) {
	ctx, span := tracing.Start(ctx, stage)
	defer func() { tracing.End(span, err) }()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, rg := range groups {
		rg := rg
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, rg); err != nil {
				return fmt.Errorf("race %s: %w", rg.race.Key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// placeLeaves ranks every precinct protocol of a race and runs the
// single-protocol checks.
func (p *Pipeline) placeLeaves(_ context.Context, g *raceGroup) error {
	for _, id := range sortedIDs(g.leaves) {
		leaf := g.leaves[id]
		if leaf.Empty {
			continue
		}
		if err := placement.Assign(leaf); err != nil {
			return err
		}
		p.detector.Leaf(leaf)
	}
	return nil
}

// crossRace compares each personal race with the party-list race of the same
// election at every precinct. It runs between the parallel stages because
// it touches two race groups at once.
func (p *Pipeline) crossRace(ctx context.Context, res *ingest.Result, byKey map[domain.RaceKey]*raceGroup) {
	_, span := tracing.Start(ctx, "pipeline.cross_race")
	defer span.End()

	for _, race := range res.Races {
		if race.Key.IsPartyList() {
			continue
		}
		list, ok := byKey[race.Key.PartyList()]
		if !ok {
			continue
		}
		personal := byKey[race.Key]
		for _, id := range sortedIDs(personal.leaves) {
			if lp, ok := list.leaves[id]; ok {
				p.detector.Races(lp, personal.leaves[id])
			}
		}
	}
}

func (p *Pipeline) aggregateRace(ctx context.Context, idx *protocol.Index, g *raceGroup) error {
	// Stuffing compares precincts at one address; every precinct of the group
	// belongs to this race.
	seen := make(map[domain.EntityID]struct{})
	for _, id := range sortedIDs(g.leaves) {
		c, ok := idx.Get(domain.CommissionRef{ID: id, Level: domain.LevelPrecinct})
		if !ok || c.AddressID == 0 {
			continue
		}
		if _, done := seen[c.AddressID]; done {
			continue
		}
		seen[c.AddressID] = struct{}{}
		group := []*protocol.Protocol{g.leaves[id]}
		for _, ref := range idx.CoLocated(c.Ref()) {
			if other, ok := g.leaves[ref.ID]; ok {
				group = append(group, other)
			}
		}
		if len(group) > 1 {
			p.detector.CoLocated(ctx, group)
		}
	}

	agg := NewAggregator(p.detector, p.profile)
	g.levels[domain.LevelPrecinct] = g.leaves

	build := func(level domain.Level, from RaceResults) error {
		out := make(RaceResults)
		for _, c := range idx.ByLevel(level) {
			var children []*protocol.Protocol
			for _, ref := range idx.Children(c.Ref()) {
				if child, ok := from[ref.ID]; ok {
					children = append(children, child)
				}
			}
			if len(children) == 0 {
				continue
			}
			ap, err := agg.Aggregate(c, g.race, children)
			if err != nil {
				return err
			}
			out[c.ID] = ap
		}
		g.levels[level] = out
		return nil
	}

	if err := build(domain.LevelTerritorial, g.leaves); err != nil {
		return err
	}
	if err := build(domain.LevelCity, g.levels[domain.LevelTerritorial]); err != nil {
		return err
	}
	return build(domain.LevelDistrict, g.leaves)
}

// assemble merges the race groups into one Output. It runs after every
// worker has finished.
func (p *Pipeline) assemble(res *ingest.Result, groups []*raceGroup) *Output {
	out := &Output{
		Races:    res.Races,
		Results:  make(map[domain.Level]map[domain.RaceKey]RaceResults, len(domain.Levels)),
		Counters: make(map[domain.CommissionRef]anomaly.Counters),
	}
	for _, level := range domain.Levels {
		out.Results[level] = make(map[domain.RaceKey]RaceResults, len(groups))
	}

	stats := make(map[domain.CommissionRef]*protocol.Stats)
	stat := func(ref domain.CommissionRef) *protocol.Stats {
		s, ok := stats[ref]
		if !ok {
			s = &protocol.Stats{SubCommissions: len(res.Index.Children(ref))}
			stats[ref] = s
		}
		return s
	}

	for _, g := range groups {
		for _, level := range domain.Levels {
			results := g.levels[level]
			if results == nil {
				results = make(RaceResults)
			}
			out.Results[level][g.race.Key] = results
			for _, pr := range results {
				s := stat(pr.Commission)
				if pr.Empty {
					s.EmptyProtocols++
				} else {
					s.Protocols++
				}
			}
		}

		for _, id := range sortedIDs(g.leaves) {
			leaf := g.leaves[id]
			kinds := p.detector.Record(leaf)
			if len(kinds) == 0 {
				continue
			}
			refs := append([]domain.CommissionRef{leaf.Commission}, res.Index.Ancestors(leaf.Commission)...)
			for _, ref := range refs {
				c, ok := out.Counters[ref]
				if !ok {
					c = anomaly.NewCounters()
					out.Counters[ref] = c
				}
				c.Observe(id, kinds)
			}
		}
	}

	for _, c := range res.Index.All() {
		s := stat(c.Ref())
		s.Anomalies = out.Counters[c.Ref()].Precincts()
		c.Stats = *s
	}
	return out
}

func sortedIDs(r RaceResults) []domain.CommissionID {
	ids := make([]domain.CommissionID, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
