// Package snapshot turns a pipeline run into a versioned, validated dataset
// and publishes it to the configured stores. Readers always see the last
// dataset that passed validation.
package snapshot

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"tally/internal/aggregate"
	"tally/internal/anomaly"
	"tally/internal/ingest"
	"tally/internal/protocol"
	"tally/internal/registry"
	"tally/pkg/domain"
)

// Version is bumped whenever the Dataset layout changes. A stored dataset
// with another version is stale and must be rebuilt.
const Version = 3

// LevelResults indexes one level's protocols by election, race id and
// commission id.
type LevelResults map[domain.ElectionType]map[string]map[domain.CommissionID]*protocol.Protocol

// RelatedTo links a commission to its neighbours in the hierarchy.
type RelatedTo struct {
	Parent    *domain.CommissionRef  `json:"parent,omitempty"`
	Siblings  []domain.CommissionRef `json:"siblings,omitempty"`
	CoLocated []domain.CommissionRef `json:"co_located,omitempty"`
	Children  []domain.CommissionRef `json:"children,omitempty"`
}

// CommissionAnalysis is the anomaly summary of one commission.
type CommissionAnalysis struct {
	Commission domain.CommissionRef `json:"commission"`
	Counters   anomaly.Counters     `json:"counters"`
	RelatedTo  RelatedTo            `json:"related_to"`
	// SeatedElsewhere lists members of this commission who also sit on
	// another one.
	SeatedElsewhere []registry.Record `json:"seated_elsewhere,omitempty"`
}

// Dataset is one published snapshot.
type Dataset struct {
	Version int       `json:"version"`
	RunID   uuid.UUID `json:"run_id"`
	BuiltAt time.Time `json:"built_at"`
	Digest  string    `json:"digest,omitempty"`

	Races       []protocol.Race                `json:"races"`
	Levels      map[domain.Level]LevelResults  `json:"levels"`
	Commissions []*protocol.Commission         `json:"commissions"`
	Analysis    map[string]*CommissionAnalysis `json:"analysis"`
	Entities    []registry.Record              `json:"entities"`
}

// Protocol returns one protocol, or nil.
func (d *Dataset) Protocol(level domain.Level, race domain.RaceKey, id domain.CommissionID) *protocol.Protocol {
	return d.Levels[level][race.Election][race.ID()][id]
}

// Race returns every protocol of a race at a level.
func (d *Dataset) Race(level domain.Level, race domain.RaceKey) map[domain.CommissionID]*protocol.Protocol {
	return d.Levels[level][race.Election][race.ID()]
}

// AnalysisFor returns the analysis of one commission, or nil.
func (d *Dataset) AnalysisFor(ref domain.CommissionRef) *CommissionAnalysis {
	return d.Analysis[ref.String()]
}

// Commission looks a commission up by reference.
func (d *Dataset) Commission(ref domain.CommissionRef) *protocol.Commission {
	for _, c := range d.Commissions {
		if c.Ref() == ref {
			return c
		}
	}
	return nil
}

// FromRun assembles a dataset from an ingest result and the pipeline output.
func FromRun(res *ingest.Result, out *aggregate.Output, runID uuid.UUID, builtAt time.Time) *Dataset {
	ds := &Dataset{
		Version:     Version,
		RunID:       runID,
		BuiltAt:     builtAt.UTC(),
		Races:       out.Races,
		Levels:      make(map[domain.Level]LevelResults, len(domain.Levels)),
		Commissions: res.Index.All(),
		Analysis:    make(map[string]*CommissionAnalysis, res.Index.Len()),
		Entities:    res.Registry.All(),
	}

	for _, level := range domain.Levels {
		lr := make(LevelResults)
		for race, results := range out.Results[level] {
			byRace, ok := lr[race.Election]
			if !ok {
				byRace = make(map[string]map[domain.CommissionID]*protocol.Protocol)
				lr[race.Election] = byRace
			}
			byRace[race.ID()] = results
		}
		ds.Levels[level] = lr
	}

	members := res.Registry.SeenAtMultipleVenues(registry.KindMember)
	for _, c := range ds.Commissions {
		ref := c.Ref()
		counters := out.Counters[ref]
		if counters == nil {
			counters = anomaly.NewCounters()
		}
		ca := &CommissionAnalysis{
			Commission: ref,
			Counters:   counters,
			RelatedTo: RelatedTo{
				Parent:    c.Parent,
				Siblings:  res.Index.Siblings(ref),
				CoLocated: res.Index.CoLocated(ref),
				Children:  res.Index.Children(ref),
			},
		}
		venue := domain.Venue{Level: ref.Level, CommissionID: ref.ID}
		for _, m := range members {
			if slices.Contains(m.RelatedTo, venue) {
				ca.SeatedElsewhere = append(ca.SeatedElsewhere, m)
			}
		}
		ds.Analysis[ref.String()] = ca
	}
	return ds
}

// Counts reports how many protocols each level holds.
func (d *Dataset) Counts() map[domain.Level]int {
	counts := make(map[domain.Level]int, len(d.Levels))
	for level, lr := range d.Levels {
		for _, races := range lr {
			for _, results := range races {
				counts[level] += len(results)
			}
		}
	}
	return counts
}
