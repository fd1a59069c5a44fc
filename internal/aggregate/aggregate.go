// Package aggregate folds precinct protocols up the commission hierarchy.
package aggregate

import (
	"sort"

	"tally/internal/anomaly"
	"tally/internal/mathtarget"
	"tally/internal/placement"
	"tally/internal/protocol"
	"tally/pkg/domain"
)

// Aggregator builds aggregate protocols from child protocols.
type Aggregator struct {
	detector *anomaly.Detector
	profile  mathtarget.ProfileOptions
}

// NewAggregator returns an Aggregator that re-runs detector on every
// aggregate it builds.
func NewAggregator(detector *anomaly.Detector, profile mathtarget.ProfileOptions) *Aggregator {
	return &Aggregator{detector: detector, profile: profile}
}

// Aggregate combines children into target's protocol for race. Children are
// either precinct protocols, already placed, or aggregates of a lower level.
//
// Empty children contribute nothing but are listed in EmptyUIKs; precincts
// without a received ballot count are listed in UncheckedUIKs. Counters
// are summed field by field, entries are merged by key, turnout checkpoints
// by label. The result is placed and checked for anomalies at its own level;
// an aggregate with no effective precinct is marked empty.
func (a *Aggregator) Aggregate(target *protocol.Commission, race protocol.Race, children []*protocol.Protocol) (*protocol.Protocol, error) {
	p := protocol.New(target.Ref(), race)

	entries := make(map[protocol.EntryKey]*protocol.Entry)
	var order []protocol.EntryKey
	checkpoints := make(map[string]int)
	var surplus, stuffed int64
	var formulas [][]protocol.FormulaTerm

	for _, child := range children {
		if child == nil {
			continue
		}
		leaf := child.Commission.Level.IsLeaf()
		if leaf {
			if child.Empty {
				p.EmptyUIKs = append(p.EmptyUIKs, child.Commission.ID)
				continue
			}
			p.EffectiveUIKs = append(p.EffectiveUIKs, child.Commission.ID)
			if child.Metadata.BallotsReceived == 0 {
				p.UncheckedUIKs = append(p.UncheckedUIKs, child.Commission.ID)
			}
		} else {
			p.EffectiveUIKs = append(p.EffectiveUIKs, child.EffectiveUIKs...)
			p.EmptyUIKs = append(p.EmptyUIKs, child.EmptyUIKs...)
			p.UncheckedUIKs = append(p.UncheckedUIKs, child.UncheckedUIKs...)
			if child.Empty {
				continue
			}
		}

		p.Metadata.Add(child.Metadata)
		for _, cp := range child.Turnout {
			i, ok := checkpoints[cp.Label]
			if !ok {
				checkpoints[cp.Label] = len(p.Turnout)
				p.Turnout = append(p.Turnout, protocol.Checkpoint{Label: cp.Label, Count: cp.Count, Delta: cp.Delta})
				continue
			}
			p.Turnout[i].Count += cp.Count
			p.Turnout[i].Delta += cp.Delta
		}

		surplus += child.Analysis.ExceededPapersCount
		stuffed += child.Analysis.StuffedVotes
		if len(child.Analysis.ExceededPapersFormula) > 0 {
			formulas = append(formulas, child.Analysis.ExceededPapersFormula)
		}

		for _, ce := range child.Entries {
			e, ok := entries[ce.Key]
			if !ok {
				e = &protocol.Entry{Key: ce.Key, Name: ce.Name, Profile: mathtarget.NewProfile(a.profile)}
				entries[ce.Key] = e
				order = append(order, ce.Key)
			}
			e.VotesCount += ce.VotesCount
			if leaf {
				e.Profile.Observe(child.Commission.ID, ce.VotesCount, ce.Percentage.OfValid, ce.Place)
			} else {
				e.Profile.Merge(ce.Profile)
			}
		}
	}

	sortIDs(p.EffectiveUIKs)
	sortIDs(p.EmptyUIKs)
	sortIDs(p.UncheckedUIKs)

	if len(p.EffectiveUIKs) == 0 {
		p.Empty = true
		return p, nil
	}

	for _, key := range order {
		p.Entries = append(p.Entries, entries[key])
	}
	protocol.SetCheckpointPercentages(p.Turnout, p.Metadata.VotersRegistered)

	if err := placement.Assign(p); err != nil {
		return nil, err
	}
	for _, e := range p.Entries {
		e.Profile.Finish(e.VotesCount)
	}
	a.detector.Aggregate(p, surplus, stuffed, formulas)
	return p, nil
}

func sortIDs(ids []domain.CommissionID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
