package anomaly

import (
	"math"
	"sort"

	"tally/internal/protocol"
)

// DetectStuffing looks for ballot-box padding among the precincts of one
// race that share a polling address. Voters at one address should split
// their votes alike, so the precinct where the group's winner does worst
// serves as the baseline. Another precinct is flagged when the winner beats
// the baseline by the excess thresholds while every other entry, measured
// without the winner, still matches the baseline.
//
// Flagged protocols get a StuffingEstimate; the returned slice lists them in
// input order.
func DetectStuffing(group []*protocol.Protocol, th Thresholds) []*protocol.Protocol {
	var live []*protocol.Protocol
	for _, p := range group {
		if p == nil || p.Empty || p.Votes() == 0 {
			continue
		}
		p.Analysis.Stuffing = nil
		p.Analysis.StuffedVotes = 0
		live = append(live, p)
	}
	if len(live) < 2 {
		return nil
	}

	winner, ok := groupWinner(live)
	if !ok {
		return nil
	}

	base := live[0]
	for _, p := range live[1:] {
		if p.Share(winner) < base.Share(winner) {
			base = p
		}
	}
	baseVotes := votesOf(base, winner)
	baseRest := base.Votes() - baseVotes
	if baseRest <= 0 {
		return nil
	}

	var flagged []*protocol.Protocol
	for _, p := range live {
		if p == base {
			continue
		}
		excess := p.Share(winner) - base.Share(winner)
		if excess < th.ExcessPoints {
			continue
		}
		rest := p.Votes() - votesOf(p, winner)
		expected := float64(baseVotes) / float64(baseRest) * float64(rest)
		stuffed := int64(math.Round(float64(votesOf(p, winner)) - expected))
		if stuffed < th.ExcessVotes {
			continue
		}
		if !othersMatch(p, base, winner, th) {
			continue
		}
		p.Analysis.Stuffing = &protocol.StuffingEstimate{
			Entry:            winner,
			Baseline:         base.Commission.ID,
			ExcessPercentage: excess,
			EstimatedVotes:   stuffed,
		}
		p.Analysis.StuffedVotes = stuffed
		flagged = append(flagged, p)
	}
	return flagged
}

// othersMatch reports whether every entry but the winner holds the same
// share of the non-winner votes at p as at base.
func othersMatch(p, base *protocol.Protocol, winner protocol.EntryKey, th Thresholds) bool {
	rest := p.Votes() - votesOf(p, winner)
	baseRest := base.Votes() - votesOf(base, winner)
	if rest <= 0 {
		return false
	}
	for _, key := range entryKeys(p, base) {
		if key == winner {
			continue
		}
		got := votesOf(p, key)
		want := float64(votesOf(base, key)) / float64(baseRest) * float64(rest)
		points := protocol.Percent(got, rest) - protocol.Percent(votesOf(base, key), baseRest)
		if math.Abs(points) > th.MatchPoints {
			return false
		}
		if math.Abs(float64(got)-want) > float64(th.MatchVotes) {
			return false
		}
	}
	return true
}

// groupWinner is the entry with the most votes across the group.
func groupWinner(group []*protocol.Protocol) (protocol.EntryKey, bool) {
	totals := make(map[protocol.EntryKey]int64)
	for _, p := range group {
		for _, e := range p.Entries {
			totals[e.Key] += e.VotesCount
		}
	}
	var best protocol.EntryKey
	var bestVotes int64 = -1
	for key, v := range totals {
		if v > bestVotes || (v == bestVotes && key.Less(best)) {
			best, bestVotes = key, v
		}
	}
	return best, bestVotes > 0
}

func votesOf(p *protocol.Protocol, key protocol.EntryKey) int64 {
	if e := p.Entry(key); e != nil {
		return e.VotesCount
	}
	return 0
}

func entryKeys(ps ...*protocol.Protocol) []protocol.EntryKey {
	seen := make(map[protocol.EntryKey]struct{})
	var keys []protocol.EntryKey
	for _, p := range ps {
		for _, e := range p.Entries {
			if _, ok := seen[e.Key]; !ok {
				seen[e.Key] = struct{}{}
				keys = append(keys, e.Key)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
