// Package placement turns raw vote counts into ranked places, winner sets
// and percentage breakdowns.
package placement

import (
	"math"
	"sort"

	"tally/internal/protocol"
	dErrors "tally/pkg/domain-errors"
)

// Assign ranks the entries of p, marks winners and fills p.Result. Empty
// protocols are left untouched.
//
// The vote sum is checked against the published ballots: for single-winner
// races it must match exactly, for multi-winner races it must not exceed
// valid ballots times the seat count. A violation means the protocol was
// built inconsistently and is returned as an invariant violation.
func Assign(p *protocol.Protocol) error {
	if p.Empty {
		return nil
	}
	winnerCount := p.WinnerCount
	if winnerCount <= 0 {
		winnerCount = 1
	}
	ranked := Rank(p.Entries, winnerCount)

	m := p.Metadata
	var winning, losing int64
	var winners []protocol.EntryKey
	for _, e := range ranked {
		if e.Winner {
			winning += e.VotesCount
			winners = append(winners, e.Key)
		} else {
			losing += e.VotesCount
		}
	}
	other := m.Other()
	competing := winning + losing

	if err := guard(competing, other, m.BallotsValid, winnerCount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation,
			"placement "+p.Race.String()+" at "+string(p.Commission.Level)+" "+p.Commission.ID.String())
	}

	total := competing + other
	stats := protocol.VotesStats{
		WinningVotes:      winning,
		LosingVotes:       losing,
		OtherVotes:        other,
		TotalVotes:        total,
		WinningPercentage: protocol.Percent(winning, competing),
		LosingPercentage:  protocol.Percent(losing, competing),
		OtherPercentage:   protocol.Percent(other, total),
	}

	for _, e := range ranked {
		e.Percentage = protocol.Percentages{
			OfTotal:      protocol.Percent(e.VotesCount, total),
			OfValid:      protocol.Percent(e.VotesCount, competing),
			OfRegistered: protocol.Percent(e.VotesCount, m.VotersRegistered),
		}
		e.ResultWithoutOther = nil
	}
	if winnerCount == 1 {
		withoutOther(ranked, competing)
	}

	p.Entries = ranked
	p.Result = protocol.OfficialResult{
		Winners:    winners,
		VotesStats: stats,
		Breakdown:  breakdown(ranked, competing),
		Turnout: protocol.Turnout{
			Percentage: protocol.Percent(m.Issued(), m.VotersRegistered),
			Early:      protocol.Percent(m.IssuedEarly, m.VotersRegistered),
			WalkIn:     protocol.Percent(m.IssuedWalkIn, m.VotersRegistered),
			AtHome:     protocol.Percent(m.IssuedAtHome, m.VotersRegistered),
		},
	}
	return nil
}

func guard(competing, other, valid int64, winnerCount int) error {
	if winnerCount == 1 {
		if competing+other != valid+other {
			return dErrors.Newf(dErrors.CodeInvariantViolation,
				"entry votes %d do not match valid ballots %d", competing, valid)
		}
		return nil
	}
	if competing+other > valid*int64(winnerCount)+other {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"entry votes %d exceed %d valid ballots times %d seats", competing, valid, winnerCount)
	}
	return nil
}

// Rank sorts entries by votes descending and assigns places. A group of k
// entries tied at integer place p shares the mean place p + (k-1)/2, so the
// group's places still sum to p + (p+1) + … + (p+k-1). An entry wins when it
// has votes and floor(place) <= winnerCount.
//
// The returned slice is a sorted copy; the entries themselves are updated.
func Rank(entries []*protocol.Entry, winnerCount int) []*protocol.Entry {
	ranked := append([]*protocol.Entry(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].VotesCount != ranked[j].VotesCount {
			return ranked[i].VotesCount > ranked[j].VotesCount
		}
		return ranked[i].Key.Less(ranked[j].Key)
	})

	place := 1
	for i := 0; i < len(ranked); {
		j := i
		for j < len(ranked) && ranked[j].VotesCount == ranked[i].VotesCount {
			j++
		}
		k := j - i
		shared := float64(place) + float64(k-1)/2
		for _, e := range ranked[i:j] {
			e.Place = shared
			e.SamePlaceCount = k
			e.Winner = e.VotesCount > 0 && int(math.Floor(shared)) <= winnerCount
		}
		place += k
		i = j
	}
	return ranked
}

// withoutOther fills, for every entry, its share of the competing votes had
// each other entry not taken part.
func withoutOther(ranked []*protocol.Entry, competing int64) {
	if len(ranked) < 2 {
		return
	}
	for _, e := range ranked {
		e.ResultWithoutOther = make(map[protocol.EntryKey]float64, len(ranked)-1)
		for _, o := range ranked {
			if o == e {
				continue
			}
			e.ResultWithoutOther[o.Key] = protocol.Percent(e.VotesCount, competing-o.VotesCount)
		}
	}
}

func breakdown(ranked []*protocol.Entry, competing int64) []protocol.PlaceShare {
	var out []protocol.PlaceShare
	for _, e := range ranked {
		if n := len(out); n > 0 && out[n-1].Place == e.Place {
			out[n-1].Entries = append(out[n-1].Entries, e.Key)
			out[n-1].Votes += e.VotesCount
			out[n-1].Percentage = protocol.Percent(out[n-1].Votes, competing)
			continue
		}
		out = append(out, protocol.PlaceShare{
			Place:      e.Place,
			Entries:    []protocol.EntryKey{e.Key},
			Votes:      e.VotesCount,
			Percentage: protocol.Percent(e.VotesCount, competing),
		})
	}
	return out
}

// FirstPlaceMargin is the vote lead of the best entry over the runner-up;
// zero when fewer than two entries or when first place is shared.
func FirstPlaceMargin(entries []*protocol.Entry) int64 {
	votes := sortedVotes(entries)
	if len(votes) < 2 {
		return 0
	}
	return votes[0] - votes[1]
}

// SeatMargin is the vote gap between the last winning seat and the first
// losing one in a race with winnerCount seats; -1 when every entry wins.
func SeatMargin(entries []*protocol.Entry, winnerCount int) int64 {
	votes := sortedVotes(entries)
	if winnerCount <= 0 || len(votes) <= winnerCount {
		return -1
	}
	return votes[winnerCount-1] - votes[winnerCount]
}

func sortedVotes(entries []*protocol.Entry) []int64 {
	votes := make([]int64, len(entries))
	for i, e := range entries {
		votes[i] = e.VotesCount
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i] > votes[j] })
	return votes
}
