package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"tally/internal/protocol"
	"tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
)

// ===== Assign Test Suite =====

type AssignSuite struct {
	suite.Suite
}

func TestAssignSuite(t *testing.T) {
	suite.Run(t, new(AssignSuite))
}

func singleWinner(entries ...*protocol.Entry) *protocol.Protocol {
	p := protocol.New(
		domain.CommissionRef{ID: 7, Level: domain.LevelCity},
		protocol.Race{Key: domain.RaceKey{Election: domain.ElectionRegional, District: 3}},
	)
	p.Entries = entries
	return p
}

func (s *AssignSuite) TestCityExample() {
	p := singleWinner(
		&protocol.Entry{Key: protocol.CandidateKey(1), VotesCount: 900},
		&protocol.Entry{Key: protocol.CandidateKey(2), VotesCount: 700},
	)
	p.Metadata = protocol.Metadata{VotersRegistered: 4000, BallotsValid: 1600, BallotsInvalid: 30, BallotsLost: 10, IssuedWalkIn: 1640}

	s.Require().NoError(Assign(p))

	a, b := p.Entry(protocol.CandidateKey(1)), p.Entry(protocol.CandidateKey(2))
	s.Equal(1.0, a.Place)
	s.True(a.Winner)
	s.Equal(2.0, b.Place)
	s.False(b.Winner)

	stats := p.Result.VotesStats
	s.Equal(int64(900), stats.WinningVotes)
	s.Equal(int64(700), stats.LosingVotes)
	s.Equal(int64(40), stats.OtherVotes)
	s.Equal(int64(1640), stats.TotalVotes)
	s.InDelta(56.25, stats.WinningPercentage, 1e-9)
	s.InDelta(43.75, stats.LosingPercentage, 1e-9)
	s.InDelta(40.0/1640*100, stats.OtherPercentage, 1e-9)

	s.Equal([]protocol.EntryKey{protocol.CandidateKey(1)}, p.Result.Winners)
	s.InDelta(41, p.Result.Turnout.Percentage, 1e-9)
	s.InDelta(22.5, a.Percentage.OfRegistered, 1e-9)
	s.InDelta(56.25, a.Percentage.OfValid, 1e-9)
}

func (s *AssignSuite) TestResultWithoutOther() {
	p := singleWinner(
		&protocol.Entry{Key: protocol.CandidateKey(1), VotesCount: 500},
		&protocol.Entry{Key: protocol.CandidateKey(2), VotesCount: 300},
		&protocol.Entry{Key: protocol.CandidateKey(3), VotesCount: 200},
	)
	p.Metadata.BallotsValid = 1000

	s.Require().NoError(Assign(p))

	first := p.Entry(protocol.CandidateKey(1))
	s.Len(first.ResultWithoutOther, 2)
	s.InDelta(500.0/700*100, first.ResultWithoutOther[protocol.CandidateKey(2)], 1e-9)
	s.InDelta(500.0/800*100, first.ResultWithoutOther[protocol.CandidateKey(3)], 1e-9)
	s.NotContains(first.ResultWithoutOther, protocol.CandidateKey(1))
}

func (s *AssignSuite) TestSingleWinnerGuard() {
	p := singleWinner(
		&protocol.Entry{Key: protocol.CandidateKey(1), VotesCount: 500},
		&protocol.Entry{Key: protocol.CandidateKey(2), VotesCount: 300},
	)
	p.Metadata.BallotsValid = 790

	err := Assign(p)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *AssignSuite) TestMultiWinnerGuard() {
	p := protocol.New(
		domain.CommissionRef{ID: 70, Level: domain.LevelPrecinct},
		protocol.Race{Key: domain.RaceKey{Election: domain.ElectionMunicipal, Municipality: "Ostrov", District: 1}, WinnerCount: 2},
	)
	p.Entries = []*protocol.Entry{
		{Key: protocol.CandidateKey(1), VotesCount: 90},
		{Key: protocol.CandidateKey(2), VotesCount: 80},
		{Key: protocol.CandidateKey(3), VotesCount: 40},
	}

	p.Metadata.BallotsValid = 110
	s.Require().NoError(Assign(p), "210 votes fit within 110 ballots times 2 seats")
	s.Nil(p.Entries[0].ResultWithoutOther)

	p.Metadata.BallotsValid = 100
	s.True(dErrors.HasCode(Assign(p), dErrors.CodeInvariantViolation))
}

func (s *AssignSuite) TestEmptyProtocolSkipped() {
	p := singleWinner(&protocol.Entry{Key: protocol.CandidateKey(1), VotesCount: 10})
	p.Empty = true
	s.Require().NoError(Assign(p))
	s.Zero(p.Entries[0].Place)
}

// ===== Rank =====

func TestRank(t *testing.T) {
	tests := []struct {
		name        string
		votes       []int64
		winnerCount int
		places      []float64
		same        []int
		winners     []bool
	}{
		{
			name:        "distinct",
			votes:       []int64{10, 30, 20},
			winnerCount: 1,
			places:      []float64{1, 2, 3},
			same:        []int{1, 1, 1},
			winners:     []bool{true, false, false},
		},
		{
			name:        "tie for first in single-winner race",
			votes:       []int64{50, 50, 10},
			winnerCount: 1,
			places:      []float64{1.5, 1.5, 3},
			same:        []int{2, 2, 1},
			winners:     []bool{true, true, false},
		},
		{
			name:        "three-way tie straddling the last seat",
			votes:       []int64{100, 40, 40, 40, 5},
			winnerCount: 2,
			places:      []float64{1, 3, 3, 3, 5},
			same:        []int{1, 3, 3, 3, 1},
			winners:     []bool{true, false, false, false, false},
		},
		{
			name:        "tie inside winning seats",
			votes:       []int64{100, 40, 40, 10},
			winnerCount: 2,
			places:      []float64{1, 2.5, 2.5, 4},
			same:        []int{1, 2, 2, 1},
			winners:     []bool{true, true, true, false},
		},
		{
			name:        "zero votes never win",
			votes:       []int64{0, 0},
			winnerCount: 5,
			places:      []float64{1.5, 1.5},
			same:        []int{2, 2},
			winners:     []bool{false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := make([]*protocol.Entry, len(tt.votes))
			for i, v := range tt.votes {
				entries[i] = &protocol.Entry{Key: protocol.CandidateKey(domain.EntityID(i + 1)), VotesCount: v}
			}

			ranked := Rank(entries, tt.winnerCount)
			require.Len(t, ranked, len(entries))

			var places []float64
			var same []int
			var winners []bool
			for _, e := range ranked {
				places = append(places, e.Place)
				same = append(same, e.SamePlaceCount)
				winners = append(winners, e.Winner)
			}
			assert.Equal(t, tt.places, places)
			assert.Equal(t, tt.same, same)
			assert.Equal(t, tt.winners, winners)

			for i := 1; i < len(ranked); i++ {
				assert.GreaterOrEqual(t, ranked[i].Place, ranked[i-1].Place)
			}
		})
	}
}

func TestRankTieBreakIsDeterministic(t *testing.T) {
	entries := []*protocol.Entry{
		{Key: protocol.CandidateKey(9), VotesCount: 5},
		{Key: protocol.CandidateKey(2), VotesCount: 5},
		{Key: protocol.CandidateKey(4), VotesCount: 5},
	}
	ranked := Rank(entries, 1)
	assert.Equal(t, protocol.CandidateKey(2), ranked[0].Key)
	assert.Equal(t, protocol.CandidateKey(4), ranked[1].Key)
	assert.Equal(t, protocol.CandidateKey(9), ranked[2].Key)
	assert.Equal(t, protocol.CandidateKey(9), entries[0].Key, "input order is preserved")
}

func TestBreakdown(t *testing.T) {
	p := singleWinner(
		&protocol.Entry{Key: protocol.CandidateKey(1), VotesCount: 40},
		&protocol.Entry{Key: protocol.CandidateKey(2), VotesCount: 40},
		&protocol.Entry{Key: protocol.CandidateKey(3), VotesCount: 20},
	)
	p.Metadata.BallotsValid = 100
	require.NoError(t, Assign(p))

	require.Len(t, p.Result.Breakdown, 2)
	assert.Equal(t, 1.5, p.Result.Breakdown[0].Place)
	assert.Equal(t, int64(80), p.Result.Breakdown[0].Votes)
	assert.InDelta(t, 80, p.Result.Breakdown[0].Percentage, 1e-9)
	assert.Equal(t, []protocol.EntryKey{protocol.CandidateKey(1), protocol.CandidateKey(2)}, p.Result.Breakdown[0].Entries)
}

func TestMargins(t *testing.T) {
	entries := []*protocol.Entry{
		{VotesCount: 300}, {VotesCount: 320}, {VotesCount: 150}, {VotesCount: 140},
	}
	assert.Equal(t, int64(20), FirstPlaceMargin(entries))
	assert.Equal(t, int64(170), SeatMargin(entries, 2))
	assert.Equal(t, int64(10), SeatMargin(entries, 3))
	assert.Equal(t, int64(-1), SeatMargin(entries, 4))
	assert.Zero(t, FirstPlaceMargin(entries[:1]))
}

// ===== Winner Monotonicity =====

func entriesWithVotes(votes ...int64) []*protocol.Entry {
	out := make([]*protocol.Entry, len(votes))
	for i, v := range votes {
		out[i] = &protocol.Entry{Key: protocol.CandidateKey(domain.EntityID(i + 1)), VotesCount: v}
	}
	return out
}

func TestWinnerMonotonicity(t *testing.T) {
	tests := []struct {
		name  string
		votes []int64
	}{
		{name: "distinct votes", votes: []int64{500, 400, 300, 200, 100}},
		{name: "tie straddling the second seat", votes: []int64{500, 300, 300, 300, 100, 0}},
		{name: "tie at the top", votes: []int64{250, 250, 120, 120, 40}},
		{name: "everyone tied", votes: []int64{200, 200, 200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			previous := map[protocol.EntryKey]int64{}
			for seats := 1; seats <= len(tt.votes); seats++ {
				ranked := Rank(entriesWithVotes(tt.votes...), seats)

				winners := map[protocol.EntryKey]int64{}
				groups := map[float64][]*protocol.Entry{}
				for _, e := range ranked {
					groups[e.Place] = append(groups[e.Place], e)
					if e.Winner {
						winners[e.Key] = e.VotesCount
					}
				}

				for key := range previous {
					assert.Contains(t, winners, key, "seats=%d dropped a winner", seats)
				}
				for key, votes := range winners {
					if _, ok := previous[key]; ok {
						continue
					}
					for _, kept := range previous {
						assert.LessOrEqual(t, votes, kept, "seats=%d added %v out of rank order", seats, key)
					}
				}

				for place, group := range groups {
					var share float64
					for _, e := range group {
						share += 1 / float64(e.SamePlaceCount)
						assert.Equal(t, group[0].Winner, e.Winner, "tie group at %v splits", place)
					}
					assert.InDelta(t, 1.0, share, 1e-9, "tie group at %v", place)
				}
				previous = winners
			}
		})
	}
}
