// Package protocol models one commission's result for one race, and the
// arithmetic that fills in fields the published protocol leaves out.
package protocol

import (
	"sort"

	"tally/pkg/domain"
)

// Race is a contest and how many seats it fills.
type Race struct {
	Key         domain.RaceKey `json:"key"`
	WinnerCount int            `json:"winner_count"`
}

// DefaultWinnerCount is 5 for municipal candidate races and 1 otherwise.
func DefaultWinnerCount(key domain.RaceKey) int {
	if key.Election == domain.ElectionMunicipal && !key.IsPartyList() {
		return 5
	}
	return 1
}

// Checkpoint is one turnout reading taken during voting day.
type Checkpoint struct {
	Label      string  `json:"label"`
	Count      int64   `json:"count"`
	Delta      int64   `json:"delta"`
	Percentage float64 `json:"percentage"`
}

// Turnout is the share of registered voters who received a ballot, overall
// and per issuance channel.
type Turnout struct {
	Percentage float64 `json:"percentage"`
	Early      float64 `json:"early"`
	WalkIn     float64 `json:"walk_in"`
	AtHome     float64 `json:"at_home"`
}

// VotesStats splits the counted ballots into winning, losing and other.
type VotesStats struct {
	WinningVotes int64 `json:"winning_votes"`
	LosingVotes  int64 `json:"losing_votes"`
	OtherVotes   int64 `json:"other_votes"`
	TotalVotes   int64 `json:"total_votes"`

	// WinningPercentage and LosingPercentage are shares of competing votes.
	WinningPercentage float64 `json:"winning_percentage"`
	LosingPercentage  float64 `json:"losing_percentage"`
	// OtherPercentage is the share of TotalVotes.
	OtherPercentage float64 `json:"other_percentage"`
}

// PlaceShare is the vote share held by the entries at one place.
type PlaceShare struct {
	Place      float64    `json:"place"`
	Entries    []EntryKey `json:"entries"`
	Votes      int64      `json:"votes"`
	Percentage float64    `json:"percentage"`
}

// OfficialResult is the computed outcome of a protocol.
type OfficialResult struct {
	Winners    []EntryKey   `json:"winners"`
	Turnout    Turnout      `json:"turnout"`
	VotesStats VotesStats   `json:"votes_stats"`
	Breakdown  []PlaceShare `json:"breakdown"`
}

// Protocol is the result of one commission for one race.
type Protocol struct {
	Commission  domain.CommissionRef `json:"commission"`
	Race        domain.RaceKey       `json:"race"`
	WinnerCount int                  `json:"winner_count"`
	Empty       bool                 `json:"empty"`

	Metadata Metadata       `json:"metadata"`
	Entries  []*Entry       `json:"entries"`
	Result   OfficialResult `json:"official_result"`
	Turnout  []Checkpoint   `json:"turnout,omitempty"`
	Analysis Analysis       `json:"analysis"`

	// EffectiveUIKs and EmptyUIKs list the leaf precincts that did and did not
	// contribute to an aggregate protocol.
	EffectiveUIKs []domain.CommissionID `json:"effective_uiks,omitempty"`
	EmptyUIKs     []domain.CommissionID `json:"empty_uiks,omitempty"`
	// UncheckedUIKs are effective precincts that published no received
	// ballot count, so their ballots cannot enter a checksum.
	UncheckedUIKs []domain.CommissionID `json:"unchecked_uiks,omitempty"`
}

// New returns an empty protocol for a commission and race.
func New(ref domain.CommissionRef, race Race) *Protocol {
	winners := race.WinnerCount
	if winners <= 0 {
		winners = DefaultWinnerCount(race.Key)
	}
	return &Protocol{Commission: ref, Race: race.Key, WinnerCount: winners}
}

// Entry returns the entry with the given key, or nil.
func (p *Protocol) Entry(key EntryKey) *Entry {
	for _, e := range p.Entries {
		if e.Key == key {
			return e
		}
	}
	return nil
}

// Votes is the sum of entry votes.
func (p *Protocol) Votes() int64 {
	var total int64
	for _, e := range p.Entries {
		total += e.VotesCount
	}
	return total
}

// Ranked returns the entries ordered by place, then key.
func (p *Protocol) Ranked() []*Entry {
	out := append([]*Entry(nil), p.Entries...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Place != out[j].Place {
			return out[i].Place < out[j].Place
		}
		return out[i].Key.Less(out[j].Key)
	})
	return out
}

// Leader returns the entry with the lowest place, or nil for an empty protocol.
func (p *Protocol) Leader() *Entry {
	ranked := p.Ranked()
	if len(ranked) == 0 {
		return nil
	}
	return ranked[0]
}

// Share returns key's share of the competing votes in percent.
func (p *Protocol) Share(key EntryKey) float64 {
	e := p.Entry(key)
	total := p.Votes()
	if e == nil || total == 0 {
		return 0
	}
	return float64(e.VotesCount) / float64(total) * 100
}
