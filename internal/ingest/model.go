// Package ingest turns scraped commission pages into the commission index
// and leaf protocols the aggregator works on.
package ingest

import (
	"tally/internal/protocol"
	"tally/pkg/domain"
)

// RawMember is one seat on a commission.
type RawMember struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	SponsoredBy string `json:"sponsored_by"`
}

// RawCommission is one commission page. The city commission is the single
// root; territorial commissions hang off it and precincts off territorial
// ones.
type RawCommission struct {
	ID       domain.CommissionID `json:"id"`
	Level    domain.Level        `json:"level"`
	ParentID domain.CommissionID `json:"parent_id"`
	Name     string              `json:"name"`
	Address  string              `json:"address"`
	// AddressDistrict is the district label printed with the address.
	AddressDistrict string `json:"address_district"`
	Phone           string `json:"phone"`
	// VenueKey identifies the polling station building; precincts sharing
	// it are co-located.
	VenueKey string      `json:"venue_key"`
	Members  []RawMember `json:"members"`
}

// RawLine is one row of a result table.
type RawLine struct {
	Name       string  `json:"name"`
	Party      string  `json:"party"`
	Votes      int64   `json:"votes"`
	Percentage float64 `json:"percentage"`
}

// RawCheckpoint is one turnout reading.
type RawCheckpoint struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// RawRecord is one precinct's protocol for one race.
type RawRecord struct {
	CommissionID domain.CommissionID `json:"commission_id"`
	Election     domain.ElectionType `json:"election"`
	Municipality string              `json:"municipality"`
	District     int                 `json:"district"`
	WinnerCount  int                 `json:"winner_count"`
	Empty        bool                `json:"empty"`
	Counters     protocol.Metadata   `json:"counters"`
	Lines        []RawLine           `json:"lines"`
	Turnout      []RawCheckpoint     `json:"turnout"`
}

// RaceKey returns the race the record belongs to.
func (r RawRecord) RaceKey() domain.RaceKey {
	return domain.RaceKey{Election: r.Election, Municipality: r.Municipality, District: r.District}
}

// Batch is everything scraped for one run.
type Batch struct {
	Commissions []RawCommission `json:"commissions"`
	Records     []RawRecord     `json:"records"`
}
