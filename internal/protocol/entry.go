package protocol

import (
	"fmt"
	"strings"

	"tally/internal/mathtarget"
	"tally/pkg/domain"
)

// EntryKind tells whether an entry is a candidate or a party.
type EntryKind string

const (
	EntryCandidate EntryKind = "candidate"
	EntryParty     EntryKind = "party"
)

// EntryKey identifies an entry by registry identity. Entries are merged
// across commissions by key, never by position.
type EntryKey struct {
	Kind EntryKind
	ID   domain.EntityID
}

// CandidateKey returns the key of a candidate entry.
func CandidateKey(id domain.EntityID) EntryKey {
	return EntryKey{Kind: EntryCandidate, ID: id}
}

// PartyKey returns the key of a party entry.
func PartyKey(id domain.EntityID) EntryKey {
	return EntryKey{Kind: EntryParty, ID: id}
}

func (k EntryKey) String() string {
	return string(k.Kind) + ":" + k.ID.String()
}

// Less orders keys by kind then id.
func (k EntryKey) Less(o EntryKey) bool {
	if k.Kind != o.Kind {
		return k.Kind < o.Kind
	}
	return k.ID < o.ID
}

// MarshalText lets EntryKey be used as a JSON object key.
func (k EntryKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses "candidate:12" or "party:3".
func (k *EntryKey) UnmarshalText(text []byte) error {
	kind, id, ok := strings.Cut(string(text), ":")
	if !ok {
		return fmt.Errorf("invalid entry key %q", text)
	}
	switch EntryKind(kind) {
	case EntryCandidate, EntryParty:
	default:
		return fmt.Errorf("invalid entry kind %q", kind)
	}
	eid, err := domain.ParseEntityID(id)
	if err != nil {
		return err
	}
	*k = EntryKey{Kind: EntryKind(kind), ID: eid}
	return nil
}

// Percentages are an entry's vote share over three bases.
type Percentages struct {
	// OfTotal is relative to every counted ballot (competing votes, invalid, lost).
	OfTotal float64 `json:"of_total"`
	// OfValid is relative to votes cast for entries.
	OfValid float64 `json:"of_valid"`
	// OfRegistered is relative to registered voters.
	OfRegistered float64 `json:"of_registered"`
}

// Entry is one candidate's or party's result within a protocol.
type Entry struct {
	Key            EntryKey    `json:"key"`
	Name           string      `json:"name"`
	VotesCount     int64       `json:"votes_count"`
	Place          float64     `json:"place"`
	SamePlaceCount int         `json:"same_place_count"`
	Winner         bool        `json:"winner"`
	Percentage     Percentages `json:"percentage"`

	// ResultWithoutOther holds, for single-winner races, this entry's share of
	// the competing votes if the keyed entry had not taken part.
	ResultWithoutOther map[EntryKey]float64 `json:"result_without_other_entry,omitempty"`

	// Profile is set on aggregate protocols only.
	Profile *mathtarget.Profile `json:"profile,omitempty"`
}
