package domain

import (
	"strconv"
	"strings"

	dErrors "tally/pkg/domain-errors"
)

// ElectionType is the tier of the election a race belongs to.
type ElectionType string

const (
	ElectionNationwide ElectionType = "nationwide"
	ElectionRegional   ElectionType = "regional"
	ElectionMunicipal  ElectionType = "municipal"
)

// ParseElectionType validates an election type name.
func ParseElectionType(s string) (ElectionType, error) {
	switch e := ElectionType(s); e {
	case ElectionNationwide, ElectionRegional, ElectionMunicipal:
		return e, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown election type %q", s)
}

// PartyListRaceID is the race id of the party-list race of an election.
const PartyListRaceID = "list"

// RaceKey identifies a contest: an election plus an electoral district.
// A zero District is the party-list race. Municipal candidate races nest
// under a named municipality.
type RaceKey struct {
	Election     ElectionType `json:"election"`
	Municipality string       `json:"municipality,omitempty"`
	District     int          `json:"district,omitempty"`
}

// IsPartyList reports whether the race is decided by party lists.
func (k RaceKey) IsPartyList() bool {
	return k.District == 0
}

// ID renders the race id used as a map key in published results.
func (k RaceKey) ID() string {
	if k.IsPartyList() {
		if k.Municipality != "" {
			return k.Municipality + "/" + PartyListRaceID
		}
		return PartyListRaceID
	}
	d := strconv.Itoa(k.District)
	if k.Municipality != "" {
		return k.Municipality + "/" + d
	}
	return d
}

func (k RaceKey) String() string {
	return string(k.Election) + ":" + k.ID()
}

// PartyList returns the party-list race of the same election.
func (k RaceKey) PartyList() RaceKey {
	return RaceKey{Election: k.Election, Municipality: k.Municipality}
}

// ParseRaceKey is the inverse of RaceKey.ID for the given election.
func ParseRaceKey(election ElectionType, id string) (RaceKey, error) {
	key := RaceKey{Election: election}
	rest := id
	if muni, tail, ok := strings.Cut(id, "/"); ok {
		if muni == "" {
			return RaceKey{}, dErrors.Newf(dErrors.CodeInvalidInput, "invalid race id %q", id)
		}
		key.Municipality = muni
		rest = tail
	}
	if rest == PartyListRaceID {
		return key, nil
	}
	d, err := strconv.Atoi(rest)
	if err != nil || d <= 0 {
		return RaceKey{}, dErrors.Newf(dErrors.CodeInvalidInput, "invalid race id %q", id)
	}
	key.District = d
	return key, nil
}
