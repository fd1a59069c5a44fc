package domain

import dErrors "tally/pkg/domain-errors"

// Level is the commission tier a protocol was produced or aggregated at.
type Level string

const (
	LevelPrecinct    Level = "precinct"
	LevelTerritorial Level = "territorial"
	LevelDistrict    Level = "district"
	LevelCity        Level = "city"
)

// Levels lists every level, leaves first.
var Levels = []Level{LevelPrecinct, LevelTerritorial, LevelDistrict, LevelCity}

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, error) {
	switch l := Level(s); l {
	case LevelPrecinct, LevelTerritorial, LevelDistrict, LevelCity:
		return l, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown level %q", s)
}

// IsLeaf reports whether protocols at this level are original, not aggregated.
func (l Level) IsLeaf() bool {
	return l == LevelPrecinct
}

func (l Level) String() string {
	return string(l)
}
