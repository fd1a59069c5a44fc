package anomaly

import (
	"tally/internal/mathtarget"
	dErrors "tally/pkg/domain-errors"
)

// Thresholds tune the co-located stuffing heuristic and the repeated
// percentage check.
type Thresholds struct {
	// A precinct is a stuffing suspect when the winner's share beats the
	// baseline by at least ExcessPoints and the estimated padding is at least
	// ExcessVotes.
	ExcessPoints float64 `yaml:"excess_points"`
	ExcessVotes  int64   `yaml:"excess_votes"`

	// Every other entry must match the baseline within these bounds once the
	// winner is excluded.
	MatchPoints float64 `yaml:"match_points"`
	MatchVotes  int64   `yaml:"match_votes"`

	// RepeatMinUnits is how many precincts must report the same rounded
	// percentage for it to count as repeated.
	RepeatMinUnits int `yaml:"repeat_min_units"`
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ExcessPoints:   5,
		ExcessVotes:    30,
		MatchPoints:    3,
		MatchVotes:     30,
		RepeatMinUnits: 3,
	}
}

// Validate rejects thresholds that would flag every precinct.
func (t Thresholds) Validate() error {
	if t.ExcessPoints <= 0 || t.ExcessVotes <= 0 {
		return dErrors.New(dErrors.CodeValidation, "stuffing excess thresholds must be positive")
	}
	if t.MatchPoints < 0 || t.MatchVotes < 0 {
		return dErrors.New(dErrors.CodeValidation, "stuffing match thresholds must not be negative")
	}
	if t.RepeatMinUnits < 2 {
		return dErrors.New(dErrors.CodeValidation, "repeat_min_units must be at least 2")
	}
	return nil
}

// ProfileOptions returns the profile options matching these thresholds.
func (t Thresholds) ProfileOptions() mathtarget.ProfileOptions {
	opts := mathtarget.DefaultProfileOptions()
	opts.RepeatMinUnits = t.RepeatMinUnits
	return opts
}
