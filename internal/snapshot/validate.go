package snapshot

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"tally/internal/protocol"
	"tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
)

// Validate checks a dataset before it is published. Structural problems
// yield CodeValidation; city totals that do not add up to their precincts
// yield CodeInvariantViolation.
func Validate(ds *Dataset) error {
	if ds == nil {
		return dErrors.New(dErrors.CodeValidation, "dataset is required")
	}
	if ds.Version != Version {
		return dErrors.Newf(dErrors.CodeValidation, "dataset version %d, want %d", ds.Version, Version)
	}
	for _, level := range domain.Levels {
		if _, ok := ds.Levels[level]; !ok {
			return dErrors.Newf(dErrors.CodeValidation, "dataset has no %s level", level)
		}
	}
	for _, race := range ds.Races {
		if err := checkCityTotals(ds, race.Key); err != nil {
			return err
		}
	}
	return nil
}

// checkCityTotals compares the city protocol of a race with the sum of its
// effective precinct protocols.
func checkCityTotals(ds *Dataset, race domain.RaceKey) error {
	var city *protocol.Protocol
	for _, p := range ds.Race(domain.LevelCity, race) {
		city = p
	}
	if city == nil {
		return nil
	}

	var meta protocol.Metadata
	votes := make(map[protocol.EntryKey]int64)
	for _, p := range ds.Race(domain.LevelPrecinct, race) {
		if p.Empty {
			continue
		}
		meta.Add(p.Metadata)
		for _, e := range p.Entries {
			votes[e.Key] += e.VotesCount
		}
	}

	if meta != city.Metadata {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"race %s: city counters do not match the sum of precinct counters", race)
	}
	if len(votes) != len(city.Entries) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"race %s: city has %d entries, precincts have %d", race, len(city.Entries), len(votes))
	}
	for _, e := range city.Entries {
		if votes[e.Key] != e.VotesCount {
			return dErrors.Newf(dErrors.CodeInvariantViolation,
				"race %s: entry %s has %d votes at city level, %d across precincts",
				race, e.Key, e.VotesCount, votes[e.Key])
		}
	}
	return nil
}

// Digest returns the hex blake2b-256 of the dataset's JSON encoding with the
// Digest field cleared.
func Digest(ds *Dataset) (string, error) {
	clone := *ds
	clone.Digest = ""
	raw, err := json.Marshal(&clone)
	if err != nil {
		return "", fmt.Errorf("encode dataset: %w", err)
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
