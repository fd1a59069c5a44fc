package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tally/pkg/domain-errors"
)

// TestParseCommissionID_Invariants validates the parsing invariant:
// "commission ids taken from URLs are positive decimal integers"
//
// Justification: commission ids arrive from the reporting API path and must
// be rejected before they reach any lookup.
func TestParseCommissionID_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    CommissionID
		wantErr bool
	}{
		{"empty string", "", 0, true},
		{"not a number", "uik-12", 0, true},
		{"zero", "0", 0, true},
		{"negative", "-4", 0, true},
		{"oversized input", strings.Repeat("9", 40), 0, true},
		{"path traversal", "../1", 0, true},
		{"valid precinct", "1204", 1204, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommissionID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVenueRoundTrip(t *testing.T) {
	v := Venue{Level: LevelPrecinct, CommissionID: 77}
	assert.Equal(t, "precinct:77", v.String())

	parsed, err := ParseVenue(v.String())
	require.NoError(t, err)
	assert.Equal(t, v, parsed)

	_, err = ParseVenue("precinct")
	assert.Error(t, err)
	_, err = ParseVenue("planet:4")
	assert.Error(t, err)

	ref, err := ParseCommissionRef("district:3")
	require.NoError(t, err)
	assert.Equal(t, CommissionRef{ID: 3, Level: LevelDistrict}, ref)
	assert.Equal(t, "district:3", ref.String())
}

func TestRaceKeyID(t *testing.T) {
	tests := []struct {
		name string
		key  RaceKey
		id   string
	}{
		{"party list", RaceKey{Election: ElectionRegional}, "list"},
		{"single member district", RaceKey{Election: ElectionNationwide, District: 217}, "217"},
		{"municipal district", RaceKey{Election: ElectionMunicipal, Municipality: "Ostrov", District: 3}, "Ostrov/3"},
		{"municipal list", RaceKey{Election: ElectionMunicipal, Municipality: "Ostrov"}, "Ostrov/list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.id, tt.key.ID())
			parsed, err := ParseRaceKey(tt.key.Election, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.key, parsed)
		})
	}

	t.Run("party list derived from candidate race", func(t *testing.T) {
		key := RaceKey{Election: ElectionMunicipal, Municipality: "Ostrov", District: 3}
		assert.True(t, key.PartyList().IsPartyList())
		assert.Equal(t, "Ostrov", key.PartyList().Municipality)
	})

	t.Run("rejects malformed ids", func(t *testing.T) {
		for _, id := range []string{"", "0", "-1", "/3", "x/y", "Ostrov/"} {
			_, err := ParseRaceKey(ElectionMunicipal, id)
			assert.Error(t, err, id)
		}
	})
}

func TestParseEnums(t *testing.T) {
	for _, l := range Levels {
		got, err := ParseLevel(string(l))
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
	_, err := ParseLevel("federal")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = ParseElectionType("regional")
	assert.NoError(t, err)
	_, err = ParseElectionType("presidential")
	assert.Error(t, err)

	assert.True(t, LevelPrecinct.IsLeaf())
	assert.False(t, LevelCity.IsLeaf())
}
