package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"tally/internal/protocol"
	"tally/internal/registry"
	"tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
)

func TestLoadDir(t *testing.T) {
	b, err := LoadDir("testdata/batch")
	require.NoError(t, err)

	assert.Len(t, b.Commissions, 6)
	require.Len(t, b.Records, 4)
	// records/party.json sorts before records/regional.json and holds a single object.
	assert.Equal(t, domain.CommissionID(101), b.Records[0].CommissionID)
	assert.True(t, b.Records[0].RaceKey().IsPartyList())
	assert.True(t, b.Records[3].Empty)

	_, err = LoadDir("testdata/missing")
	assert.Error(t, err)
}

// ===== Builder Test Suite =====

type BuilderSuite struct {
	suite.Suite
	batch *Batch
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderSuite))
}

func (s *BuilderSuite) SetupTest() {
	b, err := LoadDir("testdata/batch")
	s.Require().NoError(err)
	s.batch = b
}

func (s *BuilderSuite) build() (*Result, error) {
	return NewBuilder().Build(context.Background(), s.batch)
}

func (s *BuilderSuite) TestIndexShape() {
	res, err := s.build()
	s.Require().NoError(err)

	idx := res.Index
	s.Require().NotNil(idx.Root())
	s.Equal(domain.CommissionID(1), idx.Root().ID)
	s.Len(idx.ByLevel(domain.LevelTerritorial), 2)
	s.Len(idx.ByLevel(domain.LevelPrecinct), 3)

	cityChildren := idx.Children(idx.Root().Ref())
	s.Equal([]domain.CommissionRef{
		{ID: 10, Level: domain.LevelTerritorial},
		{ID: 20, Level: domain.LevelTerritorial},
	}, cityChildren)

	p101 := domain.CommissionRef{ID: 101, Level: domain.LevelPrecinct}
	s.Equal([]domain.CommissionRef{{ID: 102, Level: domain.LevelPrecinct}}, idx.CoLocated(p101))
	s.Empty(idx.CoLocated(domain.CommissionRef{ID: 201, Level: domain.LevelPrecinct}))
}

func (s *BuilderSuite) TestDistricts() {
	res, err := s.build()
	s.Require().NoError(err)

	districts := res.Index.ByLevel(domain.LevelDistrict)
	s.Require().Len(districts, 2)
	labels := map[string]domain.CommissionID{}
	for _, d := range districts {
		labels[d.DistrictLabel] = d.ID
		s.Nil(d.Parent)
	}
	s.Contains(labels, "Central", "precincts without a label inherit the territorial one")
	s.Contains(labels, "Riverside")

	central := domain.CommissionRef{ID: labels["Central"], Level: domain.LevelDistrict}
	s.Equal([]domain.CommissionRef{
		{ID: 101, Level: domain.LevelPrecinct},
		{ID: 102, Level: domain.LevelPrecinct},
	}, res.Index.Children(central))
}

func (s *BuilderSuite) TestLeafProtocols() {
	res, err := s.build()
	s.Require().NoError(err)
	s.Require().Len(res.Leaves, 4)

	s.Equal([]protocol.Race{
		{Key: domain.RaceKey{Election: domain.ElectionRegional, District: 1}, WinnerCount: 1},
		{Key: domain.RaceKey{Election: domain.ElectionRegional}, WinnerCount: 1},
	}, res.Races)

	party := res.Leaves[0]
	s.Equal(int64(880), party.Metadata.BallotsValid)
	s.Equal(int64(900), party.Metadata.BallotsStationary, "derived from valid + invalid")
	s.Equal(int64(900), party.Metadata.IssuedWalkIn)
	s.Equal(protocol.EntryParty, party.Entries[0].Key.Kind)
	s.Equal("Blues", party.Entries[1].Name)

	p101 := res.Leaves[1]
	s.Require().Len(p101.Turnout, 2)
	s.Equal(int64(500), p101.Turnout[1].Delta)
	s.InDelta(35, p101.Turnout[1].Percentage, 1e-9)

	p102 := res.Leaves[2]
	s.Equal(p101.Entries[0].Key, p102.Entries[0].Key, "spacing differences resolve to one candidate")
	s.True(res.Leaves[3].Empty)
}

func (s *BuilderSuite) TestRegistry() {
	res, err := s.build()
	s.Require().NoError(err)

	parties := res.Registry.Records(registry.KindParty)
	s.Len(parties, 2)

	addresses := res.Registry.Records(registry.KindAddress)
	s.Require().Len(addresses, 2, "venue key joins the two school-5 addresses")
	s.Equal([]string{"Lenina st. 1, school 5"}, addresses[0].Alternates["text"])

	seated := res.Registry.SeenAtMultipleVenues(registry.KindMember)
	s.Require().Len(seated, 1)
	s.Equal("Sidorova Anna", seated[0].Field("name"))

	sponsor := res.Registry.Records(registry.KindSponsor)
	s.Require().Len(sponsor, 1)
	s.Equal(int64(2), sponsor[0].Counters["members"])
}

func (s *BuilderSuite) TestStructuralErrors() {
	tests := []struct {
		name   string
		mutate func(b *Batch)
	}{
		{"unknown precinct", func(b *Batch) { b.Records[0].CommissionID = 999 }},
		{"unknown election", func(b *Batch) { b.Records[0].Election = "presidential" }},
		{"negative votes", func(b *Batch) { b.Records[0].Lines[0].Votes = -1 }},
		{"negative counter", func(b *Batch) { b.Records[0].Counters.BallotsLost = -3 }},
		{"duplicate protocol", func(b *Batch) { b.Records = append(b.Records, b.Records[0]) }},
		{"published without lines", func(b *Batch) { b.Records[0].Lines = nil }},
		{"duplicate entry", func(b *Batch) {
			b.Records[1].Lines = append(b.Records[1].Lines, RawLine{Name: "ivanov ivan", Votes: 1})
		}},
		{"orphan precinct", func(b *Batch) { b.Commissions[3].ParentID = 77 }},
		{"no city", func(b *Batch) { b.Commissions = b.Commissions[1:] }},
		{"second city", func(b *Batch) { b.Commissions = append(b.Commissions, RawCommission{ID: 2, Level: domain.LevelCity}) }},
		{"scraped district", func(b *Batch) { b.Commissions[2].Level = domain.LevelDistrict }},
		{"nameless member", func(b *Batch) { b.Commissions[3].Members[0].Name = " " }},
		{"winner count drift", func(b *Batch) { b.Records[2].WinnerCount = 2 }},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			tt.mutate(s.batch)
			_, err := s.build()
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), err.Error())
		})
	}
}

func (s *BuilderSuite) TestNilBatch() {
	_, err := NewBuilder().Build(context.Background(), nil)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
