package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
)

func precinctVenue(id domain.CommissionID) domain.Venue {
	return domain.Venue{Level: domain.LevelPrecinct, CommissionID: id}
}

// ===== Registry Test Suite =====

type RegistrySuite struct {
	suite.Suite
	reg *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.reg = New(KindCandidate, ReplaceIfAbsent)
}

func (s *RegistrySuite) TestNewKeysAllocateMonotonicIDs() {
	a, err := s.reg.Upsert([]string{"Ivanov Ivan"}, Record{}, precinctVenue(1))
	s.Require().NoError(err)
	b, err := s.reg.Upsert([]string{"Petrov Petr"}, Record{}, precinctVenue(1))
	s.Require().NoError(err)

	s.Equal(domain.EntityID(1), a)
	s.Equal(domain.EntityID(2), b)
}

func (s *RegistrySuite) TestNormalizedKeysResolveToSameRecord() {
	a, err := s.reg.Upsert([]string{"  Ivanov   Ivan "}, Record{Fields: map[string]string{"name": "Ivanov Ivan"}}, precinctVenue(1))
	s.Require().NoError(err)
	b, err := s.reg.Upsert([]string{"IVANOV IVAN", "ivanov ivan 1970"}, Record{}, precinctVenue(2))
	s.Require().NoError(err)

	s.Equal(a, b)
	rec, ok := s.reg.Get(a)
	s.Require().True(ok)
	s.Equal([]string{"ivanov ivan", "ivanov ivan 1970"}, rec.Keys)
	s.Equal([]domain.Venue{precinctVenue(1), precinctVenue(2)}, rec.RelatedTo)

	id, ok := s.reg.Resolve("Ivanov Ivan 1970")
	s.True(ok)
	s.Equal(a, id)
}

func (s *RegistrySuite) TestIdempotent() {
	rec := Record{Fields: map[string]string{"name": "Ivanov Ivan"}}
	a, err := s.reg.Upsert([]string{"ivanov"}, rec, precinctVenue(3))
	s.Require().NoError(err)
	before, _ := s.reg.Get(a)

	b, err := s.reg.Upsert([]string{"ivanov"}, rec, precinctVenue(3))
	s.Require().NoError(err)
	after, _ := s.reg.Get(b)

	s.Equal(a, b)
	s.Equal(before, after)
	s.Equal(1, s.reg.Len())
}

func (s *RegistrySuite) TestKeysSpanningTwoRecordsConflict() {
	_, err := s.reg.Upsert([]string{"a"}, Record{}, domain.Venue{})
	s.Require().NoError(err)
	_, err = s.reg.Upsert([]string{"b"}, Record{}, domain.Venue{})
	s.Require().NoError(err)

	_, err = s.reg.Upsert([]string{"a", "b"}, Record{}, domain.Venue{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *RegistrySuite) TestEmptyKeysRejected() {
	_, err := s.reg.Upsert([]string{" ", ""}, Record{}, domain.Venue{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Zero(s.reg.Len())
}

func (s *RegistrySuite) TestGetReturnsCopy() {
	id, err := s.reg.Upsert([]string{"x"}, Record{Fields: map[string]string{"name": "X"}}, domain.Venue{})
	s.Require().NoError(err)

	rec, _ := s.reg.Get(id)
	rec.Fields["name"] = "changed"

	again, _ := s.reg.Get(id)
	s.Equal("X", again.Field("name"))
}

func (s *RegistrySuite) TestSeenAtMultipleVenues() {
	member := New(KindMember, ReplaceIfAbsent)
	_, err := member.Upsert([]string{"sidorova"}, Record{}, precinctVenue(101))
	s.Require().NoError(err)
	_, err = member.Upsert([]string{"Sidorova"}, Record{}, precinctVenue(101))
	s.Require().NoError(err)
	_, err = member.Upsert([]string{"kozlov"}, Record{}, precinctVenue(101))
	s.Require().NoError(err)

	s.Empty(member.SeenAtMultipleVenues(), "repeated sightings at one venue")

	_, err = member.Upsert([]string{"kozlov"}, Record{}, precinctVenue(102))
	s.Require().NoError(err)
	_, err = member.Upsert([]string{"kozlov"}, Record{}, domain.Venue{Level: domain.LevelTerritorial, CommissionID: 102})
	s.Require().NoError(err)

	seen := member.SeenAtMultipleVenues()
	s.Require().Len(seen, 1)
	s.Equal([]string{"kozlov"}, seen[0].Keys)
	s.Len(seen[0].RelatedTo, 3)
}

// ===== Merge strategies =====

func TestMergeStrategies(t *testing.T) {
	t.Run("replace if absent keeps stored values", func(t *testing.T) {
		reg := New(KindParty, ReplaceIfAbsent)
		id, err := reg.Upsert([]string{"greens"}, Record{Fields: map[string]string{"name": "Greens"}}, domain.Venue{})
		require.NoError(t, err)
		_, err = reg.Upsert([]string{"greens"}, Record{Fields: map[string]string{"name": "The Greens", "short": "G"}}, domain.Venue{})
		require.NoError(t, err)

		rec, _ := reg.Get(id)
		assert.Equal(t, map[string]string{"name": "Greens", "short": "G"}, rec.Fields)
		assert.Nil(t, rec.Alternates)
	})

	t.Run("union addresses keeps alternates once", func(t *testing.T) {
		reg := New(KindAddress, UnionAddresses)
		id, err := reg.Upsert([]string{"school 5"}, Record{Fields: map[string]string{"text": "Lenina 1"}}, domain.Venue{})
		require.NoError(t, err)
		for _, text := range []string{"Lenina st. 1", "Lenina 1", "Lenina st. 1"} {
			_, err = reg.Upsert([]string{"school 5"}, Record{Fields: map[string]string{"text": text}}, domain.Venue{})
			require.NoError(t, err)
		}

		rec, _ := reg.Get(id)
		assert.Equal(t, "Lenina 1", rec.Field("text"))
		assert.Equal(t, []string{"Lenina st. 1"}, rec.Alternates["text"])
	})

	t.Run("sum counters once per venue", func(t *testing.T) {
		reg := New(KindSponsor, SumCounters)
		rec := Record{Counters: map[string]int64{"candidates": 2}}
		id, err := reg.Upsert([]string{"union"}, rec, precinctVenue(1))
		require.NoError(t, err)
		_, err = reg.Upsert([]string{"union"}, rec, precinctVenue(2))
		require.NoError(t, err)
		_, err = reg.Upsert([]string{"union"}, rec, precinctVenue(2))
		require.NoError(t, err)

		got, _ := reg.Get(id)
		assert.Equal(t, int64(4), got.Counters["candidates"])
	})

	t.Run("sum counters ignores repeats without a venue", func(t *testing.T) {
		reg := New(KindSponsor, SumCounters)
		rec := Record{Counters: map[string]int64{"members": 1}}
		first, err := reg.Upsert([]string{"x"}, rec, domain.Venue{})
		require.NoError(t, err)
		second, err := reg.Upsert([]string{"x"}, rec, domain.Venue{})
		require.NoError(t, err)

		assert.Equal(t, first, second)
		got, _ := reg.Get(first)
		assert.Equal(t, int64(1), got.Counters["members"])
		assert.Empty(t, got.RelatedTo)
	})

	t.Run("strict rejects differing fields and leaves record intact", func(t *testing.T) {
		reg := New(KindDistrict, Strict)
		id, err := reg.Upsert([]string{"d7"}, Record{Fields: map[string]string{"label": "North"}}, domain.Venue{})
		require.NoError(t, err)

		_, err = reg.Upsert([]string{"d7", "d7-alt"}, Record{Fields: map[string]string{"label": "South"}}, precinctVenue(9))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		rec, _ := reg.Get(id)
		assert.Equal(t, "North", rec.Field("label"))
		assert.Equal(t, []string{"d7"}, rec.Keys)
		assert.Empty(t, rec.RelatedTo)

		_, err = reg.Upsert([]string{"d7"}, Record{Fields: map[string]string{"label": "North", "city": "Ostrov"}}, domain.Venue{})
		require.NoError(t, err)
	})
}

func TestSet(t *testing.T) {
	s := NewSet()
	for _, k := range Kinds {
		require.NotNil(t, s.Kind(k), k)
	}

	_, err := s.Upsert(Kind("voter"), []string{"x"}, Record{}, domain.Venue{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.Upsert(KindParty, []string{"greens"}, Record{}, precinctVenue(1))
	require.NoError(t, err)
	_, err = s.Upsert(KindCandidate, []string{"ivanov"}, Record{}, precinctVenue(1))
	require.NoError(t, err)

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, KindCandidate, all[0].Kind)
	assert.Equal(t, KindParty, all[1].Kind)
	assert.Len(t, s.Records(KindParty), 1)
	assert.Nil(t, s.Records(Kind("voter")))
}

func TestConcurrentUpsert(t *testing.T) {
	reg := New(KindMember, ReplaceIfAbsent)
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id domain.CommissionID) {
			defer wg.Done()
			_, err := reg.Upsert([]string{"shared member"}, Record{}, precinctVenue(id))
			assert.NoError(t, err)
		}(domain.CommissionID(i))
	}
	wg.Wait()

	require.Equal(t, 1, reg.Len())
	rec, _ := reg.Get(1)
	assert.Len(t, rec.RelatedTo, 20)
}
