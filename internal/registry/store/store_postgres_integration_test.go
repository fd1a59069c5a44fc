//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"tally/internal/registry"
	"tally/internal/registry/store"
	"tally/pkg/domain"
	"tally/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "registry_entities"))
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	set := registry.NewSet()
	venue := domain.Venue{Level: domain.LevelPrecinct, CommissionID: 101}
	_, err := set.Upsert(registry.KindAddress, []string{"school-5", "Lenina 1"}, registry.Record{
		Fields: map[string]string{"text": "Lenina 1"},
	}, venue)
	s.Require().NoError(err)
	_, err = set.Upsert(registry.KindAddress, []string{"school-5", "Lenina st. 1"}, registry.Record{
		Fields: map[string]string{"text": "Lenina st. 1"},
	}, domain.Venue{Level: domain.LevelPrecinct, CommissionID: 102})
	s.Require().NoError(err)

	s.Require().NoError(s.store.SaveAll(ctx, set.All()))
	// Saving twice is an upsert.
	s.Require().NoError(s.store.SaveAll(ctx, set.All()))

	loaded, err := s.store.Load(ctx, registry.KindAddress)
	s.Require().NoError(err)
	s.Require().Len(loaded, 1)
	s.Equal(set.Records(registry.KindAddress)[0], loaded[0])

	none, err := s.store.Load(ctx, registry.KindParty)
	s.Require().NoError(err)
	s.Empty(none)
}
