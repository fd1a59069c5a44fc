package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/registry"
	"tally/pkg/domain"
)

func newStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(sqlx.NewDb(db, "postgres")), mock
}

func arrayValue(t *testing.T, values []string) driver.Value {
	t.Helper()
	v, err := pq.Array(values).(driver.Valuer).Value()
	require.NoError(t, err)
	return v
}

func TestSaveAll(t *testing.T) {
	store, mock := newStore(t)
	records := []registry.Record{
		{
			ID:        1,
			Kind:      registry.KindMember,
			Keys:      []string{"sidorova anna"},
			Fields:    map[string]string{"name": "Sidorova Anna"},
			RelatedTo: []domain.Venue{{Level: domain.LevelPrecinct, CommissionID: 101}, {Level: domain.LevelPrecinct, CommissionID: 102}},
		},
		{ID: 2, Kind: registry.KindSponsor, Keys: []string{"union"}, Counters: map[string]int64{"candidates": 3}},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO registry_entities"))
	prep.ExpectExec().
		WithArgs("member", int64(1), arrayValue(t, []string{"sidorova anna"}), []byte(`{"name":"Sidorova Anna"}`), []byte("{}"), []byte("{}"),
			arrayValue(t, []string{"precinct:101", "precinct:102"})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("sponsor", int64(2), arrayValue(t, []string{"union"}), []byte("{}"), []byte("{}"), []byte(`{"candidates":3}`), arrayValue(t, []string{})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveAll(context.Background(), records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAllRollsBackOnFailure(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO registry_entities")).
		ExpectExec().
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.SaveAll(context.Background(), []registry.Record{{ID: 1, Kind: registry.KindParty, Keys: []string{"greens"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save party 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad(t *testing.T) {
	store, mock := newStore(t)

	rows := sqlmock.NewRows([]string{"kind", "id", "keys", "fields", "alternates", "counters", "related_to"}).
		AddRow("address", int64(4), "{\"school 5\"}", []byte(`{"text":"Lenina 1"}`), []byte(`{"text":["Lenina st. 1"]}`), []byte("{}"), "{precinct:101,territorial:7}")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT kind, id, keys, fields, alternates, counters, related_to")).
		WithArgs("address").
		WillReturnRows(rows)

	got, err := store.Load(context.Background(), registry.KindAddress)
	require.NoError(t, err)
	require.Len(t, got, 1)

	rec := got[0]
	assert.Equal(t, domain.EntityID(4), rec.ID)
	assert.Equal(t, []string{"school 5"}, rec.Keys)
	assert.Equal(t, "Lenina 1", rec.Field("text"))
	assert.Equal(t, []string{"Lenina st. 1"}, rec.Alternates["text"])
	assert.Nil(t, rec.Counters)
	assert.Equal(t, []domain.Venue{
		{Level: domain.LevelPrecinct, CommissionID: 101},
		{Level: domain.LevelTerritorial, CommissionID: 7},
	}, rec.RelatedTo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS registry_entities")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
