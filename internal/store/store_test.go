package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "tc_outcome.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_ReplaceAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.ReplaceScheme(ctx, "1mihex", []Record{
		{GridCode: 9, Value: -0.5},
		{GridCode: 2, Value: 1.25, Geom: []byte{0x01, 0x06}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = st.ReplaceScheme(ctx, "100acrehex", []Record{{GridCode: 2, Value: 7}})
	require.NoError(t, err)

	recs, err := st.ListScheme(ctx, "1mihex")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), recs[0].GridCode)
	assert.Equal(t, []byte{0x01, 0x06}, recs[0].Geom)
	assert.Equal(t, "1mihex", recs[0].Scheme)
	assert.Nil(t, recs[1].Geom)
	assert.InDelta(t, -0.5, recs[1].Value, 1e-12)
}

func TestSQLite_ReplaceDropsStaleCells(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.ReplaceScheme(ctx, "1mihex", []Record{{GridCode: 1, Value: 1}, {GridCode: 2, Value: 2}})
	require.NoError(t, err)
	_, err = st.ReplaceScheme(ctx, "1mihex", []Record{{GridCode: 3, Value: 3}})
	require.NoError(t, err)

	recs, err := st.ListScheme(ctx, "1mihex")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(3), recs[0].GridCode)
}

func TestSQLite_InvalidTable(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "x.db"), "tc; DROP TABLE x")
	require.Error(t, err)
}

func newMockPostgresStore(t *testing.T, cfg PostgresConfig) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s, err := NewPostgresWithPool(mock, cfg)
	require.NoError(t, err)
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t, PostgresConfig{SRID: 5070})

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "public"."tc_outcome"[\s\S]*geometry\(MultiPolygon, 5070\)`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "idx_tc_outcome_geom"`).
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceScheme(t *testing.T) {
	s, mock := newMockPostgresStore(t, PostgresConfig{Schema: "canopy"})

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "canopy"."tc_outcome" WHERE "scheme" = \$1`).
		WithArgs("1mihex").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"canopy", "tc_outcome"}, recordColumns).WillReturnResult(2)
	mock.ExpectCommit()

	n, err := s.ReplaceScheme(context.Background(), "1mihex", []Record{
		{GridCode: 1, Value: 1.5, Geom: []byte{1}},
		{GridCode: 2, Value: -1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t, PostgresConfig{Mode: ModeUpsert})

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_public_tc_outcome"}, recordColumns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "public"."tc_outcome"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.ReplaceScheme(context.Background(), "1mihex", []Record{{GridCode: 1, Value: 1.5}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceError(t *testing.T) {
	s, mock := newMockPostgresStore(t, PostgresConfig{})

	mock.ExpectBegin().WillReturnError(fmt.Errorf("connection refused"))

	_, err := s.ReplaceScheme(context.Background(), "1mihex", []Record{{GridCode: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replace scheme 1mihex")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListScheme(t *testing.T) {
	s, mock := newMockPostgresStore(t, PostgresConfig{})

	rows := mock.NewRows([]string{"gridcode", "tcd", "st_asewkb"}).
		AddRow(int64(1), 1.5, []byte{1, 2}).
		AddRow(int64(4), -0.25, []byte(nil))
	mock.ExpectQuery(`SELECT gridcode, tcd, ST_AsEWKB\(geom\) FROM "public"."tc_outcome" WHERE scheme = \$1`).
		WithArgs("1mihex").
		WillReturnRows(rows)

	recs, err := s.ListScheme(context.Background(), "1mihex")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(4), recs[1].GridCode)
	assert.InDelta(t, 1.5, recs[0].Value, 1e-12)
	assert.Equal(t, []byte{1, 2}, recs[0].Geom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresWithPool_Validation(t *testing.T) {
	_, err := NewPostgresWithPool(nil, PostgresConfig{Table: "bad-name"})
	require.Error(t, err)

	_, err = NewPostgresWithPool(nil, PostgresConfig{Mode: "append"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown write mode")
}

func TestValidIdent(t *testing.T) {
	assert.True(t, validIdent("tc_outcome"))
	assert.True(t, validIdent("_x1"))
	assert.False(t, validIdent("1x"))
	assert.False(t, validIdent(""))
	assert.False(t, validIdent("a b"))
}
