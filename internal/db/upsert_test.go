package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "public.tc_outcome",
		Columns:      []string{"scheme", "gridcode", "tcd"},
		ConflictKeys: []string{"scheme", "gridcode"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "public.tc_outcome",
		ConflictKeys: []string{"gridcode"},
	}, [][]any{{1, 2.5}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "public.tc_outcome",
		Columns: []string{"gridcode", "tcd"},
	}, [][]any{{1, 2.5}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"scheme", "gridcode", "tcd"}
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_public_tc_outcome"}, cols).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("scheme", "gridcode"\) DO UPDATE SET "tcd" = EXCLUDED."tcd"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "public.tc_outcome",
		Columns:      cols,
		ConflictKeys: []string{"scheme", "gridcode"},
	}, [][]any{{"1mihex", int64(1), 1.5}, {"1mihex", int64(2), -0.25}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"gridcode", "tcd"}
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_tc_outcome"}, cols).WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "tc_outcome",
		Columns:      cols,
		ConflictKeys: []string{"gridcode"},
	}, [][]any{{int64(1), 1.5}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceWhere(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"scheme", "gridcode", "tcd"}
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "public"."tc_outcome" WHERE "scheme" = \$1`).
		WithArgs("1mihex").
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	mock.ExpectCopyFrom(pgx.Identifier{"public", "tc_outcome"}, cols).WillReturnResult(1)
	mock.ExpectCommit()

	n, err := ReplaceWhere(context.Background(), mock, "public.tc_outcome", "scheme", "1mihex",
		cols, [][]any{{"1mihex", int64(1), 1.5}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceWhere_DeleteError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM").WithArgs("1mihex").WillReturnError(fmt.Errorf("relation does not exist"))
	mock.ExpectRollback()

	_, err = ReplaceWhere(context.Background(), mock, "tc_outcome", "scheme", "1mihex", []string{"scheme"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete from tc_outcome")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.tc_outcome", `"public"."tc_outcome"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"scheme", "gridcode", "tcd"`, quoteAndJoin([]string{"scheme", "gridcode", "tcd"}))
}
