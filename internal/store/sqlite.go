package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn, table string) (*SQLiteStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validIdent(table) {
		return nil, eris.Errorf("sqlite: invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, table: table}, nil
}

// Migrate creates the indicator table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	scheme   TEXT    NOT NULL,
	gridcode INTEGER NOT NULL,
	tcd      REAL    NOT NULL,
	geom     BLOB,
	PRIMARY KEY (scheme, gridcode)
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_scheme ON %[1]s(scheme);
`, s.table))
	return eris.Wrap(err, "sqlite: migrate")
}

// ReplaceScheme deletes scheme's rows and inserts recs in one transaction.
func (s *SQLiteStore) ReplaceScheme(ctx context.Context, scheme string, recs []Record) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE scheme = ?`, s.table), scheme); err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete scheme %s", scheme)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (scheme, gridcode, tcd, geom) VALUES (?, ?, ?, ?)`, s.table))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer func() { _ = stmt.Close() }()

	var n int64
	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, scheme, r.GridCode, r.Value, r.Geom); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert cell %d", r.GridCode)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return n, nil
}

// ListScheme returns scheme's records ordered by grid code.
func (s *SQLiteStore) ListScheme(ctx context.Context, scheme string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT gridcode, tcd, geom FROM %s WHERE scheme = ? ORDER BY gridcode`, s.table), scheme)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list scheme %s", scheme)
	}
	defer rows.Close() //nolint:errcheck

	var out []Record
	for rows.Next() {
		r := Record{Scheme: scheme}
		if err := rows.Scan(&r.GridCode, &r.Value, &r.Geom); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate records")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
