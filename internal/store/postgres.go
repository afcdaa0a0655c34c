package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tc-outcome/internal/db"
)

// Postgres write modes.
const (
	ModeReplace = "replace" // delete the scheme's rows, then COPY
	ModeUpsert  = "upsert"  // merge on (scheme, gridcode), keeping other cells
)

// PostgresConfig configures the PostGIS indicator table.
type PostgresConfig struct {
	Schema string
	Table  string
	SRID   int // 0 stores untyped geometry
	Mode   string
}

// PostgresStore implements Store on PostGIS.
type PostgresStore struct {
	pool    db.Pool
	cfg     PostgresConfig
	closeFn func()
}

// NewPostgres connects to connString and returns a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig, cfg PostgresConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, err
	}
	s, err := NewPostgresWithPool(pool, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.closeFn = pool.Close
	return s, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close pool.
func NewPostgresWithPool(pool db.Pool, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeReplace
	}
	if err := checkTable(cfg.Schema + "." + cfg.Table); err != nil {
		return nil, err
	}
	if cfg.Mode != ModeReplace && cfg.Mode != ModeUpsert {
		return nil, eris.Errorf("postgres: unknown write mode %q", cfg.Mode)
	}
	return &PostgresStore{pool: pool, cfg: cfg}, nil
}

func (s *PostgresStore) qualified() string {
	return s.cfg.Schema + "." + s.cfg.Table
}

// Migrate creates the indicator table and its spatial index.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	geomType := "geometry"
	if s.cfg.SRID > 0 {
		geomType = fmt.Sprintf("geometry(MultiPolygon, %d)", s.cfg.SRID)
	}
	table := pgx.Identifier{s.cfg.Schema, s.cfg.Table}.Sanitize()

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	scheme   TEXT NOT NULL,
	gridcode BIGINT NOT NULL,
	tcd      DOUBLE PRECISION NOT NULL,
	geom     %s,
	PRIMARY KEY (scheme, gridcode)
)`, table, geomType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)`,
			pgx.Identifier{"idx_" + s.cfg.Table + "_geom"}.Sanitize(), table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "postgres: migrate %s", s.qualified())
		}
	}
	return nil
}

var recordColumns = []string{"scheme", "gridcode", "tcd", "geom"}

// ReplaceScheme writes recs for scheme according to the configured mode.
func (s *PostgresStore) ReplaceScheme(ctx context.Context, scheme string, recs []Record) (int64, error) {
	rows := make([][]any, len(recs))
	for i, r := range recs {
		var geom any
		if r.Geom != nil {
			geom = r.Geom
		}
		rows[i] = []any{scheme, r.GridCode, r.Value, geom}
	}

	if s.cfg.Mode == ModeUpsert {
		n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
			Table:        s.qualified(),
			Columns:      recordColumns,
			ConflictKeys: []string{"scheme", "gridcode"},
		}, rows)
		return n, eris.Wrapf(err, "postgres: upsert scheme %s", scheme)
	}
	n, err := db.ReplaceWhere(ctx, s.pool, s.qualified(), "scheme", scheme, recordColumns, rows)
	return n, eris.Wrapf(err, "postgres: replace scheme %s", scheme)
}

// ListScheme returns scheme's records ordered by grid code, geometry as EWKB.
func (s *PostgresStore) ListScheme(ctx context.Context, scheme string) ([]Record, error) {
	sql := fmt.Sprintf(`SELECT gridcode, tcd, ST_AsEWKB(geom) FROM %s WHERE scheme = $1 ORDER BY gridcode`,
		pgx.Identifier{s.cfg.Schema, s.cfg.Table}.Sanitize())
	rows, err := s.pool.Query(ctx, sql, scheme)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list scheme %s", scheme)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r := Record{Scheme: scheme}
		if err := rows.Scan(&r.GridCode, &r.Value, &r.Geom); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate records")
}

// Close releases the pool when the store opened it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
