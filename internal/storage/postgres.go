package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST"`
	Port     int    `yaml:"port" env:"POSTGRES_PORT"`
	Database string `yaml:"database" env:"POSTGRES_DB"`
	User     string `yaml:"user" env:"POSTGRES_USER"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
}

// PostgresStore keeps snapshots in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (d *PostgresStore) Close() error {
	d.pool.Close()
	return nil
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresStore) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id              BIGSERIAL PRIMARY KEY,
		taken_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		year            INTEGER NOT NULL,
		median_rate     DOUBLE PRECISION,
		median_conc     DOUBLE PRECISION,
		state_count     INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON snapshots(taken_at);

	CREATE TABLE IF NOT EXISTS snapshot_states (
		snapshot_id     BIGINT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		position        INTEGER NOT NULL,
		state           TEXT NOT NULL,
		fips            TEXT,
		segment         TEXT NOT NULL,
		record          JSONB NOT NULL,
		PRIMARY KEY (snapshot_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshot_states_state ON snapshot_states(state);
	CREATE INDEX IF NOT EXISTS idx_snapshot_states_segment ON snapshot_states(segment);
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveSnapshot stores snap in one transaction and returns its ID.
func (d *PostgresStore) SaveSnapshot(ctx context.Context, snap *Snapshot) (int64, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO snapshots (taken_at, year, median_rate, median_conc, state_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, snap.TakenAt.UTC(), snap.Year,
		floatPtr(snap.Table.MedianRate), floatPtr(snap.Table.MedianConcentration), len(snap.Table.Records)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range snap.Table.Records {
		r := &snap.Table.Records[i]
		b, err := encodeRecord(r)
		if err != nil {
			return 0, err
		}
		batch.Queue(`
			INSERT INTO snapshot_states (snapshot_id, position, state, fips, segment, record)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		`, id, i, r.State, r.FIPS, r.Segment.String(), string(b))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("insert states: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	snap.ID = id
	return id, nil
}

// LatestSnapshot returns the most recently saved snapshot.
func (d *PostgresStore) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var (
		snap    Snapshot
		medRate *float64
		medConc *float64
	)
	err := d.pool.QueryRow(ctx, `
		SELECT id, taken_at, year, median_rate, median_conc
		FROM snapshots ORDER BY id DESC LIMIT 1
	`).Scan(&snap.ID, &snap.TakenAt, &snap.Year, &medRate, &medConc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	snap.TakenAt = snap.TakenAt.UTC()
	snap.Table.MedianRate = fromFloatPtr(medRate)
	snap.Table.MedianConcentration = fromFloatPtr(medConc)

	rows, err := d.pool.Query(ctx, `
		SELECT record::text FROM snapshot_states WHERE snapshot_id = $1 ORDER BY position
	`, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		r, err := decodeRecord([]byte(raw))
		if err != nil {
			return nil, err
		}
		snap.Table.Records = append(snap.Table.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}

	return &snap, nil
}

// ListSnapshots returns up to limit snapshots, newest first.
func (d *PostgresStore) ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.pool.Query(ctx, `
		SELECT id, taken_at, year, state_count FROM snapshots ORDER BY id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.TakenAt, &info.Year, &info.StateCount); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		info.TakenAt = info.TakenAt.UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}
