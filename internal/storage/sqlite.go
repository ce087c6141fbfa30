package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps snapshots in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at path. An empty path or
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: in-memory databases are per connection, and snapshot
	// writes are rare.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		taken_at TEXT NOT NULL,
		year INTEGER NOT NULL,
		median_rate REAL,
		median_conc REAL,
		state_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshot_states (
		snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		state TEXT NOT NULL,
		fips TEXT,
		segment TEXT NOT NULL,
		record_json TEXT NOT NULL,
		PRIMARY KEY (snapshot_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshot_states_state ON snapshot_states(state);
	CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON snapshots(taken_at);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveSnapshot stores snap and all its records in one transaction and
// returns the new snapshot ID.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *Snapshot) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (taken_at, year, median_rate, median_conc, state_count)
		VALUES (?, ?, ?, ?, ?)
	`, snap.TakenAt.UTC().Format(time.RFC3339Nano), snap.Year,
		nullFloat(snap.Table.MedianRate), nullFloat(snap.Table.MedianConcentration), len(snap.Table.Records))
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("snapshot id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_states (snapshot_id, position, state, fips, segment, record_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare state insert: %w", err)
	}
	defer stmt.Close()

	for i := range snap.Table.Records {
		r := &snap.Table.Records[i]
		b, err := encodeRecord(r)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, id, i, r.State, r.FIPS, r.Segment.String(), string(b)); err != nil {
			return 0, fmt.Errorf("insert state %s: %w", r.State, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	snap.ID = id
	return id, nil
}

// LatestSnapshot returns the most recently saved snapshot.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var (
		snap    Snapshot
		takenAt string
		medRate sql.NullFloat64
		medConc sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, taken_at, year, median_rate, median_conc
		FROM snapshots ORDER BY id DESC LIMIT 1
	`).Scan(&snap.ID, &takenAt, &snap.Year, &medRate, &medConc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}

	snap.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt)
	if err != nil {
		return nil, fmt.Errorf("parse taken_at: %w", err)
	}
	snap.Table.MedianRate = fromNullFloat(medRate)
	snap.Table.MedianConcentration = fromNullFloat(medConc)

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_json FROM snapshot_states WHERE snapshot_id = ? ORDER BY position
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
func (s *SQLiteStore) ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, taken_at, year, state_count FROM snapshots ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var takenAt string
		if err := rows.Scan(&info.ID, &takenAt, &info.Year, &info.StateCount); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if info.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt); err != nil {
			return nil, fmt.Errorf("parse taken_at: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
