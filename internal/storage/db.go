// Package storage persists assembled master tables as snapshots.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"braindrain/internal/acs"
	"braindrain/internal/master"
)

// ErrNoSnapshot is returned when a store holds no snapshot yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Snapshot is one persisted assembly run.
type Snapshot struct {
	ID      int64        `json:"id"`
	TakenAt time.Time    `json:"taken_at"`
	Year    int          `json:"year"`
	Table   master.Table `json:"table"`
}

// SnapshotInfo describes a snapshot without its rows.
type SnapshotInfo struct {
	ID         int64     `json:"id"`
	TakenAt    time.Time `json:"taken_at"`
	Year       int       `json:"year"`
	StateCount int       `json:"state_count"`
}

// Store persists snapshots. SQLiteStore and PostgresStore implement it.
type Store interface {
	SaveSnapshot(ctx context.Context, s *Snapshot) (int64, error)
	LatestSnapshot(ctx context.Context) (*Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error)
	Close() error
}

// Config holds connection settings for every backend.
type Config struct {
	Driver     string           `yaml:"driver" env:"BRAINDRAIN_STORE"` // "sqlite" or "postgres".
	SQLitePath string           `yaml:"sqlite_path" env:"BRAINDRAIN_SQLITE_PATH"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// DefaultConfig returns local development settings.
func DefaultConfig() Config {
	return Config{
		Driver:     "sqlite",
		SQLitePath: "braindrain.db",
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "braindrain",
			User:     "braindrain",
			Password: "braindrain",
		},
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "braindrain",
			User:     "default",
		},
	}
}

// Open opens the snapshot store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		s, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return s, nil
	case "postgres":
		pg, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.CreateSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func nullFloat(n acs.Num) sql.NullFloat64 {
	v, ok := n.Float()
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func fromNullFloat(n sql.NullFloat64) acs.Num {
	if !n.Valid {
		return acs.Null
	}
	return acs.Of(n.Float64)
}

func floatPtr(n acs.Num) *float64 {
	v, ok := n.Float()
	if !ok {
		return nil
	}
	return &v
}

func fromFloatPtr(p *float64) acs.Num {
	if p == nil {
		return acs.Null
	}
	return acs.Of(*p)
}

func encodeRecord(r *master.Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", r.State, err)
	}
	return b, nil
}

func decodeRecord(b []byte) (master.Record, error) {
	var r master.Record
	if err := json.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("unmarshal record: %w", err)
	}
	return r, nil
}
