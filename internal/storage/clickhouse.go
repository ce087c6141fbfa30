package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string `yaml:"host" env:"CLICKHOUSE_HOST"`
	Port     int    `yaml:"port" env:"CLICKHOUSE_PORT"`
	Database string `yaml:"database" env:"CLICKHOUSE_DB"`
	User     string `yaml:"user" env:"CLICKHOUSE_USER"`
	Password string `yaml:"password" env:"CLICKHOUSE_PASSWORD"`
}

// ClickHouseHistory is an append-only sink of per-state metrics, one row
// per state per snapshot, for trend analysis across ACS releases.
type ClickHouseHistory struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseHistory, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseHistory{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseHistory) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the history table.
func (d *ClickHouseHistory) CreateSchema(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS master_history (
		snapshot_id                 UInt64,
		taken_at                    DateTime64(3),
		year                        UInt16,
		state                       LowCardinality(String),
		segment                     LowCardinality(String),
		pop_25plus                  Nullable(Float64),
		stock_educated_total        Nullable(Float64),
		net_educated_migrants       Nullable(Float64),
		edu_inmig_rate              Nullable(Float64),
		edu_outmig_rate             Nullable(Float64),
		net_migration_rate          Nullable(Float64),
		talent_concentration        Nullable(Float64),
		bachelors_earnings_premium  Nullable(Float64),
		graduate_earnings_premium   Nullable(Float64)
	)
	ENGINE = MergeTree()
	ORDER BY (state, year, taken_at, snapshot_id)`

	if err := d.conn.Exec(ctx, q); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// AppendHistory writes one row per state of snap.
func (d *ClickHouseHistory) AppendHistory(ctx context.Context, snap *Snapshot) error {
	if len(snap.Table.Records) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `INSERT INTO master_history`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i := range snap.Table.Records {
		r := &snap.Table.Records[i]
		err := batch.Append(
			uint64(snap.ID), snap.TakenAt, uint16(snap.Year), r.State, r.Segment.String(),
			floatPtr(r.Pop25Plus), floatPtr(r.StockEducatedTotal), floatPtr(r.NetEducatedMigrants),
			floatPtr(r.EduInmigRate), floatPtr(r.EduOutmigRate), floatPtr(r.NetMigrationRate),
			floatPtr(r.TalentConcentration), floatPtr(r.BachelorsEarningsPremium), floatPtr(r.GraduateEarningsPremium),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// HistoryPoint is one state's headline metrics at one snapshot.
type HistoryPoint struct {
	SnapshotID          uint64    `json:"snapshot_id"`
	TakenAt             time.Time `json:"taken_at"`
	Year                uint16    `json:"year"`
	Segment             string    `json:"segment"`
	NetMigrationRate    *float64  `json:"net_migration_rate"`
	TalentConcentration *float64  `json:"talent_concentration"`
}

// StateHistory returns every recorded point for a state, oldest first.
func (d *ClickHouseHistory) StateHistory(ctx context.Context, state string) ([]HistoryPoint, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT snapshot_id, taken_at, year, segment, net_migration_rate, talent_concentration
		FROM master_history
		WHERE state = ?
		ORDER BY year, taken_at, snapshot_id
	`, state)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryPoint
	for rows.Next() {
		var p HistoryPoint
		if err := rows.Scan(&p.SnapshotID, &p.TakenAt, &p.Year, &p.Segment, &p.NetMigrationRate, &p.TalentConcentration); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
