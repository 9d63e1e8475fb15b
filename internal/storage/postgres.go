package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

// NewPostgres opens a postgres-backed store via the pgx stdlib driver.
func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/storm_archive?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, bind: bindDollar}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			natural_key TEXT NOT NULL,
			data_source TEXT NOT NULL,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL DEFAULT '',
			area_desc TEXT NOT NULL DEFAULT '',
			effective TEXT NOT NULL DEFAULT '',
			expires TEXT NOT NULL DEFAULT '',
			issued TEXT NOT NULL DEFAULT '',
			geometry_json TEXT,
			properties_json TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (natural_key, data_source)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_issued ON alerts(issued)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_source ON alerts(data_source)`,
		`CREATE TABLE IF NOT EXISTS backfill_progress (
			region TEXT NOT NULL,
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			step TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			processed INTEGER NOT NULL DEFAULT 0,
			inserted INTEGER NOT NULL DEFAULT 0,
			updated INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			metadata_json TEXT,
			PRIMARY KEY (region, year, month, step)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
