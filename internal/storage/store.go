// Package storage persists alert records and backfill progress rows behind a
// driver-agnostic Store interface, with sqlite and postgres implementations.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
)

// Store is the persistence port for the backfill orchestrator and the
// narrative composer's warning cross-reference.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	// UpsertAlert inserts a new alert or updates the existing row with the
	// same (natural key, data source), reporting which occurred.
	UpsertAlert(ctx context.Context, alert domain.AlertRecord) (created bool, err error)

	// GetAlert returns the alert for a key scoped to its source, or nil.
	GetAlert(ctx context.Context, naturalKey, dataSource string) (*domain.AlertRecord, error)

	// ListWarningsBetween returns alerts of the given event types issued
	// inside [start, end].
	ListWarningsBetween(ctx context.Context, start, end time.Time, eventTypes []string) ([]domain.AlertRecord, error)

	// DeleteByDataSource removes every alert ingested from one source.
	// Rollback path for a bad backfill run.
	DeleteByDataSource(ctx context.Context, dataSource string) (int64, error)

	// UpsertProgress writes or overwrites the row for the record's
	// (region, year, month, step) composite key.
	UpsertProgress(ctx context.Context, rec domain.ProgressRecord) error

	// GetProgress returns one step's row, or nil when never recorded.
	GetProgress(ctx context.Context, region string, year int, month time.Month, step domain.ProgressStep) (*domain.ProgressRecord, error)

	// LatestProgress returns the most recently started step for a unit,
	// or nil when the unit was never touched. Same-timestamp ties break
	// toward the later pipeline step. Drives resume decisions.
	LatestProgress(ctx context.Context, region string, year int, month time.Month) (*domain.ProgressRecord, error)
}

// NewStore selects a driver from config-style inputs.
func NewStore(driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres", "postgresql":
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

// baseStore carries the SQL shared by both drivers. Queries are written with
// ? placeholders and rewritten per driver via bind.
type baseStore struct {
	db   *sql.DB
	bind func(string) string
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// bindQuestion keeps ? placeholders as-is (sqlite).
func bindQuestion(q string) string { return q }

// bindDollar rewrites ? placeholders into $1..$n (postgres).
func bindDollar(q string) string {
	var sb strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (b *baseStore) UpsertAlert(ctx context.Context, alert domain.AlertRecord) (bool, error) {
	if alert.NaturalKey == "" {
		return false, errors.New("alert has no natural key")
	}
	if alert.DataSource == "" {
		return false, errors.New("alert has no data source")
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var existingID int64
	err = tx.QueryRowContext(ctx,
		b.bind(`SELECT id FROM alerts WHERE natural_key = ? AND data_source = ?`),
		alert.NaturalKey, alert.DataSource,
	).Scan(&existingID)

	now := time.Now().UTC().Format(time.RFC3339)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, b.bind(`
			INSERT INTO alerts
				(natural_key, data_source, event_type, severity, area_desc,
				 effective, expires, issued, geometry_json, properties_json,
				 created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			alert.NaturalKey, alert.DataSource, alert.EventType, alert.Severity,
			alert.AreaDesc, encodeTime(alert.Effective), encodeTime(alert.Expires),
			encodeTime(alert.Issued), encodeGeometry(alert.Geometry),
			encodeJSON(alert.Properties), now, now,
		)
		if err != nil {
			return false, fmt.Errorf("insert alert: %w", err)
		}
		return true, tx.Commit()
	case err != nil:
		return false, fmt.Errorf("lookup alert: %w", err)
	default:
		_, err = tx.ExecContext(ctx, b.bind(`
			UPDATE alerts SET
				event_type = ?, severity = ?, area_desc = ?,
				effective = ?, expires = ?, issued = ?,
				geometry_json = ?, properties_json = ?, updated_at = ?
			WHERE id = ?`),
			alert.EventType, alert.Severity, alert.AreaDesc,
			encodeTime(alert.Effective), encodeTime(alert.Expires),
			encodeTime(alert.Issued), encodeGeometry(alert.Geometry),
			encodeJSON(alert.Properties), now, existingID,
		)
		if err != nil {
			return false, fmt.Errorf("update alert: %w", err)
		}
		return false, tx.Commit()
	}
}

const alertColumns = `natural_key, data_source, event_type, severity, area_desc,
	effective, expires, issued, geometry_json, properties_json`

func (b *baseStore) GetAlert(ctx context.Context, naturalKey, dataSource string) (*domain.AlertRecord, error) {
	row := b.db.QueryRowContext(ctx,
		b.bind(`SELECT `+alertColumns+` FROM alerts WHERE natural_key = ? AND data_source = ?`),
		naturalKey, dataSource,
	)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return alert, nil
}

func (b *baseStore) ListWarningsBetween(ctx context.Context, start, end time.Time, eventTypes []string) ([]domain.AlertRecord, error) {
	if len(eventTypes) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(eventTypes)), ", ")
	args := []any{encodeTime(start), encodeTime(end)}
	for _, et := range eventTypes {
		args = append(args, et)
	}

	rows, err := b.db.QueryContext(ctx, b.bind(
		`SELECT `+alertColumns+` FROM alerts
		 WHERE issued >= ? AND issued <= ? AND event_type IN (`+placeholders+`)
		 ORDER BY issued`), args...)
	if err != nil {
		return nil, fmt.Errorf("list warnings: %w", err)
	}
	defer rows.Close()

	var alerts []domain.AlertRecord
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

func (b *baseStore) DeleteByDataSource(ctx context.Context, dataSource string) (int64, error) {
	res, err := b.db.ExecContext(ctx,
		b.bind(`DELETE FROM alerts WHERE data_source = ?`), dataSource)
	if err != nil {
		return 0, fmt.Errorf("delete by data source: %w", err)
	}
	return res.RowsAffected()
}

func (b *baseStore) UpsertProgress(ctx context.Context, rec domain.ProgressRecord) error {
	var completedAt any
	if rec.CompletedAt != nil {
		completedAt = encodeTime(*rec.CompletedAt)
	}
	_, err := b.db.ExecContext(ctx, b.bind(`
		INSERT INTO backfill_progress
			(region, year, month, step, started_at, completed_at,
			 processed, inserted, updated, skipped, error_message, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (region, year, month, step) DO UPDATE SET
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			processed = excluded.processed,
			inserted = excluded.inserted,
			updated = excluded.updated,
			skipped = excluded.skipped,
			error_message = excluded.error_message,
			metadata_json = excluded.metadata_json`),
		rec.Region, rec.Year, int(rec.Month), string(rec.Step),
		encodeTime(rec.StartedAt), completedAt,
		rec.Counts.Processed, rec.Counts.Inserted, rec.Counts.Updated,
		rec.Counts.Skipped, rec.ErrorMessage, encodeJSON(rec.Metadata),
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

const progressColumns = `region, year, month, step, started_at, completed_at,
	processed, inserted, updated, skipped, error_message, metadata_json`

func (b *baseStore) GetProgress(ctx context.Context, region string, year int, month time.Month, step domain.ProgressStep) (*domain.ProgressRecord, error) {
	row := b.db.QueryRowContext(ctx, b.bind(
		`SELECT `+progressColumns+` FROM backfill_progress
		 WHERE region = ? AND year = ? AND month = ? AND step = ?`),
		region, year, int(month), string(step))
	rec, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return rec, nil
}

func (b *baseStore) LatestProgress(ctx context.Context, region string, year int, month time.Month) (*domain.ProgressRecord, error) {
	row := b.db.QueryRowContext(ctx, b.bind(
		`SELECT `+progressColumns+` FROM backfill_progress
		 WHERE region = ? AND year = ? AND month = ?
		 ORDER BY started_at DESC,
			CASE step
				WHEN 'completed' THEN 5
				WHEN 'failed' THEN 4
				WHEN 'insert' THEN 3
				WHEN 'parse' THEN 2
				ELSE 1
			END DESC
		 LIMIT 1`),
		region, year, int(month))
	rec, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest progress: %w", err)
	}
	return rec, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(s scanner) (*domain.AlertRecord, error) {
	var alert domain.AlertRecord
	var effective, expires, issued string
	var geometryJSON, propertiesJSON sql.NullString
	if err := s.Scan(
		&alert.NaturalKey, &alert.DataSource, &alert.EventType, &alert.Severity,
		&alert.AreaDesc, &effective, &expires, &issued,
		&geometryJSON, &propertiesJSON,
	); err != nil {
		return nil, err
	}
	alert.Effective = decodeTime(effective)
	alert.Expires = decodeTime(expires)
	alert.Issued = decodeTime(issued)
	if geometryJSON.Valid && geometryJSON.String != "" {
		var g domain.Geometry
		if err := json.Unmarshal([]byte(geometryJSON.String), &g); err == nil {
			alert.Geometry = &g
		}
	}
	if propertiesJSON.Valid && propertiesJSON.String != "" {
		_ = json.Unmarshal([]byte(propertiesJSON.String), &alert.Properties)
	}
	return &alert, nil
}

func scanProgress(s scanner) (*domain.ProgressRecord, error) {
	var rec domain.ProgressRecord
	var month int
	var step, startedAt string
	var completedAt, metadataJSON sql.NullString
	if err := s.Scan(
		&rec.Region, &rec.Year, &month, &step, &startedAt, &completedAt,
		&rec.Counts.Processed, &rec.Counts.Inserted, &rec.Counts.Updated,
		&rec.Counts.Skipped, &rec.ErrorMessage, &metadataJSON,
	); err != nil {
		return nil, err
	}
	rec.Month = time.Month(month)
	rec.Step = domain.ProgressStep(step)
	rec.StartedAt = decodeTime(startedAt)
	if completedAt.Valid && completedAt.String != "" {
		t := decodeTime(completedAt.String)
		rec.CompletedAt = &t
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata)
	}
	return &rec, nil
}

// Timestamps are stored as RFC3339 UTC text in both drivers so range
// comparisons work lexicographically and scanning stays uniform.
func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeGeometry(g *domain.Geometry) any {
	if g == nil {
		return nil
	}
	return encodeJSON(g)
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}
