package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/kmathis/glucopanel/internal/domain/model"
	"github.com/kmathis/glucopanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ReadingStore = (*ReadingRepo)(nil)

// ReadingRepo is the SQLite implementation of the ReadingStore port.
// Timestamps are stored as RFC3339 UTC strings, one row per reading.
type ReadingRepo struct {
	db *DB
}

// NewReadingRepo creates a new ReadingRepo backed by the given DB.
func NewReadingRepo(db *DB) *ReadingRepo {
	return &ReadingRepo{db: db}
}

// ReplaceHistory atomically replaces all stored readings with the given
// ordered sequence.
func (r *ReadingRepo) ReplaceHistory(ctx context.Context, readings []model.Reading) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	if _, err := tx.ExecContext(ctx, `DELETE FROM readings`); err != nil {
		return fmt.Errorf("delete readings: %w", err)
	}

	const insertQuery = `INSERT OR REPLACE INTO readings (timestamp, value, trend) VALUES (?, ?, ?)`
	for _, reading := range readings {
		if _, err := tx.ExecContext(ctx, insertQuery,
			reading.Timestamp.UTC().Format(time.RFC3339), reading.Value, string(reading.Trend),
		); err != nil {
			return fmt.Errorf("insert reading at %s: %w", reading.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit readings: %w", err)
	}
	return nil
}

// Append inserts one reading, overwriting any existing row with the same
// timestamp.
func (r *ReadingRepo) Append(ctx context.Context, reading model.Reading) error {
	const query = `INSERT OR REPLACE INTO readings (timestamp, value, trend) VALUES (?, ?, ?)`
	if _, err := r.db.Writer.ExecContext(ctx, query,
		reading.Timestamp.UTC().Format(time.RFC3339), reading.Value, string(reading.Trend),
	); err != nil {
		return fmt.Errorf("append reading at %s: %w", reading.Timestamp, err)
	}
	return nil
}

// ListSince returns stored readings at or after the given instant, ordered
// ascending by timestamp.
func (r *ReadingRepo) ListSince(ctx context.Context, since time.Time) ([]model.Reading, error) {
	const query = `
		SELECT timestamp, value, trend
		FROM readings
		WHERE timestamp >= ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []model.Reading
	for rows.Next() {
		var ts, trend string
		var reading model.Reading
		if err := rows.Scan(&ts, &reading.Value, &trend); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		reading.Timestamp, err = parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parse reading timestamp: %w", err)
		}
		reading.Trend = model.Trend(trend)
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}

	return readings, nil
}

// Prune removes readings older than the given instant.
func (r *ReadingRepo) Prune(ctx context.Context, before time.Time) error {
	const query = `DELETE FROM readings WHERE timestamp < ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, before.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("prune readings: %w", err)
	}
	return nil
}
