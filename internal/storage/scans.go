package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/permit-scout/internal/leads"
)

// InsertScan appends a running record.
func (db *DB) InsertScan(ctx context.Context, rec *leads.ScanRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO scan_records (id, source, status, started_at)
		VALUES (?, ?, ?, ?)`,
		rec.ID, string(rec.Source), string(rec.Status), toNanos(rec.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting scan record: %w", err)
	}
	return nil
}

// FinishScan closes a running record. The update only matches open records,
// so of two concurrent finishers exactly one succeeds; the other gets Conflict.
func (db *DB) FinishScan(ctx context.Context, rec *leads.ScanRecord) error {
	if rec.EndedAt == nil {
		return fmt.Errorf("finishing scan %s: end time is required", rec.ID)
	}

	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE scan_records
			SET status = ?, found = ?, new = ?, ended_at = ?, error = ?
			WHERE id = ? AND ended_at IS NULL`,
			string(rec.Status), rec.Found, rec.New, toNanos(*rec.EndedAt), rec.Error, rec.ID,
		)
		if err != nil {
			return fmt.Errorf("finishing scan record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("finishing scan record: %w", err)
		}
		if n == 1 {
			return nil
		}

		var exists bool
		if err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM scan_records WHERE id = ?)", rec.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking scan record: %w", err)
		}
		if !exists {
			return leads.NotFound("recordId", "scan record %q not found", rec.ID)
		}
		return leads.Conflict("recordId", "scan record %q is already finished", rec.ID)
	})
}

// ScanRecord returns one record or NotFound.
func (db *DB) ScanRecord(ctx context.Context, id string) (*leads.ScanRecord, error) {
	rec, err := scanRecord(db.QueryRowContext(ctx, `
		SELECT id, source, status, found, new, started_at, ended_at, error
		FROM scan_records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leads.NotFound("recordId", "scan record %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying scan record: %w", err)
	}
	return rec, nil
}

// Scans returns the most recent records first. limit <= 0 returns all.
func (db *DB) Scans(ctx context.Context, limit int) ([]*leads.ScanRecord, error) {
	query := `
		SELECT id, source, status, found, new, started_at, ended_at, error
		FROM scan_records
		ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scan records: %w", err)
	}
	defer rows.Close()

	var records []*leads.ScanRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scan record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// LastScanAt returns the end time of the most recently finished record.
func (db *DB) LastScanAt(ctx context.Context) (*time.Time, error) {
	return lastScanAt(ctx, db)
}

func lastScanAt(ctx context.Context, q querier) (*time.Time, error) {
	var ended sql.NullInt64
	if err := q.QueryRowContext(ctx,
		"SELECT MAX(ended_at) FROM scan_records WHERE ended_at IS NOT NULL",
	).Scan(&ended); err != nil {
		return nil, fmt.Errorf("querying last scan: %w", err)
	}
	if !ended.Valid {
		return nil, nil
	}
	t := fromNanos(ended.Int64)
	return &t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*leads.ScanRecord, error) {
	var (
		rec       leads.ScanRecord
		source    string
		status    string
		startedAt int64
		endedAt   sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &source, &status, &rec.Found, &rec.New, &startedAt, &endedAt, &rec.Error); err != nil {
		return nil, err
	}
	rec.Source = leads.Source(source)
	rec.Status = leads.ScanStatus(status)
	rec.StartedAt = fromNanos(startedAt)
	if endedAt.Valid {
		t := fromNanos(endedAt.Int64)
		rec.EndedAt = &t
	}
	return &rec, nil
}
