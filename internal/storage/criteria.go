package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/permit-scout/internal/leads"
)

// criteriaRecord is the persisted part of leads.Criteria; version and
// timestamp live in their own columns.
type criteriaRecord struct {
	MinValue   *float64         `json:"min_value,omitempty"`
	Categories []leads.Category `json:"categories,omitempty"`
	Statuses   []leads.Status   `json:"statuses,omitempty"`
	Sources    []leads.Source   `json:"sources,omitempty"`
}

// Criteria returns the saved criteria of userID, or empty criteria with
// version zero when the user never saved any.
func (db *DB) Criteria(ctx context.Context, userID string) (*leads.Criteria, error) {
	return loadCriteria(ctx, db, userID)
}

// PutCriteria stores c for userID and bumps the version. c must be validated.
func (db *DB) PutCriteria(ctx context.Context, userID string, c leads.Criteria, at time.Time) (*leads.Criteria, error) {
	data, err := json.Marshal(criteriaRecord{
		MinValue:   c.MinValue,
		Categories: c.Categories,
		Statuses:   c.Statuses,
		Sources:    c.Sources,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding criteria: %w", err)
	}

	var version int64
	err = db.QueryRowContext(ctx, `
		INSERT INTO criteria (user_id, data, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			data = excluded.data,
			version = criteria.version + 1,
			updated_at = excluded.updated_at
		RETURNING version`,
		userID, string(data), toNanos(at),
	).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("saving criteria: %w", err)
	}

	c.Version = version
	c.UpdatedAt = at.UTC()
	return &c, nil
}

func loadCriteria(ctx context.Context, q querier, userID string) (*leads.Criteria, error) {
	var (
		data      string
		version   int64
		updatedAt int64
	)
	err := q.QueryRowContext(ctx,
		"SELECT data, version, updated_at FROM criteria WHERE user_id = ?", userID,
	).Scan(&data, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &leads.Criteria{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying criteria: %w", err)
	}

	var rec criteriaRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decoding criteria: %w", err)
	}

	return &leads.Criteria{
		MinValue:   rec.MinValue,
		Categories: rec.Categories,
		Statuses:   rec.Statuses,
		Sources:    rec.Sources,
		Version:    version,
		UpdatedAt:  fromNanos(updatedAt),
	}, nil
}
