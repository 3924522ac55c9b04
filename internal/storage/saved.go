package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spigell/permit-scout/internal/leads"
)

// InsertSaved stores entry unless the user already saved the project, in
// which case the existing entry is returned and created is false.
func (db *DB) InsertSaved(ctx context.Context, entry leads.SavedEntry) (saved *leads.SavedEntry, created bool, err error) {
	err = db.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM projects WHERE id = ?)", entry.ProjectID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking project: %w", err)
		}
		if !exists {
			return leads.NotFound("projectId", "project %q not found", entry.ProjectID)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO saved_projects (id, user_id, project_id, saved_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, project_id) DO NOTHING`,
			entry.ID, entry.UserID, entry.ProjectID, toNanos(entry.SavedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting saved entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("inserting saved entry: %w", err)
		}
		created = n == 1

		var savedAt int64
		saved = &leads.SavedEntry{}
		if err := tx.QueryRowContext(ctx,
			"SELECT id, user_id, project_id, saved_at FROM saved_projects WHERE user_id = ? AND project_id = ?",
			entry.UserID, entry.ProjectID,
		).Scan(&saved.ID, &saved.UserID, &saved.ProjectID, &savedAt); err != nil {
			return fmt.Errorf("reading saved entry: %w", err)
		}
		saved.SavedAt = fromNanos(savedAt)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return saved, created, nil
}

// DeleteSaved removes an entry owned by userID. Entries of other users are
// reported as NotFound.
func (db *DB) DeleteSaved(ctx context.Context, userID, entryID string) error {
	res, err := db.ExecContext(ctx,
		"DELETE FROM saved_projects WHERE id = ? AND user_id = ?", entryID, userID,
	)
	if err != nil {
		return fmt.Errorf("deleting saved entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting saved entry: %w", err)
	}
	if n == 0 {
		return leads.NotFound("entryId", "saved entry %q not found", entryID)
	}
	return nil
}

// savedRows returns the user's entries newest first, each with its project.
func savedRows(ctx context.Context, q querier, userID string) ([]leads.SavedEntry, []*leads.Project, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.project_id, s.saved_at, p.data
		FROM saved_projects s
		JOIN projects p ON p.id = s.project_id
		WHERE s.user_id = ?
		ORDER BY s.saved_at DESC, s.rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("querying saved entries: %w", err)
	}
	defer rows.Close()

	var (
		entries  []leads.SavedEntry
		projects []*leads.Project
	)
	for rows.Next() {
		var (
			e       leads.SavedEntry
			savedAt int64
			data    string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProjectID, &savedAt, &data); err != nil {
			return nil, nil, fmt.Errorf("scanning saved entry: %w", err)
		}
		p, err := decodeProject(data)
		if err != nil {
			return nil, nil, err
		}
		e.SavedAt = fromNanos(savedAt)
		entries = append(entries, e)
		projects = append(projects, p)
	}

	return entries, projects, rows.Err()
}
