package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spigell/permit-scout/internal/leads"
)

// UpsertProjects inserts or replaces projects and returns how many were new.
func (db *DB) UpsertProjects(ctx context.Context, projects []*leads.Project) (int, error) {
	created := 0
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range projects {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				"SELECT EXISTS(SELECT 1 FROM projects WHERE id = ?)", p.ID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("checking project %s: %w", p.ID, err)
			}

			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encoding project %s: %w", p.ID, err)
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO projects (id, source, posted_at, updated_at, data)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					source = excluded.source,
					posted_at = excluded.posted_at,
					updated_at = excluded.updated_at,
					data = excluded.data`,
				p.ID, string(p.Source), toNanos(p.PostedAt), toNanos(p.UpdatedAt), string(data),
			); err != nil {
				return fmt.Errorf("upserting project %s: %w", p.ID, err)
			}

			if !exists {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// Project returns one project or a NotFound error.
func (db *DB) Project(ctx context.Context, id string) (*leads.Project, error) {
	var data string
	err := db.QueryRowContext(ctx, "SELECT data FROM projects WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leads.NotFound("projectId", "project %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying project: %w", err)
	}
	return decodeProject(data)
}

// Projects returns every stored project ordered by id.
func (db *DB) Projects(ctx context.Context) ([]*leads.Project, error) {
	return listProjects(ctx, db)
}

// CountProjects returns the number of stored projects.
func (db *DB) CountProjects(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting projects: %w", err)
	}
	return n, nil
}

func listProjects(ctx context.Context, q querier) ([]*leads.Project, error) {
	rows, err := q.QueryContext(ctx, "SELECT data FROM projects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var projects []*leads.Project
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		p, err := decodeProject(data)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

func decodeProject(data string) (*leads.Project, error) {
	p, err := leads.DecodeStored([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decoding project: %w", err)
	}
	return p, nil
}
