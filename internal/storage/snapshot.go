package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/spigell/permit-scout/internal/leads"
)

// Snapshot is a consistent view of one user's criteria and the projects a
// request works on, read inside a single transaction.
type Snapshot struct {
	Criteria   *leads.Criteria
	Projects   []*leads.Project
	Saved      []leads.SavedEntry
	LastScanAt *time.Time
}

// Snapshot reads the user's criteria, every project and the last scan time.
func (db *DB) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	snap := &Snapshot{}
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if snap.Criteria, err = loadCriteria(ctx, tx, userID); err != nil {
			return err
		}
		if snap.Projects, err = listProjects(ctx, tx); err != nil {
			return err
		}
		snap.LastScanAt, err = lastScanAt(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// SavedSnapshot reads the user's criteria and saved entries. Projects[i]
// is the current project of Saved[i].
func (db *DB) SavedSnapshot(ctx context.Context, userID string) (*Snapshot, error) {
	snap := &Snapshot{}
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if snap.Criteria, err = loadCriteria(ctx, tx, userID); err != nil {
			return err
		}
		snap.Saved, snap.Projects, err = savedRows(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
