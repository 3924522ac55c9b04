package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/permit-scout/internal/leads"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "nested", "scout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(v float64) *float64 { return &v }

var base = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func project(id string, value *float64) *leads.Project {
	return &leads.Project{
		ID:        id,
		Title:     "Project " + id,
		Category:  leads.CategoryStructural,
		Status:    leads.StatusOpen,
		Source:    leads.SourceSAMGov,
		Value:     value,
		PostedAt:  base,
		UpdatedAt: base,
	}
}

func TestUpsertProjectsCountsNew(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	created, err := db.UpsertProjects(ctx, []*leads.Project{project("a", ptr(10)), project("b", nil)})
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	updated := project("a", ptr(20))
	updated.UpdatedAt = base.Add(time.Hour)
	created, err = db.UpsertProjects(ctx, []*leads.Project{updated, project("c", nil)})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	n, err := db.CountProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := db.Project(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got.Value)
	assert.Equal(t, 20.0, *got.Value)
	assert.True(t, got.UpdatedAt.Equal(updated.UpdatedAt))

	all, err := db.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[1].ID)
	assert.Nil(t, all[1].Value)
}

func TestProjectNotFound(t *testing.T) {
	_, err := newTestDB(t).Project(context.Background(), "missing")
	assert.ErrorIs(t, err, leads.ErrNotFound)
}

func TestCriteriaVersioning(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	empty, err := db.Criteria(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
	assert.Zero(t, empty.Version)

	first, err := db.PutCriteria(ctx, "u1", leads.Criteria{
		MinValue:   ptr(0),
		Categories: []leads.Category{leads.CategoryMasonry},
	}, base)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)

	second, err := db.PutCriteria(ctx, "u1", leads.Criteria{Statuses: []leads.Status{leads.StatusOpen}}, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version)

	loaded, err := db.Criteria(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)
	assert.Nil(t, loaded.MinValue)
	assert.Empty(t, loaded.Categories)
	assert.Equal(t, []leads.Status{leads.StatusOpen}, loaded.Statuses)
	assert.True(t, loaded.UpdatedAt.Equal(base.Add(time.Minute)))

	other, err := db.Criteria(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, other.Version)
}

func TestSavedEntriesIdempotentAndOwned(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, err := db.UpsertProjects(ctx, []*leads.Project{project("a", nil), project("b", nil)})
	require.NoError(t, err)

	first, created, err := db.InsertSaved(ctx, leads.SavedEntry{ID: "s1", UserID: "u1", ProjectID: "a", SavedAt: base})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := db.InsertSaved(ctx, leads.SavedEntry{ID: "s2", UserID: "u1", ProjectID: "a", SavedAt: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.SavedAt.Equal(base))

	_, _, err = db.InsertSaved(ctx, leads.SavedEntry{ID: "s3", UserID: "u1", ProjectID: "nope", SavedAt: base})
	assert.ErrorIs(t, err, leads.ErrNotFound)

	_, _, err = db.InsertSaved(ctx, leads.SavedEntry{ID: "s4", UserID: "u1", ProjectID: "b", SavedAt: base})
	require.NoError(t, err)

	snap, err := db.SavedSnapshot(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, snap.Saved, 2)
	// Equal save times fall back to insertion order, newest first.
	assert.Equal(t, "s4", snap.Saved[0].ID)
	assert.Equal(t, "b", snap.Projects[0].ID)
	assert.Equal(t, "s1", snap.Saved[1].ID)

	assert.ErrorIs(t, db.DeleteSaved(ctx, "u2", "s1"), leads.ErrNotFound)
	require.NoError(t, db.DeleteSaved(ctx, "u1", "s1"))
	assert.ErrorIs(t, db.DeleteSaved(ctx, "u1", "s1"), leads.ErrNotFound)
}

func TestScanRecordsLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	last, err := db.LastScanAt(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	for i, id := range []string{"r1", "r2"} {
		require.NoError(t, db.InsertScan(ctx, &leads.ScanRecord{
			ID:        id,
			Source:    leads.SourceNYCDOB,
			Status:    leads.ScanRunning,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	ended := base.Add(10 * time.Minute)
	finish := &leads.ScanRecord{ID: "r1", Status: leads.ScanPartial, Found: 7, New: 2, EndedAt: &ended, Error: "page 3 failed"}
	require.NoError(t, db.FinishScan(ctx, finish))
	assert.ErrorIs(t, db.FinishScan(ctx, finish), leads.ErrConflict)

	missing := &leads.ScanRecord{ID: "r9", Status: leads.ScanSuccess, EndedAt: &ended}
	assert.ErrorIs(t, db.FinishScan(ctx, missing), leads.ErrNotFound)

	rec, err := db.ScanRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, leads.ScanPartial, rec.Status)
	assert.Equal(t, 7, rec.Found)
	assert.Equal(t, "page 3 failed", rec.Error)
	require.NotNil(t, rec.EndedAt)

	records, err := db.Scans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r2", records[0].ID)
	assert.Nil(t, records[0].EndedAt)

	limited, err := db.Scans(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	last, err = db.LastScanAt(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(ended))
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, err := db.UpsertProjects(ctx, []*leads.Project{project("b", nil), project("a", nil)})
	require.NoError(t, err)
	_, err = db.PutCriteria(ctx, "u1", leads.Criteria{MinValue: ptr(5)}, base)
	require.NoError(t, err)

	snap, err := db.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Criteria.Version)
	require.Len(t, snap.Projects, 2)
	assert.Equal(t, "a", snap.Projects[0].ID)
	assert.Nil(t, snap.LastScanAt)
}

func TestInMemoryDatabase(t *testing.T) {
	db, err := New(":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.UpsertProjects(context.Background(), []*leads.Project{project("a", nil)})
	require.NoError(t, err)

	n, err := db.CountProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
