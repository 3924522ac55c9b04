package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/permit-scout/internal/ai"
	"github.com/spigell/permit-scout/internal/leads"
	"github.com/spigell/permit-scout/internal/query"
	"github.com/spigell/permit-scout/internal/storage"
)

func ptr(v float64) *float64 { return &v }

type fakePipeline struct {
	mu         sync.Mutex
	projects   map[leads.Source][]*leads.Project
	fetchErr   map[leads.Source]error
	triggerErr error
	triggered  []leads.Source
}

func (f *fakePipeline) Trigger(_ context.Context, source leads.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, source)
	return f.triggerErr
}

func (f *fakePipeline) Projects(_ context.Context, source leads.Source) ([]*leads.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*leads.Project
	for _, p := range f.projects[source] {
		cp := *p
		out = append(out, &cp)
	}
	return out, f.fetchErr[source]
}

type stubBriefer struct {
	score int
}

func (s *stubBriefer) Brief(_ context.Context, p *leads.Project, score int, _ *leads.Criteria) (*ai.Brief, error) {
	s.score = score
	return &ai.Brief{Summary: "brief for " + p.ID}, nil
}

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "scout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil, opts...)
}

var posted = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Service) {
	t.Helper()
	_, err := s.db.UpsertProjects(context.Background(), []*leads.Project{
		{ID: "p1", Title: "City hall facade", Category: leads.CategoryHistoricRestoration, Status: leads.StatusOpen, Source: leads.SourceSAMGov, Value: ptr(600000), PostedAt: posted, UpdatedAt: posted},
		{ID: "p2", Title: "Garage slab", Category: leads.CategoryStructural, Status: leads.StatusIssued, Source: leads.SourceNYCDOB, Value: ptr(90000), PostedAt: posted.Add(24 * time.Hour), UpdatedAt: posted},
		{ID: "p3", Title: "Chimney", Category: leads.CategoryMasonry, Status: leads.StatusClosed, Source: leads.SourceNYCDOB, PostedAt: posted.Add(48 * time.Hour), UpdatedAt: posted},
	})
	require.NoError(t, err)
}

func TestListProjectsUsesSavedCriteria(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	seed(t, s)

	res, err := s.ListProjects(ctx, "u1", query.Filters{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Items, 3)
	for _, item := range res.Items {
		assert.Equal(t, 100, item.Score, "no preferences means every project matches")
	}

	_, err = s.SetCriteria(ctx, "u1", leads.Criteria{
		MinValue:   ptr(500000),
		Categories: []leads.Category{leads.CategoryHistoricRestoration},
	})
	require.NoError(t, err)

	res, err = s.ListProjects(ctx, "u1", query.Filters{MinMatch: 60, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "p1", res.Items[0].ID)
	assert.Equal(t, 100, res.Items[0].Score)

	// Criteria are per user.
	other, err := s.ListProjects(ctx, "u2", query.Filters{MinMatch: 60})
	require.NoError(t, err)
	assert.Equal(t, 3, other.Total)

	_, err = s.ListProjects(ctx, "u1", query.Filters{SortBy: "newest"})
	assert.ErrorIs(t, err, leads.ErrInvalidFilter)

	_, err = s.ListProjects(ctx, "", query.Filters{})
	assert.ErrorIs(t, err, leads.ErrInvalidArgument)

	all, err := s.ListAllProjects(ctx, "u1", query.Filters{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, all, 3, "the unpaged listing ignores the limit")
}

func TestGetStatsSummary(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	seed(t, s)

	_, err := s.SetCriteria(ctx, "u1", leads.Criteria{MinValue: ptr(100000)})
	require.NoError(t, err)

	rec, err := s.RecordScanStart(ctx, "nyc-dob")
	require.NoError(t, err)
	finished, err := s.RecordScanFinish(ctx, rec.ID, "success", 3, 1)
	require.NoError(t, err)

	stats, err := s.GetStatsSummary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalProjects)
	assert.Equal(t, 690000.0, stats.TotalPipelineValue)
	// p1=100, p2=75, p3=75
	assert.Equal(t, 83, stats.AvgMatchScore)
	assert.Equal(t, 1, stats.HighMatchCount)
	require.NotNil(t, stats.LastScanAt)
	assert.True(t, stats.LastScanAt.Equal(*finished.EndedAt))
}

func TestSavedFlow(t *testing.T) {
	ctx := context.Background()
	briefer := &stubBriefer{}
	s := newService(t, WithBriefer(briefer))
	seed(t, s)

	entry, err := s.SaveProject(ctx, "u1", "p2")
	require.NoError(t, err)
	again, err := s.SaveProject(ctx, "u1", "p2")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, again.ID)

	list, err := s.ListSaved(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	brief, err := s.BriefSaved(ctx, "u1", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "brief for p2", brief.Summary)
	assert.Equal(t, 100, briefer.score)

	_, err = s.BriefSaved(ctx, "u2", entry.ID)
	assert.ErrorIs(t, err, leads.ErrNotFound)

	assert.ErrorIs(t, s.UnsaveProject(ctx, "u1", "missing"), leads.ErrNotFound)
	require.NoError(t, s.UnsaveProject(ctx, "u1", entry.ID))

	list, err = s.ListSaved(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBriefSavedRequiresBriefer(t *testing.T) {
	_, err := newService(t).BriefSaved(context.Background(), "u1", "x")
	assert.ErrorIs(t, err, ErrNoBriefer)
}

func TestRecordScanValidation(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	_, err := s.RecordScanStart(ctx, "carrier-pigeon")
	assert.ErrorIs(t, err, leads.ErrInvalidArgument)

	rec, err := s.RecordScanStart(ctx, "bidnet")
	require.NoError(t, err)
	_, err = s.RecordScanFinish(ctx, rec.ID, "done", 1, 1)
	assert.ErrorIs(t, err, leads.ErrInvalidArgument)
	_, err = s.RecordScanFinish(ctx, rec.ID, "error", 0, 0)
	require.NoError(t, err)
	_, err = s.RecordScanFinish(ctx, rec.ID, "success", 0, 0)
	assert.ErrorIs(t, err, leads.ErrConflict)

	history, err := s.ListScanHistory(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func pipelineProjects() map[leads.Source][]*leads.Project {
	return map[leads.Source][]*leads.Project{
		leads.SourceSAMGov: {
			{ID: "sam-1", Title: "Depot", Category: leads.CategoryGovernment, Status: "open", Source: leads.SourceSAMGov, PostedAt: posted},
			{ID: "sam-2", Title: "Armory", Category: leads.CategoryGovernment, Status: leads.StatusAwarded, Source: leads.SourceSAMGov, PostedAt: posted},
		},
		leads.SourceBidNet: {
			{ID: "bid-1", Title: "School gym", Category: leads.CategoryCommercial, Status: leads.StatusOpen, Source: leads.SourceBidNet, PostedAt: posted},
			{ID: "bid-2", Title: "Broken", Category: "plumbing", Status: leads.StatusOpen, Source: leads.SourceBidNet, PostedAt: posted},
		},
	}
}

func TestTriggerScan(t *testing.T) {
	ctx := context.Background()
	pipeline := &fakePipeline{
		projects: pipelineProjects(),
		fetchErr: map[leads.Source]error{leads.SourceChicagoPermits: errors.New("connection reset")},
	}
	s := newService(t, WithPipeline(pipeline))

	rec, err := s.TriggerScan(ctx, "sam-gov")
	require.NoError(t, err)
	assert.Equal(t, leads.ScanSuccess, rec.Status)
	assert.Equal(t, 2, rec.Found)
	assert.Equal(t, 2, rec.New)

	rec, err = s.TriggerScan(ctx, "sam-gov")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.New, "second scan only updates")

	stored, err := s.db.Project(ctx, "sam-1")
	require.NoError(t, err)
	assert.Equal(t, leads.StatusOpen, stored.Status)
	assert.False(t, stored.UpdatedAt.IsZero())

	rec, err = s.TriggerScan(ctx, "bidnet")
	require.NoError(t, err)
	assert.Equal(t, leads.ScanPartial, rec.Status)
	assert.Equal(t, 1, rec.New)
	assert.Contains(t, rec.Error, "1 of 2 projects rejected")

	rec, err = s.TriggerScan(ctx, "chicago-permits")
	require.NoError(t, err)
	assert.Equal(t, leads.ScanError, rec.Status)
	assert.Contains(t, rec.Error, "connection reset")

	_, err = s.TriggerScan(ctx, "nowhere")
	assert.ErrorIs(t, err, leads.ErrInvalidArgument)

	_, err = newService(t).TriggerScan(ctx, "sam-gov")
	assert.ErrorIs(t, err, ErrNoPipeline)
}

func TestTriggerScanTriggerFailure(t *testing.T) {
	pipeline := &fakePipeline{triggerErr: errors.New("429")}
	s := newService(t, WithPipeline(pipeline))

	rec, err := s.TriggerScan(context.Background(), "sf-permits")
	require.NoError(t, err)
	assert.Equal(t, leads.ScanError, rec.Status)
	assert.True(t, rec.Finished())
}

func TestTriggerAll(t *testing.T) {
	pipeline := &fakePipeline{projects: pipelineProjects()}
	s := newService(t, WithPipeline(pipeline))

	records, err := s.TriggerAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, len(leads.Sources))

	assert.Len(t, pipeline.triggered, len(leads.Sources))

	n, err := s.db.CountProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestImportProjects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: dob-1
  title: Parapet repair
  category: masonry
  status: Issued
  source: nyc-dob
  posted_at: "2024-02-02"
- id: dob-2
  title: Missing date
  category: masonry
  status: Issued
  source: nyc-dob
`), 0o600))

	s := newService(t)
	report, err := s.ImportProjects(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Read)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 1, report.New)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, "dob-2", report.Rejected[0].ID)

	report, err = s.ImportProjects(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, report.New)
}

func TestReimportedProjectIsRescored(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	write := func(category string) {
		require.NoError(t, os.WriteFile(path, []byte(`
- id: x
  title: Storefront
  category: `+category+`
  status: Open
  source: bidnet
  posted_at: "2026-01-01"
  updated_at: "2026-01-02T00:00:00Z"
`), 0o600))
	}

	s := newService(t)
	_, err := s.SetCriteria(ctx, "u1", leads.Criteria{Categories: []leads.Category{leads.CategoryMasonry}})
	require.NoError(t, err)

	write("masonry")
	_, err = s.ImportProjects(ctx, path)
	require.NoError(t, err)

	res, err := s.ListProjects(ctx, "u1", query.Filters{Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 100, res.Items[0].Score)

	// Same upstream stamp, different data.
	write("commercial")
	_, err = s.ImportProjects(ctx, path)
	require.NoError(t, err)

	res, err = s.ListProjects(ctx, "u1", query.Filters{Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, leads.CategoryCommercial, res.Items[0].Category)
	assert.Equal(t, 75, res.Items[0].Score)
}
