package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/ai"
	"github.com/spigell/permit-scout/internal/ingest"
	"github.com/spigell/permit-scout/internal/leads"
)

var ErrNoBriefer = errors.New("project briefs are not configured")

// ImportReport summarizes one fixture import.
type ImportReport struct {
	Read     int
	Imported int
	New      int
	Rejected []ingest.Rejection
}

// ImportProjects loads a JSON or YAML file into storage. Invalid records are
// skipped and reported; valid ones are upserted in one transaction.
func (s *Service) ImportProjects(ctx context.Context, path string) (*ImportReport, error) {
	projects, err := ingest.ReadFile(path)
	if err != nil {
		return nil, err
	}

	valid, rejected := ingest.Validate(projects, "", s.now())
	report := &ImportReport{Read: len(projects), Imported: len(valid), Rejected: rejected}

	for _, r := range rejected {
		s.logger.Warn("skipping invalid project", zap.String("file", path), zap.String("project", r.String()))
	}

	if len(valid) > 0 {
		if report.New, err = s.db.UpsertProjects(ctx, valid); err != nil {
			return nil, err
		}
	}

	s.logger.Info("projects imported",
		zap.String("file", path),
		zap.Int("read", report.Read),
		zap.Int("imported", report.Imported),
		zap.Int("new", report.New),
		zap.Int("rejected", len(rejected)),
	)

	return report, nil
}

// BriefSaved generates a brief for one of the user's saved entries.
func (s *Service) BriefSaved(ctx context.Context, userID, entryID string) (*ai.Brief, error) {
	if s.briefer == nil {
		return nil, ErrNoBriefer
	}

	items, err := s.ListSaved(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if item.ID != entryID {
			continue
		}
		c, err := s.criteria.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		return s.briefer.Brief(ctx, item.Project, item.Score, c)
	}

	return nil, leads.NotFound("entryId", "saved entry %q not found", entryID)
}
