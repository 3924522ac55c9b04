package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/permit-scout/internal/ingest"
	"github.com/spigell/permit-scout/internal/leads"
	"github.com/spigell/permit-scout/internal/ledger"
)

var ErrNoPipeline = errors.New("scan pipeline is not configured")

// TriggerScan asks the pipeline to rescan source, pulls the resulting
// projects into storage and records the run in the ledger. The returned
// record is the finished ledger entry; a failed scan is reported through its
// status, not through the error.
func (s *Service) TriggerScan(ctx context.Context, source string) (*leads.ScanRecord, error) {
	if s.pipeline == nil {
		return nil, ErrNoPipeline
	}
	src, err := leads.ParseSource(source)
	if err != nil {
		return nil, leads.InvalidArgument("source", "%s", err)
	}

	rec, err := s.ledger.Start(ctx, src)
	if err != nil {
		return nil, err
	}

	found, created, scanErr := s.scan(ctx, src)

	outcome := ledger.Outcome{Status: leads.ScanSuccess, Found: found, New: created, Err: scanErr}
	if scanErr != nil {
		outcome.Status = leads.ScanError
		if created > 0 || found > 0 {
			outcome.Status = leads.ScanPartial
		}
	}

	// The record must be closed even when the caller gave up waiting.
	return s.ledger.Finish(context.WithoutCancel(ctx), rec.ID, outcome)
}

// TriggerAll scans every source concurrently. Records of all sources are
// returned even when some of them could not be started.
func (s *Service) TriggerAll(ctx context.Context) ([]*leads.ScanRecord, error) {
	var (
		mu      sync.Mutex
		records = make([]*leads.ScanRecord, 0, len(leads.Sources))
		errs    []error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range leads.Sources {
		g.Go(func() error {
			rec, err := s.TriggerScan(gctx, string(src))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", src, err))
				return nil
			}
			records = append(records, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return records, errors.Join(errs...)
}

func (s *Service) scan(ctx context.Context, src leads.Source) (found, created int, err error) {
	if err := s.pipeline.Trigger(ctx, src); err != nil {
		return 0, 0, fmt.Errorf("trigger: %w", err)
	}

	projects, fetchErr := s.pipeline.Projects(ctx, src)
	found = len(projects)

	valid, rejected := ingest.Validate(projects, src, s.now())
	for _, r := range rejected {
		s.logger.Warn("skipping invalid project",
			zap.String("source", string(src)),
			zap.String("project", r.String()),
		)
	}

	if len(valid) > 0 {
		created, err = s.db.UpsertProjects(ctx, valid)
		if err != nil {
			return found, 0, fmt.Errorf("store projects: %w", err)
		}
	}

	switch {
	case fetchErr != nil:
		return found, created, fmt.Errorf("fetch: %w", fetchErr)
	case len(rejected) > 0:
		return found, created, fmt.Errorf("%d of %d projects rejected", len(rejected), found)
	}
	return found, created, nil
}
