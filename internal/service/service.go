// Package service is the surface the CLI (or any transport) calls. It wires
// the stores, the scorer and the query engine together and runs every read
// against one consistent snapshot.
package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/ai"
	"github.com/spigell/permit-scout/internal/criteria"
	"github.com/spigell/permit-scout/internal/leads"
	"github.com/spigell/permit-scout/internal/ledger"
	"github.com/spigell/permit-scout/internal/query"
	"github.com/spigell/permit-scout/internal/saved"
	"github.com/spigell/permit-scout/internal/scoring"
	"github.com/spigell/permit-scout/internal/storage"
)

// Pipeline is the external scan pipeline.
type Pipeline interface {
	Trigger(ctx context.Context, source leads.Source) error
	Projects(ctx context.Context, source leads.Source) ([]*leads.Project, error)
}

type Service struct {
	db       *storage.DB
	scorer   *scoring.Scorer
	engine   *query.Engine
	criteria *criteria.Store
	saved    *saved.Manager
	ledger   *ledger.Ledger
	pipeline Pipeline
	briefer  ai.Briefer
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithPipeline(p Pipeline) Option {
	return func(s *Service) { s.pipeline = p }
}

func WithBriefer(b ai.Briefer) Option {
	return func(s *Service) { s.briefer = b }
}

func WithScorer(scorer *scoring.Scorer) Option {
	return func(s *Service) { s.scorer = scorer }
}

func New(db *storage.DB, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{db: db, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.scorer == nil {
		s.scorer = scoring.NewScorer(logger)
	}

	s.engine = query.NewEngine(logger, s.scorer)
	s.criteria = criteria.NewStore(db, s.scorer, logger)
	s.saved = saved.NewManager(db, s.scorer, logger)
	s.ledger = ledger.New(db, logger)
	return s
}

// ListProjects serves one page of scored projects.
func (s *Service) ListProjects(ctx context.Context, userID string, f query.Filters) (*query.Result, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	snap, err := s.db.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.engine.Query(ctx, userID, snap.Criteria, snap.Projects, f)
}

// ListAllProjects is ListProjects without a page; f.Limit is ignored.
func (s *Service) ListAllProjects(ctx context.Context, userID string, f query.Filters) ([]*leads.ScoredProject, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	snap, err := s.db.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.engine.All(ctx, userID, snap.Criteria, snap.Projects, f)
}

// GetStatsSummary aggregates every project with no score floor and no limit.
func (s *Service) GetStatsSummary(ctx context.Context, userID string) (query.Stats, error) {
	if err := checkUser(userID); err != nil {
		return query.Stats{}, err
	}
	snap, err := s.db.Snapshot(ctx, userID)
	if err != nil {
		return query.Stats{}, err
	}
	items, err := s.engine.All(ctx, userID, snap.Criteria, snap.Projects, query.Filters{MinMatch: 0})
	if err != nil {
		return query.Stats{}, err
	}
	return query.Summarize(items, snap.LastScanAt), nil
}

func (s *Service) GetCriteria(ctx context.Context, userID string) (*leads.Criteria, error) {
	return s.criteria.Get(ctx, userID)
}

func (s *Service) SetCriteria(ctx context.Context, userID string, c leads.Criteria) (*leads.Criteria, error) {
	return s.criteria.Set(ctx, userID, c)
}

func (s *Service) SaveProject(ctx context.Context, userID, projectID string) (*leads.SavedEntry, error) {
	return s.saved.Save(ctx, userID, projectID)
}

func (s *Service) UnsaveProject(ctx context.Context, userID, entryID string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	return s.saved.Unsave(ctx, userID, entryID)
}

func (s *Service) ListSaved(ctx context.Context, userID string) ([]*leads.SavedProject, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	return s.saved.List(ctx, userID)
}

// RecordScanStart opens a ledger record for a scan run by an external job.
func (s *Service) RecordScanStart(ctx context.Context, source string) (*leads.ScanRecord, error) {
	src, err := leads.ParseSource(source)
	if err != nil {
		return nil, leads.InvalidArgument("source", "%s", err)
	}
	return s.ledger.Start(ctx, src)
}

// RecordScanFinish closes a record opened by RecordScanStart.
func (s *Service) RecordScanFinish(ctx context.Context, recordID, status string, found, newCount int) (*leads.ScanRecord, error) {
	return s.ledger.Finish(ctx, recordID, ledger.Outcome{
		Status: leads.ScanStatus(status),
		Found:  found,
		New:    newCount,
	})
}

func (s *Service) ListScanHistory(ctx context.Context, limit int) ([]*leads.ScanRecord, error) {
	return s.ledger.List(ctx, limit)
}

func checkUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return leads.InvalidArgument("userId", "user id is required")
	}
	return nil
}
