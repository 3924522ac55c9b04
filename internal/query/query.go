// Package query serves filtered, sorted pages of scored projects for one user.
package query

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/filtering"
	"github.com/spigell/permit-scout/internal/leads"
	"github.com/spigell/permit-scout/internal/scoring"
)

// Sort keys accepted by Filters.SortBy.
const (
	SortScore  = "score"
	SortValue  = "value"
	SortPosted = "posted"
)

// Filters are view-level restrictions. They never change a project's score.
type Filters struct {
	Search   string
	Category string
	Source   string
	MinMatch int
	SortBy   string
	// Limit caps the page size. Zero yields an empty page that still
	// reports Total; use Engine.All for every match.
	Limit int
}

// Result is one page. Total counts every project that passed the filters,
// before the page was truncated.
type Result struct {
	Items []*leads.ScoredProject
	Total int
}

// Engine runs queries against a snapshot of projects and criteria.
type Engine struct {
	logger *zap.Logger
	scorer *scoring.Scorer
}

func NewEngine(logger *zap.Logger, scorer *scoring.Scorer) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scorer == nil {
		scorer = scoring.NewScorer(logger)
	}
	return &Engine{logger: logger, scorer: scorer}
}

// Steps builds the filter pipeline for f. The score floor always runs first.
func Steps(f Filters) []filtering.Filter {
	return []filtering.Filter{
		filtering.NewMinMatch(f.MinMatch),
		filtering.NewSearch(f.Search),
		filtering.NewCategory(f.Category),
		filtering.NewSource(f.Source),
	}
}

// Validate checks the parts of f the filter steps do not own.
func (f Filters) Validate() error {
	switch f.SortBy {
	case "", SortScore, SortValue, SortPosted:
	default:
		return leads.InvalidFilter("sortBy", "unknown sort key %q", f.SortBy)
	}
	if f.Limit < 0 {
		return leads.InvalidFilter("limit", "must be >= 0, got %d", f.Limit)
	}
	return nil
}

// Query scores every project against criteria, applies the filters, sorts and
// truncates to f.Limit. projects and criteria must come from the same snapshot.
func (e *Engine) Query(ctx context.Context, userID string, criteria *leads.Criteria, projects []*leads.Project, f Filters) (*Result, error) {
	items, err := e.rank(ctx, userID, criteria, projects, f)
	if err != nil {
		return nil, err
	}

	total := len(items)
	if len(items) > f.Limit {
		items = items[:f.Limit]
	}

	e.logger.Debug("query served",
		zap.String("user_id", userID),
		zap.Int("projects", len(projects)),
		zap.Int("total", total),
		zap.Int("returned", len(items)),
		zap.String("sort_by", sortKey(f.SortBy)),
	)

	return &Result{Items: items, Total: total}, nil
}

// All is Query without a page: every project passing the filters, sorted.
// f.Limit is ignored.
func (e *Engine) All(ctx context.Context, userID string, criteria *leads.Criteria, projects []*leads.Project, f Filters) ([]*leads.ScoredProject, error) {
	f.Limit = 0
	items, err := e.rank(ctx, userID, criteria, projects, f)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("unpaged query served",
		zap.String("user_id", userID),
		zap.Int("projects", len(projects)),
		zap.Int("total", len(items)),
	)

	return items, nil
}

func (e *Engine) rank(ctx context.Context, userID string, criteria *leads.Criteria, projects []*leads.Project, f Filters) ([]*leads.ScoredProject, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	scored, err := e.scorer.ScoreAll(ctx, userID, criteria, projects)
	if err != nil {
		return nil, err
	}

	set, _, err := filtering.Run(ctx, e.logger, Steps(f), &leads.ScoredProjects{Items: scored})
	if err != nil {
		return nil, err
	}

	items := set.Items
	slices.SortStableFunc(items, comparator(f.SortBy))
	return items, nil
}

func sortKey(s string) string {
	if s == "" {
		return SortScore
	}
	return s
}

func comparator(sortBy string) func(a, b *leads.ScoredProject) int {
	byID := func(a, b *leads.ScoredProject) int { return strings.Compare(a.ID, b.ID) }

	switch sortKey(sortBy) {
	case SortValue:
		return func(a, b *leads.ScoredProject) int {
			return cmp.Or(cmp.Compare(valueKey(b), valueKey(a)), byID(a, b))
		}
	case SortPosted:
		return func(a, b *leads.ScoredProject) int {
			return cmp.Or(b.PostedAt.Compare(a.PostedAt), byID(a, b))
		}
	default:
		return func(a, b *leads.ScoredProject) int {
			return cmp.Or(cmp.Compare(b.Score, a.Score), byID(a, b))
		}
	}
}

// Unknown values sort after every known one.
func valueKey(p *leads.ScoredProject) float64 {
	if p.Value == nil {
		return math.Inf(-1)
	}
	return *p.Value
}
