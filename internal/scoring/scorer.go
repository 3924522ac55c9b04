package scoring

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/permit-scout/internal/leads"
)

const (
	defaultMaxEntries = 100_000
	// chunkSize keeps goroutine overhead small relative to the scoring work.
	chunkSize = 256
)

type cacheKey struct {
	userID          string
	criteriaVersion int64
	projectID       string
	revision        uint64
}

// Scorer scores project snapshots in parallel and memoizes the results per
// user, criteria version and project revision (a hash of the project data).
type Scorer struct {
	logger     *zap.Logger
	workers    int
	maxEntries int

	mu    sync.RWMutex
	cache map[cacheKey]int
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithWorkers bounds the number of concurrent scoring goroutines.
func WithWorkers(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxEntries caps the memo size; the cache is reset once it is exceeded.
// Zero disables memoization.
func WithMaxEntries(n int) Option {
	return func(s *Scorer) {
		if n >= 0 {
			s.maxEntries = n
		}
	}
}

func NewScorer(logger *zap.Logger, opts ...Option) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scorer{
		logger:     logger,
		workers:    runtime.GOMAXPROCS(0),
		maxEntries: defaultMaxEntries,
		cache:      make(map[cacheKey]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScoreAll scores every project against criteria. The result keeps the input
// order. Criteria with Version zero (never saved) are scored without caching
// so an unsaved draft cannot populate the memo.
func (s *Scorer) ScoreAll(ctx context.Context, userID string, criteria *leads.Criteria, projects []*leads.Project) ([]*leads.ScoredProject, error) {
	scored := make([]*leads.ScoredProject, len(projects))
	if len(projects) == 0 {
		return scored, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for start := 0; start < len(projects); start += chunkSize {
		end := min(start+chunkSize, len(projects))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				p := projects[i]
				scored[i] = &leads.ScoredProject{Project: p, Score: s.scoreOne(userID, criteria, p)}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return scored, nil
}

// ScoreOne scores a single project, using the memo when possible.
func (s *Scorer) ScoreOne(userID string, criteria *leads.Criteria, p *leads.Project) int {
	return s.scoreOne(userID, criteria, p)
}

func (s *Scorer) scoreOne(userID string, criteria *leads.Criteria, p *leads.Project) int {
	if s.maxEntries == 0 || criteria == nil || criteria.Version == 0 {
		return Score(p, criteria)
	}

	revision := p.Revision()
	if revision == 0 {
		return Score(p, criteria)
	}

	key := cacheKey{
		userID:          userID,
		criteriaVersion: criteria.Version,
		projectID:       p.ID,
		revision:        revision,
	}

	s.mu.RLock()
	score, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return score
	}

	score = Score(p, criteria)

	s.mu.Lock()
	if len(s.cache) >= s.maxEntries {
		s.logger.Debug("score cache full, resetting", zap.Int("entries", len(s.cache)))
		s.cache = make(map[cacheKey]int)
	}
	s.cache[key] = score
	s.mu.Unlock()

	return score
}

// Invalidate drops every memoized score of userID.
func (s *Scorer) Invalidate(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for key := range s.cache {
		if key.userID == userID {
			delete(s.cache, key)
			dropped++
		}
	}

	s.logger.Debug("score cache invalidated",
		zap.String("user_id", userID),
		zap.Int("dropped", dropped),
	)
}

// Len returns the number of memoized scores.
func (s *Scorer) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
