// Package criteria validates and persists per-user scoring preferences.
package criteria

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/leads"
	"github.com/spigell/permit-scout/internal/storage"
)

// invalidator drops memoized scores of a user.
type invalidator interface {
	Invalidate(userID string)
}

type Store struct {
	db     *storage.DB
	scores invalidator
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(db *storage.DB, scores invalidator, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, scores: scores, logger: logger, now: time.Now}
}

// Get returns the user's criteria; a user who never saved any gets empty
// criteria, under which every project scores the maximum.
func (s *Store) Get(ctx context.Context, userID string) (*leads.Criteria, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	return s.db.Criteria(ctx, userID)
}

// Set validates c and stores it as the user's new criteria. Nothing is
// written when validation fails.
func (s *Store) Set(ctx context.Context, userID string, c leads.Criteria) (*leads.Criteria, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}

	normalized, err := c.Normalized()
	if err != nil {
		return nil, err
	}

	saved, err := s.db.PutCriteria(ctx, userID, normalized, s.now())
	if err != nil {
		return nil, err
	}

	if s.scores != nil {
		s.scores.Invalidate(userID)
	}

	s.logger.Info("criteria saved",
		zap.String("user_id", userID),
		zap.Int64("version", saved.Version),
		zap.Int("categories", len(saved.Categories)),
		zap.Int("statuses", len(saved.Statuses)),
		zap.Int("sources", len(saved.Sources)),
		zap.Bool("min_value", saved.MinValue != nil),
	)

	return saved, nil
}

func checkUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return leads.InvalidArgument("userId", "user id is required")
	}
	return nil
}
