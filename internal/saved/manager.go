// Package saved keeps the per-user set of bookmarked projects.
package saved

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/leads"
	"github.com/spigell/permit-scout/internal/scoring"
	"github.com/spigell/permit-scout/internal/storage"
)

type Manager struct {
	db     *storage.DB
	scorer *scoring.Scorer
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(db *storage.DB, scorer *scoring.Scorer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scorer == nil {
		scorer = scoring.NewScorer(logger)
	}
	return &Manager{db: db, scorer: scorer, logger: logger, now: time.Now}
}

// Save bookmarks a project. Saving it again returns the original entry.
func (m *Manager) Save(ctx context.Context, userID, projectID string) (*leads.SavedEntry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, leads.InvalidArgument("userId", "user id is required")
	}
	if strings.TrimSpace(projectID) == "" {
		return nil, leads.InvalidArgument("projectId", "project id is required")
	}

	entry, created, err := m.db.InsertSaved(ctx, leads.SavedEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProjectID: projectID,
		SavedAt:   m.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("project saved",
		zap.String("user_id", userID),
		zap.String("project_id", projectID),
		zap.String("entry_id", entry.ID),
		zap.Bool("created", created),
	)

	return entry, nil
}

// Unsave hard-deletes an entry. Unknown entries and entries of other users
// both fail with NotFound.
func (m *Manager) Unsave(ctx context.Context, userID, entryID string) error {
	if err := m.db.DeleteSaved(ctx, userID, entryID); err != nil {
		return err
	}
	m.logger.Debug("project unsaved", zap.String("user_id", userID), zap.String("entry_id", entryID))
	return nil
}

// List returns the user's entries newest first, each with the current
// project and a score against the current criteria.
func (m *Manager) List(ctx context.Context, userID string) ([]*leads.SavedProject, error) {
	snap, err := m.db.SavedSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	scored, err := m.scorer.ScoreAll(ctx, userID, snap.Criteria, snap.Projects)
	if err != nil {
		return nil, err
	}

	out := make([]*leads.SavedProject, len(snap.Saved))
	for i, entry := range snap.Saved {
		out[i] = &leads.SavedProject{
			SavedEntry: entry,
			Project:    scored[i].Project,
			Score:      scored[i].Score,
		}
	}
	return out, nil
}
