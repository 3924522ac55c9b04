package leads

import "time"

// SavedEntry is a user's bookmark of a project.
type SavedEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id"`
	SavedAt   time.Time `json:"saved_at"`
}

// SavedProject is a saved entry joined with the current project and a fresh score.
type SavedProject struct {
	SavedEntry
	Project *Project `json:"project"`
	Score   int      `json:"score"`
}

// ScanRecord is one ledger entry for a scan of a single source.
type ScanRecord struct {
	ID        string     `json:"id"`
	Source    Source     `json:"source"`
	Status    ScanStatus `json:"status"`
	Found     int        `json:"found"`
	New       int        `json:"new"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Finished reports whether the record has been closed.
func (r *ScanRecord) Finished() bool {
	return r.EndedAt != nil
}
