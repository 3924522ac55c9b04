package query

import (
	"math"
	"time"

	"github.com/spigell/permit-scout/internal/leads"
)

// HighMatchThreshold is the score from which a project counts as a strong lead.
const HighMatchThreshold = 80

// Stats summarizes the dashboard header for one user.
type Stats struct {
	TotalProjects      int        `json:"total_projects"`
	TotalPipelineValue float64    `json:"total_pipeline_value"`
	AvgMatchScore      int        `json:"avg_match_score"`
	HighMatchCount     int        `json:"high_match_count"`
	LastScanAt         *time.Time `json:"last_scan_at,omitempty"`
}

// Summarize aggregates an unfiltered, untruncated query result.
// Projects with unknown value add nothing to the pipeline value.
func Summarize(items []*leads.ScoredProject, lastScanAt *time.Time) Stats {
	stats := Stats{TotalProjects: len(items), LastScanAt: lastScanAt}

	sum := 0
	for _, item := range items {
		sum += item.Score
		if item.Value != nil {
			stats.TotalPipelineValue += *item.Value
		}
		if item.Score >= HighMatchThreshold {
			stats.HighMatchCount++
		}
	}
	if len(items) > 0 {
		stats.AvgMatchScore = int(math.Round(float64(sum) / float64(len(items))))
	}

	return stats
}
