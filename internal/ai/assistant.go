package ai

import (
	"context"

	"github.com/spigell/permit-scout/internal/leads"
)

// Brief is a short bid/no-bid note generated for a saved project.
type Brief struct {
	Summary  string   `json:"summary"`
	Fit      bool     `json:"fit"`
	Risks    []string `json:"risks,omitempty"`
	NextStep string   `json:"next_step,omitempty"`
	Raw      string   `json:"-"`
}

type Briefer interface {
	Brief(ctx context.Context, project *leads.Project, score int, criteria *leads.Criteria) (*Brief, error)
}
