// Package scoring computes how well a project matches a user's criteria.
//
// Each of the four dimensions (value, category, status, source) is worth
// DimensionWeight points. A dimension the user left empty is satisfied by
// every project, so empty criteria score every project at MaxScore.
package scoring

import (
	"slices"

	"github.com/spigell/permit-scout/internal/leads"
)

const (
	DimensionWeight = 25
	MaxScore        = 4 * DimensionWeight
)

// Dimension names used in score breakdowns.
const (
	DimensionValue    = "value"
	DimensionCategory = "category"
	DimensionStatus   = "status"
	DimensionSource   = "source"
)

// Breakdown is the per-dimension outcome behind a score.
type Breakdown struct {
	Value    bool
	Category bool
	Status   bool
	Source   bool
}

// Score returns the match score of p against c, an integer in [0, MaxScore].
// Criteria are expected to be validated already; Score never fails.
func Score(p *leads.Project, c *leads.Criteria) int {
	return Explain(p, c).Points()
}

// Explain evaluates every dimension independently.
func Explain(p *leads.Project, c *leads.Criteria) Breakdown {
	if c == nil {
		c = &leads.Criteria{}
	}
	return Breakdown{
		Value:    valueSatisfied(p.Value, c.MinValue),
		Category: memberOrEmpty(c.Categories, p.Category),
		Status:   memberOrEmpty(c.Statuses, p.Status),
		Source:   memberOrEmpty(c.Sources, p.Source),
	}
}

// Points sums the weights of the satisfied dimensions.
func (b Breakdown) Points() int {
	points := 0
	for _, ok := range []bool{b.Value, b.Category, b.Status, b.Source} {
		if ok {
			points += DimensionWeight
		}
	}
	return points
}

// Missed lists the dimensions that did not match, in a fixed order.
func (b Breakdown) Missed() []string {
	var missed []string
	if !b.Value {
		missed = append(missed, DimensionValue)
	}
	if !b.Category {
		missed = append(missed, DimensionCategory)
	}
	if !b.Status {
		missed = append(missed, DimensionStatus)
	}
	if !b.Source {
		missed = append(missed, DimensionSource)
	}
	return missed
}

// An unknown project value never satisfies a configured floor.
func valueSatisfied(value, minValue *float64) bool {
	if minValue == nil {
		return true
	}
	if value == nil {
		return false
	}
	return *value >= *minValue
}

func memberOrEmpty[T comparable](set []T, v T) bool {
	return len(set) == 0 || slices.Contains(set, v)
}
