package leads

import (
	"math"
	"slices"
	"time"
)

// Criteria is a user's saved preference profile. Empty sets and a nil
// MinValue mean "no restriction" on that dimension.
type Criteria struct {
	MinValue   *float64   `json:"min_value,omitempty" mapstructure:"min-value"`
	Categories []Category `json:"categories" mapstructure:"categories"`
	Statuses   []Status   `json:"statuses" mapstructure:"statuses"`
	Sources    []Source   `json:"sources" mapstructure:"sources"`

	// Version increases on every successful save; zero means never saved.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// IsEmpty reports whether no dimension carries a preference.
func (c *Criteria) IsEmpty() bool {
	return c.MinValue == nil && len(c.Categories) == 0 && len(c.Statuses) == 0 && len(c.Sources) == 0
}

// Normalized validates every dimension and returns a copy with statuses in
// canonical spelling and duplicates removed. Set order is kept.
func (c Criteria) Normalized() (Criteria, error) {
	out := Criteria{Version: c.Version, UpdatedAt: c.UpdatedAt}

	if c.MinValue != nil {
		v := *c.MinValue
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Criteria{}, InvalidCriteria("minValue", "must be a finite number")
		}
		if v < 0 {
			return Criteria{}, InvalidCriteria("minValue", "must be >= 0, got %v", v)
		}
		out.MinValue = &v
	}

	for _, cat := range c.Categories {
		parsed, err := ParseCategory(string(cat))
		if err != nil {
			return Criteria{}, InvalidCriteria("categories", "%s", err)
		}
		if !slices.Contains(out.Categories, parsed) {
			out.Categories = append(out.Categories, parsed)
		}
	}

	for _, st := range c.Statuses {
		parsed, err := ParseStatus(string(st))
		if err != nil {
			return Criteria{}, InvalidCriteria("statuses", "%s", err)
		}
		if !slices.Contains(out.Statuses, parsed) {
			out.Statuses = append(out.Statuses, parsed)
		}
	}

	for _, src := range c.Sources {
		parsed, err := ParseSource(string(src))
		if err != nil {
			return Criteria{}, InvalidCriteria("sources", "%s", err)
		}
		if !slices.Contains(out.Sources, parsed) {
			out.Sources = append(out.Sources, parsed)
		}
	}

	return out, nil
}
