package filtering

import (
	"context"
	"strconv"
	"strings"

	"github.com/spigell/permit-scout/internal/leads"
)

const notSetReason = "not set"

// toggle carries the enable/disable bookkeeping shared by all steps.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

func apply(v *leads.ScoredProjects, keep func(*leads.ScoredProject) bool) (*leads.ScoredProjects, Step) {
	initial := v.Len()
	dropped := v.Retain(keep)
	return v, Step{Initial: initial, Dropped: len(dropped), Left: v.Len()}
}

type minMatchFilter struct {
	toggle
	floor int
}

// NewMinMatch drops projects scoring below floor. A zero floor keeps everything.
func NewMinMatch(floor int) Filter {
	f := &minMatchFilter{floor: floor}
	if floor == 0 {
		f.Disable(notSetReason)
	}
	return f
}

func (f *minMatchFilter) Name() string { return "min_match" }

func (f *minMatchFilter) Validate() error {
	if f.floor < 0 || f.floor > 100 {
		return leads.InvalidFilter("minMatch", "must be within 0..100, got %d", f.floor)
	}
	return nil
}

func (f *minMatchFilter) Apply(_ context.Context, v *leads.ScoredProjects) (*leads.ScoredProjects, Step, error) {
	next, step := apply(v, func(p *leads.ScoredProject) bool { return p.Score >= f.floor })
	return next, step, nil
}

func (f *minMatchFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"floor": strconv.Itoa(f.floor)},
	}
}

type searchFilter struct {
	toggle
	term string
}

// NewSearch keeps projects whose title, location, agency or description
// contains term, ignoring case.
func NewSearch(term string) Filter {
	f := &searchFilter{term: strings.TrimSpace(term)}
	if f.term == "" {
		f.Disable(notSetReason)
	}
	return f
}

func (f *searchFilter) Name() string { return "search" }

func (f *searchFilter) Validate() error { return nil }

func (f *searchFilter) Apply(_ context.Context, v *leads.ScoredProjects) (*leads.ScoredProjects, Step, error) {
	needle := strings.ToLower(f.term)
	next, step := apply(v, func(p *leads.ScoredProject) bool {
		for _, field := range []string{p.Title, p.Location, p.Agency, p.Description} {
			if strings.Contains(strings.ToLower(field), needle) {
				return true
			}
		}
		return false
	})
	return next, step, nil
}

func (f *searchFilter) Status() Status {
	details := map[string]string{}
	if f.term != "" {
		details["term"] = f.term
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

type categoryFilter struct {
	toggle
	raw      string
	category leads.Category
}

// NewCategory keeps projects of exactly one category.
func NewCategory(category string) Filter {
	f := &categoryFilter{raw: strings.TrimSpace(category)}
	if f.raw == "" {
		f.Disable(notSetReason)
	}
	return f
}

func (f *categoryFilter) Name() string { return "category" }

func (f *categoryFilter) Validate() error {
	c, err := leads.ParseCategory(f.raw)
	if err != nil {
		return leads.InvalidFilter("category", "%s", err)
	}
	f.category = c
	return nil
}

func (f *categoryFilter) Apply(_ context.Context, v *leads.ScoredProjects) (*leads.ScoredProjects, Step, error) {
	next, step := apply(v, func(p *leads.ScoredProject) bool { return p.Category == f.category })
	return next, step, nil
}

func (f *categoryFilter) Status() Status {
	details := map[string]string{}
	if f.raw != "" {
		details["category"] = f.raw
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

type sourceFilter struct {
	toggle
	raw    string
	source leads.Source
}

// NewSource keeps projects ingested from exactly one source.
func NewSource(source string) Filter {
	f := &sourceFilter{raw: strings.TrimSpace(source)}
	if f.raw == "" {
		f.Disable(notSetReason)
	}
	return f
}

func (f *sourceFilter) Name() string { return "source" }

func (f *sourceFilter) Validate() error {
	s, err := leads.ParseSource(f.raw)
	if err != nil {
		return leads.InvalidFilter("source", "%s", err)
	}
	f.source = s
	return nil
}

func (f *sourceFilter) Apply(_ context.Context, v *leads.ScoredProjects) (*leads.ScoredProjects, Step, error) {
	next, step := apply(v, func(p *leads.ScoredProject) bool { return p.Source == f.source })
	return next, step, nil
}

func (f *sourceFilter) Status() Status {
	details := map[string]string{}
	if f.raw != "" {
		details["source"] = f.raw
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
