package filtering

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/permit-scout/internal/leads"
)

func projects() *leads.ScoredProjects {
	return &leads.ScoredProjects{Items: []*leads.ScoredProject{
		{Project: &leads.Project{ID: "1", Title: "Brownstone repointing", Location: "Brooklyn, NY", Category: leads.CategoryMasonry, Source: leads.SourceNYCDOB}, Score: 100},
		{Project: &leads.Project{ID: "2", Title: "Federal building", Agency: "GSA", Category: leads.CategoryGovernment, Source: leads.SourceSAMGov}, Score: 50},
		{Project: &leads.Project{ID: "3", Title: "Loft conversion", Description: "Masonry facade work", Category: leads.CategoryResidential, Source: leads.SourceChicagoPermits}, Score: 75},
		{Project: &leads.Project{ID: "4", Title: "Strip mall", Location: "Oakland", Category: leads.CategoryCommercial, Source: leads.SourceSFPermits}, Score: 25},
	}}
}

func ids(v *leads.ScoredProjects) []string {
	out := make([]string, 0, v.Len())
	for _, item := range v.Items {
		out = append(out, item.ID)
	}
	return out
}

func TestStepsApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter Filter
		expect []string
	}{
		{name: "min match", filter: NewMinMatch(60), expect: []string{"1", "3"}},
		{name: "search matches any field", filter: NewSearch("MASONRY"), expect: []string{"3"}},
		{name: "search by agency", filter: NewSearch("gsa"), expect: []string{"2"}},
		{name: "search by location", filter: NewSearch("brooklyn"), expect: []string{"1"}},
		{name: "category", filter: NewCategory("government"), expect: []string{"2"}},
		{name: "source", filter: NewSource("sf-permits"), expect: []string{"4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, reports, err := Run(context.Background(), nil, []Filter{tt.filter}, projects())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			gotIDs := ids(got)
			if len(gotIDs) != len(tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, gotIDs)
			}
			for i := range gotIDs {
				if gotIDs[i] != tt.expect[i] {
					t.Fatalf("expected %v, got %v", tt.expect, gotIDs)
				}
			}
			if len(reports) != 1 {
				t.Fatalf("expected one report, got %d", len(reports))
			}
			step := reports[0].Step
			if step.Initial != 4 || step.Left != len(tt.expect) || step.Dropped != 4-len(tt.expect) {
				t.Fatalf("unexpected step: %+v", step)
			}
		})
	}
}

func TestUnsetFiltersAreDisabled(t *testing.T) {
	steps := []Filter{NewMinMatch(0), NewSearch("  "), NewCategory(""), NewSource("")}

	got, reports, err := Run(context.Background(), nil, steps, projects())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Len() != 4 {
		t.Fatalf("expected all projects to pass, got %d", got.Len())
	}
	if len(reports) != 0 {
		t.Fatalf("expected no reports for disabled filters, got %d", len(reports))
	}

	for _, status := range Describe(steps) {
		if status.Enabled || status.Reason != "not set" {
			t.Fatalf("unexpected status for %s: %+v", status.Name, status)
		}
	}
}

func TestRunRejectsMalformedFilters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter Filter
		field  string
	}{
		{name: "min match above range", filter: NewMinMatch(101), field: "minMatch"},
		{name: "negative min match", filter: NewMinMatch(-1), field: "minMatch"},
		{name: "unknown category", filter: NewCategory("roofing"), field: "category"},
		{name: "unknown source", filter: NewSource("craigslist"), field: "source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			input := projects()
			_, _, err := Run(context.Background(), nil, []Filter{NewSearch("a"), tt.filter}, input)
			if !errors.Is(err, leads.ErrInvalidFilter) {
				t.Fatalf("expected invalid filter, got %v", err)
			}
			var typed *leads.Error
			if !errors.As(err, &typed) || typed.Field != tt.field {
				t.Fatalf("expected field %q, got %v", tt.field, err)
			}
			if input.Len() != 4 {
				t.Fatalf("expected input untouched when validation fails, got %d items", input.Len())
			}
		})
	}
}

func TestRunLogsSteps(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	steps := []Filter{NewMinMatch(50), NewSearch("")}
	if _, _, err := Run(context.Background(), logger, steps, projects()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logs.FilterMessage("filter step").All()
	if len(entries) != 1 {
		t.Fatalf("expected one step entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["name"] != "min_match" || fields["dropped"] != int64(1) || fields["left"] != int64(3) {
		t.Fatalf("unexpected step fields: %v", fields)
	}

	if logs.FilterMessage("filter disabled").Len() != 1 {
		t.Fatalf("expected disabled search filter to be logged")
	}
}

func TestDisableByNameAndDescribe(t *testing.T) {
	steps := []Filter{NewMinMatch(80), NewCategory("masonry")}
	DisableByName(steps, "category", "overridden")

	statuses := Describe(steps)
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Enabled || statuses[0].Details["floor"] != "80" {
		t.Fatalf("unexpected min match status: %+v", statuses[0])
	}
	if statuses[1].Enabled || statuses[1].Reason != "overridden" || statuses[1].Details["category"] != "masonry" {
		t.Fatalf("unexpected category status: %+v", statuses[1])
	}
}
