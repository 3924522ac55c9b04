// Package ingest reads project records from fixture files and checks them
// before they reach storage.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spigell/permit-scout/internal/leads"
)

// Rejection explains why a record was skipped.
type Rejection struct {
	Index int
	ID    string
	Err   error
}

func (r Rejection) String() string {
	if r.ID == "" {
		return fmt.Sprintf("#%d: %v", r.Index, r.Err)
	}
	return fmt.Sprintf("#%d (%s): %v", r.Index, r.ID, r.Err)
}

// ReadFile decodes projects from a JSON or YAML file. The document is either
// a list of projects or an object with a "projects" or "items" list.
func ReadFile(path string) ([]*leads.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	case ".json":
		err = json.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("unsupported file type %q, expected .json, .yaml or .yml", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	items, err := itemsOf(doc)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return leads.DecodeProjects(items)
}

func itemsOf(doc any) ([]any, error) {
	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range []string{"projects", "items"} {
			if list, ok := v[key].([]any); ok {
				return list, nil
			}
		}
		return nil, fmt.Errorf(`expected a "projects" or "items" list`)
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("expected a list of projects, got %T", doc)
	}
}

// Validate splits projects into storable and rejected ones. Accepted
// projects without an update stamp get now. When only is set, projects of
// other sources are rejected.
func Validate(projects []*leads.Project, only leads.Source, now time.Time) ([]*leads.Project, []Rejection) {
	var (
		valid    []*leads.Project
		rejected []Rejection
		seen     = make(map[string]int, len(projects))
	)

	for i, p := range projects {
		if p == nil {
			rejected = append(rejected, Rejection{Index: i, Err: fmt.Errorf("empty record")})
			continue
		}
		if err := p.Validate(); err != nil {
			rejected = append(rejected, Rejection{Index: i, ID: p.ID, Err: err})
			continue
		}
		if only != "" && p.Source != only {
			rejected = append(rejected, Rejection{Index: i, ID: p.ID, Err: leads.InvalidArgument("source", "expected %s, got %s", only, p.Source)})
			continue
		}
		if first, dup := seen[p.ID]; dup {
			rejected = append(rejected, Rejection{Index: i, ID: p.ID, Err: fmt.Errorf("duplicate of record #%d", first)})
			continue
		}
		seen[p.ID] = i

		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now.UTC()
		}
		valid = append(valid, p)
	}

	return valid, rejected
}
