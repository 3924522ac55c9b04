package leads

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

const (
	ProjectIDField     = "ID"
	ProjectSourceField = "Source"
)

// Coordinates is an optional WGS84 position used by the map overlay.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Project is one scanned opportunity. The core never mutates it.
type Project struct {
	ID                 string       `json:"id"`
	Title              string       `json:"title"`
	Category           Category     `json:"category"`
	Location           string       `json:"location"`
	Agency             string       `json:"agency,omitempty"`
	Value              *float64     `json:"value,omitempty"`
	Status             Status       `json:"status"`
	Source             Source       `json:"source"`
	PostedAt           time.Time    `json:"posted_at"`
	Deadline           *time.Time   `json:"deadline,omitempty"`
	Coordinates        *Coordinates `json:"coordinates,omitempty"`
	Description        string       `json:"description,omitempty"`
	PermitNumber       string       `json:"permit_number,omitempty"`
	SolicitationNumber string       `json:"solicitation_number,omitempty"`
	Contractor         string       `json:"contractor,omitempty"`
	NAICSCode          string       `json:"naics_code,omitempty"`
	URL                string       `json:"url,omitempty"`
	UpdatedAt          time.Time    `json:"updated_at,omitempty"`

	// digest of the stored encoding, set by DecodeStored.
	digest uint64
}

// Revision identifies the project content a score was computed from. It is a
// hash of the JSON encoding, so any change to the data yields a new revision
// whatever the upstream update stamp says. Zero means the project could not
// be encoded.
func (p *Project) Revision() uint64 {
	if p.digest != 0 {
		return p.digest
	}
	data, err := json.Marshal(p)
	if err != nil {
		return 0
	}
	return contentDigest(data)
}

// DecodeStored decodes a project persisted as JSON and keeps the hash of the
// stored bytes as its revision.
func DecodeStored(data []byte) (*Project, error) {
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	p.digest = contentDigest(data)
	return &p, nil
}

func contentDigest(data []byte) uint64 {
	h := fnv.New64a()
	h.Write(data)
	if sum := h.Sum64(); sum != 0 {
		return sum
	}
	return 1
}

// Validate checks that a record coming from the scan pipeline is normalized
// into the closed enums. Status is canonicalized in place.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return InvalidArgument("id", "project id is required")
	}
	if _, err := ParseCategory(string(p.Category)); err != nil {
		return InvalidArgument("category", "%s", err)
	}
	status, err := ParseStatus(string(p.Status))
	if err != nil {
		return InvalidArgument("status", "%s", err)
	}
	p.Status = status
	if _, err := ParseSource(string(p.Source)); err != nil {
		return InvalidArgument("source", "%s", err)
	}
	if p.Value != nil && (*p.Value < 0 || math.IsNaN(*p.Value) || math.IsInf(*p.Value, 0)) {
		return InvalidArgument("value", "value must be a non-negative number")
	}
	if p.PostedAt.IsZero() {
		return InvalidArgument("posted_at", "posted date is required")
	}
	return nil
}

// GetStringField mirrors the field-name constants above for generic exclusion.
func (p *Project) GetStringField(name string) string {
	switch name {
	case ProjectIDField:
		return p.ID
	case ProjectSourceField:
		return string(p.Source)
	default:
		return ""
	}
}

// DecodeProjects converts loosely typed items (pipeline pages, fixture files)
// into projects using the json tags.
func DecodeProjects(items []any) ([]*Project, error) {
	var projects []*Project

	cfg := &mapstructure.DecoderConfig{
		Result:           &projects,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.DecodeHookFuncType(stringToTimeHook),
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(items); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}

	return projects, nil
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func stringToTimeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	s := strings.TrimSpace(reflect.ValueOf(data).String())
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return nil, fmt.Errorf("unsupported time format %q", s)
}

// ScoredProject pairs a project with its score for one user's criteria.
type ScoredProject struct {
	*Project
	Score int `json:"score"`
}

// ScoredProjects is an ordered working set passed through filters.
type ScoredProjects struct {
	Items []*ScoredProject
}

func (s *ScoredProjects) Len() int {
	return len(s.Items)
}

func (s *ScoredProjects) FindByID(id string) *ScoredProject {
	for _, item := range s.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// Retain keeps the items accepted by keep, preserving order, and returns the
// IDs of the dropped ones.
func (s *ScoredProjects) Retain(keep func(*ScoredProject) bool) []string {
	var dropped []string
	kept := s.Items[:0]
	for _, item := range s.Items {
		if keep(item) {
			kept = append(kept, item)
			continue
		}
		dropped = append(dropped, item.ID)
	}
	clear(s.Items[len(kept):])
	s.Items = kept
	return dropped
}

// Exclude drops items whose named field equals one of targets.
func (s *ScoredProjects) Exclude(name string, targets []string) []string {
	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}
	return s.Retain(func(item *ScoredProject) bool {
		_, hit := set[item.GetStringField(name)]
		return !hit
	})
}

// ReportBySource groups a human readable summary of each item by source.
func (s *ScoredProjects) ReportBySource() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, item := range s.Items {
		key := string(item.Source)
		entry := map[string]string{
			"id":       item.ID,
			"title":    item.Title,
			"category": string(item.Category),
			"location": item.Location,
			"status":   string(item.Status),
			"score":    fmt.Sprintf("%d", item.Score),
			"value":    FormatValue(item.Value),
		}
		if item.Agency != "" {
			entry["agency"] = item.Agency
		}
		if item.URL != "" {
			entry["url"] = item.URL
		}
		report[key] = append(report[key], entry)
	}
	return report
}

// DumpToTmpFile writes the items as indented JSON and returns the file name.
func (s *ScoredProjects) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "projects_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Items); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// FormatValue renders an optional value, "unknown" when nil.
func FormatValue(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.0f", *v)
}
