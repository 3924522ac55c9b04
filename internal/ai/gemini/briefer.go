package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/ai"
	"github.com/spigell/permit-scout/internal/leads"
	"github.com/spigell/permit-scout/internal/logger"
	"github.com/spigell/permit-scout/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

const (
	providerName        = "gemini"
	defaultMaxLogLength = 200
	defaultAttempts     = 3
	defaultBackoff      = 2 * time.Second
)

//go:embed prompt.md
var promptTemplate string

type Briefer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
	attempts  int
	backoff   time.Duration
}

func NewBriefer(generator contentGenerator, log *zap.Logger, maxLogLength int) *Briefer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Briefer{
		generator: generator,
		logger:    logger.WithCommonFields(log, providerName, generator.Model()),
		maxLogLen: maxLogLength,
		attempts:  defaultAttempts,
		backoff:   defaultBackoff,
	}
}

var _ ai.Briefer = (*Briefer)(nil)

// Brief asks the model for a short note on project. Transient generation
// failures are retried with a linear backoff.
func (b *Briefer) Brief(ctx context.Context, project *leads.Project, score int, criteria *leads.Criteria) (*ai.Brief, error) {
	if project == nil {
		return nil, fmt.Errorf("project is required")
	}
	if criteria == nil {
		criteria = &leads.Criteria{}
	}

	projectJSON, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal project payload: %w", err)
	}

	criteriaJSON, err := json.MarshalIndent(criteria, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal criteria payload: %w", err)
	}

	prompt := buildPrompt(string(projectJSON), string(criteriaJSON), score)

	b.logger.Debug("gemini generate content request",
		zap.String("project_id", project.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, b.maxLogLen)),
	)

	raw, err := b.generate(ctx, project.ID, prompt)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("gemini generate content response",
		zap.String("project_id", project.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, b.maxLogLen)),
	)

	brief, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	brief.Raw = raw
	return brief, nil
}

func (b *Briefer) generate(ctx context.Context, projectID, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		raw, err := b.generator.GenerateContent(ctx, prompt)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if attempt == b.attempts || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}

		wait := time.Duration(attempt) * b.backoff
		b.logger.Warn("gemini request failed, retrying",
			zap.String("project_id", projectID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := utils.WaitFor(ctx, wait); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("generate brief after %d attempts: %w", b.attempts, lastErr)
}

func buildPrompt(projectJSON, criteriaJSON string, score int) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Criteria:\n{{CRITERIA_JSON}}\n\nScore: {{SCORE}}\n\nProject:\n{{PROJECT_JSON}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{PROJECT_JSON}}", projectJSON)
	prompt = strings.ReplaceAll(prompt, "{{CRITERIA_JSON}}", criteriaJSON)
	prompt = strings.ReplaceAll(prompt, "{{SCORE}}", strconv.Itoa(score))
	return prompt
}

func parseResponse(raw string) (*ai.Brief, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	brief := &ai.Brief{
		Summary:  coerceString(data["summary"]),
		Fit:      coerceBool(data["fit"]),
		Risks:    coerceStrings(data["risks"]),
		NextStep: coerceString(data["next_step"]),
	}
	if brief.Summary == "" {
		return nil, errors.New("gemini response has no summary")
	}

	return brief, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

// A single string is accepted as a one-element list.
func coerceStrings(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return []string{s}
		}
	}
	return nil
}
