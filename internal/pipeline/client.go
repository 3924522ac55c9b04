// Package pipeline talks to the external scan pipeline: it asks for a source
// to be rescanned and pages through the projects the pipeline ingested.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/leads"
)

const (
	DefaultURL = "http://localhost:8090"
	userAgent  = "spigell/permit-scout"
	// Max value for projects per page.
	perPage = "100"

	ScansPath    = "/scans"
	ProjectsPath = "/projects"
)

type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

func New(logger *zap.Logger, apiURL, token string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if apiURL == "" {
		apiURL = DefaultURL
	}
	return &Client{
		token:  token,
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:    logger,
		UserAgent: userAgent,
	}
}

// Trigger asks the pipeline to rescan source. It returns once the pipeline
// accepted the request.
func (c *Client) Trigger(ctx context.Context, source leads.Source) error {
	return c.postJSON(ctx, c.APIURL+ScansPath, map[string]string{"source": string(source)})
}

// Projects returns every project the pipeline holds for source. When a page
// fails after earlier pages succeeded, the projects gathered so far are
// returned together with the error.
func (c *Client) Projects(ctx context.Context, source leads.Source) ([]*leads.Project, error) {
	q := url.Values{}
	q.Set("source", string(source))
	q.Set("per_page", perPage)

	items, fetchErr := c.GetItems(ctx, c.APIURL+ProjectsPath, q)

	projects, err := leads.DecodeProjects(items)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source, err)
	}

	c.logger.Debug("fetched projects from pipeline",
		zap.String("source", string(source)),
		zap.Int("count", len(projects)),
		zap.Bool("complete", fetchErr == nil),
	)

	if fetchErr != nil {
		return projects, fmt.Errorf("source %s: %w", source, fetchErr)
	}
	return projects, nil
}
