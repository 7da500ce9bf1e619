// Package census is a client for the Census Bureau ACS data API.
package census

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/crosswalk-cli/internal/resilience"
)

// DefaultBaseURL is the root of the Census data API.
const DefaultBaseURL = "https://api.census.gov/data"

// Client queries ACS datasets.
type Client interface {
	// Get runs one data query and returns the rows, header first.
	Get(ctx context.Context, q Query) ([][]string, error)

	// DatasetExists reports whether a dataset is published for a year.
	DatasetExists(ctx context.Context, year int, dataset string) (bool, error)

	// GroupLabels returns variable code -> label for a table group. A group
	// the vintage does not publish yields nil and no error.
	GroupLabels(ctx context.Context, year int, dataset, group string) (map[string]string, error)
}

// Query is one data request.
type Query struct {
	Year      int
	Dataset   string // e.g. "acs5" or "acs5/subject"
	Variables []string
	For       string
	In        string
}

// Option configures the client.
type Option func(*client)

// WithAPIKey sets the API key sent with data queries.
func WithAPIKey(key string) Option {
	return func(c *client) {
		c.apiKey = key
	}
}

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the number of attempts and the initial backoff, which
// doubles after each failed attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *client) {
		if attempts > 0 {
			c.retry.Attempts = attempts
		}
		c.retry.Backoff = backoff
	}
}

type client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	retry      resilience.Retry
}

// NewClient creates a Census API client.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    DefaultBaseURL,
		limiter:    rate.NewLimiter(5, 5),
		retry:      resilience.DefaultRetry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.OnRetry = resilience.LogRetries("census", "get")
	return c
}
