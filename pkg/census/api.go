package census

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/resilience"
)

// StatusError is returned when the API answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("census: status %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func (c *client) datasetURL(year int, dataset string) string {
	return fmt.Sprintf("%s/%d/acs/%s", strings.TrimRight(c.baseURL, "/"), year, dataset)
}

// fetch performs a GET with rate limiting and retries on 408, 429, 5xx,
// transport errors and bodies that are empty or not JSON.
func (c *client) fetch(ctx context.Context, reqURL string, out any) error {
	return c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "census: rate limit")
		}
		return c.once(ctx, reqURL, out)
	})
}

func (c *client) once(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "census: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return eris.Wrap(err, "census: request")
		}
		return resilience.Transient(eris.Wrap(err, "census: request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.Transient(eris.Wrap(err, "census: read body"))
	}
	if resp.StatusCode != http.StatusOK {
		serr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resilience.TransientStatus(resp.StatusCode) {
			return resilience.Transient(serr)
		}
		return serr
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return resilience.Transient(eris.New("census: empty response"))
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		snippet := text
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return resilience.Transient(eris.Wrapf(err, "census: invalid JSON response: %s", snippet))
	}
	return nil
}

// Get runs a data query. NAME is always requested first; null cells become
// empty strings.
func (c *client) Get(ctx context.Context, q Query) ([][]string, error) {
	if q.For == "" {
		return nil, eris.New("census: query has no for clause")
	}
	params := url.Values{
		"get": {strings.Join(append([]string{"NAME"}, q.Variables...), ",")},
		"for": {q.For},
	}
	if q.In != "" {
		params.Set("in", q.In)
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	var raw [][]any
	if err := c.fetch(ctx, c.datasetURL(q.Year, q.Dataset)+"?"+params.Encode(), &raw); err != nil {
		return nil, err
	}
	return toStrings(raw), nil
}

func toStrings(raw [][]any) [][]string {
	out := make([][]string, len(raw))
	for i, row := range raw {
		out[i] = make([]string, len(row))
		for j, cell := range row {
			switch v := cell.(type) {
			case nil:
			case string:
				out[i][j] = v
			case float64:
				out[i][j] = strconv.FormatFloat(v, 'f', -1, 64)
			default:
				out[i][j] = fmt.Sprint(v)
			}
		}
	}
	return out
}

// DatasetExists fetches the dataset's variables.json. Only a 404 means the
// vintage is not published; other failures are errors.
func (c *client) DatasetExists(ctx context.Context, year int, dataset string) (bool, error) {
	var meta map[string]json.RawMessage
	err := c.fetch(ctx, c.datasetURL(year, dataset)+"/variables.json", &meta)
	switch {
	case err == nil:
		return true, nil
	case IsStatus(err, http.StatusNotFound):
		return false, nil
	default:
		return false, eris.Wrapf(err, "census: check %s %d", dataset, year)
	}
}

type groupResponse struct {
	Variables map[string]struct {
		Label string `json:"label"`
	} `json:"variables"`
}

func (c *client) GroupLabels(ctx context.Context, year int, dataset, group string) (map[string]string, error) {
	var g groupResponse
	err := c.fetch(ctx, fmt.Sprintf("%s/groups/%s.json", c.datasetURL(year, dataset), group), &g)
	if IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "census: group %s for %s %d", group, dataset, year)
	}
	out := make(map[string]string, len(g.Variables))
	for code, v := range g.Variables {
		out[code] = v.Label
	}
	return out, nil
}
