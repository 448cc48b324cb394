package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/steveyegge/fixbot/internal/auth"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// ErrUnboundedQuery is returned for a search that is not restricted to a
// project or a time window.
var ErrUnboundedQuery = errors.New("jql must be bounded by project or updated/created window")

var (
	boundedJQL    = regexp.MustCompile(`(?i)\b(project\s*(=|in\b)|(updated|created)\s*[<>]=?)`)
	jqlOrderBy    = regexp.MustCompile(`(?i)\border\s+by\b`)
	jqlStringLits = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`)
)

// CheckBounded rejects queries that would scan the whole tracker. A query
// is bounded when its filter, ignoring string literals and the ORDER BY
// clause, restricts project or compares updated/created.
func CheckBounded(jql string) error {
	filter := jql
	if loc := jqlOrderBy.FindStringIndex(filter); loc != nil {
		filter = filter[:loc[0]]
	}
	filter = jqlStringLits.ReplaceAllString(filter, `""`)
	if strings.TrimSpace(filter) == "" || !boundedJQL.MatchString(filter) {
		return fmt.Errorf("%w: %q", ErrUnboundedQuery, jql)
	}
	return nil
}

// DefaultFields are requested on every search.
var DefaultFields = []string{"summary", "status", "description", "comment", "customfield_confluence"}

// APIError is a non-2xx tracker response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira api status=%d body=%s", e.StatusCode, e.Body)
}

// Retriable reports whether the request may succeed if repeated.
func (e *APIError) Retriable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config configures the Jira client.
type Config struct {
	BaseURL string // e.g. https://example.atlassian.net
	Email   string // with APIToken, selects basic auth
	// APIToken is the Atlassian API token used with Email.
	APIToken    string
	Credentials auth.CredentialProvider // bearer credential, preferred over basic auth
	Project     string
	IssueType   string        // default "Bug"
	Window      time.Duration // default 7 days
	MaxResults  int           // page size, default 50
	MaxPages    int           // default 10
	Timeout     time.Duration // per request, default 30s
	MaxRetries  int           // default 2
	// RequestsPerSecond limits outbound calls (0 = 5/s).
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client is a minimal Jira Cloud REST v3 client.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jira base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid jira base URL: %w", err)
	}
	if cfg.IssueType == "" {
		cfg.IssueType = "Bug"
	}
	if cfg.Window <= 0 {
		cfg.Window = 7 * 24 * time.Hour
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:     cfg,
		base:    base,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// DefaultJQL returns the bounded query used by the polling loop.
func (c *Client) DefaultJQL() string {
	var clauses []string
	if c.cfg.Project != "" {
		clauses = append(clauses, fmt.Sprintf("project = %q", c.cfg.Project))
	}
	if c.cfg.IssueType != "" {
		clauses = append(clauses, fmt.Sprintf("type = %q", c.cfg.IssueType))
	}
	clauses = append(clauses, fmt.Sprintf("updated >= -%dm", int(c.cfg.Window.Minutes())))
	return strings.Join(clauses, " AND ") + " ORDER BY updated DESC"
}

// SearchRequest describes one search.
type SearchRequest struct {
	JQL    string
	Fields []string
}

type searchBody struct {
	JQL           string   `json:"jql"`
	Fields        []string `json:"fields"`
	MaxResults    int      `json:"maxResults"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

type searchPage struct {
	Issues        []json.RawMessage `json:"issues"`
	NextPageToken string            `json:"nextPageToken"`
	IsLast        bool              `json:"isLast"`
}

type searchResult struct {
	Issues []json.RawMessage `json:"issues"`
}

// Search runs a bounded JQL query and returns {"issues":[...]} merged across
// pages, ready for ExtractTickets.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]byte, error) {
	if err := CheckBounded(req.JQL); err != nil {
		return nil, err
	}
	fields := req.Fields
	if len(fields) == 0 {
		fields = DefaultFields
	}

	result := searchResult{Issues: []json.RawMessage{}}
	token := ""
	for page := 0; page < c.cfg.MaxPages; page++ {
		body := searchBody{JQL: req.JQL, Fields: fields, MaxResults: c.cfg.MaxResults, NextPageToken: token}
		var p searchPage
		if err := c.doJSON(ctx, http.MethodPost, "/rest/api/3/search/jql", nil, body, &p); err != nil {
			return nil, fmt.Errorf("jira search failed: %w", err)
		}
		result.Issues = append(result.Issues, p.Issues...)
		if p.IsLast || p.NextPageToken == "" {
			break
		}
		token = p.NextPageToken
		if page == c.cfg.MaxPages-1 {
			slog.Warn("jira search truncated", "jql", req.JQL, "pages", c.cfg.MaxPages)
		}
	}
	return json.Marshal(result)
}

// Comments returns the plain text of every comment on key, oldest first.
func (c *Client) Comments(ctx context.Context, key string) ([]string, error) {
	var out []string
	startAt := 0
	for {
		q := url.Values{}
		q.Set("startAt", fmt.Sprint(startAt))
		q.Set("maxResults", "100")
		var raw json.RawMessage
		if err := c.doJSON(ctx, http.MethodGet, "/rest/api/3/issue/"+url.PathEscape(key)+"/comment", q, nil, &raw); err != nil {
			return nil, fmt.Errorf("failed to list comments for %s: %w", key, err)
		}
		page := gjson.GetBytes(raw, "comments")
		n := 0
		page.ForEach(func(_, cm gjson.Result) bool {
			out = append(out, richText(cm.Get("body")))
			n++
			return true
		})
		startAt += n
		total := int(gjson.GetBytes(raw, "total").Int())
		if n == 0 || startAt >= total {
			return out, nil
		}
	}
}

// ADF document model for comment bodies.
type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

type adfDoc struct {
	Type    string    `json:"type"`
	Version int       `json:"version"`
	Content []adfNode `json:"content"`
}

type commentBody struct {
	Body adfDoc `json:"body"`
}

// newADFDoc renders text as one paragraph per non-empty line.
func newADFDoc(text string) adfDoc {
	doc := adfDoc{Type: "doc", Version: 1, Content: []adfNode{}}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		doc.Content = append(doc.Content, adfNode{
			Type:    "paragraph",
			Content: []adfNode{{Type: "text", Text: line}},
		})
	}
	return doc
}

// AddComment posts text to key as an ADF document.
func (c *Client) AddComment(ctx context.Context, key, text string) error {
	body := commentBody{Body: newADFDoc(text)}
	if err := c.doJSON(ctx, http.MethodPost, "/rest/api/3/issue/"+url.PathEscape(key)+"/comment", nil, body, nil); err != nil {
		return fmt.Errorf("failed to comment on %s: %w", key, err)
	}
	return nil
}

// CommentOnce posts text unless an equivalent comment already exists.
// It reports whether a comment was posted.
func (c *Client) CommentOnce(ctx context.Context, key, text string) (bool, error) {
	existing, err := c.Comments(ctx, key)
	if err != nil {
		return false, err
	}
	want := normalizeSpace(text)
	for _, e := range existing {
		if normalizeSpace(e) == want {
			return false, nil
		}
	}
	if err := c.AddComment(ctx, key, text); err != nil {
		return false, err
	}
	return true, nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.cfg.Credentials != nil {
		tok, err := c.cfg.Credentials.Credential(ctx, auth.ProviderJira)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+tok)
			return nil
		}
		if !errors.Is(err, auth.ErrNoCredential) {
			return err
		}
	}
	if c.cfg.Email != "" && c.cfg.APIToken != "" {
		req.SetBasicAuth(c.cfg.Email, c.cfg.APIToken)
		return nil
	}
	return fmt.Errorf("jira: %w", auth.ErrNoCredential)
}

// doJSON sends body (if any) and decodes the response into out (if any).
// 429 and 5xx responses and network errors are retried with backoff.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	backoff := 300 * time.Millisecond
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if err := c.authorize(ctx, req); err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return err
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			if !apiErr.Retriable() {
				return apiErr
			}
			lastErr = apiErr
			continue
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("malformed jira response: %w", err)
		}
		return nil
	}
	return lastErr
}
