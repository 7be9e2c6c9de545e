package livereg

// Package livereg fetches live registration snapshots from the registrar's
// HTTP API.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/net/publicsuffix"

	"github.com/srbenoit/mathops-sub032/internal/domain/model"
	"github.com/srbenoit/mathops-sub032/internal/ports"
	"github.com/srbenoit/mathops-sub032/internal/service"
)

const maxBodyBytes = 4 << 20

var _ ports.RegistrationSource = (*Client)(nil)

// Config configures the registrar client.
type Config struct {
	BaseURL string
	// PathTemplate is expanded with {student} and {term}.
	PathTemplate string
	PingPath     string
	// RowsExpression is a JMESPath expression that yields an array of objects
	// shaped like model.ExternalRegistration.
	RowsExpression string
	Token          string
	Timeout        time.Duration
	Client         *http.Client
}

// Client implements ports.RegistrationSource over HTTP.
type Client struct {
	base     *url.URL
	path     string
	pingPath string
	rowsExpr string
	token    string
	client   *http.Client
}

// NewClient validates cfg and builds a client. The registrar hands out a
// session cookie on the first call, so the client keeps a cookie jar.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("live registration base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid live registration base url %q", raw)
	}
	path := cfg.PathTemplate
	if !strings.Contains(path, "{student}") {
		return nil, errors.New("path template must contain {student}")
	}
	expr := strings.TrimSpace(cfg.RowsExpression)
	if expr == "" {
		expr = "@"
	}
	if _, compileErr := jmespath.Compile(expr); compileErr != nil {
		return nil, fmt.Errorf("rows expression: %w", compileErr)
	}

	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		jar, jarErr := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if jarErr != nil {
			return nil, fmt.Errorf("cookie jar: %w", jarErr)
		}
		hc = &http.Client{Timeout: timeout, Jar: jar}
	}

	return &Client{
		base:     base,
		path:     path,
		pingPath: cfg.PingPath,
		rowsExpr: expr,
		token:    strings.TrimSpace(cfg.Token),
		client:   hc,
	}, nil
}

// FetchRegistrations returns the full live snapshot for one student and term.
// Rows missing a student or term id inherit the requested ones.
func (c *Client) FetchRegistrations(ctx context.Context, studentID, termID string) ([]model.ExternalRegistration, error) {
	p := strings.NewReplacer(
		"{student}", url.PathEscape(studentID),
		"{term}", url.PathEscape(termID),
	).Replace(c.path)

	body, err := c.get(ctx, p)
	if err != nil {
		return nil, err
	}

	var doc any
	if decodeErr := json.Unmarshal(body, &doc); decodeErr != nil {
		return nil, fmt.Errorf("%w: decode response: %w", service.ErrSourceUnavailable, decodeErr)
	}
	rows, err := c.extractRows(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", service.ErrSourceUnavailable, err)
	}

	for i := range rows {
		if rows[i].StudentID == "" {
			rows[i].StudentID = studentID
		}
		if rows[i].TermID == "" {
			rows[i].TermID = termID
		}
	}
	return rows, nil
}

// extractRows evaluates the rows expression and re-decodes the projection
// into typed rows. A null result is an empty snapshot.
func (c *Client) extractRows(doc any) ([]model.ExternalRegistration, error) {
	selected, err := jmespath.Search(c.rowsExpr, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate rows expression: %w", err)
	}
	if selected == nil {
		return nil, nil
	}
	if _, ok := selected.([]any); !ok {
		return nil, fmt.Errorf("rows expression yielded %T, want array", selected)
	}
	raw, err := json.Marshal(selected)
	if err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}
	var rows []model.ExternalRegistration
	if decodeErr := json.Unmarshal(raw, &rows); decodeErr != nil {
		return nil, fmt.Errorf("decode rows: %w", decodeErr)
	}
	return rows, nil
}

// Ping requests the health path and expects a 2xx.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, c.pingPath)
	return err
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	target := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", service.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", service.ErrSourceUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("%w: %s returned %d: %s", service.ErrSourceUnavailable, target.Path, resp.StatusCode, snippet)
	}
	return body, nil
}
