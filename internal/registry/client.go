package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kiwi-labs/kiwi/internal/branding"
	"github.com/kiwi-labs/kiwi/internal/directive"
)

const apiPrefix = "/v1"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 16 << 20

var tracer = otel.Tracer("github.com/kiwi-labs/kiwi/internal/registry")

// Client talks to a remote registry over HTTP. It implements Store and
// Publisher.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) ClientOption {
	return func(cl *Client) {
		cl.token = token
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// NewClient creates a Client for the registry at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  branding.CLIName() + "-client",
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the registry URL this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Get fetches one version of a directive. An empty version selects latest.
// The server counts a download only when ctx is marked by AsDownload.
func (c *Client) Get(ctx context.Context, name, version string) (*directive.Record, error) {
	path := "/directives/" + url.PathEscape(name)
	if version != "" {
		path += "/versions/" + url.PathEscape(version)
	}
	var params url.Values
	if IsDownload(ctx) {
		params = url.Values{"download": {"1"}}
	}
	var rec directive.Record
	if err := c.do(ctx, "get", http.MethodGet, path, params, nil, &rec); err != nil {
		return nil, c.notFound(err, name)
	}
	return &rec, nil
}

// Versions lists every published version of name.
func (c *Client) Versions(ctx context.Context, name string) ([]VersionInfo, error) {
	var resp versionsResponse
	path := "/directives/" + url.PathEscape(name) + "/versions"
	if err := c.do(ctx, "versions", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, c.notFound(err, name)
	}
	return resp.Versions, nil
}

// Search runs a coarse registry search.
func (c *Client) Search(ctx context.Context, q Query) ([]directive.Candidate, error) {
	params := url.Values{}
	if len(q.Terms) > 0 {
		params.Set("q", strings.Join(q.Terms, " "))
	}
	addAll(params, "tag", q.Tags)
	addAll(params, "category", q.Categories)
	addAll(params, "subcategory", q.Subcategories)
	addAll(params, "tech_stack", q.TechStack)
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var resp searchResponse
	if err := c.do(ctx, "search", http.MethodGet, "/directives", params, nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Results {
		resp.Results[i].Tier = directive.TierRegistry
	}
	return resp.Results, nil
}

// List fetches the registry snapshot.
func (c *Client) List(ctx context.Context, categories []string) ([]Listing, error) {
	params := url.Values{}
	addAll(params, "category", categories)
	var resp snapshotResponse
	if err := c.do(ctx, "snapshot", http.MethodGet, "/snapshot", params, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Directives, nil
}

// Publish uploads a new version.
func (c *Client) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding publish request: %w", err)
	}
	var res PublishResult
	if err := c.do(ctx, "publish", http.MethodPost, "/directives", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Delete removes a directive and all of its versions.
func (c *Client) Delete(ctx context.Context, name string) error {
	if err := c.do(ctx, "delete", http.MethodDelete, "/directives/"+url.PathEscape(name), nil, nil, nil); err != nil {
		return c.notFound(err, name)
	}
	return nil
}

// statusError is a non-2xx response.
type statusError struct {
	status  int
	code    string
	message string
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("registry returned status %d: %s", e.status, e.message)
	}
	return fmt.Sprintf("registry returned status %d", e.status)
}

// notFound turns a 404 into a NotFoundError naming the directive.
func (c *Client) notFound(err error, name string) error {
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusNotFound {
		return fmt.Errorf("%s: %w", se.message, &directive.NotFoundError{Name: name, Tiers: []directive.Tier{directive.TierRegistry}})
	}
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, body []byte, out any) (err error) {
	ctx, span := tracer.Start(ctx, "registry."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	u := c.baseURL + apiPrefix + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.url", u))

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A caller-side cancellation is not worth retrying.
		temporary := ctx.Err() == nil
		return &directive.NetworkError{Op: op, Err: err, Temporary: temporary}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &directive.NetworkError{Op: op, Err: fmt.Errorf("reading response body: %w", err), Temporary: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classify(op, resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", op, err)
	}
	return nil
}

// classify maps an error response onto the engine's error taxonomy.
func classify(op string, status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	se := &statusError{status: status, code: eb.Code, message: eb.Error}

	switch {
	case status == http.StatusNotFound:
		return se
	case status == http.StatusConflict:
		return fmt.Errorf("%s: %w", se.message, ErrVersionExists)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case status == http.StatusBadRequest && eb.Code == codeInvalidSemver:
		return &directive.InvalidSemverError{Value: eb.Value, Err: errors.New(eb.Error)}
	case status == http.StatusTooManyRequests || status >= 500:
		return &directive.NetworkError{Op: op, Err: se, Temporary: true}
	default:
		return se
	}
}

func addAll(params url.Values, key string, values []string) {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			params.Add(key, v)
		}
	}
}
