// Package odata is the HTTP transport shared by the OData-speaking adapters: query building,
// header and credential injection, response envelope unwrapping and upstream error mapping.
package odata

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/erpbridge/erpbridge/internal/connectors/registry"
	"github.com/erpbridge/erpbridge/internal/metrics"
)

const (
	defaultTimeout = 60 * time.Second
	maxBodySize    = 32 << 20 // 32 MiB
	maxErrorBody   = 1 << 20  // 1 MiB
)

// Authorizer sets the credential header on an outgoing request.
type Authorizer func(req *http.Request, accessToken string)

// Bearer sends the access token as an OAuth bearer token.
func Bearer(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
}

// Basic sends the access token as pre-encoded HTTP Basic credentials.
func Basic(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Basic "+accessToken)
}

type Options struct {
	Provider   string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	// Envelope is the JMESPath expression addressing the record array in a response.
	Envelope string
	// Format, when set, is sent as $format on every request.
	Format     string
	Headers    map[string]string
	Authorizer Authorizer
}

type Client struct {
	provider   string
	baseURL    string
	http       *http.Client
	envelope   string
	format     string
	headers    map[string]string
	authorizer Authorizer
}

// Query holds the OData system query options of a read.
type Query struct {
	Top    int
	Filter string
}

func New(opts Options) (*Client, error) {
	provider := strings.TrimSpace(opts.Provider)
	if provider == "" {
		return nil, errors.New("odata client provider is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("odata client base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	envelope := strings.TrimSpace(opts.Envelope)
	if envelope == "" {
		envelope = EnvelopeV4
	}
	authorizer := opts.Authorizer
	if authorizer == nil {
		authorizer = Bearer
	}

	return &Client{
		provider:   provider,
		baseURL:    baseURL,
		http:       httpClient,
		envelope:   envelope,
		format:     strings.TrimSpace(opts.Format),
		headers:    opts.Headers,
		authorizer: authorizer,
	}, nil
}

// List issues an authenticated GET against endpoint (relative to the base URL, or absolute) and
// returns the unwrapped records.
func (c *Client) List(ctx context.Context, accessToken, endpoint string, q Query) ([]registry.Record, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, &registry.UpstreamDataError{Provider: c.provider, Endpoint: endpoint, Err: errors.New("endpoint is required")}
	}
	reqURL, err := c.buildURL(endpoint, q)
	if err != nil {
		return nil, &registry.UpstreamDataError{Provider: c.provider, Endpoint: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &registry.UpstreamDataError{Provider: c.provider, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "erpbridge")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	c.authorizer(req, accessToken)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(start, "error")
		return nil, &registry.UpstreamDataError{Provider: c.provider, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	c.observe(start, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &registry.UpstreamDataError{
			Provider:   c.provider,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	// Edm.Int64 values exceed float64 precision; numbers stay json.Number end to end.
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, &registry.UpstreamDataError{Provider: c.provider, Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	records, err := Unwrap(c.envelope, payload)
	if err != nil {
		return nil, &registry.UpstreamDataError{Provider: c.provider, Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	return records, nil
}

func (c *Client) buildURL(endpoint string, q Query) (string, error) {
	raw := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		raw = c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	values := u.Query()
	if q.Top > 0 {
		values.Set("$top", strconv.Itoa(q.Top))
	}
	if f := strings.TrimSpace(q.Filter); f != "" {
		values.Set("$filter", f)
	}
	if c.format != "" {
		values.Set("$format", c.format)
	}
	// OData servers expect literal "$" in system query option names.
	u.RawQuery = strings.ReplaceAll(values.Encode(), "%24", "$")
	return u.String(), nil
}

func (c *Client) observe(start time.Time, status string) {
	metrics.UpstreamRequestDuration.WithLabelValues(c.provider, "data", status).Observe(time.Since(start).Seconds())
}
