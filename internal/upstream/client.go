// Package upstream implements the thin, retry-aware HTTP client used to
// talk to the upstream feature-management server: validate, fetch_features,
// post_metrics, honoring ETag, timeouts, TLS identity, and custom headers
// over one shared connection pool.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Unleash/unleash-edge/infrastructure/httputil"
	"github.com/Unleash/unleash-edge/internal/featurestore"
	"github.com/Unleash/unleash-edge/internal/token"
	"github.com/Unleash/unleash-edge/pkg/version"
)

// Config configures the upstream client.
type Config struct {
	BaseURL        string
	AuthHeaderName string
	RequestTimeout time.Duration
	SocketTimeout  time.Duration
	CustomHeaders  map[string]string
	TLS            *TLSConfig
}

// Client is the upstream HTTP client. One Client is shared by the
// Validator, Refresher, and Metrics Sender so they reuse one connection
// pool.
type Client struct {
	baseURL        string
	authHeaderName string
	customHeaders  map[string]string
	httpClient     *http.Client
	requestTimeout time.Duration
	coalescer      *coalescer
}

// NewClient builds a Client from cfg, applying TLS identity material if
// configured. Returns a ConfigurationFault-class error (via the caller's
// wrapping) on unreadable TLS material.
func NewClient(cfg Config) (*Client, error) {
	baseURL, _, err := httputil.NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}

	transport, err := buildTransport(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("upstream: build TLS transport: %w", err)
	}

	socketTimeout := cfg.SocketTimeout
	if socketTimeout == 0 {
		socketTimeout = 5 * time.Second
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = 10 * time.Second
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   requestTimeout,
	}

	authHeader := cfg.AuthHeaderName
	if authHeader == "" {
		authHeader = "Authorization"
	}

	return &Client{
		baseURL:        baseURL,
		authHeaderName: authHeader,
		customHeaders:  cfg.CustomHeaders,
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		coalescer:      newCoalescer(),
	}, nil
}

// AuthHeaderName returns the header name used to carry client tokens,
// needed by callers (the streaming subscriber) that build their own request.
func (c *Client) AuthHeaderName() string { return c.authHeaderName }

// BaseURL returns the configured upstream base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// NewStreamer builds a streaming subscriber for environment using rawToken.
func (c *Client) NewStreamer(rawToken, environment string) *Streamer {
	return NewStreamer(c.baseURL, c.authHeaderName, rawToken, environment)
}

// FetchFeaturesCoalesced behaves like FetchFeatures but ensures only one
// upstream call is outstanding per environment at a time: concurrent
// refresher ticks for the same environment (e.g. during a slow upstream
// response) share a single result instead of stacking up redundant calls.
func (c *Client) FetchFeaturesCoalesced(ctx context.Context, environment, rawToken, ifNoneMatch string) (*FetchResult, error) {
	return c.coalescer.Do(environment, func() (*FetchResult, error) {
		return c.FetchFeatures(ctx, rawToken, ifNoneMatch)
	})
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.customHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

// ValidationResult is the per-token outcome of a validate call.
type ValidationResult struct {
	Token       string
	Valid       bool
	Kind        token.Kind
	Environment string
	Projects    token.ProjectSet
}

// Validate posts a batch of raw tokens to /edge/validate. A network error
// yields every token Unknown (an empty, non-error result so the caller can
// decide to retry); a 4xx on the whole call is a caller-level error to log
// and back off; a 5xx is also returned as an error for the caller to retry
// with backoff.
func (c *Client) Validate(ctx context.Context, tokens []string) ([]ValidationResult, error) {
	payload, err := json.Marshal(map[string]interface{}{"tokens": tokens})
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal validate request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/edge/validate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failure: spec says "all Unknown", i.e. no results, no
		// error — the caller treats an empty slice as "nothing learned".
		return nil, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("upstream: validate returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("upstream: validate rejected: %d %s", resp.StatusCode, string(body))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("upstream: validate unexpected status %d", resp.StatusCode)
	}

	var raw []struct {
		Token       string   `json:"token"`
		Valid       bool     `json:"valid"`
		Type        string   `json:"type"`
		Projects    []string `json:"projects"`
		Environment string   `json:"environment"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("upstream: parse validate response: %w", err)
	}

	out := make([]ValidationResult, 0, len(raw))
	for _, r := range raw {
		var kind token.Kind
		switch strings.ToLower(r.Type) {
		case "frontend":
			kind = token.KindFrontend
		case "admin":
			kind = token.KindAdmin
		default:
			kind = token.KindClient
		}
		projects := token.NewProjectSet(r.Projects...)
		if len(r.Projects) == 1 && r.Projects[0] == "*" {
			projects = token.AllProjects()
		}
		out = append(out, ValidationResult{
			Token:       r.Token,
			Valid:       r.Valid,
			Kind:        kind,
			Environment: r.Environment,
			Projects:    projects,
		})
	}
	return out, nil
}

// FetchOutcome distinguishes the two non-error terminal states of a
// fetch_features call.
type FetchOutcome int

const (
	FetchUnchanged FetchOutcome = iota // 304
	FetchUpdated                       // 200
)

// FetchResult is the outcome of one FetchFeatures call.
type FetchResult struct {
	Outcome  FetchOutcome
	Features featurestore.ClientFeatures
	ETag     string
	Revision int64
}

// ErrTokenInvalid is returned when upstream responds 401/403 to a
// fetch_features call.
type ErrTokenInvalid struct{ Token string }

func (e *ErrTokenInvalid) Error() string { return "upstream: token invalid: " + e.Token }

// ErrRetryAfter wraps a 429 response carrying a Retry-After hint.
type ErrRetryAfter struct{ RetryAfter time.Duration }

func (e *ErrRetryAfter) Error() string { return "upstream: rate limited" }

// FetchFeatures performs a conditional GET against /client/features using
// rawToken's credentials and the previous ETag (ifNoneMatch may be empty).
func (c *Client) FetchFeatures(ctx context.Context, rawToken, ifNoneMatch string) (*FetchResult, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/client/features", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(c.authHeaderName, rawToken)
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: fetch_features network error: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return &FetchResult{Outcome: FetchUnchanged}, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &ErrTokenInvalid{Token: rawToken}
	case http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &ErrRetryAfter{RetryAfter: retryAfter}
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("upstream: fetch_features returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream: fetch_features unexpected status %d", resp.StatusCode)
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		return nil, fmt.Errorf("upstream: fetch_features 200 missing ETag")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("upstream: read fetch_features body: %w", err)
	}

	var features featurestore.ClientFeatures
	if err := json.Unmarshal(body, &features); err != nil {
		return nil, fmt.Errorf("upstream: parse fetch_features body: %w", err)
	}

	revision := gjson.GetBytes(body, "version").Int()

	return &FetchResult{
		Outcome:  FetchUpdated,
		Features: features,
		ETag:     etag,
		Revision: revision,
	}, nil
}

// MetricsBatch is one POST /client/metrics payload.
type MetricsBatch struct {
	AppName     string      `json:"appName"`
	InstanceID  string      `json:"instanceId"`
	Environment string      `json:"environment"`
	Bucket      interface{} `json:"bucket"`
}

// PostMetrics sends one metrics batch using rawToken's credentials.
func (c *Client) PostMetrics(ctx context.Context, rawToken string, batch MetricsBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("upstream: marshal metrics batch: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/client/metrics", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set(c.authHeaderName, rawToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream: post_metrics network error: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("upstream: post_metrics transient failure: %d", resp.StatusCode)
	}
	return fmt.Errorf("upstream: post_metrics rejected: %d", resp.StatusCode)
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		return time.Until(at)
	}
	return 0
}
