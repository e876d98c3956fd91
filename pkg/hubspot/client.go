// Package hubspot provides a bearer-authenticated REST client for the CRM's
// record, search, association, and OAuth token endpoints.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the CRM operations used by the sync and scoring pipelines.
type Client interface {
	GetRecord(ctx context.Context, kind, id string, properties []string) (*Record, error)
	SearchRecords(ctx context.Context, kind string, req SearchRequest) (*SearchResponse, error)
	GetAssociations(ctx context.Context, kind, id, toKind string) ([]Association, error)
	UpdateRecord(ctx context.Context, kind, id string, properties map[string]string) error
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)

	// SetAccessToken rotates the bearer credential for all subsequent calls.
	SetAccessToken(token string)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets a per-second rate limit for CRM API calls.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithAccessToken sets the initial bearer credential.
func WithAccessToken(token string) Option {
	return func(c *httpClient) {
		c.accessToken = token
	}
}

type httpClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client
	limiter      *rate.Limiter

	mu          sync.RWMutex
	accessToken string
}

// NewClient creates a CRM client for one portal. clientID/clientSecret are
// the app credentials used for refresh-token exchanges.
func NewClient(clientID, clientSecret string, opts ...Option) Client {
	c := &httpClient{
		baseURL:      "https://api.hubapi.com",
		clientID:     clientID,
		clientSecret: clientSecret,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

func (c *httpClient) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// wait blocks until the rate limiter allows one call, or ctx is cancelled.
func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// doJSON issues one authenticated request with transient-status retries,
// decoding a 2xx response into out (when non-nil). 401 maps to
// AuthExpiredError, 404 to NotFoundError for record paths.
func (c *httpClient) doJSON(ctx context.Context, method, path string, reqBody, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "hubspot: rate limit")
	}

	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return eris.Wrap(err, "hubspot: marshal request")
		}
	}

	const maxAttempts = 3
	backoff := time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return eris.Wrap(err, "hubspot: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.bearer())
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = eris.Wrap(err, "hubspot: request failed")
			if attempt < maxAttempts {
				if serr := sleepBackoff(ctx, &backoff); serr != nil {
					return serr
				}
				continue
			}
			return lastErr
		}

		raw, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return eris.Wrap(readErr, "hubspot: read response body")
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return &AuthExpiredError{Body: string(raw)}
		case resp.StatusCode == http.StatusNotFound:
			return &NotFoundError{ID: path}
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out == nil || len(raw) == 0 {
				return nil
			}
			if err := json.Unmarshal(raw, out); err != nil {
				return eris.Wrap(err, "hubspot: unmarshal response")
			}
			return nil
		case retryableStatus(resp.StatusCode) && attempt < maxAttempts:
			lastErr = eris.Errorf("hubspot: status %d: %s", resp.StatusCode, string(raw))
			if serr := sleepBackoff(ctx, &backoff); serr != nil {
				return serr
			}
			continue
		default:
			return eris.Errorf("hubspot: unexpected status %d: %s", resp.StatusCode, string(raw))
		}
	}

	return lastErr
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

func sleepBackoff(ctx context.Context, backoff *time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(*backoff):
	}
	*backoff *= 2
	return nil
}

func (c *httpClient) GetRecord(ctx context.Context, kind, id string, properties []string) (*Record, error) {
	path := fmt.Sprintf("/crm/v3/objects/%s/%s", url.PathEscape(kind), url.PathEscape(id))
	if len(properties) > 0 {
		path += "?properties=" + url.QueryEscape(strings.Join(properties, ","))
	}

	var rec Record
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &rec); err != nil {
		if IsNotFound(err) {
			return nil, &NotFoundError{Kind: kind, ID: id}
		}
		return nil, eris.Wrap(err, fmt.Sprintf("hubspot: get %s %s", kind, id))
	}
	return &rec, nil
}

func (c *httpClient) SearchRecords(ctx context.Context, kind string, req SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	path := fmt.Sprintf("/crm/v3/objects/%s/search", url.PathEscape(kind))
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		if IsAuthExpired(err) {
			return nil, err
		}
		return nil, eris.Wrap(err, fmt.Sprintf("hubspot: search %s", kind))
	}
	return &resp, nil
}

func (c *httpClient) GetAssociations(ctx context.Context, kind, id, toKind string) ([]Association, error) {
	path := fmt.Sprintf("/crm/v4/objects/%s/%s/associations/%s",
		url.PathEscape(kind), url.PathEscape(id), url.PathEscape(toKind))

	var resp struct {
		Results []struct {
			ToObjectID json.Number `json:"toObjectId"`
			Type       string      `json:"associationType,omitempty"`
		} `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, fmt.Sprintf("hubspot: associations %s %s -> %s", kind, id, toKind))
	}

	out := make([]Association, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, Association{ID: r.ToObjectID.String(), Type: r.Type})
	}
	return out, nil
}

func (c *httpClient) UpdateRecord(ctx context.Context, kind, id string, properties map[string]string) error {
	path := fmt.Sprintf("/crm/v3/objects/%s/%s", url.PathEscape(kind), url.PathEscape(id))
	body := map[string]any{"properties": properties}
	if err := c.doJSON(ctx, http.MethodPatch, path, body, nil); err != nil {
		if IsAuthExpired(err) || IsNotFound(err) {
			return err
		}
		return eris.Wrap(err, fmt.Sprintf("hubspot: update %s %s", kind, id))
	}
	return nil
}

// RefreshToken exchanges a refresh credential for a fresh token pair. This is
// the one endpoint that takes form encoding and no bearer header.
func (c *httpClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/oauth/v1/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "hubspot: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "hubspot: token request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "hubspot: read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("hubspot: token exchange status %d: %s", resp.StatusCode, string(raw))
	}

	var pair TokenPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return nil, eris.Wrap(err, "hubspot: unmarshal token response")
	}
	if pair.AccessToken == "" {
		return nil, eris.New("hubspot: token exchange returned empty access token")
	}
	return &pair, nil
}
