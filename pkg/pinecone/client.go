// Package pinecone provides a REST client for the vector index: control-plane
// index description plus data-plane query, upsert, fetch, and namespace
// delete.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Vector is one indexed embedding with its scalar metadata. A write always
// replaces the full metadata for the id.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryRequest asks for the topK nearest neighbors in a namespace.
type QueryRequest struct {
	Namespace       string         `json:"namespace,omitempty"`
	Vector          []float32      `json:"vector,omitempty"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeValues   bool           `json:"includeValues,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata,omitempty"`
}

// Match is a single query hit.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Values   []float32      `json:"values,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryResponse holds the neighbor matches for a query.
type QueryResponse struct {
	Matches []Match `json:"matches"`
}

// IndexDescription is the control-plane view of an index.
type IndexDescription struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

// Client defines the vector-store operations used by the pipelines.
type Client interface {
	DescribeIndex(ctx context.Context, indexName string) (*IndexDescription, error)
	Upsert(ctx context.Context, namespace string, vectors []Vector) (int64, error)
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
	Fetch(ctx context.Context, namespace string, ids []string) (map[string]Vector, error)
	DeleteNamespace(ctx context.Context, namespace string) error
}

// Option configures the client.
type Option func(*httpClient)

// WithControlURL sets a custom control-plane base URL (for testing).
func WithControlURL(u string) Option {
	return func(c *httpClient) {
		c.controlURL = strings.TrimRight(u, "/")
	}
}

// WithHost sets the data-plane host for the target index. A bare host gets
// an https scheme; full URLs are kept as-is for tests.
func WithHost(host string) Option {
	return func(c *httpClient) {
		host = strings.TrimSpace(host)
		if host != "" && !strings.Contains(host, "://") {
			host = "https://" + host
		}
		c.dataURL = strings.TrimRight(host, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithAPIVersion overrides the pinned API version header.
func WithAPIVersion(v string) Option {
	return func(c *httpClient) {
		c.apiVersion = v
	}
}

type httpClient struct {
	apiKey     string
	apiVersion string
	controlURL string
	dataURL    string
	http       *http.Client
}

// NewClient creates a vector-store client. Data-plane calls require the index
// host, set via WithHost or resolved through DescribeIndex at startup.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:     apiKey,
		apiVersion: "2025-01",
		controlURL: "https://api.pinecone.io",
		http:       &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) DescribeIndex(ctx context.Context, indexName string) (*IndexDescription, error) {
	indexName = strings.TrimSpace(indexName)
	if indexName == "" {
		return nil, eris.New("pinecone: index name required")
	}

	out, err := doJSON[IndexDescription](c, ctx, http.MethodGet,
		c.controlURL+"/indexes/"+url.PathEscape(indexName), nil)
	if err != nil {
		return nil, eris.Wrap(err, "pinecone: describe index")
	}
	if strings.TrimSpace(out.Host) == "" {
		return nil, eris.New("pinecone: describe index returned empty host")
	}
	return out, nil
}

func (c *httpClient) Upsert(ctx context.Context, namespace string, vectors []Vector) (int64, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	if c.dataURL == "" {
		return 0, eris.New("pinecone: data-plane host not configured")
	}

	body := map[string]any{"vectors": vectors, "namespace": namespace}
	out, err := doJSON[struct {
		UpsertedCount int64 `json:"upsertedCount"`
	}](c, ctx, http.MethodPost, c.dataURL+"/vectors/upsert", body)
	if err != nil {
		return 0, eris.Wrap(err, "pinecone: upsert")
	}
	return out.UpsertedCount, nil
}

func (c *httpClient) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if c.dataURL == "" {
		return nil, eris.New("pinecone: data-plane host not configured")
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}
	if len(req.Vector) == 0 {
		return nil, eris.New("pinecone: query vector required")
	}

	out, err := doJSON[QueryResponse](c, ctx, http.MethodPost, c.dataURL+"/query", req)
	if err != nil {
		return nil, eris.Wrap(err, "pinecone: query")
	}
	return out, nil
}

func (c *httpClient) Fetch(ctx context.Context, namespace string, ids []string) (map[string]Vector, error) {
	if len(ids) == 0 {
		return map[string]Vector{}, nil
	}
	if c.dataURL == "" {
		return nil, eris.New("pinecone: data-plane host not configured")
	}

	q := url.Values{}
	for _, id := range ids {
		q.Add("ids", id)
	}
	if namespace != "" {
		q.Set("namespace", namespace)
	}

	out, err := doJSON[struct {
		Vectors map[string]Vector `json:"vectors"`
	}](c, ctx, http.MethodGet, c.dataURL+"/vectors/fetch?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "pinecone: fetch")
	}
	if out.Vectors == nil {
		return map[string]Vector{}, nil
	}
	return out.Vectors, nil
}

func (c *httpClient) DeleteNamespace(ctx context.Context, namespace string) error {
	if c.dataURL == "" {
		return eris.New("pinecone: data-plane host not configured")
	}

	body := map[string]any{"deleteAll": true, "namespace": namespace}
	if _, err := doJSON[struct{}](c, ctx, http.MethodPost, c.dataURL+"/vectors/delete", body); err != nil {
		return eris.Wrap(err, "pinecone: delete namespace")
	}
	return nil
}

func doJSON[T any](c *httpClient, ctx context.Context, method, u string, body any) (*T, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, eris.Wrap(err, "pinecone: encode request")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return nil, eris.Wrap(err, "pinecone: create request")
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pinecone-Api-Version", c.apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "pinecone: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "pinecone: read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eris.Errorf("pinecone: status %d: %s", resp.StatusCode, string(raw))
	}

	var out T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, eris.Wrap(err, "pinecone: unmarshal response")
		}
	}
	return &out, nil
}
