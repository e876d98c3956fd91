// Package openai provides a client for the embeddings and chat-completions
// endpoints. Embedding order is preserved relative to the input batch.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultEmbeddingModel is used when no model is configured.
const DefaultEmbeddingModel = "text-embedding-3-small"

// DefaultChatModel is used when no model is configured.
const DefaultChatModel = "gpt-4o-mini"

// Usage reports token consumption for one API call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// EmbeddingResult is the ordered embedding batch plus usage.
type EmbeddingResult struct {
	Vectors [][]float32
	Model   string
	Usage   Usage
}

// ChatResult is one completion with its usage.
type ChatResult struct {
	Content string
	Model   string
	Usage   Usage
}

// Client defines the model operations used by the embedding and scoring
// pipelines.
type Client interface {
	Embed(ctx context.Context, model string, inputs []string) (*EmbeddingResult, error)
	ChatJSON(ctx context.Context, model, system, user string) (*ChatResult, error)
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

// WithMaxTokens caps completion length for chat calls.
func WithMaxTokens(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithRetryBackoff sets the initial backoff between retried attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}

type httpClient struct {
	apiKey       string
	baseURL      string
	maxTokens    int
	retryBackoff time.Duration
	http         *http.Client
}

// NewClient creates an API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:       apiKey,
		baseURL:      "https://api.openai.com",
		maxTokens:    1024,
		retryBackoff: 2 * time.Second,
		http:         &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Embed returns one vector per input, in input order.
func (c *httpClient) Embed(ctx context.Context, model string, inputs []string) (*EmbeddingResult, error) {
	if len(inputs) == 0 {
		return &EmbeddingResult{}, nil
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}

	var resp embeddingResponse
	err := c.doJSON(ctx, "/v1/embeddings", embeddingRequest{Model: model, Input: inputs}, &resp)
	if err != nil {
		return nil, eris.Wrap(err, "openai: embed")
	}
	if len(resp.Data) != len(inputs) {
		return nil, eris.Errorf("openai: embed returned %d vectors for %d inputs", len(resp.Data), len(inputs))
	}

	// The API documents index-ordered data but we do not rely on it.
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return &EmbeddingResult{Vectors: vectors, Model: resp.Model, Usage: resp.Usage}, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// ChatJSON runs one completion in JSON response mode and returns the raw
// message content.
func (c *httpClient) ChatJSON(ctx context.Context, model, system, user string) (*ChatResult, error) {
	if model == "" {
		model = DefaultChatModel
	}

	req := chatRequest{
		Model:       model,
		MaxTokens:   c.maxTokens,
		Temperature: 0,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &struct {
			Type string `json:"type"`
		}{Type: "json_object"},
	}

	var resp chatResponse
	if err := c.doJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return nil, eris.Wrap(err, "openai: chat")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openai: chat returned no choices")
	}
	return &ChatResult{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage:   resp.Usage,
	}, nil
}

// doJSON posts one request with transient-status retries.
func (c *httpClient) doJSON(ctx context.Context, path string, reqBody, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return eris.Wrap(err, "openai: marshal request")
	}

	const maxAttempts = 3
	backoff := c.retryBackoff

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return eris.Wrap(err, "openai: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = eris.Wrap(err, "openai: request failed")
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
			return eris.Wrap(readErr, "openai: read response body")
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if err := json.Unmarshal(raw, out); err != nil {
				return eris.Wrap(err, "openai: unmarshal response")
			}
			return nil
		case retryableStatus(resp.StatusCode) && attempt < maxAttempts:
			lastErr = eris.Errorf("openai: status %d: %s", resp.StatusCode, string(raw))
			if serr := sleepBackoff(ctx, &backoff); serr != nil {
				return serr
			}
		default:
			return eris.Errorf("openai: unexpected status %d: %s", resp.StatusCode, string(raw))
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
