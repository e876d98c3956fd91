package oracle

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fitscore-cli/pkg/openai"
)

// OpenAIEmbedder adapts the embeddings endpoint to the Embedder interface.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder creates an Embedder backed by the given client. An empty
// model falls back to the client default.
func NewOpenAIEmbedder(client openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, *Usage, error) {
	res, err := e.client.Embed(ctx, e.model, texts)
	if err != nil {
		return nil, nil, eris.Wrap(err, "oracle: embed")
	}
	return res.Vectors, &Usage{InputTokens: int64(res.Usage.PromptTokens)}, nil
}

// OpenAICompleter adapts JSON-mode chat completions to the Completer
// interface.
type OpenAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter creates a Completer backed by the given client.
func NewOpenAICompleter(client openai.Client, model string) *OpenAICompleter {
	if model == "" {
		model = openai.DefaultChatModel
	}
	return &OpenAICompleter{client: client, model: model}
}

func (c *OpenAICompleter) Model() string { return c.model }

func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (*Completion, error) {
	res, err := c.client.ChatJSON(ctx, c.model, system, user)
	if err != nil {
		return nil, eris.Wrap(err, "oracle: complete")
	}
	model := res.Model
	if model == "" {
		model = c.model
	}
	return &Completion{
		Text:  res.Content,
		Model: model,
		Usage: Usage{
			InputTokens:  int64(res.Usage.PromptTokens),
			OutputTokens: int64(res.Usage.CompletionTokens),
		},
	}, nil
}
