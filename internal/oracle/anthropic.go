package oracle

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fitscore-cli/pkg/anthropic"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// AnthropicCompleter adapts the messages endpoint to the Completer interface.
// The system prompt gets a cache breakpoint so the shared ruleset prefix is
// paid for once per run.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicCompleter creates a Completer backed by the given client.
func NewAnthropicCompleter(client anthropic.Client, model string) *AnthropicCompleter {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicCompleter{client: client, model: model, maxTokens: 1024}
}

func (c *AnthropicCompleter) Model() string { return c.model }

func (c *AnthropicCompleter) Complete(ctx context.Context, system, user string) (*Completion, error) {
	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(system),
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "oracle: complete")
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return &Completion{
		Text:  resp.Text(),
		Model: model,
		Usage: Usage{
			InputTokens:      resp.Usage.InputTokens,
			OutputTokens:     resp.Usage.OutputTokens,
			CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:  resp.Usage.CacheReadInputTokens,
		},
	}, nil
}
