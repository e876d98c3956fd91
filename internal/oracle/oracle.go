// Package oracle abstracts the model providers behind two narrow interfaces:
// an Embedder for document vectors and a Completer for fit-score verdicts.
package oracle

import (
	"context"

	"github.com/rotisserie/eris"
)

// Provider names accepted in configuration.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Embedder turns document text into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, *Usage, error)
}

// Completer runs one scoring completion against the configured model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (*Completion, error)
	Model() string
}

// Usage is the provider-neutral token accounting for one call.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// Completion is the raw result of one Complete call.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// ErrUnknownProvider is returned for a provider name outside the known set.
var ErrUnknownProvider = eris.New("oracle: unknown provider")
