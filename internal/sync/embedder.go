package sync

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/oracle"
)

// embedChunkSize is the number of documents sent per embedding call.
const embedChunkSize = 10

// Embedder turns packaged documents into embedded documents, batching the
// provider calls in fixed chunks with a delay in between. A chunk failure
// aborts the whole batch so the index never receives a partial, reordered
// set.
type Embedder struct {
	oracle oracle.Embedder
	log    *zap.Logger

	ChunkDelay time.Duration
}

// NewEmbedder creates an Embedder.
func NewEmbedder(o oracle.Embedder, log *zap.Logger) *Embedder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Embedder{oracle: o, log: log, ChunkDelay: 200 * time.Millisecond}
}

// EmbedDocuments embeds all documents, preserving input order.
func (e *Embedder) EmbedDocuments(ctx context.Context, docs []model.Document) ([]model.EmbeddedDocument, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	out := make([]model.EmbeddedDocument, 0, len(docs))
	for start := 0; start < len(docs); start += embedChunkSize {
		end := min(start+embedChunkSize, len(docs))
		chunk := docs[start:end]

		texts := make([]string, len(chunk))
		for i, d := range chunk {
			texts[i] = d.Content
		}

		vectors, _, err := e.oracle.Embed(ctx, texts)
		if err != nil {
			return nil, eris.Wrapf(err, "sync: embed chunk %d-%d", start, end)
		}
		if len(vectors) != len(chunk) {
			return nil, eris.Errorf("sync: embed chunk returned %d vectors for %d documents", len(vectors), len(chunk))
		}

		for i, d := range chunk {
			out = append(out, model.EmbeddedDocument{Document: d, Values: vectors[i]})
		}

		e.log.Debug("embedded chunk",
			zap.Int("from", start), zap.Int("to", end), zap.Int("total", len(docs)))

		if end < len(docs) && e.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "sync: embed cancelled")
			case <-time.After(e.ChunkDelay):
			}
		}
	}
	return out, nil
}
