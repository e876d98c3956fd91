package sync

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/pkg/pinecone"
)

// comparisonFields are the metadata fields whose change forces a re-embed
// and upsert. Everything else on a vector is cosmetic.
var comparisonFields = []string{
	model.MetaDealValue,
	model.MetaConversionDays,
	model.MetaPipeline,
	model.MetaDealStage,
	model.MetaDaysInPipeline,
}

// fetchBatchSize caps ids per index fetch call.
const fetchBatchSize = 100

// Differ decides which documents actually need re-indexing by comparing
// their metadata against the vectors already stored.
type Differ struct {
	index pinecone.Client
	log   *zap.Logger
}

// NewDiffer creates a Differ.
func NewDiffer(index pinecone.Client, log *zap.Logger) *Differ {
	if log == nil {
		log = zap.NewNop()
	}
	return &Differ{index: index, log: log}
}

// Changed returns the subset of docs that are new or differ from the stored
// vector on any comparison field. When the index fetch fails, the safe
// answer is everything: re-upserting unchanged vectors is idempotent,
// skipping changed ones is not.
func (d *Differ) Changed(ctx context.Context, namespace string, docs []model.Document) []model.Document {
	if len(docs) == 0 {
		return nil
	}

	existing := make(map[string]pinecone.Vector, len(docs))
	for start := 0; start < len(docs); start += fetchBatchSize {
		end := min(start+fetchBatchSize, len(docs))
		ids := make([]string, 0, end-start)
		for _, doc := range docs[start:end] {
			ids = append(ids, doc.ID)
		}

		batch, err := d.index.Fetch(ctx, namespace, ids)
		if err != nil {
			d.log.Warn("vector fetch failed, upserting full batch",
				zap.String("namespace", namespace), zap.Error(err))
			return docs
		}
		for id, v := range batch {
			existing[id] = v
		}
	}

	var changed []model.Document
	for _, doc := range docs {
		stored, ok := existing[doc.ID]
		if !ok || metadataDiffers(doc.Metadata, stored.Metadata) {
			changed = append(changed, doc)
		}
	}
	return changed
}

// metadataDiffers compares only the comparison fields, through a normalized
// string form since the index returns numbers as float64 regardless of what
// was written.
func metadataDiffers(local, stored map[string]any) bool {
	for _, field := range comparisonFields {
		if normalizeMeta(local[field]) != normalizeMeta(stored[field]) {
			return true
		}
	}
	return false
}

func normalizeMeta(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}
