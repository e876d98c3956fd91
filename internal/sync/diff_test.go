package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/pkg/pinecone"
)

func storedVector(id string, meta map[string]any) pinecone.Vector {
	return pinecone.Vector{ID: id, Values: []float32{0.1}, Metadata: meta}
}

func dealDoc(id string, value float64, stage string) model.Document {
	return model.Document{
		ID: id,
		Metadata: map[string]any{
			model.MetaDealValue:      value,
			model.MetaConversionDays: 30.0,
			model.MetaPipeline:       "default",
			model.MetaDealStage:      stage,
			model.MetaDaysInPipeline: 30.0,
		},
	}
}

func TestChanged_NewDocumentIncluded(t *testing.T) {
	idx := newFakeIndex()
	d := NewDiffer(idx, nil)

	changed := d.Changed(context.Background(), "ns", []model.Document{dealDoc("deal-1", 100, "closedwon")})
	assert.Len(t, changed, 1)
}

func TestChanged_UnchangedSkipped(t *testing.T) {
	idx := newFakeIndex()
	idx.vectors["ns"] = map[string]pinecone.Vector{
		"deal-1": storedVector("deal-1", dealDoc("deal-1", 100, "closedwon").Metadata),
	}
	d := NewDiffer(idx, nil)

	changed := d.Changed(context.Background(), "ns", []model.Document{dealDoc("deal-1", 100, "closedwon")})
	assert.Empty(t, changed)
}

func TestChanged_SingleFieldDifference(t *testing.T) {
	idx := newFakeIndex()
	idx.vectors["ns"] = map[string]pinecone.Vector{
		"deal-1": storedVector("deal-1", dealDoc("deal-1", 100, "closedwon").Metadata),
		"deal-2": storedVector("deal-2", dealDoc("deal-2", 200, "closedwon").Metadata),
	}
	d := NewDiffer(idx, nil)

	docs := []model.Document{
		dealDoc("deal-1", 100, "closedwon"), // identical
		dealDoc("deal-2", 200, "closedlost"), // stage changed
	}
	changed := d.Changed(context.Background(), "ns", docs)
	assert.Len(t, changed, 1)
	assert.Equal(t, "deal-2", changed[0].ID)
}

func TestChanged_FetchFailureUpsertsAll(t *testing.T) {
	idx := newFakeIndex()
	idx.fetchErr = assert.AnError
	d := NewDiffer(idx, nil)

	docs := []model.Document{dealDoc("deal-1", 100, "a"), dealDoc("deal-2", 200, "b")}
	changed := d.Changed(context.Background(), "ns", docs)
	assert.Len(t, changed, 2)
}

func TestChanged_IgnoresNonComparisonFields(t *testing.T) {
	stored := dealDoc("deal-1", 100, "closedwon")
	stored.Metadata[model.MetaLLMScore] = 90.0

	idx := newFakeIndex()
	idx.vectors["ns"] = map[string]pinecone.Vector{
		"deal-1": storedVector("deal-1", stored.Metadata),
	}
	d := NewDiffer(idx, nil)

	local := dealDoc("deal-1", 100, "closedwon")
	local.Metadata[model.MetaLLMScore] = 40.0

	changed := d.Changed(context.Background(), "ns", []model.Document{local})
	assert.Empty(t, changed)
}

func TestNormalizeMeta(t *testing.T) {
	// The index returns numbers as float64 regardless of what was written.
	assert.Equal(t, normalizeMeta(30), normalizeMeta(30.0))
	assert.Equal(t, normalizeMeta(int64(30)), normalizeMeta(float64(30)))
	assert.Equal(t, "", normalizeMeta(nil))
	assert.Equal(t, "default", normalizeMeta("default"))
	assert.NotEqual(t, normalizeMeta(30.5), normalizeMeta(30))
}
