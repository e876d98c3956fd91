package scoring

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fitscore-cli/internal/cost"
	"github.com/sells-group/fitscore-cli/internal/crmauth"
	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/oracle"
	"github.com/sells-group/fitscore-cli/internal/store"
	syncpkg "github.com/sells-group/fitscore-cli/internal/sync"
	"github.com/sells-group/fitscore-cli/pkg/hubspot"
	"github.com/sells-group/fitscore-cli/pkg/pinecone"
)

// defaultTopK is the neighbor count requested per scoring call.
const defaultTopK = 5

// Engine scores one CRM record at a time: quota check, fetch, package, embed,
// neighbor retrieval, oracle verdict, CRM write-back, and the audit event
// that doubles as the quota ledger entry.
type Engine struct {
	account   *model.Account
	store     store.Store
	crm       hubspot.Client
	rotator   *crmauth.Rotator
	packager  *syncpkg.Packager
	embedder  oracle.Embedder
	completer oracle.Completer
	index     pinecone.Client
	costs     *cost.Calculator
	log       *zap.Logger

	// TopK bounds the neighbor evidence per call.
	TopK int
	// EmbeddingModel names the embedder's model for cost attribution.
	EmbeddingModel string

	now func() time.Time
}

// NewEngine wires a scoring engine for one account.
func NewEngine(
	account *model.Account,
	st store.Store,
	crm hubspot.Client,
	rotator *crmauth.Rotator,
	packager *syncpkg.Packager,
	embedder oracle.Embedder,
	completer oracle.Completer,
	index pinecone.Client,
	costs *cost.Calculator,
	log *zap.Logger,
) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		account:   account,
		store:     st,
		crm:       crm,
		rotator:   rotator,
		packager:  packager,
		embedder:  embedder,
		completer: completer,
		index:     index,
		costs:     costs,
		log:       log,
		TopK:      defaultTopK,
		now:       time.Now,
	}
}

// PortalID returns the portal this engine scores for.
func (e *Engine) PortalID() string {
	return e.account.PortalID
}

// Score runs one record through the scoring pipeline. It fails fast on an
// exhausted quota, before any oracle call or CRM write.
func (e *Engine) Score(ctx context.Context, kind model.RecordKind, recordID string) (*model.ScoringResult, error) {
	now := e.now()
	if err := checkQuota(ctx, e.store, e.account, now); err != nil {
		return nil, err
	}

	raw, err := crmauth.Authed(ctx, e.rotator, func(ctx context.Context) (*hubspot.Record, error) {
		return e.crm.GetRecord(ctx, string(kind), recordID, model.PropertiesFor(kind))
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: fetch %s %s", kind.Singular(), recordID)
	}
	rec, err := model.ParseRecord(kind, raw.ID, raw.Properties)
	if err != nil {
		return nil, err
	}

	doc, err := e.packager.Package(ctx, rec)
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: package %s %s", kind.Singular(), recordID)
	}

	// An embedding or query failure costs us the neighbor evidence, not the
	// scoring call. The prompt carries an explicit no-reference notice.
	var neighbors []Neighbor
	var embedTokens int64
	vectors, usage, err := e.embedder.Embed(ctx, []string{doc.Content})
	if err != nil || len(vectors) == 0 {
		e.log.Warn("embedding failed, scoring without reference data",
			zap.String("record_id", recordID), zap.Error(err))
	} else {
		if usage != nil {
			embedTokens = usage.InputTokens
		}
		neighbors = e.neighbors(ctx, kind, doc.ID, vectors[0])
	}

	user := BuildPrompt(doc, neighbors)
	comp, err := e.completer.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: complete %s %s", kind.Singular(), recordID)
	}

	verdict, err := oracle.ParseVerdict(comp.Text)
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: verdict for %s %s", kind.Singular(), recordID)
	}
	summary := compositeSummary(verdict)

	props := map[string]string{
		model.PropFitScore:   strconv.FormatFloat(verdict.Score, 'f', -1, 64),
		model.PropFitSummary: summary,
		model.PropLastScored: now.UTC().Format(time.RFC3339),
	}
	if _, err := crmauth.Authed(ctx, e.rotator, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.crm.UpdateRecord(ctx, string(kind), recordID, props)
	}); err != nil {
		return nil, eris.Wrapf(err, "scoring: write back %s %s", kind.Singular(), recordID)
	}

	costUSD := e.costs.Completion(comp.Model, comp.Usage) +
		e.costs.Embedding(e.EmbeddingModel, embedTokens)

	// The event row is also the quota ledger entry, so a failed insert is a
	// hard error even though the CRM write already landed.
	event := &model.ScoreEvent{
		PortalID:   e.account.PortalID,
		RecordKind: kind,
		RecordID:   recordID,
		Prompt:     user,
		Response:   comp.Text,
		Score:      verdict.Score,
		CostUSD:    costUSD,
	}
	if err := e.store.InsertScoreEvent(ctx, event); err != nil {
		return nil, eris.Wrapf(err, "scoring: record event for %s %s", kind.Singular(), recordID)
	}

	e.log.Info("record scored",
		zap.String("portal_id", e.account.PortalID),
		zap.String("kind", string(kind)),
		zap.String("record_id", recordID),
		zap.Float64("score", verdict.Score),
		zap.Int("neighbors", len(neighbors)),
		zap.Float64("cost_usd", costUSD))

	return &model.ScoringResult{
		Score:      verdict.Score,
		Summary:    summary,
		LastScored: now.UTC(),
	}, nil
}

// neighbors queries the index for same-kind records in the portal's namespace
// and resolves each match's reference score. Query failures degrade to no
// evidence.
func (e *Engine) neighbors(ctx context.Context, kind model.RecordKind, selfID string, vector []float32) []Neighbor {
	topK := e.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	resp, err := e.index.Query(ctx, pinecone.QueryRequest{
		Namespace: e.account.Namespace(),
		Vector:    vector,
		// One extra so excluding the record's own vector still fills topK.
		TopK:            topK + 1,
		Filter:          map[string]any{model.MetaRecordKind: map[string]any{"$eq": string(kind)}},
		IncludeMetadata: true,
	})
	if err != nil {
		e.log.Warn("neighbor query failed", zap.String("record_id", selfID), zap.Error(err))
		return nil
	}

	neighbors := make([]Neighbor, 0, topK)
	for _, m := range resp.Matches {
		if m.ID == selfID {
			continue
		}
		n := Neighbor{ID: m.ID, Similarity: m.Score}
		if class, ok := m.Metadata[model.MetaClassification].(string); ok {
			n.Classification = class
		}
		if dv, ok := metaFloat(m.Metadata[model.MetaDealValue]); ok {
			n.DealValue = &dv
		}
		if score, ok := metaFloat(m.Metadata[model.MetaLLMScore]); ok {
			n.ReferenceScore = score
			n.Scored = true
		} else {
			class := model.Classification(n.Classification)
			n.ReferenceScore = DerivedScore(n.DealValue, class, e.account.Stats[class])
		}

		neighbors = append(neighbors, n)
		if len(neighbors) == topK {
			break
		}
	}
	return neighbors
}

// metaFloat reads a numeric metadata value. The index returns JSON numbers as
// float64 but fakes in tests may carry other numeric types.
func metaFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
