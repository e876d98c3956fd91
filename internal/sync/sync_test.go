package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/fitscore-cli/internal/crmauth"
	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/oracle"
	"github.com/sells-group/fitscore-cli/internal/secrets"
	"github.com/sells-group/fitscore-cli/internal/store"
	"github.com/sells-group/fitscore-cli/pkg/hubspot"
	"github.com/sells-group/fitscore-cli/pkg/pinecone"
)

// fakeCRM serves canned search pages and records.
type fakeCRM struct {
	hubspot.Client

	pages       map[string][]*hubspot.SearchResponse
	pageIdx     map[string]int
	records     map[string]*hubspot.Record
	assocs      map[string][]hubspot.Association
	searchCalls int
	lastSearch  hubspot.SearchRequest
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		pages:   map[string][]*hubspot.SearchResponse{},
		pageIdx: map[string]int{},
		records: map[string]*hubspot.Record{},
		assocs:  map[string][]hubspot.Association{},
	}
}

func (f *fakeCRM) SetAccessToken(string) {}

func (f *fakeCRM) SearchRecords(_ context.Context, kind string, req hubspot.SearchRequest) (*hubspot.SearchResponse, error) {
	f.searchCalls++
	f.lastSearch = req
	queue := f.pages[kind]
	idx := f.pageIdx[kind]
	if idx >= len(queue) {
		return &hubspot.SearchResponse{}, nil
	}
	f.pageIdx[kind] = idx + 1
	return queue[idx], nil
}

func (f *fakeCRM) GetRecord(_ context.Context, kind, id string, _ []string) (*hubspot.Record, error) {
	rec, ok := f.records[kind+"/"+id]
	if !ok {
		return nil, &hubspot.NotFoundError{Kind: kind, ID: id}
	}
	return rec, nil
}

func (f *fakeCRM) GetAssociations(_ context.Context, kind, id, toKind string) ([]hubspot.Association, error) {
	return f.assocs[kind+"/"+id+"/"+toKind], nil
}

// fakeIndex is an in-memory vector store.
type fakeIndex struct {
	pinecone.Client

	vectors  map[string]map[string]pinecone.Vector // namespace -> id -> vector
	fetchErr error
	upserts  int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{vectors: map[string]map[string]pinecone.Vector{}}
}

func (f *fakeIndex) Fetch(_ context.Context, namespace string, ids []string) (map[string]pinecone.Vector, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := map[string]pinecone.Vector{}
	for _, id := range ids {
		if v, ok := f.vectors[namespace][id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (f *fakeIndex) Upsert(_ context.Context, namespace string, vecs []pinecone.Vector) (int64, error) {
	f.upserts++
	if f.vectors[namespace] == nil {
		f.vectors[namespace] = map[string]pinecone.Vector{}
	}
	for _, v := range vecs {
		f.vectors[namespace][v.ID] = v
	}
	return int64(len(vecs)), nil
}

// fakeEmbedder returns deterministic single-value vectors.
type fakeEmbedder struct {
	calls   int
	batches [][]string
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, *oracle.Usage, error) {
	f.calls++
	f.batches = append(f.batches, texts)
	if f.err != nil {
		return nil, nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, &oracle.Usage{InputTokens: int64(len(texts))}, nil
}

type rig struct {
	crm     *fakeCRM
	index   *fakeIndex
	emb     *fakeEmbedder
	store   *store.SQLiteStore
	account *model.Account
	rotator *crmauth.Rotator
}

func newRig(t *testing.T) *rig {
	t.Helper()

	sealer, err := secrets.NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	accessEnc, err := sealer.Seal("access")
	require.NoError(t, err)
	refreshEnc, err := sealer.Seal("refresh")
	require.NoError(t, err)

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	account := &model.Account{
		PortalID:        "12345",
		Source:          "hubspot",
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		PlanLimit:       500,
		PeriodStart:     time.Now().UTC().AddDate(0, 0, -5),
		Stats:           map[model.Classification]model.ClassStats{},
	}
	require.NoError(t, st.UpsertAccount(context.Background(), account))

	crm := newFakeCRM()
	return &rig{
		crm:     crm,
		index:   newFakeIndex(),
		emb:     &fakeEmbedder{},
		store:   st,
		account: account,
		rotator: crmauth.NewRotator(crm, sealer, st, account, nil),
	}
}

func (r *rig) newJob(t *testing.T, kinds ...model.RecordKind) *Job {
	t.Helper()
	paginator := NewPaginator(r.crm, r.rotator, nil)
	paginator.PageDelay = 0
	packager := NewPackager(r.crm, r.rotator, r.account.PortalID, nil)
	embedder := NewEmbedder(r.emb, nil)
	embedder.ChunkDelay = 0
	differ := NewDiffer(r.index, nil)
	stats := NewStatsTracker(r.store, r.account, nil)

	job := NewJob(r.account, r.store, paginator, packager, embedder, differ, r.index, stats, nil)
	if len(kinds) > 0 {
		job.Kinds = kinds
	}
	return job
}

func dealPage(records ...hubspot.Record) *hubspot.SearchResponse {
	return &hubspot.SearchResponse{Total: len(records), Results: records}
}

func dealRecord(id, amount, score string) hubspot.Record {
	props := map[string]string{
		"amount":              amount,
		"pipeline":            "default",
		"dealstage":           "closedwon",
		"createdate":          "2026-06-01T00:00:00Z",
		"closedate":           "2026-07-01T00:00:00Z",
		"hs_lastmodifieddate": "2026-08-20T00:00:00Z",
	}
	if score != "" {
		props[model.PropFitScore] = score
	}
	return hubspot.Record{ID: id, Properties: props}
}
