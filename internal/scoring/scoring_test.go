package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/fitscore-cli/internal/cost"
	"github.com/sells-group/fitscore-cli/internal/crmauth"
	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/oracle"
	"github.com/sells-group/fitscore-cli/internal/secrets"
	"github.com/sells-group/fitscore-cli/internal/store"
	syncpkg "github.com/sells-group/fitscore-cli/internal/sync"
	"github.com/sells-group/fitscore-cli/pkg/hubspot"
	"github.com/sells-group/fitscore-cli/pkg/pinecone"
)

// fakeCRM serves canned records and captures write-backs.
type fakeCRM struct {
	hubspot.Client

	records map[string]*hubspot.Record
	updates map[string]map[string]string
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		records: map[string]*hubspot.Record{},
		updates: map[string]map[string]string{},
	}
}

func (f *fakeCRM) SetAccessToken(string) {}

func (f *fakeCRM) GetRecord(_ context.Context, kind, id string, _ []string) (*hubspot.Record, error) {
	rec, ok := f.records[kind+"/"+id]
	if !ok {
		return nil, &hubspot.NotFoundError{Kind: kind, ID: id}
	}
	return rec, nil
}

func (f *fakeCRM) GetAssociations(context.Context, string, string, string) ([]hubspot.Association, error) {
	return nil, nil
}

func (f *fakeCRM) UpdateRecord(_ context.Context, kind, id string, properties map[string]string) error {
	f.updates[kind+"/"+id] = properties
	return nil
}

// fakeIndex answers neighbor queries with a canned match list.
type fakeIndex struct {
	pinecone.Client

	matches  []pinecone.Match
	queries  int
	queryErr error
	lastReq  pinecone.QueryRequest
}

func (f *fakeIndex) Query(_ context.Context, req pinecone.QueryRequest) (*pinecone.QueryResponse, error) {
	f.queries++
	f.lastReq = req
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &pinecone.QueryResponse{Matches: f.matches}, nil
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, *oracle.Usage, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, &oracle.Usage{InputTokens: 120}, nil
}

type fakeCompleter struct {
	calls int
	text  string
	err   error

	system string
	user   string
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (*oracle.Completion, error) {
	f.calls++
	f.system, f.user = system, user
	if f.err != nil {
		return nil, f.err
	}
	return &oracle.Completion{
		Text:  f.text,
		Model: "claude-haiku-4-5-20251001",
		Usage: oracle.Usage{InputTokens: 1_000, OutputTokens: 200},
	}, nil
}

func (f *fakeCompleter) Model() string { return "claude-haiku-4-5-20251001" }

type engineRig struct {
	crm       *fakeCRM
	index     *fakeIndex
	emb       *fakeEmbedder
	completer *fakeCompleter
	store     *store.SQLiteStore
	account   *model.Account
	engine    *Engine
}

func newEngineRig(t *testing.T) *engineRig {
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
		Stats: map[model.Classification]model.ClassStats{
			model.ClassIdeal:    {Low: 10_000, High: 90_000, Median: 50_000, Count: 3},
			model.ClassNonIdeal: {Low: 1_000, High: 8_000, Median: 4_000, Count: 2},
		},
	}
	require.NoError(t, st.UpsertAccount(context.Background(), account))

	crm := newFakeCRM()
	rotator := crmauth.NewRotator(crm, sealer, st, account, nil)
	packager := syncpkg.NewPackager(crm, rotator, account.PortalID, nil)

	emb := &fakeEmbedder{}
	completer := &fakeCompleter{
		text: `{"score": 78, "positives": ["strong industry match"], "negatives": ["long sales cycle"], "summary": "Good fit overall."}`,
	}
	index := &fakeIndex{}

	engine := NewEngine(account, st, crm, rotator, packager, emb, completer, index,
		cost.NewCalculator(cost.DefaultRates()), nil)
	engine.EmbeddingModel = "text-embedding-3-small"

	return &engineRig{
		crm:       crm,
		index:     index,
		emb:       emb,
		completer: completer,
		store:     st,
		account:   account,
		engine:    engine,
	}
}

func (r *engineRig) addDeal(id, amount string) {
	r.crm.records["deals/"+id] = &hubspot.Record{
		ID: id,
		Properties: map[string]string{
			"amount":              amount,
			"pipeline":            "default",
			"dealstage":           "closedwon",
			"createdate":          "2026-06-01T00:00:00Z",
			"closedate":           "2026-07-01T00:00:00Z",
			"hs_lastmodifieddate": "2026-08-20T00:00:00Z",
		},
	}
}
