package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fitscore-cli/internal/cost"
	"github.com/sells-group/fitscore-cli/internal/crmauth"
	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/oracle"
	"github.com/sells-group/fitscore-cli/internal/scoring"
	"github.com/sells-group/fitscore-cli/internal/secrets"
	"github.com/sells-group/fitscore-cli/internal/store"
	syncpkg "github.com/sells-group/fitscore-cli/internal/sync"
	anthropicpkg "github.com/sells-group/fitscore-cli/pkg/anthropic"
	"github.com/sells-group/fitscore-cli/pkg/hubspot"
	"github.com/sells-group/fitscore-cli/pkg/openai"
	"github.com/sells-group/fitscore-cli/pkg/pinecone"
)

// portalEnv holds the wired clients and store for one portal's run.
type portalEnv struct {
	Store     store.Store
	Account   *model.Account
	CRM       hubspot.Client
	Rotator   *crmauth.Rotator
	Index     pinecone.Client
	Embedder  oracle.Embedder
	Completer oracle.Completer
	Costs     *cost.Calculator
	Sealer    *secrets.Sealer
}

// Close releases resources held by the environment.
func (pe *portalEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "fitscore.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initIndex builds the vector-store client, resolving the data-plane host
// through the control plane when it is not configured directly.
func initIndex(ctx context.Context) (pinecone.Client, error) {
	if cfg.Pinecone.Host != "" {
		return pinecone.NewClient(cfg.Pinecone.Key, pinecone.WithHost(cfg.Pinecone.Host)), nil
	}

	control := pinecone.NewClient(cfg.Pinecone.Key)
	desc, err := control.DescribeIndex(ctx, cfg.Pinecone.Index)
	if err != nil {
		return nil, eris.Wrapf(err, "describe index %s", cfg.Pinecone.Index)
	}
	if !desc.Status.Ready {
		return nil, eris.Errorf("index %s is not ready (state %s)", cfg.Pinecone.Index, desc.Status.State)
	}
	return pinecone.NewClient(cfg.Pinecone.Key, pinecone.WithHost(desc.Host)), nil
}

// initEnv wires the store and all clients for one portal. Callers should
// defer env.Close().
func initEnv(ctx context.Context, portalID, mode string) (*portalEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	account, err := st.GetAccount(ctx, portalID)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrapf(err, "load account %s", portalID)
	}

	sealer, err := secrets.NewSealer([]byte(cfg.Crypto.Key))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	crm := hubspot.NewClient(cfg.HubSpot.ClientID, cfg.HubSpot.ClientSecret,
		hubspot.WithBaseURL(cfg.HubSpot.BaseURL),
		hubspot.WithRateLimit(cfg.HubSpot.RateLimit))
	rotator := crmauth.NewRotator(crm, sealer, st, account, zap.L())
	if err := rotator.Install(); err != nil {
		_ = st.Close()
		return nil, err
	}

	index, err := initIndex(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	openaiClient := openai.NewClient(cfg.OpenAI.Key, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	embedder := oracle.NewOpenAIEmbedder(openaiClient, cfg.OpenAI.EmbeddingModel)

	var completer oracle.Completer
	switch cfg.Oracle.Provider {
	case oracle.ProviderAnthropic:
		completer = oracle.NewAnthropicCompleter(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
	case oracle.ProviderOpenAI:
		completer = oracle.NewOpenAICompleter(openaiClient, cfg.OpenAI.ChatModel)
	default:
		_ = st.Close()
		return nil, eris.Wrapf(oracle.ErrUnknownProvider, "%q", cfg.Oracle.Provider)
	}

	return &portalEnv{
		Store:     st,
		Account:   account,
		CRM:       crm,
		Rotator:   rotator,
		Index:     index,
		Embedder:  embedder,
		Completer: completer,
		Costs:     cost.NewCalculator(cfg.Pricing),
		Sealer:    sealer,
	}, nil
}

// newSyncJob assembles the sync pipeline for the environment's portal.
func (pe *portalEnv) newSyncJob() *syncpkg.Job {
	log := zap.L().With(zap.String("portal_id", pe.Account.PortalID))

	paginator := syncpkg.NewPaginator(pe.CRM, pe.Rotator, log)
	if cfg.Sync.PageSize > 0 {
		paginator.PageSize = cfg.Sync.PageSize
	}
	paginator.PageDelay = time.Duration(cfg.Sync.PageDelayMS) * time.Millisecond
	if cfg.Sync.MaxRecords > 0 {
		paginator.MaxRecords = cfg.Sync.MaxRecords
	}
	paginator.DealStages = cfg.Sync.DealStages

	packager := syncpkg.NewPackager(pe.CRM, pe.Rotator, pe.Account.PortalID, log)
	embedder := syncpkg.NewEmbedder(pe.Embedder, log)
	embedder.ChunkDelay = time.Duration(cfg.Sync.ChunkDelayMS) * time.Millisecond
	differ := syncpkg.NewDiffer(pe.Index, log)
	stats := syncpkg.NewStatsTracker(pe.Store, pe.Account, log)

	job := syncpkg.NewJob(pe.Account, pe.Store, paginator, packager, embedder, differ, pe.Index, stats, log)
	if cfg.Sync.DeadlineSecs > 0 {
		job.Deadline = time.Duration(cfg.Sync.DeadlineSecs) * time.Second
	}
	return job
}

// newEngine assembles the scoring engine for the environment's portal.
func (pe *portalEnv) newEngine() *scoring.Engine {
	log := zap.L().With(zap.String("portal_id", pe.Account.PortalID))

	packager := syncpkg.NewPackager(pe.CRM, pe.Rotator, pe.Account.PortalID, log)
	engine := scoring.NewEngine(pe.Account, pe.Store, pe.CRM, pe.Rotator, packager,
		pe.Embedder, pe.Completer, pe.Index, pe.Costs, log)
	if cfg.Scoring.TopK > 0 {
		engine.TopK = cfg.Scoring.TopK
	}
	engine.EmbeddingModel = cfg.OpenAI.EmbeddingModel
	return engine
}

// newWorker assembles the queue worker for the environment's portal.
func (pe *portalEnv) newWorker() *scoring.Worker {
	w := scoring.NewWorker(pe.Store, pe.newEngine(), zap.L())
	if cfg.Scoring.QueueBatch > 0 {
		w.BatchSize = cfg.Scoring.QueueBatch
	}
	if cfg.Scoring.QueueConcurrency > 0 {
		w.Concurrency = cfg.Scoring.QueueConcurrency
	}
	return w
}
