package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/visiq/visibility-cli/internal/crawl"
	"github.com/visiq/visibility-cli/internal/entity"
	"github.com/visiq/visibility-cli/internal/fingerprint"
	"github.com/visiq/visibility-cli/internal/notability"
	"github.com/visiq/visibility-cli/internal/orchestrator"
	"github.com/visiq/visibility-cli/internal/qid"
	"github.com/visiq/visibility-cli/internal/store"
	anthropicpkg "github.com/visiq/visibility-cli/pkg/anthropic"
	"github.com/visiq/visibility-cli/pkg/firecrawl"
	"github.com/visiq/visibility-cli/pkg/jina"
	"github.com/visiq/visibility-cli/pkg/perplexity"
	"github.com/visiq/visibility-cli/pkg/wikibase"
)

// pipelineEnv bundles the wired components shared by every command.
type pipelineEnv struct {
	Store store.Store
	Orch  *orchestrator.Orchestrator
}

func (e *pipelineEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func initEnv(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model))
	firecrawlClient := firecrawl.NewClient(cfg.Firecrawl.Key,
		firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	jinaClient := jina.NewClient(cfg.Jina.Key,
		jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	graphClient := wikibase.NewClient(cfg.Wikibase.Token,
		wikibase.WithBaseURL(cfg.Wikibase.BaseURL))

	var resolverOpts []qid.Option
	if cfg.Wikibase.EnableLookup {
		resolverOpts = append(resolverOpts,
			qid.WithRemote(graphClient, time.Duration(cfg.Wikibase.LookupTimeout)*time.Second))
	}
	resolver, err := qid.NewResolver(st, resolverOpts...)
	if err != nil {
		st.Close()
		return nil, err
	}

	engine := fingerprint.NewEngine(map[string]fingerprint.Caller{
		"anthropic":  fingerprint.AnthropicCaller{Client: anthropicClient, MaxTokens: cfg.Anthropic.MaxTokens},
		"perplexity": fingerprint.PerplexityCaller{Client: perplexityClient},
	}, cfg.Fingerprint)

	crawler := crawl.NewCrawler(firecrawlClient, cfg.Firecrawl)
	gate := notability.NewGate(jinaClient, anthropicClient, cfg.Anthropic.Model, cfg.Notability)
	builder := entity.NewBuilder(resolver)

	orch := orchestrator.New(st, crawler, engine, gate, builder, graphClient, cfg.Pipeline)

	return &pipelineEnv{Store: st, Orch: orch}, nil
}
