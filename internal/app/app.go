// Package app initializes and holds the long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/echochat/echochat/internal/api"
	"github.com/echochat/echochat/internal/chat"
	"github.com/echochat/echochat/internal/clock/system"
	"github.com/echochat/echochat/internal/config"
	"github.com/echochat/echochat/internal/crawler"
	"github.com/echochat/echochat/internal/embedding"
	"github.com/echochat/echochat/internal/fetcher/headless"
	"github.com/echochat/echochat/internal/fetcher/static"
	iduuid "github.com/echochat/echochat/internal/id/uuid"
	"github.com/echochat/echochat/internal/index"
	memindex "github.com/echochat/echochat/internal/index/memory"
	pgindex "github.com/echochat/echochat/internal/index/postgres"
	"github.com/echochat/echochat/internal/logging"
	gcppub "github.com/echochat/echochat/internal/publisher/pubsub"
	"github.com/echochat/echochat/internal/rag"
	"github.com/echochat/echochat/internal/scheduler"
	"github.com/echochat/echochat/internal/storage/gcs"
	memstore "github.com/echochat/echochat/internal/storage/memory"
	pgstore "github.com/echochat/echochat/internal/storage/postgres"
	"github.com/echochat/echochat/internal/worker"
)

// App holds every shared service for one process. It is built once at
// startup and handed to the commands that need it.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Jobs      crawler.JobStore
	Pages     crawler.PageStore
	Index     index.Index
	Runner    *worker.Runner
	Scheduler *scheduler.Scheduler
	Server    *api.Server

	closers []func()
}

// New wires every provider named in cfg. It fails fast when a critical
// service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	clk := system.New()
	ids := iduuid.New()

	// Job and page stores.
	var jobs crawler.JobStore
	var pages crawler.PageStore
	switch cfg.DB.Provider {
	case "postgres":
		logger.Info("connecting to postgres")
		pool, err := pgstore.NewPool(ctx, cfg.DB.DSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		jobStore := pgstore.NewJobStore(pool, clk)
		pageStore := pgstore.NewPageStore(pool)
		if err := jobStore.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure jobs schema: %w", err)
		}
		if err := pageStore.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure pages schema: %w", err)
		}
		jobs, pages = jobStore, pageStore
	case "memory":
		logger.Info("using in-memory job and page stores")
		jobs = memstore.NewJobStore(clk)
		pages = memstore.NewPageStore()
	default:
		a.Close()
		return nil, fmt.Errorf("unknown db provider: %s", cfg.DB.Provider)
	}
	a.Jobs, a.Pages = jobs, pages

	// Vector index.
	switch cfg.Index.Provider {
	case "postgres":
		idx, err := pgindex.New(ctx, cfg.DB.DSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect vector index: %w", err)
		}
		a.closers = append(a.closers, idx.Close)
		a.Index = idx
	case "memory":
		a.Index = memindex.New()
	default:
		a.Close()
		return nil, fmt.Errorf("unknown index provider: %s", cfg.Index.Provider)
	}

	// Raw HTML archive. Optional.
	var blobs crawler.BlobStore
	switch cfg.Storage.Provider {
	case "gcs":
		logger.Info("using GCS page archive", zap.String("bucket", cfg.Storage.Bucket))
		store, err := gcs.New(ctx, cfg.Storage.Bucket, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize gcs: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		blobs = store
	case "memory":
		blobs = memstore.NewBlobStore()
	case "none":
		logger.Info("page archival disabled")
	default:
		a.Close()
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}

	// Job event publisher. Optional.
	var publisher crawler.Publisher
	if cfg.PubSub.Enabled {
		logger.Info("connecting to pub/sub", zap.String("topic", cfg.PubSub.Topic))
		pub, err := gcppub.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize pubsub: %w", err)
		}
		a.closers = append(a.closers, func() { _ = pub.Close() })
		publisher = pub
	}
	// Page fetcher.
	var fetch crawler.Fetcher
	switch cfg.Fetcher.Mode {
	case "headless":
		f := headless.New(headless.Config{
			UserAgent:         cfg.Fetcher.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
			RequestsPerSecond: cfg.Fetcher.RequestsPerSecond,
		}, logger)
		a.closers = append(a.closers, f.Close)
		fetch = f
	case "static":
		fetch = static.New(static.Config{
			UserAgent: cfg.Fetcher.UserAgent,
		}, logger)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown fetcher mode: %s", cfg.Fetcher.Mode)
	}

	embedder, err := embedding.NewClient(embedding.Config{
		Provider: cfg.Embedding.Provider,
		APIURL:   cfg.Embedding.APIURL,
		APIKey:   cfg.Embedding.APIKey,
		Model:    cfg.Embedding.Model,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build embedding client: %w", err)
	}

	chunker, err := rag.NewChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build chunker: %w", err)
	}
	pipeline := rag.NewPipeline(a.Index, embedder, pages, chunker, rag.PipelineConfig{
		EmbedBatchSize: cfg.Embedding.BatchSize,
		StrictReset:    cfg.Index.StrictReset,
	}, logger)
	retriever := rag.NewRetriever(a.Index, embedder, logger)

	completer, err := chat.NewAnthropicClient(chat.AnthropicConfig{
		APIURL:    cfg.Chat.APIURL,
		APIKey:    cfg.Chat.APIKey,
		Model:     cfg.Chat.Model,
		MaxTokens: cfg.Chat.MaxTokens,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build chat client: %w", err)
	}
	chatSvc := chat.NewService(retriever, completer, chat.ServiceConfig{
		SiteName: siteName(cfg),
		TopK:     cfg.Chat.TopK,
	}, logger)

	controller := crawler.NewController(fetch, pages, blobs, clk, crawler.ControllerConfig{
		PolitenessDelay: cfg.PolitenessDelay(),
		ArchivePrefix:   cfg.Storage.Prefix,
	}, logger)

	a.Runner = worker.NewRunner(jobs, pages, controller, pipeline, publisher, ids, worker.Config{
		JobTimeout: cfg.JobTimeout(),
		WipePages:  cfg.Crawler.WipePages,
		EventTopic: cfg.PubSub.Topic,
	}, logger)

	if interval := cfg.ScrapeInterval(); interval > 0 {
		a.Scheduler = scheduler.New(a.Runner, interval, crawler.RunParams{
			TargetURL:  cfg.Target.URL,
			PathPrefix: cfg.Target.PathPrefix,
			MaxPages:   cfg.Crawler.MaxPages,
		}, logger)
	}

	adminKey := ""
	if cfg.Auth.Enabled {
		adminKey = cfg.Auth.APIKey
	}
	a.Server = api.NewServer(a.Runner, jobs, pages, a.Index, chatSvc, api.Config{
		TargetURL:            cfg.Target.URL,
		PathPrefix:           cfg.Target.PathPrefix,
		ScrapeFrequencyHours: cfg.Crawler.ScrapeFrequencyHours,
		RequestTimeout:       cfg.RequestTimeout(),
		AdminAPIKey:          adminKey,
	}, logger)

	logger.Info("application services initialized")
	return a, nil
}

// Close shuts services down in reverse initialization order. Safe to
// call on a partially built App.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// siteName labels the chat assistant. Falls back to the target host when
// no explicit name is configured.
func siteName(cfg config.Config) string {
	if cfg.Target.SiteName != "" {
		return cfg.Target.SiteName
	}
	if u, err := url.Parse(cfg.Target.URL); err == nil && u.Host != "" {
		return u.Host
	}
	return ""
}
