// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rtparts/catalogd/internal/api"
	"github.com/rtparts/catalogd/internal/archive"
	archgcs "github.com/rtparts/catalogd/internal/archive/gcs"
	archlocal "github.com/rtparts/catalogd/internal/archive/local"
	"github.com/rtparts/catalogd/internal/catalog"
	"github.com/rtparts/catalogd/internal/checkpoint"
	"github.com/rtparts/catalogd/internal/clock/system"
	"github.com/rtparts/catalogd/internal/config"
	"github.com/rtparts/catalogd/internal/engine"
	"github.com/rtparts/catalogd/internal/fetch"
	"github.com/rtparts/catalogd/internal/notify"
	notifymem "github.com/rtparts/catalogd/internal/notify/memory"
	notifyps "github.com/rtparts/catalogd/internal/notify/pubsub"
	"github.com/rtparts/catalogd/internal/parse"
	"github.com/rtparts/catalogd/internal/progress"
	storagemem "github.com/rtparts/catalogd/internal/storage/memory"
	"github.com/rtparts/catalogd/internal/storage/postgres"
)

// App holds the shared, long-lived services of the crawler. It is built once
// at startup and handed to the commands that need it.
type App struct {
	cfg      config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	engine   *engine.Engine
	server   *api.Server

	pgStore      *postgres.ProductStore
	pubsubClient *gcpubsub.Client
}

// New wires every service from the configuration. It fails fast when any
// required backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	registry := prometheus.NewRegistry()
	metrics, err := progress.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	a.registry = registry

	repo, err := a.buildRepository(ctx)
	if err != nil {
		return nil, err
	}
	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		return nil, err
	}
	notifier, err := a.buildNotifier(ctx)
	if err != nil {
		return nil, err
	}

	var fetcher catalog.Fetcher = fetch.New(
		fetch.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.FetchTimeout(),
			HostQPS:   cfg.Crawler.HostQPS,
		},
		fetch.NewExponentialRetryPolicyWith(
			cfg.Crawler.MaxRetries,
			cfg.BackoffInitial(),
			cfg.BackoffMax(),
		),
		fetch.NewChallengeDetector(cfg.Crawler.ChallengeMarker),
		log.Named("fetch"),
	)
	fetcher = progress.InstrumentFetcher(metrics, fetcher)

	clk := system.New()
	cp := checkpoint.NewStore(
		cfg.Checkpoints.Dir,
		cfg.Checkpoints.ModelsFile,
		cfg.Checkpoints.LinksFile,
		clk,
		log.Named("checkpoint"),
	)

	tracker := progress.NewTracker(metrics, log.Named("progress"))
	rules := rulesFromConfig(cfg)

	eng, err := engine.New(
		engine.Config{
			SourceURL:   cfg.Crawler.SourceURL,
			Concurrency: cfg.Crawler.Concurrency,
			ChunkSize:   cfg.Crawler.ChunkSize,
			StartPaused: cfg.Crawler.StartPaused,
		},
		fetcher,
		repo,
		cp,
		tracker,
		log.Named("engine"),
		engine.Options{
			Metrics:  metrics,
			Archiver: archiver,
			Notifier: notifier,
			Rules:    &rules,
			Clock:    clk,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.engine = eng
	a.server = api.NewServer(eng, repo, registry, log.Named("api"))

	log.Info("application services initialized",
		zap.String("source_url", cfg.Crawler.SourceURL),
		zap.String("archive_provider", cfg.Archive.Provider),
		zap.String("notify_provider", cfg.Notify.Provider),
	)
	return a, nil
}

// Engine returns the crawl engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Server returns the control API server.
func (a *App) Server() *api.Server { return a.server }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.log }

// Registry returns the metrics registry.
func (a *App) Registry() *prometheus.Registry { return a.registry }

func (a *App) buildRepository(ctx context.Context) (catalog.ProductRepository, error) {
	if a.cfg.DB.DSN == "" {
		a.log.Warn("db.dsn is empty, products will be kept in memory only")
		return storagemem.NewProductStore(), nil
	}
	store, err := postgres.NewProductStore(ctx, postgres.ProductStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.pgStore = store
	return store, nil
}

func (a *App) buildArchiver(ctx context.Context) (*archive.Archiver, error) {
	var store catalog.BlobStore
	switch a.cfg.Archive.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		store, err = archgcs.New(client, archgcs.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive: %w", err)
		}
	case "local":
		var err error
		store, err = archlocal.New(archlocal.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive: %w", err)
		}
	case "", "noop":
		a.log.Info("page archival disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", a.cfg.Archive.Provider)
	}
	return archive.New(store, a.cfg.Archive.Prefix, a.log.Named("archive")), nil
}

func (a *App) buildNotifier(ctx context.Context) (*notify.Notifier, error) {
	var pub catalog.Publisher
	switch a.cfg.Notify.Provider {
	case "pubsub":
		client, err := gcpubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		a.pubsubClient = client
		pub, err = notifyps.New(client)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher: %w", err)
		}
	case "memory":
		pub = notifymem.New()
	case "", "noop":
		a.log.Info("product notifications disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown notify provider: %s", a.cfg.Notify.Provider)
	}
	return notify.New(pub, a.cfg.Notify.Topic, a.log.Named("notify")), nil
}

// Close releases every backend client. It is called once the serving command
// returns.
func (a *App) Close() {
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.log.Warn("closing pubsub client", zap.Error(err))
		}
	}
	if err := a.log.Sync(); err != nil {
		a.log.Warn("syncing logger on shutdown", zap.Error(err))
	}
}

func rulesFromConfig(cfg config.Config) parse.Rules {
	rules := parse.DefaultRules()
	sel := cfg.Selectors
	if sel.Brands != "" {
		rules.Brands = sel.Brands
	}
	if sel.Categories != "" {
		rules.Categories = sel.Categories
	}
	if sel.Models != "" {
		rules.Models = sel.Models
	}
	if sel.Subcategories != "" {
		rules.Subcategories = sel.Subcategories
	}
	if sel.ProductItem != "" {
		rules.ProductItem = sel.ProductItem
	}
	if sel.NextPage != "" {
		rules.NextPage = sel.NextPage
	}
	if sel.Title != "" {
		rules.Title = sel.Title
	}
	if sel.Article != "" {
		rules.Article = sel.Article
	}
	if sel.Description != "" {
		rules.Description = sel.Description
	}
	if sel.Category != "" {
		rules.Category = sel.Category
	}
	if sel.Price != "" {
		rules.Price = sel.Price
	}
	if sel.Available != "" {
		rules.Available = sel.Available
	}
	if sel.OnOrder != "" {
		rules.OnOrder = sel.OnOrder
	}
	if sel.GalleryImages != "" {
		rules.GalleryImages = sel.GalleryImages
	}
	if sel.Logo != "" {
		rules.Logo = sel.Logo
	}
	if cfg.Crawler.OnOrderMarker != "" {
		rules.OnOrderMarker = cfg.Crawler.OnOrderMarker
	}
	return rules
}
