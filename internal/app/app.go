package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/yungbote/vidlens-backend/internal/cache"
	"github.com/yungbote/vidlens-backend/internal/data/db"
	"github.com/yungbote/vidlens-backend/internal/jobs"
	"github.com/yungbote/vidlens-backend/internal/observability"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/platform/localmedia"
	"github.com/yungbote/vidlens-backend/internal/platform/ytdlp"
	"github.com/yungbote/vidlens-backend/internal/scene"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Repos    Repos
	Clients  Clients
	Cache    *cache.Manager
	Media    localmedia.Tools
	Fetcher  ytdlp.Fetcher
	Services Services
	Queue    jobs.Queue

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "vidlens-backend",
		Environment: cfg.LogMode,
	})

	store, err := db.NewSQLiteService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init sqlite: %w", err)
	}
	if err := store.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("sqlite automigrate: %w", err)
	}
	theDB := store.DB()

	reposet := wireRepos(theDB, log)

	clientset, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	cacheManager := cache.NewManager(
		log,
		cache.NewLRU(cache.DefaultMaxBytes, cache.DefaultMaxEntries),
		clientset.Remote,
	)

	media := localmedia.New(log)
	fetcher := ytdlp.New(log)
	extractor := scene.NewExtractor(log, media)

	serviceset := wireServices(log, cfg, reposet, clientset, cacheManager, media, fetcher, extractor)

	queue := jobs.NewQueue(log, cfg.MaxWorkers, cfg.MaxQueueSize)

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           theDB,
		Repos:        reposet,
		Clients:      clientset,
		Cache:        cacheManager,
		Media:        media,
		Fetcher:      fetcher,
		Services:     serviceset,
		Queue:        queue,
		otelShutdown: otelShutdown,
	}, nil
}

func (a *App) Start() {
	if a == nil {
		return
	}
	a.Queue.Start()
}

// Close drains the pool, optionally removes session workspaces, and flushes
// telemetry. Safe to call once at shutdown.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Queue != nil {
		a.Queue.Stop()
	}
	if a.Cfg.AutoCleanup && a.Services.Sessions != nil {
		a.Log.Info("Cleaning up session workspaces...")
		a.Services.Sessions.CleanupAll()
	}
	if a.Clients.Remote != nil {
		_ = a.Clients.Remote.Close()
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("Tracing shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
