package app

import (
	"github.com/yungbote/vidlens-backend/internal/cache"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/platform/localmedia"
	"github.com/yungbote/vidlens-backend/internal/platform/promptstyle"
	"github.com/yungbote/vidlens-backend/internal/platform/ytdlp"
	"github.com/yungbote/vidlens-backend/internal/scene"
	"github.com/yungbote/vidlens-backend/internal/services"
)

type Services struct {
	URLs       services.URLParser
	Monitor    services.ResourceMonitor
	Sessions   services.SessionManager
	Thumbnails services.ThumbnailService
	Analysis   services.AnalysisService
	Pipeline   services.AnalysisPipeline
}

func wireServices(
	log *logger.Logger,
	cfg Config,
	reposet Repos,
	clients Clients,
	cacheManager *cache.Manager,
	tools localmedia.Tools,
	fetcher ytdlp.Fetcher,
	extractor scene.Extractor,
) Services {
	log.Info("Wiring services...")

	styles := promptstyle.Load(log)
	prompts := services.NewPromptBuilder(log, styles)
	parser := services.NewResponseParser(log)
	analysis := services.NewAnalysisService(log, prompts, parser, clients.Provider, clients.Factory)

	monitor := services.NewResourceMonitor(log)
	sessions := services.NewSessionManager(
		log,
		monitor,
		cfg.DataDir,
		cfg.MaxConcurrentUsers,
		cfg.MaxConcurrentTasks,
		cfg.SessionIdleTimeout,
	)

	urls := services.NewURLParser(log)
	thumbnails := services.NewThumbnailService(log, tools)
	pipeline := services.NewAnalysisPipeline(
		log,
		urls,
		cacheManager,
		reposet.Videos,
		fetcher,
		tools,
		extractor,
		thumbnails,
		analysis,
		sessions,
	)

	return Services{
		URLs:       urls,
		Monitor:    monitor,
		Sessions:   sessions,
		Thumbnails: thumbnails,
		Analysis:   analysis,
		Pipeline:   pipeline,
	}
}
