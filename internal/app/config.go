package app

import (
	"time"

	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/utils"
)

// Config collects every runtime knob in one place. Individual services
// also read their own env so they stay usable without the composition
// root; this struct is what cmd wiring and the admission loop consume.
type Config struct {
	// Scene extraction
	PrecisionLevel       int
	SceneThreshold       float64
	MinSceneDuration     float64
	SimilarityThreshold  float64
	HashThreshold        int
	MinScenesForGrouping int

	// Analysis
	MaxAnalysisImages    int
	AnalysisImageQuality string
	VideoQuality         string
	AIProvider           string
	AIModelName          string
	AutoSwitchOnBlock    bool
	PromptStylePath      string

	// Workspace and store
	DataDir      string
	DatabasePath string
	AutoCleanup  bool

	// Concurrency caps
	MaxConcurrentUsers int
	MaxConcurrentTasks int
	MaxQueueSize       int
	MaxWorkers         int
	SessionIdleTimeout time.Duration

	// Subprocess and network budgets
	FFmpegTimeout time.Duration
	FetchTimeout  time.Duration

	LogMode string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		PrecisionLevel:       utils.GetEnvAsInt("SCENE_PRECISION_LEVEL", 5, log),
		SceneThreshold:       utils.GetEnvAsFloat("SCENE_THRESHOLD", 0.3, log),
		MinSceneDuration:     utils.GetEnvAsFloat("MIN_SCENE_DURATION", 0.5, log),
		SimilarityThreshold:  utils.GetEnvAsFloat("SCENE_SIMILARITY_THRESHOLD", 0.92, log),
		HashThreshold:        utils.GetEnvAsInt("SCENE_HASH_THRESHOLD", 5, log),
		MinScenesForGrouping: utils.GetEnvAsInt("MIN_SCENES_FOR_GROUPING", 10, log),

		MaxAnalysisImages:    utils.GetEnvAsInt("MAX_ANALYSIS_IMAGES", 10, log),
		AnalysisImageQuality: utils.GetEnv("ANALYSIS_IMAGE_QUALITY", "low", log),
		VideoQuality:         utils.GetEnv("VIDEO_QUALITY", "best", log),
		AIProvider:           utils.GetEnv("AI_PROVIDER", "openai", log),
		AIModelName:          utils.GetEnv("AI_MODEL_NAME", "", log),
		AutoSwitchOnBlock:    utils.GetEnvAsBool("AUTO_SWITCH_ON_POLICY_BLOCK", false, log),
		PromptStylePath:      utils.GetEnv("PROMPT_STYLE_PATH", "", log),

		DataDir:      utils.GetEnv("DATA_DIR", "data", log),
		DatabasePath: utils.GetEnv("DATABASE_PATH", "data/database/videos.db", log),
		AutoCleanup:  utils.GetEnvAsBool("AUTO_CLEANUP", false, log),

		MaxConcurrentUsers: utils.GetEnvAsInt("MAX_CONCURRENT_USERS", 15, log),
		MaxConcurrentTasks: utils.GetEnvAsInt("MAX_CONCURRENT_TASKS", 8, log),
		MaxQueueSize:       utils.GetEnvAsInt("MAX_QUEUE_SIZE", 100, log),
		MaxWorkers:         utils.GetEnvAsInt("MAX_WORKERS", 8, log),
		SessionIdleTimeout: time.Duration(utils.GetEnvAsInt("SESSION_IDLE_TIMEOUT_SECONDS", 300, log)) * time.Second,

		FFmpegTimeout: time.Duration(utils.GetEnvAsInt("FFMPEG_TIMEOUT_SECONDS", 600, log)) * time.Second,
		FetchTimeout:  time.Duration(utils.GetEnvAsInt("FETCH_TIMEOUT_SECONDS", 120, log)) * time.Second,

		LogMode: utils.GetEnv("LOG_MODE", "development", log),
	}
}
