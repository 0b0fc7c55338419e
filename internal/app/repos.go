package app

import (
	"gorm.io/gorm"

	videorepo "github.com/yungbote/vidlens-backend/internal/data/repos/videos"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
)

type Repos struct {
	Videos videorepo.VideoRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Videos: videorepo.NewVideoRepo(db, log),
	}
}
