package commands

import (
	"gorm.io/gorm"

	"github.com/camden-git/photopipeline/config"
	"github.com/camden-git/photopipeline/logger"
	"github.com/camden-git/photopipeline/media"
	"github.com/camden-git/photopipeline/repository"
)

// Deps are the collaborators a batch command runs against
type Deps struct {
	DB       *gorm.DB
	Repo     repository.PhotoRepository
	Store    media.Store
	Settings config.SiteSettings
	Log      *logger.Logger
}
