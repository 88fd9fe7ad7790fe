package image_vision

import (
	"gorm.io/gorm"

	redisclient "github.com/civiclens/civiclens-backend/internal/clients/redis"
	"github.com/civiclens/civiclens-backend/internal/data/repos"
	"github.com/civiclens/civiclens-backend/internal/platform/gcp"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
	"github.com/civiclens/civiclens-backend/internal/services"
)

type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	images    repos.ImageRepo
	proposals repos.ProposalRepo
	store     services.DocumentStore
	cache     redisclient.Cache
	vision    gcp.Vision
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	images repos.ImageRepo,
	proposals repos.ProposalRepo,
	store services.DocumentStore,
	cache redisclient.Cache,
	vision gcp.Vision,
) *Pipeline {
	return &Pipeline{
		db:        db,
		log:       baseLog.With("job", "image_vision"),
		images:    images,
		proposals: proposals,
		store:     store,
		cache:     cache,
		vision:    vision,
	}
}

func (p *Pipeline) Type() string { return "image_vision" }
