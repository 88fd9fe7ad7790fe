package event_pull

import (
	"gorm.io/gorm"

	"github.com/civiclens/civiclens-backend/internal/data/repos"
	"github.com/civiclens/civiclens-backend/internal/importers"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

type Pipeline struct {
	db         *gorm.DB
	log        *logger.Logger
	registry   *importers.Registry
	normalizer *importers.Normalizer
	events     repos.EventRepo
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	registry *importers.Registry,
	normalizer *importers.Normalizer,
	events repos.EventRepo,
) *Pipeline {
	return &Pipeline{
		db:         db,
		log:        baseLog.With("job", "event_pull"),
		registry:   registry,
		normalizer: normalizer,
		events:     events,
	}
}

func (p *Pipeline) Type() string { return "event_pull" }
