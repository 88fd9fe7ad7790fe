package proposal_fetch

import (
	"gorm.io/gorm"

	"github.com/civiclens/civiclens-backend/internal/data/repos"
	"github.com/civiclens/civiclens-backend/internal/geo"
	"github.com/civiclens/civiclens-backend/internal/importers"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

type Pipeline struct {
	db         *gorm.DB
	log        *logger.Logger
	registry   *importers.Registry
	normalizer *importers.Normalizer
	proposals  repos.ProposalRepo
	geocoder   geo.Geocoder
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	registry *importers.Registry,
	normalizer *importers.Normalizer,
	proposals repos.ProposalRepo,
	geocoder geo.Geocoder,
) *Pipeline {
	return &Pipeline{
		db:         db,
		log:        baseLog.With("job", "proposal_fetch"),
		registry:   registry,
		normalizer: normalizer,
		proposals:  proposals,
		geocoder:   geocoder,
	}
}

func (p *Pipeline) Type() string { return "proposal_fetch" }
