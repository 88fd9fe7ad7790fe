package proposal_enrich

import (
	"gorm.io/gorm"

	"github.com/civiclens/civiclens-backend/internal/data/repos"
	orchestrator "github.com/civiclens/civiclens-backend/internal/jobs/orchestrator"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
	"github.com/civiclens/civiclens-backend/internal/services"
)

type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	proposals repos.ProposalRepo
	images    repos.ImageRepo
	attrs     repos.AttributeRepo
	parcels   repos.ParcelRepo
	venues    services.VenueClient
	hooks     services.Hooks
	engine    *orchestrator.DAGEngine

	googleAPIKey     string
	streetViewSecret string
	streetViewSize   string
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	proposals repos.ProposalRepo,
	images repos.ImageRepo,
	attrs repos.AttributeRepo,
	parcels repos.ParcelRepo,
	venues services.VenueClient,
	hooks services.Hooks,
	googleAPIKey string,
	streetViewSecret string,
) *Pipeline {
	return &Pipeline{
		db:               db,
		log:              baseLog.With("job", "proposal_enrich"),
		proposals:        proposals,
		images:           images,
		attrs:            attrs,
		parcels:          parcels,
		venues:           venues,
		hooks:            hooks,
		engine:           orchestrator.NewDAGEngine(nil),
		googleAPIKey:     googleAPIKey,
		streetViewSecret: streetViewSecret,
		streetViewSize:   "640x400",
	}
}

func (p *Pipeline) Type() string { return "proposal_enrich" }
