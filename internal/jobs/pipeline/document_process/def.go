package document_process

import (
	"gorm.io/gorm"

	"github.com/civiclens/civiclens-backend/internal/data/repos"
	orchestrator "github.com/civiclens/civiclens-backend/internal/jobs/orchestrator"
	"github.com/civiclens/civiclens-backend/internal/platform/localmedia"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
	"github.com/civiclens/civiclens-backend/internal/services"
)

// DefaultTextEncoding is passed to pdftotext when no encoding is configured.
// The municipal portals this started with publish Latin-5 documents.
const DefaultTextEncoding = "ISO-8859-9"

type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	documents repos.DocumentRepo
	images    repos.ImageRepo
	attrs     repos.AttributeRepo
	store     services.DocumentStore
	media     localmedia.Tools
	thumbs    services.Thumbnailer
	hooks     services.Hooks
	engine    *orchestrator.DAGEngine
	encoding  string
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	documents repos.DocumentRepo,
	images repos.ImageRepo,
	attrs repos.AttributeRepo,
	store services.DocumentStore,
	media localmedia.Tools,
	thumbs services.Thumbnailer,
	hooks services.Hooks,
	encoding string,
) *Pipeline {
	if encoding == "" {
		encoding = DefaultTextEncoding
	}
	return &Pipeline{
		db:        db,
		log:       baseLog.With("job", "document_process"),
		documents: documents,
		images:    images,
		attrs:     attrs,
		store:     store,
		media:     media,
		thumbs:    thumbs,
		hooks:     hooks,
		engine:    orchestrator.NewDAGEngine(nil),
		encoding:  encoding,
	}
}

func (p *Pipeline) Type() string { return "document_process" }
