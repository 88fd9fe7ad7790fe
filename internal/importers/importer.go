package importers

import (
	"context"
	"time"

	"github.com/civiclens/civiclens-backend/internal/geo"
)

// Importer pulls planning cases from one source portal. Implementations are
// constructed explicitly and handed to the Registry; there is no global
// side-effect registration.
type Importer interface {
	Name() string
	RegionName() string
	UpdatedSince(ctx context.Context, since time.Time, gc geo.Geocoder) ([]RawProposal, error)
}

// EventImporter pulls meeting calendars. A nil since means "everything the
// source will give us".
type EventImporter interface {
	Name() string
	RegionName() string
	UpdatedSince(ctx context.Context, since *time.Time) ([]RawEvent, error)
}

// Registry holds the configured importers for this deployment.
type Registry struct {
	proposals []Importer
	events    []EventImporter
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) AddProposalImporter(imp Importer) {
	if imp != nil {
		r.proposals = append(r.proposals, imp)
	}
}

func (r *Registry) AddEventImporter(imp EventImporter) {
	if imp != nil {
		r.events = append(r.events, imp)
	}
}

func (r *Registry) ProposalImporters() []Importer {
	return r.proposals
}

func (r *Registry) EventImporters() []EventImporter {
	return r.events
}
