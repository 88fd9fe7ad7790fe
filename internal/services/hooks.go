package services

import (
	"github.com/google/uuid"

	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

// Hooks is the explicit post-commit dispatcher: writers announce new entities
// and the dispatcher decides which follow-up job to enqueue. There is no
// global signal registration; everything routes through this one object.
//
// For proposals and documents the created flag means the row is new. For
// images it means the row has a stored blob to analyze; street-view rows,
// which are URL-only, pass false and get no vision job.
type Hooks interface {
	EntityCreated(dbc dbctx.Context, entityType string, id uuid.UUID, created bool)
}

type hooks struct {
	log           *logger.Logger
	jobs          JobService
	visionEnabled bool
}

func NewHooks(log *logger.Logger, jobs JobService, visionEnabled bool) Hooks {
	return &hooks{
		log:           log.With("service", "Hooks"),
		jobs:          jobs,
		visionEnabled: visionEnabled,
	}
}

func (h *hooks) EntityCreated(dbc dbctx.Context, entityType string, id uuid.UUID, created bool) {
	if h == nil || h.jobs == nil || id == uuid.Nil {
		return
	}
	switch entityType {
	case "proposal":
		if !created {
			return
		}
		if _, _, err := h.jobs.EnqueueProposalEnrichIfNeeded(dbc, id, "proposal_created"); err != nil {
			h.log.Warn("enqueue proposal_enrich failed", "proposal_id", id, "error", err)
		}
	case "document":
		if !created {
			return
		}
		if _, _, err := h.jobs.EnqueueDocumentProcessIfNeeded(dbc, id, "document_created"); err != nil {
			h.log.Warn("enqueue document_process failed", "document_id", id, "error", err)
		}
	case "image":
		if !created || !h.visionEnabled {
			return
		}
		if _, _, err := h.jobs.EnqueueImageVisionIfNeeded(dbc, id, "image_created"); err != nil {
			h.log.Warn("enqueue image_vision failed", "image_id", id, "error", err)
		}
	default:
		h.log.Debug("no hook for entity", "entity_type", entityType)
	}
}
