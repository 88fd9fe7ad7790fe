package document_process

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	orchestrator "github.com/civiclens/civiclens-backend/internal/jobs/orchestrator"
	jobrt "github.com/civiclens/civiclens-backend/internal/jobs/runtime"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	docID, ok := jc.PayloadUUID("document_id")
	if !ok || docID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing document_id"))
		return nil
	}

	docs, err := p.documents.GetByIDs(dbctx.Context{Ctx: jc.Ctx}, []uuid.UUID{docID})
	if err != nil {
		jc.Fail("load", fmt.Errorf("load document: %w", err))
		return nil
	}
	if len(docs) == 0 || docs[0] == nil {
		jc.Fail("load", fmt.Errorf("document %s not found", docID))
		return nil
	}
	doc := docs[0]

	stages := []orchestrator.Stage{
		{
			// Best-effort so an unreachable source marks the branch failed
			// and the job still completes; dependents are skipped.
			Name:       "fetch",
			BestEffort: true,
			Timeout:    5 * time.Minute,
			Run: func(ctx *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				return p.stageFetch(ctx, doc)
			},
		},
		{
			Name:       "extract_text",
			Deps:       []string{"fetch"},
			BestEffort: true,
			Timeout:    5 * time.Minute,
			Run: func(ctx *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				return p.stageExtractText(ctx, doc)
			},
		},
		{
			Name:       "doc_attributes",
			Deps:       []string{"extract_text"},
			BestEffort: true,
			Run: func(ctx *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				return p.stageDocAttributes(ctx, doc)
			},
		},
		{
			Name:       "extract_images",
			Deps:       []string{"fetch"},
			BestEffort: true,
			Timeout:    10 * time.Minute,
			Run: func(ctx *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				return p.stageExtractImages(ctx, doc)
			},
		},
		{
			Name:       "thumbnails",
			Deps:       []string{"extract_images"},
			BestEffort: true,
			Timeout:    5 * time.Minute,
			Run: func(ctx *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				return p.stageThumbnails(ctx, doc)
			},
		},
		{
			Name:       "doc_thumbnail",
			Deps:       []string{"fetch"},
			BestEffort: true,
			Timeout:    2 * time.Minute,
			IsDone: func(ctx *jobrt.Context, st *orchestrator.OrchestratorState) (bool, error) {
				return doc.ThumbnailKey != "", nil
			},
			Run: func(ctx *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				return p.stageDocThumbnail(ctx, doc)
			},
		},
	}

	return p.engine.Run(jc, stages, map[string]any{"document_id": docID.String()}, nil)
}
