package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

// fakeJobService records which follow-up jobs the hooks asked for.
type fakeJobService struct {
	enqueued []string
}

func (f *fakeJobService) record(jobType string) (*types.JobRun, bool, error) {
	f.enqueued = append(f.enqueued, jobType)
	return &types.JobRun{ID: uuid.New(), JobType: jobType, Status: "queued"}, true, nil
}

func (f *fakeJobService) Enqueue(dbc dbctx.Context, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	f.enqueued = append(f.enqueued, jobType)
	return &types.JobRun{ID: uuid.New(), JobType: jobType, Status: "queued"}, nil
}

func (f *fakeJobService) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error { return nil }

func (f *fakeJobService) EnqueueProposalFetchIfNeeded(dbc dbctx.Context, regionName string, trigger string) (*types.JobRun, bool, error) {
	return f.record("proposal_fetch")
}

func (f *fakeJobService) EnqueueEventPullIfNeeded(dbc dbctx.Context, regionName string, trigger string) (*types.JobRun, bool, error) {
	return f.record("event_pull")
}

func (f *fakeJobService) EnqueueProposalEnrichIfNeeded(dbc dbctx.Context, proposalID uuid.UUID, trigger string) (*types.JobRun, bool, error) {
	return f.record("proposal_enrich")
}

func (f *fakeJobService) EnqueueDocumentProcessIfNeeded(dbc dbctx.Context, documentID uuid.UUID, trigger string) (*types.JobRun, bool, error) {
	return f.record("document_process")
}

func (f *fakeJobService) EnqueueImageVisionIfNeeded(dbc dbctx.Context, imageID uuid.UUID, trigger string) (*types.JobRun, bool, error) {
	return f.record("image_vision")
}

func (f *fakeJobService) GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	return nil, nil
}

func (f *fakeJobService) GetLatestForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	return nil, nil
}

func (f *fakeJobService) Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	return nil, nil
}

func (f *fakeJobService) Restart(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	return nil, nil
}

func TestHooksEntityCreated(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	dbc := dbctx.Context{Ctx: context.Background()}

	jobs := &fakeJobService{}
	h := NewHooks(log, jobs, true)

	h.EntityCreated(dbc, "proposal", uuid.New(), true)
	h.EntityCreated(dbc, "document", uuid.New(), true)
	h.EntityCreated(dbc, "image", uuid.New(), true)

	want := []string{"proposal_enrich", "document_process", "image_vision"}
	if len(jobs.enqueued) != len(want) {
		t.Fatalf("enqueued %v, want %v", jobs.enqueued, want)
	}
	for i := range want {
		if jobs.enqueued[i] != want[i] {
			t.Fatalf("enqueued %v, want %v", jobs.enqueued, want)
		}
	}
}

func TestHooksSkipUpdatesAndUnknowns(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	dbc := dbctx.Context{Ctx: context.Background()}

	jobs := &fakeJobService{}
	h := NewHooks(log, jobs, true)

	// Updates to existing proposals and documents do not re-enqueue.
	h.EntityCreated(dbc, "proposal", uuid.New(), false)
	h.EntityCreated(dbc, "document", uuid.New(), false)
	h.EntityCreated(dbc, "parcel", uuid.New(), true)
	h.EntityCreated(dbc, "proposal", uuid.Nil, true)

	if len(jobs.enqueued) != 0 {
		t.Fatalf("unexpected enqueues: %v", jobs.enqueued)
	}
}

func TestHooksImageRequiresVision(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	dbc := dbctx.Context{Ctx: context.Background()}

	jobs := &fakeJobService{}
	h := NewHooks(log, jobs, false)

	h.EntityCreated(dbc, "image", uuid.New(), true)
	if len(jobs.enqueued) != 0 {
		t.Fatalf("image hook fired with vision disabled: %v", jobs.enqueued)
	}
}

func TestHooksImageRequiresBlob(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	dbc := dbctx.Context{Ctx: context.Background()}

	jobs := &fakeJobService{}
	h := NewHooks(log, jobs, true)

	// Blob-less rows (street view URLs) have nothing for Vision to read.
	h.EntityCreated(dbc, "image", uuid.New(), false)
	if len(jobs.enqueued) != 0 {
		t.Fatalf("image hook fired for a blob-less row: %v", jobs.enqueued)
	}
}
