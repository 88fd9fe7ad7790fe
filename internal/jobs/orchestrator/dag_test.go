package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/civiclens/civiclens-backend/internal/domain"
	jobrt "github.com/civiclens/civiclens-backend/internal/jobs/runtime"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
)

// fakeJobRepo keeps job rows in memory so engine ticks can be exercised
// without Postgres.
type fakeJobRepo struct {
	jobs map[uuid.UUID]*types.JobRun
}

func newFakeJobRepo(rows ...*types.JobRun) *fakeJobRepo {
	m := map[uuid.UUID]*types.JobRun{}
	for _, r := range rows {
		m[r.ID] = r
	}
	return &fakeJobRepo{jobs: m}
}

func (f *fakeJobRepo) Create(dbc dbctx.Context, rows []*types.JobRun) ([]*types.JobRun, error) {
	for _, r := range rows {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		f.jobs[r.ID] = r
	}
	return rows, nil
}

func (f *fakeJobRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.JobRun, error) {
	var out []*types.JobRun
	for _, id := range ids {
		if j, ok := f.jobs[id]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobRepo) GetLatestByEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	return nil, nil
}

func (f *fakeJobRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.JobRun, error) {
	return nil, nil
}

func (f *fakeJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if j, ok := f.jobs[id]; ok {
		applyJobFields(j, updates)
	}
	return nil
}

func (f *fakeJobRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	j, ok := f.jobs[id]
	if !ok {
		return false, nil
	}
	for _, s := range disallowed {
		if j.Status == s {
			return false, nil
		}
	}
	applyJobFields(j, updates)
	return true, nil
}

func (f *fakeJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error { return nil }

func (f *fakeJobRepo) ExistsRunnable(dbc dbctx.Context, jobType, entityType string, entityID *uuid.UUID) (bool, error) {
	return false, nil
}

func applyJobFields(j *types.JobRun, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			j.Status, _ = v.(string)
		case "stage":
			j.Stage, _ = v.(string)
		case "progress":
			if p, ok := v.(int); ok {
				j.Progress = p
			}
		case "message":
			j.Message, _ = v.(string)
		case "error":
			j.Error, _ = v.(string)
		case "result":
			if r, ok := v.(datatypes.JSON); ok {
				j.Result = r
			}
		}
	}
}

func newTestContext(t *testing.T) (*jobrt.Context, *types.JobRun) {
	t.Helper()
	job := &types.JobRun{
		ID:      uuid.New(),
		JobType: "test_pipeline",
		Status:  "running",
		Stage:   "running",
	}
	repo := newFakeJobRepo(job)
	return jobrt.NewContext(context.Background(), nil, job, repo, nil), job
}

func TestDAGRunsStagesInDependencyOrder(t *testing.T) {
	jc, job := newTestContext(t)
	e := NewDAGEngine(nil)

	var order []string
	stage := func(name string, deps ...string) Stage {
		return Stage{
			Name: name,
			Deps: deps,
			Run: func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
				order = append(order, name)
				return map[string]any{name: "ok"}, nil
			},
		}
	}

	// Declared out of order on purpose.
	if err := e.Run(jc, []Stage{stage("c", "b"), stage("a"), stage("b", "a")}, map[string]any{"final": true}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if job.Status != "succeeded" {
		t.Fatalf("job status = %q, want succeeded", job.Status)
	}
	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("ran %v, want %v", order, want)
		}
	}
}

func TestDAGBestEffortFailureSkipsDependentsAndSucceeds(t *testing.T) {
	jc, job := newTestContext(t)
	e := NewDAGEngine(nil)

	extractRan := false
	attrsRan := false
	stages := []Stage{
		{
			Name:       "fetch",
			BestEffort: true,
			Run: func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
				return nil, fmt.Errorf("source unreachable")
			},
		},
		{
			Name:       "extract_text",
			Deps:       []string{"fetch"},
			BestEffort: true,
			Run: func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
				extractRan = true
				return nil, nil
			},
		},
		{
			Name:       "doc_attributes",
			Deps:       []string{"extract_text"},
			BestEffort: true,
			Run: func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
				attrsRan = true
				return nil, nil
			},
		},
		{
			Name: "independent",
			Run: func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
				return nil, nil
			},
		},
	}

	if err := e.Run(jc, stages, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if job.Status != "succeeded" {
		t.Fatalf("job status = %q, want succeeded (best-effort branch failure)", job.Status)
	}
	if extractRan || attrsRan {
		t.Fatalf("dependents of failed fetch ran: extract=%v attrs=%v", extractRan, attrsRan)
	}

	st, _ := LoadState(jc, 1)
	if st.Stages["fetch"].Status != StageFailed {
		t.Fatalf("fetch status = %q, want failed", st.Stages["fetch"].Status)
	}
	if st.Stages["extract_text"].Status != StageSkipped || st.Stages["doc_attributes"].Status != StageSkipped {
		t.Fatalf("dependents not skipped: %q / %q", st.Stages["extract_text"].Status, st.Stages["doc_attributes"].Status)
	}
	if st.Stages["independent"].Status != StageSucceeded {
		t.Fatalf("independent stage = %q, want succeeded", st.Stages["independent"].Status)
	}
}

func TestDAGHardFailureFailsJob(t *testing.T) {
	jc, job := newTestContext(t)
	e := NewDAGEngine(nil)

	downstreamRan := false
	stages := []Stage{
		{
			Name: "load",
			Run: func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
				return nil, fmt.Errorf("boom")
			},
		},
		{
			Name: "store",
			Deps: []string{"load"},
			Run: func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
				downstreamRan = true
				return nil, nil
			},
		},
	}

	if err := e.Run(jc, stages, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != "failed" {
		t.Fatalf("job status = %q, want failed", job.Status)
	}
	if job.Stage != "load" {
		t.Fatalf("job stage = %q, want load", job.Stage)
	}
	if downstreamRan {
		t.Fatalf("downstream stage ran after hard failure")
	}
}

func TestDAGRetryYieldsWithBackoff(t *testing.T) {
	jc, job := newTestContext(t)
	e := NewDAGEngine(nil)

	attempts := 0
	stages := []Stage{{
		Name:  "flaky",
		Retry: RetryPolicy{MaxAttempts: 3, MinBackoff: time.Second, MaxBackoff: 2 * time.Second},
		Run: func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
			attempts++
			return nil, fmt.Errorf("transient")
		},
	}}

	if err := e.Run(jc, stages, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 per tick", attempts)
	}
	if job.Status != "queued" {
		t.Fatalf("job status = %q, want queued (yielded for retry)", job.Status)
	}
	st, _ := LoadState(jc, 1)
	ss := st.Stages["flaky"]
	if ss.Status != StageFailed || ss.NextRunAt == nil {
		t.Fatalf("retry not scheduled: status=%q next_run_at=%v", ss.Status, ss.NextRunAt)
	}
}

func TestDAGCycleFailsValidation(t *testing.T) {
	jc, job := newTestContext(t)
	e := NewDAGEngine(nil)

	stages := []Stage{
		{Name: "a", Deps: []string{"b"}, Run: func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error) { return nil, nil }},
		{Name: "b", Deps: []string{"a"}, Run: func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error) { return nil, nil }},
	}
	if err := e.Run(jc, stages, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != "failed" || job.Stage != "validate" {
		t.Fatalf("status=%q stage=%q, want failed/validate", job.Status, job.Stage)
	}
}

func TestDAGIsDoneShortCircuitsRun(t *testing.T) {
	jc, job := newTestContext(t)
	e := NewDAGEngine(nil)

	ran := false
	stages := []Stage{{
		Name: "fetch",
		IsDone: func(ctx *jobrt.Context, st *OrchestratorState) (bool, error) {
			return true, nil
		},
		Run: func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
			ran = true
			return nil, nil
		},
	}}

	if err := e.Run(jc, stages, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ran {
		t.Fatalf("Run invoked despite IsDone")
	}
	if job.Status != "succeeded" {
		t.Fatalf("job status = %q, want succeeded", job.Status)
	}
	st, _ := LoadState(jc, 1)
	if st.Stages["fetch"].Status != StageSucceeded {
		t.Fatalf("fetch status = %q, want succeeded", st.Stages["fetch"].Status)
	}
}

func TestDAGStageTimeout(t *testing.T) {
	jc, job := newTestContext(t)
	e := NewDAGEngine(nil)

	stages := []Stage{{
		Name:    "slow",
		Timeout: 50 * time.Millisecond,
		Run: func(ctx *jobrt.Context, st *OrchestratorState) (map[string]any, error) {
			select {
			case <-ctx.Ctx.Done():
				return nil, ctx.Ctx.Err()
			case <-time.After(5 * time.Second):
				return nil, nil
			}
		},
	}}

	if err := e.Run(jc, stages, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != "failed" {
		t.Fatalf("job status = %q, want failed after timeout", job.Status)
	}
}
