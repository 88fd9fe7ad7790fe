package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/civiclens/civiclens-backend/internal/data/repos"
	types "github.com/civiclens/civiclens-backend/internal/domain"
	jobrt "github.com/civiclens/civiclens-backend/internal/jobs/runtime"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/envutil"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
	"github.com/civiclens/civiclens-backend/internal/platform/observability"
	"github.com/civiclens/civiclens-backend/internal/services"
)

// Worker is the database-claim fallback executor, used when no Temporal
// cluster is configured. It polls job_run for runnable work (queued jobs,
// retryable failures past their delay, and running jobs whose heartbeat went
// stale) and runs the registered handler inline. Yielded jobs land back in
// "queued" and are picked up on a later poll, so multi-tick pipelines still
// make progress.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *jobrt.Registry
	notify   services.JobNotifier
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *jobrt.Registry, notify services.JobNotifier) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
	}
}

func (w *Worker) Start(ctx context.Context) {
	pollInterval := envutil.Seconds("JOB_WORKER_POLL_SECONDS", 2)
	maxAttempts := envutil.Int("JOB_WORKER_MAX_ATTEMPTS", 5)
	retryDelay := envutil.Seconds("JOB_WORKER_RETRY_DELAY_SECONDS", 30)
	staleRunning := envutil.Seconds("JOB_WORKER_STALE_RUNNING_SECONDS", 120)

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx, Tx: w.db}, maxAttempts, retryDelay, staleRunning)
				if err != nil {
					w.log.Warn("claim next runnable failed", "error", err)
					continue
				}
				if job == nil {
					continue
				}
				w.runOne(ctx, job)
			}
		}
	}()
}

func (w *Worker) runOne(ctx context.Context, job *types.JobRun) {
	spanCtx, span := observability.StartJobSpan(ctx, job.JobType, job.ID.String())
	jc := jobrt.NewContext(spanCtx, w.db, job, w.repo, w.notify)
	defer func() { observability.EndJobSpan(span, jc.Job.Status, jc.Job.Error) }()

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("no handler registered", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		return
	}

	stopHB := w.startHeartbeat(ctx, job)
	defer stopHB()

	handlerReturnedNil := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
				jc.Fail("panic", fmt.Errorf("panic: unexpected error"))
			}
		}()
		if runErr := h.Run(jc); runErr != nil {
			jc.Fail("run", runErr)
			return
		}
		handlerReturnedNil = true
	}()

	// Same safety net as the Temporal tick: a handler that returns nil
	// without reaching a terminal status or yielding must not wedge the job
	// in "running".
	if handlerReturnedNil && strings.EqualFold(strings.TrimSpace(jc.Job.Status), "running") {
		w.log.Warn("job handler returned nil without terminal status; marking succeeded", "job_id", job.ID, "job_type", job.JobType, "stage", jc.Job.Stage)
		finalStage := "done"
		if s := strings.TrimSpace(jc.Job.Stage); s != "" && !strings.EqualFold(s, "queued") && !strings.EqualFold(s, "running") {
			finalStage = s
		}
		jc.Succeed(finalStage, nil)
	}
}

func (w *Worker) startHeartbeat(ctx context.Context, job *types.JobRun) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = w.repo.Heartbeat(dbctx.Context{Ctx: ctx, Tx: w.db}, job.ID)
			}
		}
	}()
	return func() { close(done) }
}
