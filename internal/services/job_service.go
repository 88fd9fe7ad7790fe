package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/civiclens/civiclens-backend/internal/data/repos"
	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

// JobService creates job_run rows and starts the Temporal workflow that ticks
// them. The EnqueueXIfNeeded helpers deduplicate against runnable jobs for the
// same entity so hooks can fire freely after every write.
type JobService interface {
	Enqueue(dbc dbctx.Context, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	Dispatch(dbc dbctx.Context, jobID uuid.UUID) error

	EnqueueProposalFetchIfNeeded(dbc dbctx.Context, regionName string, trigger string) (*types.JobRun, bool, error)
	EnqueueEventPullIfNeeded(dbc dbctx.Context, regionName string, trigger string) (*types.JobRun, bool, error)
	EnqueueProposalEnrichIfNeeded(dbc dbctx.Context, proposalID uuid.UUID, trigger string) (*types.JobRun, bool, error)
	EnqueueDocumentProcessIfNeeded(dbc dbctx.Context, documentID uuid.UUID, trigger string) (*types.JobRun, bool, error)
	EnqueueImageVisionIfNeeded(dbc dbctx.Context, imageID uuid.UUID, trigger string) (*types.JobRun, bool, error)

	GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	GetLatestForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error)
	Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	Restart(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRunRepo
	notify JobNotifier

	temporal          temporalsdkclient.Client
	temporalTaskQueue string
}

func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRunRepo,
	notify JobNotifier,
	tc temporalsdkclient.Client,
	taskQueue string,
) JobService {
	return &jobService{
		db:                db,
		log:               baseLog.With("service", "JobService"),
		repo:              repo,
		notify:            notify,
		temporal:          tc,
		temporalTaskQueue: strings.TrimSpace(taskQueue),
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if s.temporal == nil {
		return nil, fmt.Errorf("temporal not configured (TEMPORAL_ADDRESS)")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	b, _ := json.Marshal(payload)
	now := time.Now()
	job := &types.JobRun{
		ID:         uuid.New(),
		JobType:    jobType,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     "queued",
		Stage:      "queued",
		Progress:   0,
		Attempts:   0,
		Message:    "Queued",
		Payload:    datatypes.JSON(b),
		Result:     datatypes.JSON([]byte(`{}`)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.repo.Create(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if s.notify != nil {
		s.notify.JobCreated(job)
	}

	// Inside a real DB transaction the Temporal start must wait for commit;
	// callers invoke Dispatch() afterwards. gorm.DB pointers are cloned by
	// WithContext/Session, so pointer inequality is not a transaction check.
	if isDBTransaction(dbc.Tx) {
		s.log.Debug("job enqueued inside transaction; awaiting dispatch after commit", "job_id", job.ID, "job_type", job.JobType)
		return job, nil
	}
	if err := s.Dispatch(dbctx.Context{Ctx: dbc.Ctx}, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

func (s *jobService) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error {
	if s == nil {
		return fmt.Errorf("job service not configured")
	}
	if jobID == uuid.Nil {
		return fmt.Errorf("missing job id")
	}
	if s.temporal == nil {
		// No cluster: the job stays queued and the database-claim fallback
		// worker picks it up.
		s.log.Debug("temporal not configured; job left queued for fallback worker", "job_id", jobID)
		return nil
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	err := s.startTemporalJobWorkflow(ctx, jobID, enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE)
	if err == nil {
		return nil
	}
	if _, ok := err.(*serviceerror.WorkflowExecutionAlreadyStarted); ok {
		return nil
	}

	now := time.Now().UTC()
	// Best-effort: mark job as failed if we couldn't dispatch.
	if s.repo != nil {
		_ = s.repo.UpdateFields(dbctx.Context{Ctx: ctx, Tx: s.db}, jobID, map[string]interface{}{
			"status":        "failed",
			"stage":         "dispatch",
			"message":       "",
			"error":         err.Error(),
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
	}
	if s.notify != nil && s.repo != nil {
		if rows, rerr := s.repo.GetByIDs(dbctx.Context{Ctx: ctx, Tx: s.db}, []uuid.UUID{jobID}); rerr == nil && len(rows) > 0 && rows[0] != nil {
			s.notify.JobFailed(rows[0], "dispatch", err.Error())
		}
	}
	return fmt.Errorf("start temporal workflow: %w", err)
}

// regionEntityID derives a stable entity id for region-scoped jobs so the
// runnable-dedup check works without a region table row.
func regionEntityID(regionName string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("region:"+strings.ToLower(strings.TrimSpace(regionName))))
}

func (s *jobService) enqueueIfNeeded(dbc dbctx.Context, jobType, entityType string, entityID uuid.UUID, payload map[string]any) (*types.JobRun, bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	repoCtx := dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}
	exists, err := s.repo.ExistsRunnable(repoCtx, jobType, entityType, &entityID)
	if err != nil {
		return nil, false, err
	}
	if exists {
		return nil, false, nil
	}
	job, err := s.Enqueue(repoCtx, jobType, entityType, &entityID, payload)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (s *jobService) EnqueueProposalFetchIfNeeded(dbc dbctx.Context, regionName string, trigger string) (*types.JobRun, bool, error) {
	payload := map[string]any{"trigger": trigger}
	if strings.TrimSpace(regionName) != "" {
		payload["region_name"] = regionName
	}
	return s.enqueueIfNeeded(dbc, "proposal_fetch", "region", regionEntityID(regionName), payload)
}

func (s *jobService) EnqueueEventPullIfNeeded(dbc dbctx.Context, regionName string, trigger string) (*types.JobRun, bool, error) {
	payload := map[string]any{"trigger": trigger}
	if strings.TrimSpace(regionName) != "" {
		payload["region_name"] = regionName
	}
	return s.enqueueIfNeeded(dbc, "event_pull", "region", regionEntityID(regionName), payload)
}

func (s *jobService) EnqueueProposalEnrichIfNeeded(dbc dbctx.Context, proposalID uuid.UUID, trigger string) (*types.JobRun, bool, error) {
	if proposalID == uuid.Nil {
		return nil, false, fmt.Errorf("missing proposal_id")
	}
	payload := map[string]any{
		"proposal_id": proposalID.String(),
		"trigger":     trigger,
	}
	return s.enqueueIfNeeded(dbc, "proposal_enrich", "proposal", proposalID, payload)
}

func (s *jobService) EnqueueDocumentProcessIfNeeded(dbc dbctx.Context, documentID uuid.UUID, trigger string) (*types.JobRun, bool, error) {
	if documentID == uuid.Nil {
		return nil, false, fmt.Errorf("missing document_id")
	}
	payload := map[string]any{
		"document_id": documentID.String(),
		"trigger":     trigger,
	}
	return s.enqueueIfNeeded(dbc, "document_process", "document", documentID, payload)
}

func (s *jobService) EnqueueImageVisionIfNeeded(dbc dbctx.Context, imageID uuid.UUID, trigger string) (*types.JobRun, bool, error) {
	if imageID == uuid.Nil {
		return nil, false, fmt.Errorf("missing image_id")
	}
	payload := map[string]any{
		"image_id": imageID.String(),
		"trigger":  trigger,
	}
	return s.enqueueIfNeeded(dbc, "image_vision", "image", imageID, payload)
}

func (s *jobService) GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("missing job id")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	rows, err := s.repo.GetByIDs(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, []uuid.UUID{jobID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, fmt.Errorf("job not found")
	}
	return rows[0], nil
}

func (s *jobService) GetLatestForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	if entityType == "" || entityID == uuid.Nil || jobType == "" {
		return nil, fmt.Errorf("missing entity/job info")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	return s.repo.GetLatestByEntity(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, entityType, entityID, jobType)
}

func (s *jobService) Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("missing job id")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}

	var updated *types.JobRun
	shouldNotify := false

	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		job, err := s.GetByID(inner, jobID)
		if err != nil {
			return err
		}

		status := strings.ToLower(strings.TrimSpace(job.Status))
		if status == "succeeded" || status == "failed" || status == "canceled" {
			updated = job
			return nil
		}

		now := time.Now().UTC()
		if err := s.repo.UpdateFields(inner, jobID, map[string]interface{}{
			"status":       "canceled",
			"message":      "Canceled",
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}

		job.Status = "canceled"
		job.Message = "Canceled"
		job.LockedAt = nil
		job.HeartbeatAt = &now
		job.UpdatedAt = now
		updated = job
		shouldNotify = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if shouldNotify && s.notify != nil && updated != nil {
		s.notify.JobCanceled(updated)
	}

	// Best-effort: cancel the Temporal workflow backing this job run.
	if s.temporal != nil {
		_ = s.temporal.CancelWorkflow(dbc.Ctx, jobID.String(), "")
	}
	return updated, nil
}

func (s *jobService) Restart(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("missing job id")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}

	var updated *types.JobRun
	shouldNotify := false

	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		job, err := s.GetByID(inner, jobID)
		if err != nil {
			return err
		}

		status := strings.ToLower(strings.TrimSpace(job.Status))
		if status != "canceled" && status != "failed" {
			return fmt.Errorf("job not restartable")
		}

		now := time.Now().UTC()
		nextResult := resetStageStateForRestart(job.Result)

		if err := s.repo.UpdateFields(inner, jobID, map[string]interface{}{
			"status":        "queued",
			"stage":         "queued",
			"progress":      0,
			"message":       "Restarting",
			"error":         "",
			"last_error_at": nil,
			"result":        nextResult,
			"locked_at":     nil,
			"heartbeat_at":  now,
			"updated_at":    now,
		}); err != nil {
			return err
		}

		job.Status = "queued"
		job.Stage = "queued"
		job.Progress = 0
		job.Message = "Restarting"
		job.Error = ""
		job.LastErrorAt = nil
		job.Result = nextResult
		job.LockedAt = nil
		job.HeartbeatAt = &now
		job.UpdatedAt = now

		updated = job
		shouldNotify = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if shouldNotify && s.notify != nil && updated != nil {
		s.notify.JobRestarted(updated)
	}

	if updated != nil && s.temporal != nil {
		ctx := dbc.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := s.startTemporalJobWorkflow(ctx, jobID, enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE); err != nil {
			return nil, fmt.Errorf("restart temporal workflow: %w", err)
		}
	}
	return updated, nil
}

func (s *jobService) startTemporalJobWorkflow(ctx context.Context, jobID uuid.UUID, reusePolicy enums.WorkflowIdReusePolicy) error {
	if s == nil || s.temporal == nil || jobID == uuid.Nil {
		return fmt.Errorf("temporal not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tq := strings.TrimSpace(s.temporalTaskQueue)
	if tq == "" {
		tq = "civiclens"
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    jobID.String(),
		TaskQueue:             tq,
		WorkflowIDReusePolicy: reusePolicy,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 1.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
	_, err := s.temporal.ExecuteWorkflow(ctx, opts, "job_run")
	return err
}

// resetStageStateForRestart clears non-succeeded stages from an orchestrator
// snapshot so a restarted job re-runs them rather than honoring stale waits.
func resetStageStateForRestart(result datatypes.JSON) datatypes.JSON {
	if len(result) == 0 || string(result) == "null" {
		return result
	}
	var obj map[string]any
	if err := json.Unmarshal(result, &obj); err != nil {
		return result
	}

	obj["wait_until"] = nil
	obj["last_progress"] = 0

	if rawStages, ok := obj["stages"]; ok && rawStages != nil {
		if stageMap, ok := rawStages.(map[string]any); ok {
			for _, v := range stageMap {
				m, ok := v.(map[string]any)
				if !ok || m == nil {
					continue
				}
				st := strings.ToLower(strings.TrimSpace(fmt.Sprint(m["status"])))
				if st == "succeeded" {
					continue
				}
				m["status"] = "pending"
				delete(m, "child_job_id")
				delete(m, "child_job_status")
				delete(m, "last_error")
				delete(m, "started_at")
				delete(m, "finished_at")
				delete(m, "child_result")
				delete(m, "next_run_at")
			}
		}
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return result
	}
	return datatypes.JSON(b)
}
