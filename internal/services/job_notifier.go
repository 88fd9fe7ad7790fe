package services

import (
	"context"
	"time"

	redisclient "github.com/civiclens/civiclens-backend/internal/clients/redis"
	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

// JobNotifier publishes job lifecycle events. The production implementation
// fans out over the redis job channel; tests inject a recorder.
type JobNotifier interface {
	JobCreated(job *types.JobRun)
	JobProgress(job *types.JobRun, stage string, progress int, message string)
	JobFailed(job *types.JobRun, stage string, errorMessage string)
	JobDone(job *types.JobRun)
	JobCanceled(job *types.JobRun)
	JobRestarted(job *types.JobRun)
}

type jobNotifier struct {
	log *logger.Logger
	bus redisclient.JobBus
}

func NewJobNotifier(log *logger.Logger, bus redisclient.JobBus) JobNotifier {
	return &jobNotifier{log: log.With("service", "JobNotifier"), bus: bus}
}

func (n *jobNotifier) publish(job *types.JobRun, status, stage, errMsg string) {
	if n == nil || n.bus == nil || job == nil {
		return
	}
	ev := redisclient.JobEvent{
		JobID:      job.ID.String(),
		JobType:    job.JobType,
		EntityType: job.EntityType,
		Status:     status,
		Stage:      stage,
		Error:      errMsg,
		At:         time.Now().UTC(),
	}
	if job.EntityID != nil {
		ev.EntityID = job.EntityID.String()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.bus.Publish(ctx, ev); err != nil {
		n.log.Warn("publish job event failed", "job_id", job.ID, "status", status, "error", err)
	}
}

func (n *jobNotifier) JobCreated(job *types.JobRun) {
	n.publish(job, "queued", "queued", "")
}

func (n *jobNotifier) JobProgress(job *types.JobRun, stage string, progress int, message string) {
	n.publish(job, "running", stage, "")
}

func (n *jobNotifier) JobFailed(job *types.JobRun, stage string, errorMessage string) {
	n.publish(job, "failed", stage, errorMessage)
}

func (n *jobNotifier) JobDone(job *types.JobRun) {
	n.publish(job, "succeeded", "done", "")
}

func (n *jobNotifier) JobCanceled(job *types.JobRun) {
	n.publish(job, "canceled", job.Stage, "")
}

func (n *jobNotifier) JobRestarted(job *types.JobRun) {
	n.publish(job, "queued", "queued", "")
}
