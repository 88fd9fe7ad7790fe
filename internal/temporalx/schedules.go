package temporalx

import (
	"context"
	"errors"
	"fmt"

	"github.com/civiclens/civiclens-backend/internal/platform/logger"
	"github.com/civiclens/civiclens-backend/internal/temporalx/jobrun"

	enums "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
)

type scheduleSpec struct {
	ID      string
	Cron    string
	Trigger string
}

// EnsureSchedules creates the periodic import triggers if they do not already
// exist: a daily proposal refresh at midnight and a weekly project-update
// refresh on Monday mornings. Safe to call on every startup.
func EnsureSchedules(ctx context.Context, tc temporalsdkclient.Client, log *logger.Logger) error {
	if tc == nil {
		return nil
	}
	cfg := LoadConfig()

	specs := []scheduleSpec{
		{ID: "proposal-fetch-daily", Cron: "0 0 * * *", Trigger: "proposal_fetch"},
		{ID: "project-update-weekly", Cron: "0 0 * * 1", Trigger: "project_update"},
	}

	sc := tc.ScheduleClient()
	for _, spec := range specs {
		_, err := sc.Create(ctx, temporalsdkclient.ScheduleOptions{
			ID: spec.ID,
			Spec: temporalsdkclient.ScheduleSpec{
				CronExpressions: []string{spec.Cron},
			},
			Action: &temporalsdkclient.ScheduleWorkflowAction{
				ID:        "scheduled-" + spec.Trigger,
				Workflow:  jobrun.ScheduledWorkflowName,
				Args:      []any{spec.Trigger},
				TaskQueue: cfg.TaskQueue,
			},
			Overlap: enums.SCHEDULE_OVERLAP_POLICY_SKIP,
		})
		if err != nil {
			if scheduleExists(err) {
				continue
			}
			return fmt.Errorf("ensure schedule %s: %w", spec.ID, err)
		}
		if log != nil {
			log.Info("Registered Temporal schedule", "schedule_id", spec.ID, "cron", spec.Cron, "trigger", spec.Trigger)
		}
	}
	return nil
}

// scheduleExists reports whether a schedule Create failed only because the
// schedule is already registered.
func scheduleExists(err error) bool {
	return errors.Is(err, temporal.ErrScheduleAlreadyRunning)
}
