package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/civiclens/civiclens-backend/internal/data/repos"
	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/services"
)

/*
The execution contract between the job system and all pipeline code.
runtime.Context is a capability-scoped execution handle for a single job run.
It wraps:
	- the database handle,
	- the mutable job_run row,
	- the notification side-effects,
	- and the only sanctioned ways to report progress or terminate execution.
Pipelines never touch job_run directly. They go through this object.
*/

type Context struct {
	Ctx         context.Context
	DB          *gorm.DB
	Job         *types.JobRun
	Repo        repos.JobRunRepo
	Notify      services.JobNotifier
	LastMessage string // Convenience: pipeline can write human messages without deciding event type
	payload     map[string]any
}

/*
NewContext constructs a runtime.Context for a claimed job execution.
It eagerly decodes the job payload JSON so handlers can access inputs via
Payload()/PayloadUUID(). A payload decode failure is non-fatal here; handlers
validate required fields themselves.
*/
func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, notify services.JobNotifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// Payload returns the decoded payload map. Never nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

/*
PayloadUUID reads a payload field by key and attempts to parse it as a UUID.
Returns (uuid.Nil, false) when missing, nil, or not parseable. Keeps UUID
validation out of pipelines and makes payload parsing uniform.
*/
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	s := fmt.Sprint(v)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// PayloadString reads a payload field as a string, "" when absent.
func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

/*
Update applies arbitrary field updates to the underlying job_run row in
storage, guarded by UnlessStatus(canceled).
Intended use:
	- low-level state writes (e.g., orchestrator state snapshots into result)
	- rare custom transitions not covered by Progress/Fail/Succeed
*/
func (c *Context) Update(updates map[string]any) error {
	if c.Job == nil || c.Job.ID == uuid.Nil || c.Repo == nil {
		return nil
	}
	_, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.Ctx}, c.Job.ID, []string{"canceled"}, toIfaceMap(updates))
	return err
}

/*
Progress publishes a non-terminal status update for this job run.
Persists stage/progress/message + heartbeat timestamps into job_run, guarded
so canceled jobs are not overwritten, then updates the in-memory row and emits
a notifier event.
*/
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{"canceled"}, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"message":      msg,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
		// status remains whatever it is in DB ("running" after claim)
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job, stage, pct, msg)
	}
}

/*
Fail marks this job run as terminally failed and records an error message.
Sets status=failed, clears locked_at so other workers won't treat it as
in-progress, and emits a 'failed' notification. Guarded by
UnlessStatus(canceled); if the update is rejected, exits without notifying.
*/
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{"canceled"}, map[string]interface{}{
			"status":        "failed",
			"stage":         stage,
			"message":       "",
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = "failed"
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job, stage, msg)
	}
}

/*
Succeed marks this job run as terminally succeeded and persists a result
payload. Sets status=succeeded, progress=100, clears error/message/locked_at,
serializes result into job_run.result, and emits a 'done' notification.
Guarded by UnlessStatus(canceled).
*/
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{"canceled"}, map[string]interface{}{
			"status":       "succeeded",
			"stage":        finalStage,
			"progress":     100,
			"message":      "",
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = "succeeded"
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job)
	}
}

func toIfaceMap(in map[string]any) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
