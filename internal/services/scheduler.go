package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

const (
	TriggerProposalFetch = "proposal_fetch"
	TriggerProjectUpdate = "project_update"
)

// Scheduler handles the periodic triggers. The daily trigger refreshes
// proposals for every configured region; the weekly project-update trigger
// additionally pulls events.
type Scheduler interface {
	ScheduledEnqueue(ctx context.Context, trigger string) error
}

type scheduler struct {
	log     *logger.Logger
	jobs    JobService
	regions []string
}

// NewScheduler takes the distinct region names served by the configured
// importers; each trigger fans out one job per region.
func NewScheduler(baseLog *logger.Logger, jobs JobService, regions []string) Scheduler {
	seen := map[string]bool{}
	var distinct []string
	for _, r := range regions {
		r = strings.TrimSpace(r)
		if r == "" || seen[strings.ToLower(r)] {
			continue
		}
		seen[strings.ToLower(r)] = true
		distinct = append(distinct, r)
	}
	return &scheduler{
		log:     baseLog.With("service", "scheduler"),
		jobs:    jobs,
		regions: distinct,
	}
}

func (s *scheduler) ScheduledEnqueue(ctx context.Context, trigger string) error {
	if len(s.regions) == 0 {
		s.log.Warn("no regions configured; nothing to enqueue", "trigger", trigger)
		return nil
	}
	dbc := dbctx.Context{Ctx: ctx}

	switch trigger {
	case TriggerProposalFetch:
		return s.enqueueAll(dbc, trigger, false)
	case TriggerProjectUpdate:
		return s.enqueueAll(dbc, trigger, true)
	default:
		return fmt.Errorf("scheduler: unknown trigger %q", trigger)
	}
}

func (s *scheduler) enqueueAll(dbc dbctx.Context, trigger string, withEvents bool) error {
	var firstErr error
	enqueued := 0
	for _, region := range s.regions {
		if _, created, err := s.jobs.EnqueueProposalFetchIfNeeded(dbc, region, trigger); err != nil {
			s.log.Error("enqueue proposal fetch failed", "region", region, "trigger", trigger, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		} else if created {
			enqueued++
		}
		if !withEvents {
			continue
		}
		if _, created, err := s.jobs.EnqueueEventPullIfNeeded(dbc, region, trigger); err != nil {
			s.log.Error("enqueue event pull failed", "region", region, "trigger", trigger, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		} else if created {
			enqueued++
		}
	}
	s.log.Info("scheduled trigger processed", "trigger", trigger, "regions", len(s.regions), "enqueued", enqueued)
	return firstErr
}
