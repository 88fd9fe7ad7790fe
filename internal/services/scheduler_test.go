package services

import (
	"context"
	"testing"

	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

func TestSchedulerProposalFetchTrigger(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	jobs := &fakeJobService{}
	s := NewScheduler(log, jobs, []string{"Somerville, MA", "Cambridge, MA", "somerville, ma", " "})

	if err := s.ScheduledEnqueue(context.Background(), TriggerProposalFetch); err != nil {
		t.Fatalf("ScheduledEnqueue: %v", err)
	}
	// Regions dedup case-insensitively, so two fetches and no event pulls.
	if len(jobs.enqueued) != 2 {
		t.Fatalf("enqueued %v, want 2 proposal fetches", jobs.enqueued)
	}
	for _, jt := range jobs.enqueued {
		if jt != "proposal_fetch" {
			t.Fatalf("unexpected job type %q", jt)
		}
	}
}

func TestSchedulerProjectUpdateTrigger(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	jobs := &fakeJobService{}
	s := NewScheduler(log, jobs, []string{"Somerville, MA", "Cambridge, MA"})

	if err := s.ScheduledEnqueue(context.Background(), TriggerProjectUpdate); err != nil {
		t.Fatalf("ScheduledEnqueue: %v", err)
	}
	fetches, pulls := 0, 0
	for _, jt := range jobs.enqueued {
		switch jt {
		case "proposal_fetch":
			fetches++
		case "event_pull":
			pulls++
		default:
			t.Fatalf("unexpected job type %q", jt)
		}
	}
	if fetches != 2 || pulls != 2 {
		t.Fatalf("fetches=%d pulls=%d, want 2/2", fetches, pulls)
	}
}

func TestSchedulerEdgeCases(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	jobs := &fakeJobService{}
	empty := NewScheduler(log, jobs, nil)
	if err := empty.ScheduledEnqueue(context.Background(), TriggerProposalFetch); err != nil {
		t.Fatalf("empty regions: %v", err)
	}
	if len(jobs.enqueued) != 0 {
		t.Fatalf("empty regions enqueued %v", jobs.enqueued)
	}

	s := NewScheduler(log, jobs, []string{"Somerville, MA"})
	if err := s.ScheduledEnqueue(context.Background(), "nightly_maintenance"); err == nil {
		t.Fatalf("expected error for unknown trigger")
	}
}
