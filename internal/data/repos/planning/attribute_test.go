package planning

import (
	"context"
	"testing"
	"time"

	"github.com/civiclens/civiclens-backend/internal/data/repos/testutil"
	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
)

func TestAttributeRepoUpsertSupersession(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewAttributeRepo(db, testutil.Logger(t))

	prop := testutil.SeedProposal(t, ctx, tx, "PB-2016-30", "Somerville, MA")
	t0 := time.Now().UTC().Truncate(time.Second).Add(-24 * time.Hour)

	// Absent handle is created.
	written, err := repo.Upsert(dbc, &types.Attribute{
		ProposalID: prop.ID,
		Name:       "Applicant Name",
		Handle:     "applicant_name",
		TextValue:  "Acme Development LLC",
		Published:  t0,
	})
	if err != nil || !written {
		t.Fatalf("Upsert create: err=%v written=%v", err, written)
	}

	// Earlier published value is ignored.
	written, err = repo.Upsert(dbc, &types.Attribute{
		ProposalID: prop.ID,
		Name:       "Applicant Name",
		Handle:     "applicant_name",
		TextValue:  "Stale Applicant",
		Published:  t0.Add(-1 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Upsert older: %v", err)
	}
	if written {
		t.Fatalf("Upsert older: expected no write")
	}
	got, err := repo.GetByHandle(dbc, prop.ID, "applicant_name")
	if err != nil || got == nil {
		t.Fatalf("GetByHandle: err=%v", err)
	}
	if got.TextValue != "Acme Development LLC" {
		t.Fatalf("older publish overwrote value: %q", got.TextValue)
	}

	// Strictly newer published replaces exactly once.
	written, err = repo.Upsert(dbc, &types.Attribute{
		ProposalID: prop.ID,
		Name:       "Applicant Name",
		Handle:     "applicant_name",
		TextValue:  "New Applicant",
		Published:  t0.Add(2 * time.Hour),
	})
	if err != nil || !written {
		t.Fatalf("Upsert newer: err=%v written=%v", err, written)
	}
	got, err = repo.GetByHandle(dbc, prop.ID, "applicant_name")
	if err != nil || got == nil || got.TextValue != "New Applicant" {
		t.Fatalf("newer publish not applied: err=%v got=%+v", err, got)
	}

	// Same timestamp replayed: the strict < guard makes it a no-op.
	written, err = repo.Upsert(dbc, &types.Attribute{
		ProposalID: prop.ID,
		Name:       "Applicant Name",
		Handle:     "applicant_name",
		TextValue:  "New Applicant",
		Published:  t0.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Upsert replay: %v", err)
	}
	if written {
		t.Fatalf("Upsert replay: expected no write")
	}

	attrs, err := repo.GetByProposal(dbc, prop.ID)
	if err != nil || len(attrs) != 1 {
		t.Fatalf("GetByProposal: err=%v len=%d", err, len(attrs))
	}
}
