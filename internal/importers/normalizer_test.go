package importers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/civiclens/civiclens-backend/internal/data/repos/planning"
	"github.com/civiclens/civiclens-backend/internal/data/repos/testutil"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
)

type recordingHooks struct {
	created []string
}

func (h *recordingHooks) EntityCreated(dbc dbctx.Context, entityType string, id uuid.UUID, created bool) {
	h.created = append(h.created, entityType)
}

func TestNormalizerCreateOrUpdateProposal(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	log := testutil.Logger(t)

	proposals := planning.NewProposalRepo(db, log)
	documents := planning.NewDocumentRepo(db, log)
	attrs := planning.NewAttributeRepo(db, log)
	events := planning.NewEventRepo(db, log)
	hooks := &recordingHooks{}
	n := NewNormalizer(log, proposals, documents, attrs, events, hooks)

	lat, lng := 42.3966, -71.1223
	published := time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC)
	raw := RawProposal{
		CaseNumber: "PB-2016-21",
		RegionName: "Somerville, MA",
		Address:    "240 Elm St",
		Lat:        &lat,
		Lng:        &lng,
		Status:     "Public Hearing",
		Summary:    "New mixed-use building",
		Source:     "https://example.com/feed",
		Updated:    time.Date(2016, 6, 14, 10, 30, 0, 0, time.UTC),
		Published:  published,
		Documents: []RawDocument{
			{URL: "https://example.com/reports/21.pdf", Title: "Staff Report", Field: "reports"},
		},
		Attributes: []RawAttribute{
			{Name: "Applicant Name", TextValue: "Acme Development LLC"},
		},
	}

	isNew, p, err := n.CreateOrUpdateProposal(dbc, raw)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !isNew || p == nil {
		t.Fatalf("create: isNew=%v", isNew)
	}
	if p.Address != "240 Elm St" || p.Lat != lat || p.Complete {
		t.Fatalf("created proposal: %+v", p)
	}

	// Proposal and document hooks fired exactly once each.
	if len(hooks.created) != 2 {
		t.Fatalf("hooks fired: %v", hooks.created)
	}

	// Replaying the same record is a no-op: same row, no new documents,
	// no new hooks.
	isNew, p2, err := n.CreateOrUpdateProposal(dbc, raw)
	if err != nil || isNew {
		t.Fatalf("replay: isNew=%v err=%v", isNew, err)
	}
	if p2.ID != p.ID {
		t.Fatalf("replay created a second proposal")
	}
	if len(hooks.created) != 2 {
		t.Fatalf("replay fired hooks: %v", hooks.created)
	}
	docs, err := documents.GetByProposal(dbc, p.ID)
	if err != nil || len(docs) != 1 {
		t.Fatalf("documents after replay: err=%v len=%d", err, len(docs))
	}

	// A newer record merges; empty incoming fields keep stored values.
	newer := raw
	newer.Updated = raw.Updated.Add(48 * time.Hour)
	newer.Status = "Approved"
	newer.Complete = true
	newer.Address = ""
	newer.Summary = ""
	newer.Documents = []RawDocument{
		{URL: "https://example.com/reports/21.pdf"},
		{URL: "https://example.com/decisions/21.pdf", Title: "Decision", Field: "decisions"},
	}
	isNew, merged, err := n.CreateOrUpdateProposal(dbc, newer)
	if err != nil || isNew {
		t.Fatalf("merge: isNew=%v err=%v", isNew, err)
	}
	if merged.Status != "Approved" || !merged.Complete {
		t.Fatalf("merge did not apply: %+v", merged)
	}
	if merged.Address != "240 Elm St" || merged.Summary != "New mixed-use building" {
		t.Fatalf("merge cleared populated fields: %+v", merged)
	}
	docs, err = documents.GetByProposal(dbc, p.ID)
	if err != nil || len(docs) != 2 {
		t.Fatalf("documents after merge: err=%v len=%d", err, len(docs))
	}
	// One new document hook on top of the original two.
	if len(hooks.created) != 3 {
		t.Fatalf("hooks after merge: %v", hooks.created)
	}

	// An out-of-order older record never wins.
	stale := raw
	stale.Updated = raw.Updated.Add(-72 * time.Hour)
	stale.Status = "Filed"
	if _, p3, err := n.CreateOrUpdateProposal(dbc, stale); err != nil {
		t.Fatalf("stale: %v", err)
	} else if p3.Status != "Approved" {
		t.Fatalf("stale record overwrote status: %q", p3.Status)
	}

	stored, err := attrs.GetByProposal(dbc, p.ID)
	if err != nil || len(stored) != 1 {
		t.Fatalf("attributes: err=%v len=%d", err, len(stored))
	}
	if stored[0].Handle != "applicant_name" || stored[0].TextValue != "Acme Development LLC" {
		t.Fatalf("attribute: %+v", stored[0])
	}
}

func TestNormalizerCreateOrUpdateProposalValidation(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	log := testutil.Logger(t)

	n := NewNormalizer(log,
		planning.NewProposalRepo(db, log),
		planning.NewDocumentRepo(db, log),
		planning.NewAttributeRepo(db, log),
		planning.NewEventRepo(db, log),
		nil,
	)

	if _, _, err := n.CreateOrUpdateProposal(dbc, RawProposal{RegionName: "Somerville, MA"}); err == nil {
		t.Fatalf("expected error for missing case number")
	}
	if _, _, err := n.CreateOrUpdateProposal(dbc, RawProposal{CaseNumber: "PB-1"}); err == nil {
		t.Fatalf("expected error for missing region")
	}
}

func TestNormalizerMakeEvent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	log := testutil.Logger(t)

	n := NewNormalizer(log,
		planning.NewProposalRepo(db, log),
		planning.NewDocumentRepo(db, log),
		planning.NewAttributeRepo(db, log),
		planning.NewEventRepo(db, log),
		nil,
	)

	raw := RawEvent{
		Title:       "Planning Board",
		RegionName:  "Somerville, MA",
		Date:        time.Date(2026, 9, 3, 18, 0, 0, 0, time.UTC),
		Location:    "City Hall",
		CaseNumbers: []string{"PB-2016-21"},
	}
	ev, err := n.MakeEvent(dbc, raw)
	if err != nil || ev == nil {
		t.Fatalf("MakeEvent: %v", err)
	}

	again, err := n.MakeEvent(dbc, raw)
	if err != nil || again.ID != ev.ID {
		t.Fatalf("MakeEvent replay: err=%v", err)
	}

	if _, err := n.MakeEvent(dbc, RawEvent{Date: raw.Date}); err == nil {
		t.Fatalf("expected error for missing title")
	}
	if _, err := n.MakeEvent(dbc, RawEvent{Title: "No Date"}); err == nil {
		t.Fatalf("expected error for missing date")
	}
}

func TestHandle(t *testing.T) {
	cases := map[string]string{
		"Applicant Name":      "applicant_name",
		"Legal  Notice (PDF)": "legal_notice_pdf",
		"  Zoning ":           "zoning",
		"First Hearing Date":  "first_hearing_date",
		"§ 5.1 Variance":      "5_1_variance",
		"":                    "",
	}
	for in, want := range cases {
		if got := Handle(in); got != want {
			t.Errorf("Handle(%q) = %q, want %q", in, got, want)
		}
	}
}
