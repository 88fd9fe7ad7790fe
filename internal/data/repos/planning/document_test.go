package planning

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/civiclens/civiclens-backend/internal/data/repos/testutil"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
)

func TestDocumentRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentRepo(db, testutil.Logger(t))

	prop := testutil.SeedProposal(t, ctx, tx, "PB-2016-50", "Somerville, MA")
	doc := testutil.SeedDocument(t, ctx, tx, prop.ID, "https://example.com/reports/50.pdf")
	testutil.SeedDocument(t, ctx, tx, prop.ID, "https://example.com/decisions/50.pdf")

	got, err := repo.GetByURL(dbc, prop.ID, "https://example.com/reports/50.pdf")
	if err != nil || got == nil || got.ID != doc.ID {
		t.Fatalf("GetByURL: err=%v", err)
	}
	if miss, err := repo.GetByURL(dbc, prop.ID, "https://example.com/missing.pdf"); err != nil || miss != nil {
		t.Fatalf("GetByURL miss: err=%v got=%v", err, miss)
	}

	byProp, err := repo.GetByProposal(dbc, prop.ID)
	if err != nil || len(byProp) != 2 {
		t.Fatalf("GetByProposal: err=%v len=%d", err, len(byProp))
	}

	if err := repo.UpdateFields(dbc, doc.ID, map[string]interface{}{
		"storage_key":  "documents/" + doc.ID.String() + "/source.pdf",
		"fulltext_key": "documents/" + doc.ID.String() + "/text.txt",
		"encoding":     "ISO-8859-9",
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	rows, err := repo.GetByIDs(dbc, []uuid.UUID{doc.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetByIDs: err=%v", err)
	}
	if rows[0].StorageKey == "" || rows[0].FulltextKey == "" || rows[0].Encoding != "ISO-8859-9" {
		t.Fatalf("UpdateFields not applied: %+v", rows[0])
	}
}
