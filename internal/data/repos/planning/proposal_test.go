package planning

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/civiclens/civiclens-backend/internal/data/repos/testutil"
	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
)

func TestProposalRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewProposalRepo(db, testutil.Logger(t))

	now := time.Now().UTC().Truncate(time.Second)

	older := &types.Proposal{
		ID:         uuid.New(),
		CaseNumber: "PB-2016-21",
		RegionName: "Somerville, MA",
		Address:    "240 Elm St",
		Status:     "Public Hearing",
		Updated:    now.Add(-48 * time.Hour),
		Published:  now.Add(-72 * time.Hour),
	}
	newer := &types.Proposal{
		ID:         uuid.New(),
		CaseNumber: "PB-2016-22",
		RegionName: "Somerville, MA",
		Address:    "93 Highland Ave",
		Status:     "Submitted",
		Updated:    now.Add(-2 * time.Hour),
		Published:  now.Add(-3 * time.Hour),
	}
	otherRegion := &types.Proposal{
		ID:         uuid.New(),
		CaseNumber: "PB-2016-22",
		RegionName: "Cambridge, MA",
		Address:    "1 Broadway",
		Updated:    now.Add(-1 * time.Hour),
		Published:  now.Add(-1 * time.Hour),
	}

	if _, err := repo.Create(dbc, []*types.Proposal{older, newer, otherRegion}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByCaseNumber(dbc, "PB-2016-22", "Somerville, MA")
	if err != nil {
		t.Fatalf("GetByCaseNumber: %v", err)
	}
	if got == nil || got.ID != newer.ID {
		t.Fatalf("GetByCaseNumber: wrong row")
	}
	if missing, err := repo.GetByCaseNumber(dbc, "PB-9999-99", "Somerville, MA"); err != nil || missing != nil {
		t.Fatalf("GetByCaseNumber miss: err=%v row=%v", err, missing)
	}

	// Same case number in another region must not collide.
	got, err = repo.GetByCaseNumber(dbc, "PB-2016-22", "Cambridge, MA")
	if err != nil || got == nil || got.ID != otherRegion.ID {
		t.Fatalf("GetByCaseNumber other region: err=%v", err)
	}

	latest, err := repo.LatestUpdated(dbc, "Somerville, MA")
	if err != nil {
		t.Fatalf("LatestUpdated: %v", err)
	}
	if latest == nil || !latest.Equal(newer.Updated) {
		t.Fatalf("LatestUpdated: got %v want %v", latest, newer.Updated)
	}
	if empty, err := repo.LatestUpdated(dbc, "Nowhere, KS"); err != nil || empty != nil {
		t.Fatalf("LatestUpdated empty region: err=%v got=%v", err, empty)
	}

	if err := repo.UpdateFields(dbc, older.ID, map[string]interface{}{
		"status": "Decision Rendered", "complete": true,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	rows, err := repo.GetByIDs(dbc, []uuid.UUID{older.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetByIDs: err=%v", err)
	}
	if rows[0].Status != "Decision Rendered" || !rows[0].Complete {
		t.Fatalf("UpdateFields not applied: %+v", rows[0])
	}

	parcel := testutil.SeedParcel(t, dbc.Ctx, tx, "Somerville, MA",
		[]byte(`{"type":"Polygon","coordinates":[[[-71.1,42.38],[-71.09,42.38],[-71.09,42.39],[-71.1,42.39],[-71.1,42.38]]]}`),
		42.38, 42.39, -71.1, -71.09)
	if err := repo.SetParcel(dbc, newer.ID, parcel.ID); err != nil {
		t.Fatalf("SetParcel: %v", err)
	}
	rows, err = repo.GetByIDs(dbc, []uuid.UUID{newer.ID})
	if err != nil || len(rows) != 1 || rows[0].ParcelID == nil || *rows[0].ParcelID != parcel.ID {
		t.Fatalf("SetParcel not applied: err=%v", err)
	}
}
