package planning

import (
	"context"
	"testing"

	"github.com/civiclens/civiclens-backend/internal/data/repos/testutil"
	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
)

func TestParcelRepoCandidatesContaining(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewParcelRepo(db, testutil.Logger(t))

	square := []byte(`{"type":"Polygon","coordinates":[[[-71.1,42.38],[-71.09,42.38],[-71.09,42.39],[-71.1,42.39],[-71.1,42.38]]]}`)

	containing := testutil.SeedParcel(t, ctx, tx, "Somerville, MA", square, 42.38, 42.39, -71.1, -71.09)
	testutil.SeedParcel(t, ctx, tx, "Somerville, MA", square, 42.50, 42.51, -71.1, -71.09) // away from the point

	row := testutil.SeedParcel(t, ctx, tx, "Somerville, MA", square, 42.38, 42.39, -71.1, -71.09)
	if err := tx.Model(&types.Parcel{}).Where("id = ?", row.ID).
		Update("poly_type", types.PolyTypeRightOfWay).Error; err != nil {
		t.Fatalf("mark ROW parcel: %v", err)
	}

	got, err := repo.CandidatesContaining(dbc, 42.385, -71.095, []string{types.PolyTypeRightOfWay})
	if err != nil {
		t.Fatalf("CandidatesContaining: %v", err)
	}
	if len(got) != 1 || got[0].ID != containing.ID {
		t.Fatalf("CandidatesContaining: expected only the containing non-ROW parcel, got %d", len(got))
	}

	// No exclusion keeps the right-of-way parcel in the candidate set.
	got, err = repo.CandidatesContaining(dbc, 42.385, -71.095, nil)
	if err != nil || len(got) != 2 {
		t.Fatalf("CandidatesContaining without exclusion: err=%v len=%d", err, len(got))
	}
}
