package proposal_enrich

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/geo"
	"github.com/civiclens/civiclens-backend/internal/importers"
	orchestrator "github.com/civiclens/civiclens-backend/internal/jobs/orchestrator"
	jobrt "github.com/civiclens/civiclens-backend/internal/jobs/runtime"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
)

// All enrichment stages are best-effort and independent: whichever external
// lookups fail, the proposal keeps the enrichments that succeeded.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	proposalID, ok := jc.PayloadUUID("proposal_id")
	if !ok || proposalID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing proposal_id"))
		return nil
	}

	rows, err := p.proposals.GetByIDs(dbctx.Context{Ctx: jc.Ctx}, []uuid.UUID{proposalID})
	if err != nil {
		jc.Fail("load", fmt.Errorf("load proposal: %w", err))
		return nil
	}
	if len(rows) == 0 || rows[0] == nil {
		jc.Fail("load", fmt.Errorf("proposal %s not found", proposalID))
		return nil
	}
	prop := rows[0]

	stages := []orchestrator.Stage{
		{
			Name:       "street_view",
			BestEffort: true,
			IsDone: func(ctx *jobrt.Context, st *orchestrator.OrchestratorState) (bool, error) {
				if p.googleAPIKey == "" || strings.TrimSpace(prop.Address) == "" {
					return true, nil
				}
				return p.images.ExistsBySource(dbctx.Context{Ctx: ctx.Ctx}, prop.ID, types.ImageSourceStreetView)
			},
			Run: func(ctx *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				return p.stageStreetView(ctx, prop)
			},
		},
		{
			Name:       "parcel",
			BestEffort: true,
			IsDone: func(ctx *jobrt.Context, st *orchestrator.OrchestratorState) (bool, error) {
				return prop.ParcelID != nil || (prop.Lat == 0 && prop.Lng == 0), nil
			},
			Run: func(ctx *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				return p.stageParcel(ctx, prop)
			},
		},
		{
			Name:       "venue",
			BestEffort: true,
			Timeout:    30 * time.Second,
			IsDone: func(ctx *jobrt.Context, st *orchestrator.OrchestratorState) (bool, error) {
				if p.venues == nil || (prop.Lat == 0 && prop.Lng == 0) {
					return true, nil
				}
				existing, err := p.attrs.GetByHandle(dbctx.Context{Ctx: ctx.Ctx}, prop.ID, "foursquare_id")
				if err != nil {
					return false, err
				}
				return existing != nil, nil
			},
			Run: func(ctx *jobrt.Context, st *orchestrator.OrchestratorState) (map[string]any, error) {
				return p.stageVenue(ctx, prop)
			},
		},
	}

	return p.engine.Run(jc, stages, map[string]any{"proposal_id": proposalID.String()}, nil)
}

// stageStreetView records a single street-view image per proposal. The URL
// is deterministic for an address, so a racing second run hits the unique
// index; that duplicate is tolerated.
func (p *Pipeline) stageStreetView(jc *jobrt.Context, prop *types.Proposal) (map[string]any, error) {
	address := prop.Address
	if prop.RegionName != "" {
		address = address + ", " + prop.RegionName
	}
	url, err := geo.StreetViewURL(address, p.streetViewSize, p.googleAPIKey, p.streetViewSecret)
	if err != nil {
		return nil, fmt.Errorf("build street view url: %w", err)
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	existing, err := p.images.GetByURL(dbc, url)
	if err != nil {
		return nil, fmt.Errorf("lookup street view image: %w", err)
	}
	if existing != nil {
		return map[string]any{"street_view": "exists"}, nil
	}

	img := &types.Image{
		ID:         uuid.New(),
		ProposalID: prop.ID,
		URL:        url,
		Source:     types.ImageSourceStreetView,
		Priority:   1,
		SkipCache:  true,
	}
	if _, err := p.images.Create(dbc, []*types.Image{img}); err != nil {
		if isIntegrityError(err) {
			p.log.Warn("street view image not stored", "proposal_id", prop.ID, "error", err)
			return map[string]any{"street_view": "skipped"}, nil
		}
		return nil, fmt.Errorf("create street view image: %w", err)
	}
	if p.hooks != nil {
		p.hooks.EntityCreated(dbc, "image", img.ID, img.StorageKey != "")
	}
	return map[string]any{"street_view": "created"}, nil
}

// stageParcel associates the first parcel whose polygon contains the
// proposal's point. Right-of-way parcels never qualify. No containing parcel
// is a valid outcome: ParcelID stays nil.
func (p *Pipeline) stageParcel(jc *jobrt.Context, prop *types.Proposal) (map[string]any, error) {
	dbc := dbctx.Context{Ctx: jc.Ctx}
	candidates, err := p.parcels.CandidatesContaining(dbc, prop.Lat, prop.Lng, []string{types.PolyTypeRightOfWay})
	if err != nil {
		return nil, fmt.Errorf("parcel candidates: %w", err)
	}

	pt := geo.Point{Lat: prop.Lat, Lng: prop.Lng}
	for _, parcel := range candidates {
		inside, err := geo.PointInGeoJSONShape(parcel.Shape, pt)
		if err != nil {
			p.log.Warn("bad parcel shape", "parcel_id", parcel.ID, "error", err)
			continue
		}
		if !inside {
			continue
		}
		if err := p.proposals.SetParcel(dbc, prop.ID, parcel.ID); err != nil {
			return nil, fmt.Errorf("set parcel: %w", err)
		}
		id := parcel.ID
		prop.ParcelID = &id
		return map[string]any{"parcel_id": parcel.ID.String()}, nil
	}
	return map[string]any{"parcel_id": nil}, nil
}

func (p *Pipeline) stageVenue(jc *jobrt.Context, prop *types.Proposal) (map[string]any, error) {
	venue, err := p.venues.FindVenue(jc.Ctx, prop.Lat, prop.Lng)
	if err != nil {
		return nil, fmt.Errorf("venue lookup: %w", err)
	}
	if venue == nil {
		return map[string]any{"venue": nil}, nil
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	published := time.Now().UTC()
	for name, value := range map[string]string{
		"Foursquare ID":   venue.ID,
		"Foursquare Name": venue.Name,
		"Foursquare URL":  venue.URL,
	} {
		if value == "" {
			continue
		}
		attr := &types.Attribute{
			ProposalID: prop.ID,
			Name:       name,
			Handle:     importers.Handle(name),
			TextValue:  value,
			Published:  published,
		}
		if _, err := p.attrs.Upsert(dbc, attr); err != nil {
			return nil, fmt.Errorf("store venue attribute %s: %w", attr.Handle, err)
		}
	}
	return map[string]any{"venue": venue.ID}, nil
}

func isIntegrityError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "value too long")
}
