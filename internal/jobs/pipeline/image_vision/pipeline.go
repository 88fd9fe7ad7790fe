package image_vision

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/gcp"
	jobrt "github.com/civiclens/civiclens-backend/internal/jobs/runtime"
)

func markerKey(imageID uuid.UUID) string { return fmt.Sprintf("image:%s:logo_checked", imageID) }
func resultKey(imageID uuid.UUID) string { return fmt.Sprintf("image:%s:logo", imageID) }

// Run screens one extracted image for municipal logos. Images that are just
// the city's letterhead are deleted; everything else has its detection result
// cached. The checked marker is set regardless of outcome so re-enrichment
// never re-bills the Vision API for the same image.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	imageID, ok := jc.PayloadUUID("image_id")
	if !ok || imageID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing image_id"))
		return nil
	}

	checked, err := p.cache.Exists(jc.Ctx, markerKey(imageID))
	if err != nil {
		p.log.Warn("marker lookup failed, proceeding", "image_id", imageID, "error", err)
	}
	if checked {
		jc.Succeed("done", map[string]any{"image_id": imageID.String(), "skipped": "already_checked"})
		return nil
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	rows, err := p.images.GetByIDs(dbc, []uuid.UUID{imageID})
	if err != nil {
		jc.Fail("load", fmt.Errorf("load image: %w", err))
		return nil
	}
	if len(rows) == 0 || rows[0] == nil {
		// Deleted since enqueue; nothing to screen.
		_ = p.cache.Set(jc.Ctx, markerKey(imageID), "1", 0)
		jc.Succeed("done", map[string]any{"image_id": imageID.String(), "skipped": "gone"})
		return nil
	}
	img := rows[0]

	if img.StorageKey == "" {
		// Remote-only images (street view) are never logo candidates.
		_ = p.cache.Set(jc.Ctx, markerKey(imageID), "1", 0)
		jc.Succeed("done", map[string]any{"image_id": imageID.String(), "skipped": "no_blob"})
		return nil
	}

	jc.Progress("detect", 30, "Running logo detection")
	rc, err := p.store.Download(jc.Ctx, gcp.BucketCategoryImage, img.StorageKey)
	if err != nil {
		jc.Fail("detect", fmt.Errorf("download image: %w", err))
		return nil
	}
	data, readErr := io.ReadAll(rc)
	rc.Close()
	if readErr != nil {
		jc.Fail("detect", fmt.Errorf("read image: %w", readErr))
		return nil
	}

	annotations, err := p.vision.DetectLogos(jc.Ctx, data)
	if err != nil {
		jc.Fail("detect", fmt.Errorf("logo detection: %w", err))
		return nil
	}

	deleted := false
	if city := p.cityName(jc, img.ProposalID); city != "" {
		for _, a := range annotations {
			if strings.Contains(strings.ToLower(a.Description), city) {
				p.log.Info("deleting logo image", "image_id", imageID, "logo", a.Description)
				if img.StorageKey != "" {
					if derr := p.store.Delete(jc.Ctx, gcp.BucketCategoryImage, img.StorageKey); derr != nil {
						p.log.Warn("delete image blob failed", "image_id", imageID, "error", derr)
					}
				}
				if derr := p.images.Delete(dbc, imageID); derr != nil {
					jc.Fail("delete", fmt.Errorf("delete image: %w", derr))
					return nil
				}
				deleted = true
				break
			}
		}
	}

	if !deleted && len(annotations) > 0 {
		if b, merr := json.Marshal(annotations); merr == nil {
			_ = p.cache.Set(jc.Ctx, resultKey(imageID), string(b), 0)
		}
	}
	_ = p.cache.Set(jc.Ctx, markerKey(imageID), "1", 0)

	jc.Succeed("done", map[string]any{
		"image_id": imageID.String(),
		"logos":    len(annotations),
		"deleted":  deleted,
	})
	return nil
}

// cityName extracts the city from the proposal's region ("Somerville, MA"
// yields "somerville").
func (p *Pipeline) cityName(jc *jobrt.Context, proposalID uuid.UUID) string {
	rows, err := p.proposals.GetByIDs(dbctx.Context{Ctx: jc.Ctx}, []uuid.UUID{proposalID})
	if err != nil || len(rows) == 0 || rows[0] == nil {
		return ""
	}
	region := rows[0].RegionName
	if i := strings.Index(region, ","); i >= 0 {
		region = region[:i]
	}
	return strings.ToLower(strings.TrimSpace(region))
}
