package event_pull

import (
	jobrt "github.com/civiclens/civiclens-backend/internal/jobs/runtime"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}

	imps := p.registry.EventImporters()
	if len(imps) == 0 {
		jc.Succeed("done", map[string]any{"importers_run": 0, "events": 0})
		return nil
	}

	jc.Progress("pull", 10, "Pulling event calendars")
	dbc := dbctx.Context{Ctx: jc.Ctx}

	var upserted, skipped int
	importerFailures := map[string]string{}
	for _, imp := range imps {
		// Watermark per importer: newest stored event for its region. A nil
		// watermark asks the source for everything it has.
		since, err := p.events.LatestDateForRegion(dbc, imp.RegionName())
		if err != nil {
			p.log.Error("event watermark lookup failed", "importer", imp.Name(), "error", err)
			importerFailures[imp.Name()] = err.Error()
			continue
		}

		raws, err := imp.UpdatedSince(jc.Ctx, since)
		if err != nil {
			p.log.Error("event importer failed", "importer", imp.Name(), "error", err)
			importerFailures[imp.Name()] = err.Error()
			continue
		}
		for _, raw := range raws {
			if _, err := p.normalizer.MakeEvent(dbc, raw); err != nil {
				p.log.Warn("skipping malformed event", "importer", imp.Name(), "title", raw.Title, "error", err)
				skipped++
				continue
			}
			upserted++
		}
	}

	jc.Succeed("done", map[string]any{
		"importers_run":     len(imps),
		"importer_failures": importerFailures,
		"events":            upserted,
		"skipped":           skipped,
	})
	return nil
}
