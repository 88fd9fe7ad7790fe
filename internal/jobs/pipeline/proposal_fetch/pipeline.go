package proposal_fetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/civiclens/civiclens-backend/internal/importers"
	jobrt "github.com/civiclens/civiclens-backend/internal/jobs/runtime"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
)

const importerConcurrency = 4

type importerResult struct {
	name      string
	proposals []importers.RawProposal
	err       error
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	region := strings.TrimSpace(jc.PayloadString("region_name"))

	imps := p.selectImporters(region)
	if len(imps) == 0 {
		jc.Succeed("done", map[string]any{"importers_run": 0, "fetched": 0})
		return nil
	}

	since := p.resolveWatermark(jc, region)
	jc.Progress("fetch", 5, "Fetching source feeds")

	results := p.runImporters(jc.Ctx, imps, since)

	jc.Progress("normalize", 40, "Normalizing records")

	var created, updated, skipped, fetched int
	importerFailures := map[string]string{}
	dbc := dbctx.Context{Ctx: jc.Ctx}
	for _, res := range results {
		if res.err != nil {
			p.log.Error("importer failed", "importer", res.name, "error", res.err)
			importerFailures[res.name] = res.err.Error()
			continue
		}
		fetched += len(res.proposals)
		for _, raw := range res.proposals {
			isNew, _, err := p.normalizer.CreateOrUpdateProposal(dbc, raw)
			if err != nil {
				p.log.Warn("skipping malformed record", "importer", res.name, "case_number", raw.CaseNumber, "error", err)
				skipped++
				continue
			}
			if isNew {
				created++
			} else {
				updated++
			}
		}
	}

	jc.Succeed("done", map[string]any{
		"since":             since.Format(time.RFC3339),
		"importers_run":     len(imps),
		"importer_failures": importerFailures,
		"fetched":           fetched,
		"created":           created,
		"updated":           updated,
		"skipped":           skipped,
	})
	return nil
}

func (p *Pipeline) selectImporters(region string) []importers.Importer {
	all := p.registry.ProposalImporters()
	if region == "" {
		return all
	}
	var out []importers.Importer
	for _, imp := range all {
		if strings.EqualFold(imp.RegionName(), region) {
			out = append(out, imp)
		}
	}
	return out
}

// resolveWatermark picks the fetch cutoff: an explicit payload value wins,
// then the newest stored proposal, then the Monday-midnight-minus-a-week
// fallback that matches the weekly reporting cadence of the portals.
func (p *Pipeline) resolveWatermark(jc *jobrt.Context, region string) time.Time {
	if raw := strings.TrimSpace(jc.PayloadString("since")); raw != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t
			}
		}
		p.log.Warn("unparseable since payload, falling through", "since", raw)
	}
	if latest, err := p.proposals.LatestUpdated(dbctx.Context{Ctx: jc.Ctx}, region); err == nil && latest != nil {
		return *latest
	}
	return defaultWatermark(time.Now().UTC())
}

// defaultWatermark is midnight of the most recent Monday, minus seven days.
func defaultWatermark(now time.Time) time.Time {
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, 0, -daysSinceMonday)
	return monday.AddDate(0, 0, -7)
}

// runImporters fans the source fetches out with bounded concurrency. A
// failing importer is isolated: its error lands in the result slot and the
// others proceed.
func (p *Pipeline) runImporters(ctx context.Context, imps []importers.Importer, since time.Time) []importerResult {
	results := make([]importerResult, len(imps))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(importerConcurrency)
	for i, imp := range imps {
		i, imp := i, imp
		g.Go(func() error {
			raws, err := imp.UpdatedSince(gctx, since, p.geocoder)
			mu.Lock()
			results[i] = importerResult{name: imp.Name(), proposals: raws, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
