package importers

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/civiclens/civiclens-backend/internal/data/repos"
	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
	"github.com/civiclens/civiclens-backend/internal/services"
)

// Normalizer turns raw importer records into stored rows. Merging is
// conservative: a populated column is never overwritten with an empty value,
// and an older record never overwrites a newer one.
type Normalizer struct {
	log       *logger.Logger
	proposals repos.ProposalRepo
	documents repos.DocumentRepo
	attrs     repos.AttributeRepo
	events    repos.EventRepo
	hooks     services.Hooks
}

func NewNormalizer(
	log *logger.Logger,
	proposals repos.ProposalRepo,
	documents repos.DocumentRepo,
	attrs repos.AttributeRepo,
	events repos.EventRepo,
	hooks services.Hooks,
) *Normalizer {
	return &Normalizer{
		log:       log.With("service", "Normalizer"),
		proposals: proposals,
		documents: documents,
		attrs:     attrs,
		events:    events,
		hooks:     hooks,
	}
}

// CreateOrUpdateProposal upserts a proposal by (case_number, region_name) and
// attaches its documents and attributes. Creation hooks fire for the proposal
// (when new) and each newly created document.
func (n *Normalizer) CreateOrUpdateProposal(dbc dbctx.Context, raw RawProposal) (bool, *types.Proposal, error) {
	caseNumber := strings.TrimSpace(raw.CaseNumber)
	if caseNumber == "" {
		return false, nil, fmt.Errorf("missing case number")
	}
	region := strings.TrimSpace(raw.RegionName)
	if region == "" {
		return false, nil, fmt.Errorf("missing region name")
	}

	existing, err := n.proposals.GetByCaseNumber(dbc, caseNumber, region)
	if err != nil {
		return false, nil, fmt.Errorf("lookup proposal %s: %w", caseNumber, err)
	}

	isNew := existing == nil
	var p *types.Proposal
	if isNew {
		p, err = n.createProposal(dbc, caseNumber, region, raw)
	} else {
		p, err = n.mergeProposal(dbc, existing, raw)
	}
	if err != nil {
		return false, nil, err
	}

	if err := n.attachDocuments(dbc, p, raw.Documents); err != nil {
		return isNew, p, err
	}
	if err := n.attachAttributes(dbc, p.ID, raw.Attributes, raw.Published); err != nil {
		return isNew, p, err
	}

	if isNew && n.hooks != nil {
		n.hooks.EntityCreated(dbc, "proposal", p.ID, true)
	}
	return isNew, p, nil
}

func (n *Normalizer) createProposal(dbc dbctx.Context, caseNumber, region string, raw RawProposal) (*types.Proposal, error) {
	p := &types.Proposal{
		ID:          uuid.New(),
		CaseNumber:  caseNumber,
		RegionName:  region,
		Address:     raw.Address,
		Status:      raw.Status,
		Summary:     raw.Summary,
		Description: raw.Description,
		Source:      raw.Source,
		Complete:    raw.Complete,
		Updated:     raw.Updated,
		Published:   raw.Published,
	}
	if raw.Lat != nil {
		p.Lat = *raw.Lat
	}
	if raw.Lng != nil {
		p.Lng = *raw.Lng
	}
	if p.Updated.IsZero() {
		p.Updated = time.Now().UTC()
	}
	if p.Published.IsZero() {
		p.Published = p.Updated
	}
	if _, err := n.proposals.Create(dbc, []*types.Proposal{p}); err != nil {
		return nil, fmt.Errorf("create proposal %s: %w", caseNumber, err)
	}
	return p, nil
}

func (n *Normalizer) mergeProposal(dbc dbctx.Context, p *types.Proposal, raw RawProposal) (*types.Proposal, error) {
	if !raw.Updated.After(p.Updated) {
		return p, nil
	}

	updates := map[string]interface{}{
		"updated":  raw.Updated,
		"complete": raw.Complete,
	}
	p.Updated = raw.Updated
	p.Complete = raw.Complete

	setIfNonEmpty := func(column string, value string, field *string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		updates[column] = value
		*field = value
	}
	setIfNonEmpty("address", raw.Address, &p.Address)
	setIfNonEmpty("status", raw.Status, &p.Status)
	setIfNonEmpty("summary", raw.Summary, &p.Summary)
	setIfNonEmpty("description", raw.Description, &p.Description)
	setIfNonEmpty("source", raw.Source, &p.Source)

	if raw.Lat != nil && raw.Lng != nil {
		updates["lat"] = *raw.Lat
		updates["lng"] = *raw.Lng
		p.Lat = *raw.Lat
		p.Lng = *raw.Lng
	}
	if raw.Published.After(p.Published) {
		updates["published"] = raw.Published
		p.Published = raw.Published
	}

	if err := n.proposals.UpdateFields(dbc, p.ID, updates); err != nil {
		return nil, fmt.Errorf("update proposal %s: %w", p.CaseNumber, err)
	}
	return p, nil
}

func (n *Normalizer) attachDocuments(dbc dbctx.Context, p *types.Proposal, rawDocs []RawDocument) error {
	for _, rd := range rawDocs {
		u := strings.TrimSpace(rd.URL)
		if u == "" {
			continue
		}
		existing, err := n.documents.GetByURL(dbc, p.ID, u)
		if err != nil {
			return fmt.Errorf("lookup document %s: %w", u, err)
		}
		if existing != nil {
			continue
		}
		doc := &types.Document{
			ID:         uuid.New(),
			ProposalID: p.ID,
			URL:        u,
			Title:      rd.Title,
			Field:      rd.Field,
			Published:  rd.Published,
		}
		if _, err := n.documents.Create(dbc, []*types.Document{doc}); err != nil {
			return fmt.Errorf("create document %s: %w", u, err)
		}
		if n.hooks != nil {
			n.hooks.EntityCreated(dbc, "document", doc.ID, true)
		}
	}
	return nil
}

func (n *Normalizer) attachAttributes(dbc dbctx.Context, proposalID uuid.UUID, rawAttrs []RawAttribute, published time.Time) error {
	if published.IsZero() {
		published = time.Now().UTC()
	}
	for _, ra := range rawAttrs {
		name := strings.TrimSpace(ra.Name)
		if name == "" {
			continue
		}
		attr := &types.Attribute{
			ProposalID: proposalID,
			Name:       name,
			Handle:     Handle(name),
			TextValue:  ra.TextValue,
			DateValue:  ra.DateValue,
			Published:  published,
		}
		if _, err := n.attrs.Upsert(dbc, attr); err != nil {
			return fmt.Errorf("upsert attribute %s: %w", attr.Handle, err)
		}
	}
	return nil
}

// MakeEvent upserts an event by (title, date) and rewrites its case links.
func (n *Normalizer) MakeEvent(dbc dbctx.Context, raw RawEvent) (*types.Event, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return nil, fmt.Errorf("missing event title")
	}
	if raw.Date.IsZero() {
		return nil, fmt.Errorf("missing event date")
	}

	ev := &types.Event{
		Title:           title,
		RegionName:      raw.RegionName,
		Description:     raw.Description,
		Date:            raw.Date,
		DurationMinutes: raw.DurationMinutes,
		Location:        raw.Location,
	}
	stored, err := n.events.UpsertByTitleDate(dbc, ev)
	if err != nil {
		return nil, fmt.Errorf("upsert event %q: %w", title, err)
	}
	if len(raw.CaseNumbers) > 0 {
		if err := n.events.ReplaceCases(dbc, stored.ID, raw.CaseNumbers); err != nil {
			return stored, fmt.Errorf("replace event cases: %w", err)
		}
	}
	return stored, nil
}

// Handle normalizes an attribute name into its stored key: lowercase with
// runs of non-alphanumerics collapsed to single underscores.
func Handle(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}
