package importers

import (
	"time"
)

// RawDocument is a link surfaced by a source record before normalization.
type RawDocument struct {
	URL       string
	Title     string
	Field     string
	Published *time.Time
}

// RawAttribute carries a single key/value property from a source record.
type RawAttribute struct {
	Name      string
	TextValue string
	DateValue *time.Time
}

// RawProposal is one planning case as an importer saw it. The normalizer
// owns turning it into (or merging it with) the stored Proposal.
type RawProposal struct {
	CaseNumber  string
	RegionName  string
	Address     string
	Lat         *float64
	Lng         *float64
	Status      string
	Summary     string
	Description string
	Source      string
	Complete    bool

	Updated   time.Time
	Published time.Time

	Documents  []RawDocument
	Attributes []RawAttribute
}

// RawEvent is one meeting record from a calendar feed.
type RawEvent struct {
	Title           string
	RegionName      string
	Description     string
	Date            time.Time
	DurationMinutes int
	Location        string
	CaseNumbers     []string
}
