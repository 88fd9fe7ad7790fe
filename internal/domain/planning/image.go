package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Image source tags.
const (
	ImageSourceDocument   = "document"
	ImageSourceStreetView = "google_street_view"
)

type Image struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProposalID uuid.UUID  `gorm:"type:uuid;not null;index" json:"proposal_id"`
	DocumentID *uuid.UUID `gorm:"type:uuid;column:document_id;index" json:"document_id,omitempty"`

	// URL is unique across all images; street view URLs embed the proposal
	// address so re-enrichment hits the duplicate key instead of inserting.
	URL          string `gorm:"column:url;not null;uniqueIndex;size:512" json:"url"`
	StorageKey   string `gorm:"column:storage_key" json:"storage_key,omitempty"`
	ThumbnailKey string `gorm:"column:thumbnail_key" json:"thumbnail_key,omitempty"`

	Source   string `gorm:"column:source;not null;default:'document';index" json:"source"`
	Priority int    `gorm:"column:priority;not null;default:0" json:"priority"`
	// SkipCache excludes an image from external caching layers (e.g. street
	// view shots that expire with the signing key).
	SkipCache bool `gorm:"column:skip_cache;not null;default:false" json:"skip_cache"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Image) TableName() string { return "image" }
