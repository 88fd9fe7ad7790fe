package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document is a source file referenced by a proposal (staff report, decision,
// site plan). StorageKey is empty until the fetch stage lands the bytes in the
// document bucket.
type Document struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProposalID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_document_proposal_url" json:"proposal_id"`

	URL   string `gorm:"column:url;not null;uniqueIndex:idx_document_proposal_url" json:"url"`
	Title string `gorm:"column:title" json:"title"`
	// Field records which source column or section the link came from.
	Field string `gorm:"column:field" json:"field,omitempty"`

	StorageKey   string `gorm:"column:storage_key" json:"storage_key,omitempty"`
	FulltextKey  string `gorm:"column:fulltext_key" json:"fulltext_key,omitempty"`
	Encoding     string `gorm:"column:encoding" json:"encoding,omitempty"`
	ThumbnailKey string `gorm:"column:thumbnail_key" json:"thumbnail_key,omitempty"`

	Published *time.Time `gorm:"column:published" json:"published,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }
