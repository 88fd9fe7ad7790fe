package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Proposal is a municipal planning case tracked across imports. Identity is
// the (case_number, region_name) pair assigned by the source portal; imports
// merge into the existing row rather than duplicating it.
type Proposal struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CaseNumber string    `gorm:"column:case_number;not null;uniqueIndex:idx_proposal_case_region" json:"case_number"`
	RegionName string    `gorm:"column:region_name;not null;uniqueIndex:idx_proposal_case_region" json:"region_name"`

	Address     string  `gorm:"column:address;not null" json:"address"`
	Lat         float64 `gorm:"column:lat" json:"lat"`
	Lng         float64 `gorm:"column:lng" json:"lng"`
	Status      string  `gorm:"column:status;index" json:"status"`
	Summary     string  `gorm:"column:summary" json:"summary"`
	Description string  `gorm:"column:description" json:"description"`
	Source      string  `gorm:"column:source" json:"source,omitempty"`

	ParcelID *uuid.UUID `gorm:"type:uuid;column:parcel_id;index" json:"parcel_id,omitempty"`
	Parcel   *Parcel    `gorm:"foreignKey:ParcelID;references:ID" json:"parcel,omitempty"`

	// Complete marks cases whose review has concluded; importers derive it
	// from the source status.
	Complete bool `gorm:"column:complete;not null;default:false" json:"complete"`

	Updated   time.Time `gorm:"column:updated;not null;index" json:"updated"`
	Published time.Time `gorm:"column:published;not null" json:"published"`

	Documents  []Document  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProposalID;references:ID" json:"documents,omitempty"`
	Images     []Image     `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProposalID;references:ID" json:"images,omitempty"`
	Attributes []Attribute `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProposalID;references:ID" json:"attributes,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Proposal) TableName() string { return "proposal" }
