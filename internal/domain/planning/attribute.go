package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attribute is a typed key/value property extracted from a proposal's
// documents. At most one current value exists per (proposal, handle); a
// strictly newer published timestamp replaces the value in place.
type Attribute struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProposalID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_attribute_proposal_handle" json:"proposal_id"`

	Name   string `gorm:"column:name;not null" json:"name"`
	Handle string `gorm:"column:handle;not null;uniqueIndex:idx_attribute_proposal_handle" json:"handle"`

	TextValue string     `gorm:"column:text_value" json:"text_value,omitempty"`
	DateValue *time.Time `gorm:"column:date_value" json:"date_value,omitempty"`

	Published time.Time `gorm:"column:published;not null" json:"published"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Attribute) TableName() string { return "attribute" }
