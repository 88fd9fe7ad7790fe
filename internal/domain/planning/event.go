package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is a public meeting or hearing pulled from a region's calendar feed.
// Identity is (title, date); repeated pulls update in place.
type Event struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Title      string    `gorm:"column:title;not null;uniqueIndex:idx_event_title_date" json:"title"`
	Date       time.Time `gorm:"column:date;not null;uniqueIndex:idx_event_title_date;index" json:"date"`
	RegionName string    `gorm:"column:region_name;not null;index" json:"region_name"`

	Description     string `gorm:"column:description" json:"description,omitempty"`
	DurationMinutes int    `gorm:"column:duration_minutes" json:"duration_minutes,omitempty"`
	Location        string `gorm:"column:location" json:"location,omitempty"`

	// Cases on the agenda, matched to proposals by case number at read time.
	CaseNumbers []EventCase `gorm:"constraint:OnDelete:CASCADE;foreignKey:EventID;references:ID" json:"case_numbers,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Event) TableName() string { return "event" }

type EventCase struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EventID    uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_event_case" json:"event_id"`
	CaseNumber string    `gorm:"column:case_number;not null;uniqueIndex:idx_event_case" json:"case_number"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (EventCase) TableName() string { return "event_case" }
