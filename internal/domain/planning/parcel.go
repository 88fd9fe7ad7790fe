package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PolyTypeRightOfWay marks street right-of-way parcels, which are never
// associated with proposals.
const PolyTypeRightOfWay = "ROW"

// Parcel is a lot polygon from the regional GIS export. Shape holds the
// GeoJSON polygon; the bounding-box columns exist so containment queries can
// narrow candidates with a plain index scan before the exact polygon test.
type Parcel struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LotNumber  string    `gorm:"column:lot_number;index" json:"lot_number"`
	RegionName string    `gorm:"column:region_name;not null;index" json:"region_name"`
	PolyType   string    `gorm:"column:poly_type;index" json:"poly_type"`

	Shape datatypes.JSON `gorm:"column:shape;type:jsonb" json:"shape"`

	MinLat float64 `gorm:"column:min_lat;index" json:"min_lat"`
	MaxLat float64 `gorm:"column:max_lat;index" json:"max_lat"`
	MinLng float64 `gorm:"column:min_lng;index" json:"min_lng"`
	MaxLng float64 `gorm:"column:max_lng;index" json:"max_lng"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Parcel) TableName() string { return "parcel" }
