package planning

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

type ParcelRepo interface {
	Create(dbc dbctx.Context, parcels []*types.Parcel) ([]*types.Parcel, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Parcel, error)
	// CandidatesContaining returns parcels whose bounding box contains the
	// point, excluding the given poly types. The exact polygon test happens in
	// the caller; this is only the index prefilter.
	CandidatesContaining(dbc dbctx.Context, lat, lng float64, excludePolyTypes []string) ([]*types.Parcel, error)
}

type parcelRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewParcelRepo(db *gorm.DB, baseLog *logger.Logger) ParcelRepo {
	return &parcelRepo{
		db:  db,
		log: baseLog.With("repo", "ParcelRepo"),
	}
}

func (r *parcelRepo) Create(dbc dbctx.Context, parcels []*types.Parcel) ([]*types.Parcel, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(parcels) == 0 {
		return []*types.Parcel{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&parcels).Error; err != nil {
		return nil, err
	}
	return parcels, nil
}

func (r *parcelRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Parcel, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Parcel
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *parcelRepo) CandidatesContaining(dbc dbctx.Context, lat, lng float64, excludePolyTypes []string) ([]*types.Parcel, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).
		Where("min_lat <= ? AND max_lat >= ? AND min_lng <= ? AND max_lng >= ?", lat, lat, lng, lng)
	if len(excludePolyTypes) > 0 {
		q = q.Where("poly_type NOT IN ?", excludePolyTypes)
	}
	var out []*types.Parcel
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
