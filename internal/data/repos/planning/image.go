package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

type ImageRepo interface {
	Create(dbc dbctx.Context, images []*types.Image) ([]*types.Image, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Image, error)
	GetByProposal(dbc dbctx.Context, proposalID uuid.UUID) ([]*types.Image, error)
	GetByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Image, error)
	GetByURL(dbc dbctx.Context, url string) (*types.Image, error)
	ExistsBySource(dbc dbctx.Context, proposalID uuid.UUID, source string) (bool, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type imageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImageRepo(db *gorm.DB, baseLog *logger.Logger) ImageRepo {
	return &imageRepo{
		db:  db,
		log: baseLog.With("repo", "ImageRepo"),
	}
}

func (r *imageRepo) Create(dbc dbctx.Context, images []*types.Image) ([]*types.Image, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(images) == 0 {
		return []*types.Image{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

func (r *imageRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Image, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Image
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

func (r *imageRepo) GetByProposal(dbc dbctx.Context, proposalID uuid.UUID) ([]*types.Image, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Image
	if proposalID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("proposal_id = ?", proposalID).
		Order("priority DESC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *imageRepo) GetByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Image, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Image
	if documentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *imageRepo) GetByURL(dbc dbctx.Context, url string) (*types.Image, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if url == "" {
		return nil, nil
	}
	var img types.Image
	err := transaction.WithContext(dbc.Ctx).
		Where("url = ?", url).
		Limit(1).
		Find(&img).Error
	if err != nil {
		return nil, err
	}
	if img.ID == uuid.Nil {
		return nil, nil
	}
	return &img, nil
}

func (r *imageRepo) ExistsBySource(dbc dbctx.Context, proposalID uuid.UUID, source string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if proposalID == uuid.Nil || source == "" {
		return false, nil
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Image{}).
		Where("proposal_id = ? AND source = ?", proposalID, source).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *imageRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Image{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *imageRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Image{}).Error
}
