package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Document, error)
	GetByProposal(dbc dbctx.Context, proposalID uuid.UUID) ([]*types.Document, error)
	GetByURL(dbc dbctx.Context, proposalID uuid.UUID, url string) (*types.Document, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{
		db:  db,
		log: baseLog.With("repo", "DocumentRepo"),
	}
}

func (r *documentRepo) Create(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(docs) == 0 {
		return []*types.Document{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Document
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

func (r *documentRepo) GetByProposal(dbc dbctx.Context, proposalID uuid.UUID) ([]*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Document
	if proposalID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("proposal_id = ?", proposalID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) GetByURL(dbc dbctx.Context, proposalID uuid.UUID, url string) (*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if proposalID == uuid.Nil || url == "" {
		return nil, nil
	}
	var d types.Document
	err := transaction.WithContext(dbc.Ctx).
		Where("proposal_id = ? AND url = ?", proposalID, url).
		Limit(1).
		Find(&d).Error
	if err != nil {
		return nil, err
	}
	if d.ID == uuid.Nil {
		return nil, nil
	}
	return &d, nil
}

func (r *documentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}
