package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

type AttributeRepo interface {
	GetByProposal(dbc dbctx.Context, proposalID uuid.UUID) ([]*types.Attribute, error)
	GetByHandle(dbc dbctx.Context, proposalID uuid.UUID, handle string) (*types.Attribute, error)
	// Upsert applies the supersession rule: create when the handle is absent,
	// replace when the incoming published timestamp is strictly newer, ignore
	// otherwise. Returns whether a row was written.
	Upsert(dbc dbctx.Context, attr *types.Attribute) (bool, error)
}

type attributeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttributeRepo(db *gorm.DB, baseLog *logger.Logger) AttributeRepo {
	return &attributeRepo{
		db:  db,
		log: baseLog.With("repo", "AttributeRepo"),
	}
}

func (r *attributeRepo) GetByProposal(dbc dbctx.Context, proposalID uuid.UUID) ([]*types.Attribute, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Attribute
	if proposalID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("proposal_id = ?", proposalID).
		Order("handle ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *attributeRepo) GetByHandle(dbc dbctx.Context, proposalID uuid.UUID, handle string) (*types.Attribute, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if proposalID == uuid.Nil || handle == "" {
		return nil, nil
	}
	var a types.Attribute
	err := transaction.WithContext(dbc.Ctx).
		Where("proposal_id = ? AND handle = ?", proposalID, handle).
		Limit(1).
		Find(&a).Error
	if err != nil {
		return nil, err
	}
	if a.ID == uuid.Nil {
		return nil, nil
	}
	return &a, nil
}

func (r *attributeRepo) Upsert(dbc dbctx.Context, attr *types.Attribute) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if attr == nil || attr.ProposalID == uuid.Nil || attr.Handle == "" {
		return false, nil
	}

	existing, err := r.GetByHandle(dbc, attr.ProposalID, attr.Handle)
	if err != nil {
		return false, err
	}
	if existing == nil {
		if attr.ID == uuid.Nil {
			attr.ID = uuid.New()
		}
		if err := transaction.WithContext(dbc.Ctx).Create(attr).Error; err != nil {
			return false, err
		}
		return true, nil
	}

	// The published guard narrows the concurrent-writer race to same-instant
	// publications; last writer wins there.
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Attribute{}).
		Where("id = ? AND published < ?", existing.ID, attr.Published).
		Updates(map[string]interface{}{
			"name":       attr.Name,
			"text_value": attr.TextValue,
			"date_value": attr.DateValue,
			"published":  attr.Published,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
