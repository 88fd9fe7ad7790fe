package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

type ProposalRepo interface {
	Create(dbc dbctx.Context, proposals []*types.Proposal) ([]*types.Proposal, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Proposal, error)
	GetByCaseNumber(dbc dbctx.Context, caseNumber, regionName string) (*types.Proposal, error)
	LatestUpdated(dbc dbctx.Context, regionName string) (*time.Time, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SetParcel(dbc dbctx.Context, id uuid.UUID, parcelID uuid.UUID) error
}

type proposalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProposalRepo(db *gorm.DB, baseLog *logger.Logger) ProposalRepo {
	return &proposalRepo{
		db:  db,
		log: baseLog.With("repo", "ProposalRepo"),
	}
}

func (r *proposalRepo) Create(dbc dbctx.Context, proposals []*types.Proposal) ([]*types.Proposal, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(proposals) == 0 {
		return []*types.Proposal{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&proposals).Error; err != nil {
		return nil, err
	}
	return proposals, nil
}

func (r *proposalRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Proposal, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Proposal
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

func (r *proposalRepo) GetByCaseNumber(dbc dbctx.Context, caseNumber, regionName string) (*types.Proposal, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if caseNumber == "" || regionName == "" {
		return nil, nil
	}
	var p types.Proposal
	err := transaction.WithContext(dbc.Ctx).
		Where("case_number = ? AND region_name = ?", caseNumber, regionName).
		Limit(1).
		Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}

// LatestUpdated returns the newest proposal update timestamp, optionally
// scoped to one region. Nil when no proposals exist.
func (r *proposalRepo) LatestUpdated(dbc dbctx.Context, regionName string) (*time.Time, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.Proposal{})
	if regionName != "" {
		q = q.Where("region_name = ?", regionName)
	}
	var p types.Proposal
	err := q.Order("updated DESC").Limit(1).Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	t := p.Updated
	return &t, nil
}

func (r *proposalRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Proposal{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *proposalRepo) SetParcel(dbc dbctx.Context, id uuid.UUID, parcelID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || parcelID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Proposal{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"parcel_id":  parcelID,
			"updated_at": time.Now(),
		}).Error
}
