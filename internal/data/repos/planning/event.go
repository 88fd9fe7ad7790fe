package planning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

type EventRepo interface {
	// UpsertByTitleDate creates the event or merges into the existing
	// (title, date) row, returning the stored row.
	UpsertByTitleDate(dbc dbctx.Context, ev *types.Event) (*types.Event, error)
	GetByTitleDate(dbc dbctx.Context, title string, date time.Time) (*types.Event, error)
	LatestDateForRegion(dbc dbctx.Context, regionName string) (*time.Time, error)
	ReplaceCases(dbc dbctx.Context, eventID uuid.UUID, caseNumbers []string) error
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return &eventRepo{
		db:  db,
		log: baseLog.With("repo", "EventRepo"),
	}
}

func (r *eventRepo) GetByTitleDate(dbc dbctx.Context, title string, date time.Time) (*types.Event, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if title == "" || date.IsZero() {
		return nil, nil
	}
	var ev types.Event
	err := transaction.WithContext(dbc.Ctx).
		Where("title = ? AND date = ?", title, date).
		Limit(1).
		Find(&ev).Error
	if err != nil {
		return nil, err
	}
	if ev.ID == uuid.Nil {
		return nil, nil
	}
	return &ev, nil
}

func (r *eventRepo) UpsertByTitleDate(dbc dbctx.Context, ev *types.Event) (*types.Event, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if ev == nil || ev.Title == "" || ev.Date.IsZero() {
		return nil, nil
	}

	existing, err := r.GetByTitleDate(dbc, ev.Title, ev.Date)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if ev.ID == uuid.Nil {
			ev.ID = uuid.New()
		}
		if err := transaction.WithContext(dbc.Ctx).Omit("CaseNumbers").Create(ev).Error; err != nil {
			return nil, err
		}
		return ev, nil
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if ev.Description != "" {
		updates["description"] = ev.Description
	}
	if ev.Location != "" {
		updates["location"] = ev.Location
	}
	if ev.DurationMinutes > 0 {
		updates["duration_minutes"] = ev.DurationMinutes
	}
	if ev.RegionName != "" {
		updates["region_name"] = ev.RegionName
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Event{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	return r.GetByTitleDate(dbc, ev.Title, ev.Date)
}

func (r *eventRepo) LatestDateForRegion(dbc dbctx.Context, regionName string) (*time.Time, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.Event{})
	if regionName != "" {
		q = q.Where("region_name = ?", regionName)
	}
	var ev types.Event
	err := q.Order("date DESC").Limit(1).Find(&ev).Error
	if err != nil {
		return nil, err
	}
	if ev.ID == uuid.Nil {
		return nil, nil
	}
	t := ev.Date
	return &t, nil
}

func (r *eventRepo) ReplaceCases(dbc dbctx.Context, eventID uuid.UUID, caseNumbers []string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if eventID == uuid.Nil {
		return nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("event_id = ?", eventID).
		Delete(&types.EventCase{}).Error; err != nil {
		return err
	}
	if len(caseNumbers) == 0 {
		return nil
	}
	rows := make([]*types.EventCase, 0, len(caseNumbers))
	seen := map[string]bool{}
	for _, cn := range caseNumbers {
		if cn == "" || seen[cn] {
			continue
		}
		seen[cn] = true
		rows = append(rows, &types.EventCase{
			ID:         uuid.New(),
			EventID:    eventID,
			CaseNumber: cn,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(&rows).Error
}
