package repos

import (
	"gorm.io/gorm"

	"github.com/civiclens/civiclens-backend/internal/data/repos/jobs"
	"github.com/civiclens/civiclens-backend/internal/data/repos/planning"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

type ProposalRepo = planning.ProposalRepo
type DocumentRepo = planning.DocumentRepo
type ImageRepo = planning.ImageRepo
type AttributeRepo = planning.AttributeRepo
type EventRepo = planning.EventRepo
type ParcelRepo = planning.ParcelRepo

type JobRunRepo = jobs.JobRunRepo

func NewProposalRepo(db *gorm.DB, baseLog *logger.Logger) ProposalRepo {
	return planning.NewProposalRepo(db, baseLog)
}
func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return planning.NewDocumentRepo(db, baseLog)
}
func NewImageRepo(db *gorm.DB, baseLog *logger.Logger) ImageRepo {
	return planning.NewImageRepo(db, baseLog)
}
func NewAttributeRepo(db *gorm.DB, baseLog *logger.Logger) AttributeRepo {
	return planning.NewAttributeRepo(db, baseLog)
}
func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return planning.NewEventRepo(db, baseLog)
}
func NewParcelRepo(db *gorm.DB, baseLog *logger.Logger) ParcelRepo {
	return planning.NewParcelRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
