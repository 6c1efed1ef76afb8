package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *ScrapedDataRecord) error
	// ListByOwner returns newest records first. A nil jobID matches all jobs.
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID string, jobID *string, limit int) ([]ScrapedDataRecord, error)
	FindByOwnerAndJob(ctx context.Context, db *gorm.DB, ownerID, jobID string) (*ScrapedDataRecord, error)
}
