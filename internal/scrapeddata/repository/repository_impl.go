package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/smallbiznis/revenuepulse/internal/scrapeddata/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.ScrapedDataRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID string, jobID *string, limit int) ([]domain.ScrapedDataRecord, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.ScrapedDataRecord{}).
		Where("owner_id = ?", ownerID)
	if jobID != nil {
		stmt = stmt.Where("job_id = ?", *jobID)
	}
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	records := []domain.ScrapedDataRecord{}
	err := stmt.
		Order("created_at desc, id desc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) FindByOwnerAndJob(ctx context.Context, db *gorm.DB, ownerID, jobID string) (*domain.ScrapedDataRecord, error) {
	var record domain.ScrapedDataRecord
	err := db.WithContext(ctx).
		Where("owner_id = ? AND job_id = ?", ownerID, jobID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
