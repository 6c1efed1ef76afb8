package domain

import (
	"time"

	"gorm.io/datatypes"

	aggdomain "github.com/smallbiznis/revenuepulse/internal/aggregation/domain"
)

// ScrapedDataRecord is the persisted outcome of one completed job.
// Records are append-only and unique per job.
type ScrapedDataRecord struct {
	ID        string                         `gorm:"primaryKey;type:text" json:"id"`
	OwnerID   string                         `gorm:"column:owner_id;type:text;not null;index:ix_scraped_data_owner_created,priority:1" json:"ownerId"`
	JobID     string                         `gorm:"column:job_id;type:text;not null;uniqueIndex:ux_scraped_data_job_id" json:"jobId"`
	Data      datatypes.JSONType[RecordData] `gorm:"column:data;not null" json:"data"`
	CreatedAt time.Time                      `gorm:"not null;index:ix_scraped_data_owner_created,priority:2,sort:desc" json:"createdAt"`
	UpdatedAt time.Time                      `gorm:"not null" json:"updatedAt"`
}

func (ScrapedDataRecord) TableName() string {
	return "scraped_data"
}

type RecordData struct {
	Metrics    aggdomain.MetricsResult `json:"metrics"`
	FinishedAt time.Time               `json:"finishedAt"`
}
