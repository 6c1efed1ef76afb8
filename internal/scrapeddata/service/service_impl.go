package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	"github.com/smallbiznis/revenuepulse/internal/scrapeddata/domain"
	"github.com/smallbiznis/revenuepulse/pkg/db"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	clock   clock.Clock
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("scrapeddata.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Save(ctx context.Context, req domain.SaveRequest) (*domain.ScrapedDataRecord, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return nil, domain.ErrInvalidOwner
	}
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		return nil, domain.ErrInvalidJobID
	}

	now := s.clock.Now().UTC()
	finishedAt := req.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = now
	}

	record := &domain.ScrapedDataRecord{
		ID:      s.genID.Generate().String(),
		OwnerID: ownerID,
		JobID:   jobID,
		Data: datatypes.NewJSONType(domain.RecordData{
			Metrics:    req.Metrics,
			FinishedAt: finishedAt.UTC(),
		}),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("%w: job %s", domain.ErrDuplicateRecord, jobID)
		}
		return nil, fmt.Errorf("insert scraped data: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordResultStored(ctx)
	}
	s.log.Info("scrapeddata.saved",
		zap.String("record_id", record.ID),
		zap.String("job_id", jobID),
		zap.String("owner_id", ownerID),
	)
	return record, nil
}

func (s *Service) List(ctx context.Context, ownerID string, limit int) ([]domain.ScrapedDataRecord, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrInvalidOwner
	}
	if limit <= 0 || limit > domain.MaxListLimit {
		limit = domain.MaxListLimit
	}
	return s.repo.ListByOwner(ctx, s.db, ownerID, nil, limit)
}

func (s *Service) Get(ctx context.Context, ownerID, jobID string) (*domain.ScrapedDataRecord, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrInvalidOwner
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, domain.ErrInvalidJobID
	}

	record, err := s.repo.FindByOwnerAndJob(ctx, s.db, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}
