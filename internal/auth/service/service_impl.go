package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/revenuepulse/internal/auth/domain"
	"github.com/smallbiznis/revenuepulse/internal/clock"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("auth.service"),
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Session, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.repo.FindByTokenHash(ctx, s.db, HashToken(token))
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, domain.ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := session.Validate(now); err != nil {
		return nil, err
	}

	if err := s.repo.Touch(ctx, s.db, session.ID, now); err != nil {
		s.log.Warn("session touch failed", zap.Error(err))
	}
	return session, nil
}

// HashToken returns the hex SHA-256 of a raw session token, the form in
// which tokens are stored.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
