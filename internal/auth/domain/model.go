// Package domain holds the session contract the gateway relies on to
// identify a submitter. Sessions are issued elsewhere; this service only
// reads them.
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Session is a login issued by the auth collaborator. Only the token hash
// is stored.
type Session struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	UserID           string       `gorm:"column:user_id;type:text;not null;index"`
	SessionTokenHash string       `gorm:"column:session_token_hash;type:text;not null;uniqueIndex"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time   `gorm:"column:revoked_at"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at;not null"`
}

func (Session) TableName() string { return "sessions" }

// Validate reports why the session cannot identify an owner at now.
func (s Session) Validate(now time.Time) error {
	switch {
	case s.RevokedAt != nil:
		return ErrSessionRevoked
	case now.After(s.ExpiresAt):
		return ErrSessionExpired
	case strings.TrimSpace(s.UserID) == "":
		return ErrInvalidSession
	}
	return nil
}

type Service interface {
	Authenticate(ctx context.Context, rawToken string) (*Session, error)
}

type Repository interface {
	FindByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*Session, error)
	Touch(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
