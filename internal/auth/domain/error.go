package domain

import "errors"

var (
	ErrSessionNotFound = errors.New("session_not_found")
	ErrSessionExpired  = errors.New("session_expired")
	ErrSessionRevoked  = errors.New("session_revoked")
	ErrInvalidSession  = errors.New("invalid_session")
)
