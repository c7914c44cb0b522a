package models

import (
	"time"

	"github.com/google/uuid"
)

// Session makes a refresh token revocable
// Only the digest of the refresh token is stored
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Live reports whether the session is still usable at the given moment
func (s Session) Live(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
