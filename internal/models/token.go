package models

import (
	"time"

	"github.com/google/uuid"
)

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Claims extracted from a verified token
type Claims struct {
	ID        string
	Subject   string // user email
	UserID    uuid.UUID
	Role      Role
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (c Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Subject, Role: c.Role}
}

// Returned by AuthService on successful login
type LoginResult struct {
	Access  IssuedToken
	Refresh IssuedToken
	User    UserView
}

// Returned by AuthService on refresh
// Refresh is zero value unless the refresh token was rotated
type RefreshResult struct {
	Access  IssuedToken
	Refresh IssuedToken
}

func (r RefreshResult) Rotated() bool {
	return r.Refresh.Value != ""
}
