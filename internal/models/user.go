package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether the role is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// Allows reports whether a holder of the role may access something that requires the given role
func (r Role) Allows(required Role) bool {
	switch required {
	case RoleUser:
		return r == RoleUser || r == RoleAdmin
	case RoleAdmin:
		return r == RoleAdmin
	default:
		return false
	}
}

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Email          string
	Name           string
	HashedPassword string
	Role           Role
}

// Public representation of the user. Never carries the password hash
type UserView struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Role            Role      `json:"role"`
	CreatedAt       time.Time `json:"createdAt"`
	ProfileComplete bool      `json:"profileComplete"`
}

func (u User) View() UserView {
	return UserView{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// Identity of the caller, derived once from a verified access token
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   Role
}
