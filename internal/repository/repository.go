package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/gopherauth/internal/models"
)

type Storage interface {
	User() UserRepo
	Session() SessionRepo
	Profile() ProfileRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	// Nested calls run in savepoints
	InTx(ctx context.Context, fn func(Storage) error) error
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with the email exists already has to return error apperrors.ErrDuplicateEmail
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// Session repository interface
type SessionRepo interface {
	// Save session. Token hash must be unique across all sessions
	Create(ctx context.Context, session models.Session) (models.Session, error)

	// Get session by token hash and lock the row until the transaction ends
	// If not found must return apperrors.ErrSessionNotFound
	GetForUpdate(ctx context.Context, tokenHash string) (models.Session, error)

	// Delete session by token hash. Deleting absent session is not an error
	DeleteByTokenHash(ctx context.Context, tokenHash string) (deleted bool, err error)

	// Delete every session of the user
	DeleteByUser(ctx context.Context, userID uuid.UUID) (count int64, err error)
}

// Profile repository interface
type ProfileRepo interface {
	// Create profile
	// Has to return apperrors.ErrProfileExists if user has profile already
	// Has to return apperrors.ErrUsernameTaken if username is used by other profile
	Create(ctx context.Context, profile models.Profile) (models.Profile, error)

	// Update username, bio, photo url and completion flag
	// Has to return apperrors.ErrUsernameTaken if username is used by other profile
	Update(ctx context.Context, profile models.Profile) (models.Profile, error)

	// If not found must return apperrors.ErrProfileNotFound
	GetByUserID(ctx context.Context, userID uuid.UUID) (models.Profile, error)
}
