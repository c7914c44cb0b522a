package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/gopherauth/internal/apperrors"
	"github.com/nkiryanov/gopherauth/internal/models"
	"github.com/nkiryanov/gopherauth/internal/repository"
)

// UserService keeps user credentials
type UserService struct {
	hasher  PasswordHasher
	storage repository.Storage

	// Hash compared when user not found, so response time does not reveal whether email is registered
	// Empty if hasher failed to build it
	dummyHash string
}

func NewService(hasher PasswordHasher, storage repository.Storage) *UserService {
	if hasher == nil {
		hasher = DefaultHasher
	}

	// Built before the first login, so unknown email never costs an extra hash
	dummyHash, _ := hasher.Hash(context.Background(), "not-a-real-password")

	return &UserService{
		hasher:    hasher,
		storage:   storage,
		dummyHash: dummyHash,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register user with role USER
// Returns apperrors.ErrDuplicateEmail if email (case insensitive) is taken
func (s *UserService) Register(ctx context.Context, email string, password string, name string) (models.User, error) {
	var user models.User

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return user, errors.New("email and password must not be empty")
	}

	// Fast path only. Unique index decides when two signups race
	_, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return user, fmt.Errorf("can't create user. Err: %w", apperrors.ErrDuplicateEmail)
	case !errors.Is(err, apperrors.ErrUserNotFound):
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err = storage.User().CreateUser(ctx, models.User{
			Email:          email,
			Name:           strings.TrimSpace(name),
			HashedPassword: hash,
			Role:           models.RoleUser,
		})
		return err
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// Verify email and password pair
// Unknown email and wrong password are reported the same way: apperrors.ErrInvalidCredentials
func (s *UserService) Verify(ctx context.Context, email string, password string) (models.User, error) {
	user, err := s.storage.User().GetUserByEmail(ctx, normalizeEmail(email))

	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		if s.dummyHash != "" {
			_ = s.hasher.Compare(ctx, s.dummyHash, password)
		}
		return models.User{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, fmt.Errorf("can't verify user. Err: %w", err)
	}

	if err := s.hasher.Compare(ctx, user.HashedPassword, password); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.User{}, fmt.Errorf("can't verify user. Err: %w", ctxErr)
		}
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}
