package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/gopherauth/internal/apperrors"
	"github.com/nkiryanov/gopherauth/internal/models"
	"github.com/nkiryanov/gopherauth/internal/repository"
)

// SessionService tracks refresh tokens that are still allowed to be used
// Expired sessions are removed lazily, when somebody touches them
type SessionService struct {
	storage repository.Storage
	now     func() time.Time
}

// Clock is time.Now if now is nil
func NewService(storage repository.Storage, now func() time.Time) *SessionService {
	if now == nil {
		now = time.Now
	}

	return &SessionService{storage: storage, now: now}
}

// Digest of the refresh token. Only digest is stored
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Open session for the refresh token that lives ttl from now
func (s *SessionService) Open(ctx context.Context, userID uuid.UUID, refreshToken string, ttl time.Duration) (models.Session, error) {
	if ttl <= 0 {
		return models.Session{}, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}

	return s.OpenUntil(ctx, userID, refreshToken, s.now().Add(ttl))
}

// Open session that expires at the given moment. Usually it is refresh token expiry
func (s *SessionService) OpenUntil(ctx context.Context, userID uuid.UUID, refreshToken string, expiresAt time.Time) (models.Session, error) {
	now := s.now()
	if !now.Before(expiresAt) {
		return models.Session{}, fmt.Errorf("session must expire in future, got %s", expiresAt)
	}

	var session models.Session
	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		var err error
		session, err = storage.Session().Create(ctx, models.Session{
			UserID:    userID,
			TokenHash: HashToken(refreshToken),
			CreatedAt: now,
			ExpiresAt: expiresAt,
		})
		return err
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("can't open session. Err: %w", err)
	}

	return session, nil
}

// Find session that is not expired yet
// Expired session is deleted and reported as apperrors.ErrSessionNotFound
func (s *SessionService) FindLive(ctx context.Context, refreshToken string) (models.Session, error) {
	var session models.Session
	var expired bool

	tokenHash := HashToken(refreshToken)
	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		found, err := storage.Session().GetForUpdate(ctx, tokenHash)
		if err != nil {
			return err
		}

		if !found.Live(s.now()) {
			expired = true
			_, err = storage.Session().DeleteByTokenHash(ctx, tokenHash)
			return err
		}

		session = found
		return nil
	})

	switch {
	case err != nil:
		return models.Session{}, fmt.Errorf("can't find session. Err: %w", err)
	case expired:
		return models.Session{}, apperrors.ErrSessionNotFound
	default:
		return session, nil
	}
}

// Replace session of the old refresh token with session for the new one
// Both happen in one transaction: the old token is unusable once new one issued
func (s *SessionService) Rotate(ctx context.Context, oldToken string, newToken string, expiresAt time.Time) (models.Session, error) {
	var session models.Session

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		old, err := storage.Session().GetForUpdate(ctx, HashToken(oldToken))
		if err != nil {
			return err
		}

		now := s.now()
		if !old.Live(now) {
			return apperrors.ErrSessionNotFound
		}

		if _, err := storage.Session().DeleteByTokenHash(ctx, old.TokenHash); err != nil {
			return err
		}

		session, err = storage.Session().Create(ctx, models.Session{
			UserID:    old.UserID,
			TokenHash: HashToken(newToken),
			CreatedAt: now,
			ExpiresAt: expiresAt,
		})
		return err
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("can't rotate session. Err: %w", err)
	}

	return session, nil
}

// Close session. Closing unknown or already closed session is ok
func (s *SessionService) CloseByToken(ctx context.Context, refreshToken string) error {
	_, err := s.storage.Session().DeleteByTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		return fmt.Errorf("can't close session. Err: %w", err)
	}

	return nil
}

// Close every session of the user. Returns number of closed sessions
func (s *SessionService) CloseAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.storage.Session().DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("can't close user sessions. Err: %w", err)
	}

	return count, nil
}
