package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/gopherauth/internal/apperrors"
	"github.com/nkiryanov/gopherauth/internal/models"
)

var errSessionTokenTaken = errors.New("session with the token already exists")

type SessionRepo struct {
	DB DBTX
}

const createSession = `-- name: CreateSession
INSERT INTO sessions (id, user_id, token_hash, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, user_id, token_hash, created_at, expires_at
`

func (r *SessionRepo) Create(ctx context.Context, s models.Session) (models.Session, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createSession, s.ID, s.UserID, s.TokenHash, s.CreatedAt, s.ExpiresAt)
	session, err := pgx.CollectOneRow(rows, rowToSession)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return session, fmt.Errorf("db error: %w", errSessionTokenTaken)
		}

		return session, fmt.Errorf("db error: %w", err)
	}

	return session, nil
}

const getSessionForUpdate = `-- name: GetSessionForUpdate
SELECT id, user_id, token_hash, created_at, expires_at
FROM sessions
WHERE token_hash = $1
FOR UPDATE
`

// Get session and lock it. Makes sense inside transaction only
func (r *SessionRepo) GetForUpdate(ctx context.Context, tokenHash string) (models.Session, error) {
	rows, _ := r.DB.Query(ctx, getSessionForUpdate, tokenHash)
	session, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, pgx.ErrNoRows):
		return session, fmt.Errorf("repo error: %w", apperrors.ErrSessionNotFound)
	default:
		return session, fmt.Errorf("db error: %w", err)
	}
}

const deleteSessionByTokenHash = `-- name: DeleteSessionByTokenHash
DELETE FROM sessions
WHERE token_hash = $1
`

func (r *SessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) (bool, error) {
	tag, err := r.DB.Exec(ctx, deleteSessionByTokenHash, tokenHash)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

const deleteSessionsByUser = `-- name: DeleteSessionsByUser
DELETE FROM sessions
WHERE user_id = $1
`

func (r *SessionRepo) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteSessionsByUser, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

func rowToSession(row pgx.CollectableRow) (models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt)
	return s, err
}
