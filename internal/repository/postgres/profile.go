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

type ProfileRepo struct {
	DB DBTX
}

const profileColumns = `id, user_id, username, bio, photo_url, is_complete, created_at`

const createProfile = `-- name: CreateProfile
INSERT INTO profiles (id, user_id, username, bio, photo_url, is_complete)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + profileColumns

func (r *ProfileRepo) Create(ctx context.Context, p models.Profile) (models.Profile, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createProfile, p.ID, p.UserID, p.Username, p.Bio, p.PhotoURL, p.IsComplete)
	profile, err := pgx.CollectOneRow(rows, rowToProfile)
	if err != nil {
		return profile, profileError(err)
	}

	return profile, nil
}

const updateProfile = `-- name: UpdateProfile
UPDATE profiles
SET username = $2, bio = $3, photo_url = $4, is_complete = $5
WHERE user_id = $1
RETURNING ` + profileColumns

func (r *ProfileRepo) Update(ctx context.Context, p models.Profile) (models.Profile, error) {
	rows, _ := r.DB.Query(ctx, updateProfile, p.UserID, p.Username, p.Bio, p.PhotoURL, p.IsComplete)
	profile, err := pgx.CollectOneRow(rows, rowToProfile)
	if err != nil {
		return profile, profileError(err)
	}

	return profile, nil
}

const getProfileByUserID = `-- name: GetProfileByUserID
SELECT ` + profileColumns + ` FROM profiles
WHERE user_id = $1
`

func (r *ProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (models.Profile, error) {
	rows, _ := r.DB.Query(ctx, getProfileByUserID, userID)
	profile, err := pgx.CollectOneRow(rows, rowToProfile)
	if err != nil {
		return profile, profileError(err)
	}

	return profile, nil
}

// Translate db errors to well known ones
func profileError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrProfileNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case "profiles_user_id_key":
			return apperrors.ErrProfileExists
		case "profiles_username_key":
			return apperrors.ErrUsernameTaken
		}
	}

	return fmt.Errorf("db error: %w", err)
}

func rowToProfile(row pgx.CollectableRow) (models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.UserID, &p.Username, &p.Bio, &p.PhotoURL, &p.IsComplete, &p.CreatedAt)
	return p, err
}
