package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/gopherauth/internal/apperrors"
	"github.com/nkiryanov/gopherauth/internal/logger"
	"github.com/nkiryanov/gopherauth/internal/models"
	"github.com/nkiryanov/gopherauth/internal/repository"
)

type photoStore interface {
	// Upload photo and return its public url
	Upload(ctx context.Context, userID uuid.UUID, photo models.Photo) (string, error)

	// Delete photo by public url
	Delete(ctx context.Context, url string) error
}

type ProfileService struct {
	storage repository.Storage
	photos  photoStore
	logger  logger.Logger
}

// Photo store may be nil, then profiles can't have photos
func NewService(storage repository.Storage, photos photoStore, l logger.Logger) *ProfileService {
	return &ProfileService{
		storage: storage,
		photos:  photos,
		logger:  l,
	}
}

// Fields user may set
type Input struct {
	Username string
	Bio      string

	// Optional
	Photo *models.Photo
}

func (s *ProfileService) upload(ctx context.Context, userID uuid.UUID, photo *models.Photo) (string, error) {
	if photo == nil {
		return "", nil
	}
	if s.photos == nil {
		return "", fmt.Errorf("%w: photo storage is not configured", apperrors.ErrPhotoUpload)
	}

	return s.photos.Upload(ctx, userID, *photo)
}

// Delete photo, failure is logged only
func (s *ProfileService) forget(ctx context.Context, url string) {
	if url == "" || s.photos == nil {
		return
	}

	if err := s.photos.Delete(ctx, url); err != nil {
		s.logger.Warn("Failed to delete photo", "url", url, "error", err)
	}
}

// Create profile for the user. Created profile is complete
func (s *ProfileService) Create(ctx context.Context, userID uuid.UUID, in Input) (models.Profile, error) {
	var profile models.Profile

	_, err := s.storage.Profile().GetByUserID(ctx, userID)
	switch {
	case err == nil:
		return profile, apperrors.ErrProfileExists
	case !errors.Is(err, apperrors.ErrProfileNotFound):
		return profile, fmt.Errorf("can't create profile. Err: %w", err)
	}

	photoURL, err := s.upload(ctx, userID, in.Photo)
	if err != nil {
		return profile, fmt.Errorf("can't create profile. Err: %w", err)
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		profile, err = storage.Profile().Create(ctx, models.Profile{
			UserID:     userID,
			Username:   strings.TrimSpace(in.Username),
			Bio:        strings.TrimSpace(in.Bio),
			PhotoURL:   photoURL,
			IsComplete: true,
		})
		return err
	})
	if err != nil {
		s.forget(ctx, photoURL)
		return profile, fmt.Errorf("can't create profile. Err: %w", err)
	}

	return profile, nil
}

func (s *ProfileService) Get(ctx context.Context, userID uuid.UUID) (models.Profile, error) {
	return s.storage.Profile().GetByUserID(ctx, userID)
}

// Update username and bio. If photo given it replaces the current one
func (s *ProfileService) Update(ctx context.Context, userID uuid.UUID, in Input) (models.Profile, error) {
	current, err := s.storage.Profile().GetByUserID(ctx, userID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("can't update profile. Err: %w", err)
	}

	photoURL := current.PhotoURL
	if in.Photo != nil {
		photoURL, err = s.upload(ctx, userID, in.Photo)
		if err != nil {
			return models.Profile{}, fmt.Errorf("can't update profile. Err: %w", err)
		}
	}

	var updated models.Profile
	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		updated, err = storage.Profile().Update(ctx, models.Profile{
			UserID:     userID,
			Username:   strings.TrimSpace(in.Username),
			Bio:        strings.TrimSpace(in.Bio),
			PhotoURL:   photoURL,
			IsComplete: true,
		})
		return err
	})
	if err != nil {
		if photoURL != current.PhotoURL {
			s.forget(ctx, photoURL)
		}
		return models.Profile{}, fmt.Errorf("can't update profile. Err: %w", err)
	}

	// Old photo is removed only when the new one is saved
	if photoURL != current.PhotoURL {
		s.forget(ctx, current.PhotoURL)
	}

	return updated, nil
}

// Profile is complete when it exists and marked so
func (s *ProfileService) IsProfileComplete(ctx context.Context, userID uuid.UUID) (bool, error) {
	profile, err := s.storage.Profile().GetByUserID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrProfileNotFound):
		return false, nil
	case err != nil:
		return false, err
	default:
		return profile.IsComplete, nil
	}
}
