package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/gopherauth/internal/apperrors"
	"github.com/nkiryanov/gopherauth/internal/handlers/render"
	"github.com/nkiryanov/gopherauth/internal/handlers/userctx"
	"github.com/nkiryanov/gopherauth/internal/logger"
	"github.com/nkiryanov/gopherauth/internal/models"
	"github.com/nkiryanov/gopherauth/internal/service/photostore"
	"github.com/nkiryanov/gopherauth/internal/service/profile"
)

const (
	photoField = "photo"

	// Room for the text fields and multipart framing on top of the photo itself
	maxProfileBody = photostore.MaxPhotoSize + 1<<20
)

type profileRequest struct {
	Username string `form:"username" validate:"required,min=2,max=100,username"`
	Bio      string `form:"bio" validate:"required,min=2,max=100"`
}

type profileResponse struct {
	ID              uuid.UUID `json:"id"`
	Username        string    `json:"username"`
	Bio             string    `json:"bio"`
	ProfilePhotoURL string    `json:"profilePhotoUrl,omitempty"`
	IsComplete      bool      `json:"isComplete"`
	CreatedAt       time.Time `json:"createdAt"`
}

func newProfileResponse(p models.Profile) profileResponse {
	return profileResponse{
		ID:              p.ID,
		Username:        p.Username,
		Bio:             p.Bio,
		ProfilePhotoURL: p.PhotoURL,
		IsComplete:      p.IsComplete,
		CreatedAt:       p.CreatedAt,
	}
}

// Parse multipart profile form. Writes error response on failure
func bindProfile(w http.ResponseWriter, r *http.Request) (profile.Input, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxProfileBody)

	if err := r.ParseMultipartForm(maxProfileBody); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			render.ServiceError(w, "Request body is too large", http.StatusRequestEntityTooLarge)
		} else {
			render.ServiceError(w, "Invalid multipart form", http.StatusBadRequest)
		}
		return profile.Input{}, err
	}

	data := profileRequest{
		Username: r.FormValue("username"),
		Bio:      r.FormValue("bio"),
	}
	if err := render.Validate(w, data); err != nil {
		return profile.Input{}, err
	}

	photo, err := readPhoto(r)
	if err != nil {
		render.ServiceError(w, "Invalid photo", http.StatusBadRequest)
		return profile.Input{}, err
	}

	return profile.Input{Username: data.Username, Bio: data.Bio, Photo: photo}, nil
}

// Photo is optional, nil returned if it was not sent
func readPhoto(r *http.Request) (*models.Photo, error) {
	file, header, err := r.FormFile(photoField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return nil, nil
	case err != nil:
		return nil, err
	}
	defer file.Close() // nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(file, photostore.MaxPhotoSize+1))
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}

	return &models.Photo{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        data,
	}, nil
}

func renderProfileError(w http.ResponseWriter, l logger.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrProfileExists):
		render.ServiceError(w, "Profile already exists", http.StatusConflict)
	case errors.Is(err, apperrors.ErrUsernameTaken):
		render.ServiceError(w, "Username already taken", http.StatusConflict)
	case errors.Is(err, apperrors.ErrProfileNotFound):
		render.ServiceError(w, "Profile not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrPhotoInvalid):
		render.ServiceError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrPhotoUpload):
		l.Error("Photo upload failed", "error", err)
		render.ServiceError(w, "Failed to upload photo", http.StatusBadGateway)
	default:
		l.Error("Profile operation failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func handleCreateProfile(profileService profileService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		in, err := bindProfile(w, r)
		if err != nil {
			return
		}

		p, err := profileService.Create(r.Context(), identity.UserID, in)
		if err != nil {
			renderProfileError(w, l, err)
			return
		}

		render.Created(w, newProfileResponse(p))
	})
}

func handleGetProfile(profileService profileService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		p, err := profileService.Get(r.Context(), identity.UserID)
		if err != nil {
			renderProfileError(w, l, err)
			return
		}

		render.JSON(w, newProfileResponse(p))
	})
}

func handleUpdateProfile(profileService profileService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		in, err := bindProfile(w, r)
		if err != nil {
			return
		}

		p, err := profileService.Update(r.Context(), identity.UserID, in)
		if err != nil {
			renderProfileError(w, l, err)
			return
		}

		render.JSON(w, newProfileResponse(p))
	})
}
