package apperrors

import (
	"errors"
)

var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")

	ErrTokenInvalid          = errors.New("token is invalid")
	ErrTokenExpired          = errors.New("token is expired")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired refresh token")

	ErrSessionNotFound = errors.New("session not found")

	ErrProfileExists   = errors.New("profile already exists for this user")
	ErrProfileNotFound = errors.New("profile not found")
	ErrUsernameTaken   = errors.New("username already taken")

	ErrPhotoInvalid = errors.New("photo is invalid")
	ErrPhotoUpload  = errors.New("photo upload failed")
)
