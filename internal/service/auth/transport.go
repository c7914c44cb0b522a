package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nkiryanov/gopherauth/internal/apperrors"
	"github.com/nkiryanov/gopherauth/internal/models"
)

// Authenticate request by access token in header
// Only signature and expiry are checked, no storage access
func (s *AuthService) Authenticate(r *http.Request) (models.Identity, error) {
	header := r.Header.Get(s.accessHeaderName)
	if header == "" {
		return models.Identity{}, fmt.Errorf("auth error: header %s is empty: %w", s.accessHeaderName, apperrors.ErrTokenInvalid)
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, s.accessAuthScheme) || strings.TrimSpace(token) == "" {
		return models.Identity{}, fmt.Errorf("auth error: %s scheme expected: %w", s.accessAuthScheme, apperrors.ErrTokenInvalid)
	}

	claims, err := s.tokens.Verify(strings.TrimSpace(token), models.TokenKindAccess)
	if err != nil {
		return models.Identity{}, fmt.Errorf("auth error: %w", err)
	}

	return claims.Identity(), nil
}

// Set refresh token cookie. Cookie lives as long as refresh token
func (s *AuthService) SetRefreshCookie(w http.ResponseWriter, refresh models.IssuedToken) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    refresh.Value,
		Path:     s.refreshCookiePath,
		MaxAge:   int(s.tokens.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// Ask client to forget refresh token cookie
func (s *AuthService) ClearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    "",
		Path:     s.refreshCookiePath,
		MaxAge:   -1, // sent as Max-Age=0
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// Get refresh token from cookie
func (s *AuthService) ReadRefreshCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	switch {
	case errors.Is(err, http.ErrNoCookie):
		return "", fmt.Errorf("cookie %s not found: %w", s.refreshCookieName, apperrors.ErrInvalidOrExpiredToken)
	case err != nil:
		return "", err
	case cookie.Value == "":
		return "", fmt.Errorf("cookie %s is empty: %w", s.refreshCookieName, apperrors.ErrInvalidOrExpiredToken)
	}

	return cookie.Value, nil
}
