package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/gopherauth/internal/apperrors"
	"github.com/nkiryanov/gopherauth/internal/logger"
	"github.com/nkiryanov/gopherauth/internal/models"
)

type userService interface {
	// Has to return apperrors.ErrDuplicateEmail if email is taken
	Register(ctx context.Context, email string, password string, name string) (models.User, error)

	// Has to return apperrors.ErrInvalidCredentials for unknown email or wrong password
	Verify(ctx context.Context, email string, password string) (models.User, error)

	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
}

type tokenManager interface {
	IssueAccess(user models.User) (models.IssuedToken, error)
	IssueRefresh(user models.User) (models.IssuedToken, error)
	Verify(token string, kind models.TokenKind) (models.Claims, error)
	RefreshTTL() time.Duration
}

type sessionService interface {
	OpenUntil(ctx context.Context, userID uuid.UUID, refreshToken string, expiresAt time.Time) (models.Session, error)

	// Has to return apperrors.ErrSessionNotFound if session absent or expired
	FindLive(ctx context.Context, refreshToken string) (models.Session, error)

	Rotate(ctx context.Context, oldToken string, newToken string, expiresAt time.Time) (models.Session, error)
	CloseByToken(ctx context.Context, refreshToken string) error
	CloseAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type profileChecker interface {
	IsProfileComplete(ctx context.Context, userID uuid.UUID) (bool, error)
}

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshToken"
	defaultRefreshCookiePath = "/api/auth"
)

type Config struct {
	// Issue new refresh token on every refresh and close the used one
	RotateRefresh bool

	// Header and scheme for access token. 'Authorization: Bearer <token>' by default
	AccessHeaderName string
	AccessAuthScheme string

	// Refresh token cookie name and path
	RefreshCookieName string
	RefreshCookiePath string

	// Send refresh cookie over https only
	SecureCookie bool
}

type AuthService struct {
	users    userService
	tokens   tokenManager
	sessions sessionService
	profiles profileChecker
	logger   logger.Logger

	rotateRefresh     bool
	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
	refreshCookiePath string
	secureCookie      bool
}

// Profile checker may be nil, then every user is reported with not complete profile
func NewService(cfg Config, tokens tokenManager, users userService, sessions sessionService, profiles profileChecker, l logger.Logger) (*AuthService, error) {
	if tokens == nil || users == nil || sessions == nil {
		return nil, errors.New("token manager, user and session services must not be nil")
	}

	if l == nil {
		l = logger.NewNoOpLogger()
	}

	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefault(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefault(&cfg.RefreshCookieName, defaultRefreshCookieName)
	setDefault(&cfg.RefreshCookiePath, defaultRefreshCookiePath)

	return &AuthService{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		profiles: profiles,
		logger:   l,

		rotateRefresh:     cfg.RotateRefresh,
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		refreshCookiePath: cfg.RefreshCookiePath,
		secureCookie:      cfg.SecureCookie,
	}, nil
}

// Register user. Does not log in
func (s *AuthService) Signup(ctx context.Context, email string, password string, name string) (models.UserView, error) {
	user, err := s.users.Register(ctx, email, password, name)
	if err != nil {
		return models.UserView{}, fmt.Errorf("signup error: %w", err)
	}

	return user.View(), nil
}

// Verify credentials and open new session. Other sessions of the user stay open
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.LoginResult, error) {
	var result models.LoginResult

	user, err := s.users.Verify(ctx, email, password)
	if err != nil {
		return result, fmt.Errorf("login error: %w", err)
	}

	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return result, fmt.Errorf("login error: %w", err)
	}

	refresh, err := s.tokens.IssueRefresh(user)
	if err != nil {
		return result, fmt.Errorf("login error: %w", err)
	}

	if _, err := s.sessions.OpenUntil(ctx, user.ID, refresh.Value, refresh.ExpiresAt); err != nil {
		return result, fmt.Errorf("login error: %w", err)
	}

	view := user.View()
	view.ProfileComplete = s.isProfileComplete(ctx, user.ID)

	return models.LoginResult{Access: access, Refresh: refresh, User: view}, nil
}

// Profile state is a decoration of login response; it never fails login
func (s *AuthService) isProfileComplete(ctx context.Context, userID uuid.UUID) bool {
	if s.profiles == nil {
		return false
	}

	complete, err := s.profiles.IsProfileComplete(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to check profile state", "user_id", userID, "error", err)
		return false
	}

	return complete
}

// Issue new access token for live session
// Token and session problems are reported as apperrors.ErrInvalidOrExpiredToken
// Storage and other failures are returned as is, the token may still be valid
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (models.RefreshResult, error) {
	var result models.RefreshResult

	fail := func(reason string, err error) (models.RefreshResult, error) {
		switch {
		case errors.Is(err, apperrors.ErrSessionNotFound),
			errors.Is(err, apperrors.ErrTokenInvalid),
			errors.Is(err, apperrors.ErrTokenExpired),
			errors.Is(err, apperrors.ErrUserNotFound):
			s.logger.Debug("Refresh rejected", "reason", reason, "error", err)
			return result, fmt.Errorf("refresh error: %w", apperrors.ErrInvalidOrExpiredToken)
		default:
			s.logger.Error("Refresh failed", "reason", reason, "error", err)
			return result, fmt.Errorf("refresh error: %s: %w", reason, err)
		}
	}

	// Session lookup goes first: it purges expired sessions even when the token itself is already rejected
	session, err := s.sessions.FindLive(ctx, refreshToken)
	if err != nil {
		return fail("session", err)
	}

	claims, err := s.tokens.Verify(refreshToken, models.TokenKindRefresh)
	if err != nil {
		return fail("token", err)
	}
	if claims.UserID != session.UserID {
		return fail("token", fmt.Errorf("token user %s does not own session: %w", claims.UserID, apperrors.ErrTokenInvalid))
	}

	// Identity comes from stored user, not from the token
	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		return fail("user", err)
	}

	result.Access, err = s.tokens.IssueAccess(user)
	if err != nil {
		return fail("issue access", err)
	}

	if !s.rotateRefresh {
		return result, nil
	}

	refresh, err := s.tokens.IssueRefresh(user)
	if err != nil {
		return fail("issue refresh", err)
	}
	if _, err := s.sessions.Rotate(ctx, refreshToken, refresh.Value, refresh.ExpiresAt); err != nil {
		return fail("rotate", err)
	}
	result.Refresh = refresh

	return result, nil
}

// Close session of the refresh token. Unknown token is not an error
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	if err := s.sessions.CloseByToken(ctx, refreshToken); err != nil {
		return fmt.Errorf("logout error: %w", err)
	}

	return nil
}

// Close every session of the user
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.sessions.CloseAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("logout error: %w", err)
	}

	s.logger.Info("User sessions closed", "user_id", userID, "count", count)
	return count, nil
}
