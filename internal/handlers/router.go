package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/gopherauth/internal/handlers/middleware"
	"github.com/nkiryanov/gopherauth/internal/logger"
	"github.com/nkiryanov/gopherauth/internal/models"
	"github.com/nkiryanov/gopherauth/internal/service/profile"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	profileService profileService,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)
	withAdmin := func(h http.Handler) http.Handler {
		return chain(h, withAuth, middleware.RequireRole(models.RoleAdmin))
	}

	apiauth := http.NewServeMux()
	apiauth.Handle("POST /signup", handleSignup(authService, logger))
	apiauth.Handle("POST /login", handleLogin(authService, logger))
	apiauth.Handle("POST /refresh", handleRefresh(authService, logger))
	apiauth.Handle("POST /logout", handleLogout(authService, logger))
	apiauth.Handle("POST /logout-all", withAuth(handleLogoutAll(authService, logger)))
	apiauth.Handle("GET /me", withAuth(handleMe()))

	apiusers := http.NewServeMux()
	apiusers.Handle("POST /profile", withAuth(handleCreateProfile(profileService, logger)))
	apiusers.Handle("GET /profile", withAuth(handleGetProfile(profileService, logger)))
	apiusers.Handle("PUT /profile", withAuth(handleUpdateProfile(profileService, logger)))

	apiadmin := http.NewServeMux()
	apiadmin.Handle("DELETE /users/{id}/sessions", withAdmin(handleAdminLogoutAll(authService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("/api/users/", http.StripPrefix("/api/users", apiusers))
	root.Handle("/api/admin/", http.StripPrefix("/api/admin", apiadmin))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user with email, password and name
	// Has to return apperrors.ErrDuplicateEmail if email is taken
	Signup(ctx context.Context, email string, password string, name string) (models.UserView, error)

	// Has to return apperrors.ErrInvalidCredentials if email or password are wrong
	Login(ctx context.Context, email string, password string) (models.LoginResult, error)

	// Issue new access token
	// Has to return apperrors.ErrInvalidOrExpiredToken on any token or session problem
	// Other errors mean the token state is unknown
	Refresh(ctx context.Context, refreshToken string) (models.RefreshResult, error)

	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error)

	// Get request and return caller identity if it authenticated or error
	Authenticate(r *http.Request) (models.Identity, error)

	SetRefreshCookie(w http.ResponseWriter, refresh models.IssuedToken)
	ClearRefreshCookie(w http.ResponseWriter)
	ReadRefreshCookie(r *http.Request) (string, error)
}

type profileService interface {
	// Has to return apperrors.ErrProfileExists or apperrors.ErrUsernameTaken on conflicts
	Create(ctx context.Context, userID uuid.UUID, in profile.Input) (models.Profile, error)

	// Has to return apperrors.ErrProfileNotFound if user has no profile
	Get(ctx context.Context, userID uuid.UUID) (models.Profile, error)
	Update(ctx context.Context, userID uuid.UUID, in profile.Input) (models.Profile, error)
}
