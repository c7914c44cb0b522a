package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/gopherauth/internal/apperrors"
	"github.com/nkiryanov/gopherauth/internal/handlers/render"
	"github.com/nkiryanov/gopherauth/internal/handlers/userctx"
	"github.com/nkiryanov/gopherauth/internal/logger"
	"github.com/nkiryanov/gopherauth/internal/models"
)

const tokenType = "Bearer"

type accessResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func handleSignup(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,max=128"`
		Name     string `json:"name" validate:"max=100"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		view, err := authService.Signup(r.Context(), data.Email, data.Password, data.Name)
		switch {
		case err == nil:
			render.Created(w, view)
		case errors.Is(err, apperrors.ErrDuplicateEmail):
			render.ServiceError(w, "Email already registered", http.StatusConflict)
		default:
			l.Error("Failed to sign up", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	type response struct {
		accessResponse
		User models.UserView `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := authService.Login(r.Context(), data.Email, data.Password)
		switch {
		case err == nil:
			authService.SetRefreshCookie(w, res.Refresh)
			render.JSON(w, response{
				accessResponse: accessResponse{AccessToken: res.Access.Value, TokenType: tokenType, ExpiresAt: res.Access.ExpiresAt},
				User:           res.User,
			})
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
		default:
			l.Error("Failed to log in", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleRefresh(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := authService.ReadRefreshCookie(r)
		if err != nil {
			render.ServiceError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
			return
		}

		res, err := authService.Refresh(r.Context(), refresh)
		switch {
		case errors.Is(err, apperrors.ErrInvalidOrExpiredToken):
			authService.ClearRefreshCookie(w)
			render.ServiceError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
			return
		case err != nil:
			// Cookie is kept: the token is not known to be bad
			l.Error("Failed to refresh", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if res.Rotated() {
			authService.SetRefreshCookie(w, res.Refresh)
		}
		render.JSON(w, accessResponse{AccessToken: res.Access.Value, TokenType: tokenType, ExpiresAt: res.Access.ExpiresAt})
	})
}

type messageResponse struct {
	Message string `json:"message"`
}

type closedResponse struct {
	Message string `json:"message"`
	Closed  int64  `json:"closed"`
}

// Logout never fails for client: missing or unknown token means there is nothing to close
func handleLogout(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, _ := authService.ReadRefreshCookie(r)

		if err := authService.Logout(r.Context(), refresh); err != nil {
			l.Error("Failed to log out", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		authService.ClearRefreshCookie(w)
		render.JSON(w, messageResponse{Message: "Logged out successfully"})
	})
}

func handleLogoutAll(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		closed, err := authService.LogoutAll(r.Context(), identity.UserID)
		if err != nil {
			l.Error("Failed to log out everywhere", "user_id", identity.UserID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		authService.ClearRefreshCookie(w)
		render.JSON(w, closedResponse{Message: "Logged out from all devices", Closed: closed})
	})
}

func handleAdminLogoutAll(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
			return
		}

		closed, err := authService.LogoutAll(r.Context(), userID)
		if err != nil {
			l.Error("Failed to close user sessions", "user_id", userID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		admin, _ := userctx.FromContext(r.Context())
		l.Info("Admin closed user sessions", "admin_id", admin.UserID, "user_id", userID, "count", closed)
		render.JSON(w, closedResponse{Message: "User sessions closed", Closed: closed})
	})
}
