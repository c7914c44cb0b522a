package middleware

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/gopherauth/internal/apperrors"
	"github.com/nkiryanov/gopherauth/internal/handlers/render"
	"github.com/nkiryanov/gopherauth/internal/handlers/userctx"
	"github.com/nkiryanov/gopherauth/internal/models"
)

type authService interface {
	Authenticate(r *http.Request) (models.Identity, error)
}

// Put identity of authenticated caller into request context or reject request
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := as.Authenticate(r)
			switch {
			case errors.Is(err, apperrors.ErrTokenExpired):
				render.ServiceError(w, "Access token expired", http.StatusUnauthorized)
				return
			case err != nil:
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Allow request only if caller role allows the required one
// Has to be used after AuthMiddleware
func RequireRole(required models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := userctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !identity.Role.Allows(required) {
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
