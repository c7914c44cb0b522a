package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/gopherauth/internal/handlers/render"
	"github.com/nkiryanov/gopherauth/internal/handlers/userctx"
	"github.com/nkiryanov/gopherauth/internal/models"
)

func handleMe() http.Handler {
	type response struct {
		ID    uuid.UUID   `json:"id"`
		Email string      `json:"email"`
		Role  models.Role `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{ID: identity.UserID, Email: identity.Email, Role: identity.Role})
	})
}
