package handler

import (
	"net/http"

	"go-admin-portal/internal/model"
)

// PageHandler is the entry point for the business pages. Access has already
// been decided by the auth middleware; the payload only confirms it.
type PageHandler struct{}

func NewPageHandler() *PageHandler {
	return &PageHandler{}
}

func (h *PageHandler) Show(page model.Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _, err := caller(r)
		if err != nil {
			writeError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, map[string]any{
			"page": page,
			"user": user.Public(),
		}, nil)
	}
}
