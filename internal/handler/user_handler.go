package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-admin-portal/internal/model"
	"go-admin-portal/internal/service"
	"go-admin-portal/internal/validation"
	"go-admin-portal/pkg/apierror"
)

type UserHandler struct {
	users       *service.UserService
	permissions *service.PermissionService
}

func NewUserHandler(users *service.UserService, permissions *service.PermissionService) *UserHandler {
	return &UserHandler{users: users, permissions: permissions}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := model.UserQuery{
		Search: strings.TrimSpace(query.Get("search")),
		Page:   parseIntOrDefault(query.Get("page"), 1),
		Limit:  parseIntOrDefault(query.Get("limit"), 20),
	}

	if raw := strings.TrimSpace(query.Get("role")); raw != "" {
		role, err := model.ParseRole(raw)
		if err != nil {
			writeError(w, apierror.BadRequest("invalid role filter", raw))
			return
		}
		filter.Role = &role
	}

	if raw := strings.TrimSpace(query.Get("is_active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, apierror.BadRequest("is_active must be a boolean", raw))
			return
		}
		filter.Active = &active
	}

	items, meta, err := h.users.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.UserListData{Items: items}, &meta)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.CreateUserRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := validation.Struct(payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Create(r.Context(), actor, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user, nil)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, apierror.BadRequest("user id is required", "id"))
		return
	}

	user, err := h.users.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, apierror.BadRequest("user id is required", "id"))
		return
	}

	var payload model.UpdateUserRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := validation.Struct(payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Update(r.Context(), actor, userID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, _, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, apierror.BadRequest("user id is required", "id"))
		return
	}

	user, err := h.users.Deactivate(r.Context(), actor, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

// SetPageAccess grants or revokes one page for a user:
// PUT /users/{id}/page-access/{page}?has_access=true|false
func (h *UserHandler) SetPageAccess(w http.ResponseWriter, r *http.Request) {
	actor, _, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := model.ParsePage(chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, apierror.BadRequest("unknown page", chi.URLParam(r, "page")))
		return
	}

	hasAccess, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get("has_access")))
	if err != nil {
		writeError(w, apierror.BadRequest("has_access must be true or false", "has_access"))
		return
	}

	change, err := h.permissions.SetOverride(r.Context(), actor, chi.URLParam(r, "id"), page, hasAccess)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, change, nil)
}

func (h *UserHandler) ClearPageAccess(w http.ResponseWriter, r *http.Request) {
	actor, _, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := model.ParsePage(chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, apierror.BadRequest("unknown page", chi.URLParam(r, "page")))
		return
	}

	change, err := h.permissions.ClearOverride(r.Context(), actor, chi.URLParam(r, "id"), page)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, change, nil)
}

func (h *UserHandler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	user, _, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	permissions, err := h.permissions.Permissions(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"permissions": permissions}, nil)
}
