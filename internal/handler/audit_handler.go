package handler

import (
	"net/http"
	"strings"
	"time"

	"go-admin-portal/internal/model"
	"go-admin-portal/internal/service"
	"go-admin-portal/pkg/apierror"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List returns audit entries visible to the caller's role.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	user, _, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	query := r.URL.Query()

	from, err := parseTime(query.Get("from"))
	if err != nil {
		writeError(w, apierror.BadRequest("from must be an RFC 3339 timestamp", query.Get("from")))
		return
	}
	to, err := parseTime(query.Get("to"))
	if err != nil {
		writeError(w, apierror.BadRequest("to must be an RFC 3339 timestamp", query.Get("to")))
		return
	}

	items, meta, err := h.service.Query(r.Context(), user, model.AuditQuery{
		Action:     strings.TrimSpace(query.Get("action")),
		ActorID:    strings.TrimSpace(query.Get("actor_id")),
		TargetType: strings.TrimSpace(query.Get("target_type")),
		TargetID:   strings.TrimSpace(query.Get("target_id")),
		Severity:   strings.TrimSpace(query.Get("severity")),
		From:       from,
		To:         to,
		Page:       parseIntOrDefault(query.Get("page"), 1),
		Limit:      parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AuditListData{Items: items}, &meta)
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
