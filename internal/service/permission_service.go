package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-admin-portal/internal/metrics"
	"go-admin-portal/internal/model"
)

// RoleDefault reports the static access of role to page. Unknown roles or
// pages have no access.
func RoleDefault(role model.Role, page model.Page) bool {
	return model.DefaultAccess(role, page)
}

type PermissionService struct {
	users     UserStore
	overrides OverrideStore
	changes   AccessChangeStore
	audit     TxAudit
	now       func() time.Time
}

func NewPermissionService(users UserStore, overrides OverrideStore, changes AccessChangeStore, audit TxAudit) *PermissionService {
	return &PermissionService{
		users:     users,
		overrides: overrides,
		changes:   changes,
		audit:     audit,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate returns the user's effective access to page: the override when
// one exists, otherwise the role default.
func (s *PermissionService) Evaluate(ctx context.Context, user model.User, page model.Page) (bool, error) {
	if !page.Valid() || !user.Role.Valid() {
		metrics.PermissionChecks.WithLabelValues("invalid", "deny").Inc()
		return false, nil
	}

	value, found, err := s.overrides.Get(ctx, user.ID, page)
	if err != nil {
		return false, fmt.Errorf("load page override: %w", err)
	}

	allowed := model.DefaultAccess(user.Role, page)
	if found {
		allowed = value
	}

	result := "deny"
	if allowed {
		result = "allow"
	}
	metrics.PermissionChecks.WithLabelValues(page.String(), result).Inc()

	return allowed, nil
}

// Permissions returns the effective access matrix of user across every page.
func (s *PermissionService) Permissions(ctx context.Context, user model.User) (map[model.Page]bool, error) {
	overrides, err := s.overrides.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load page overrides: %w", err)
	}

	out := make(map[model.Page]bool, model.PageCount)
	for _, page := range model.AllPages() {
		if value, ok := overrides[page]; ok {
			out[page] = value
			continue
		}
		out[page] = RoleDefault(user.Role, page)
	}

	return out, nil
}

// SetOverride grants or revokes page for the target user. The change, the
// lockout check and the audit entry commit together.
func (s *PermissionService) SetOverride(ctx context.Context, actor model.User, targetUserID string, page model.Page, value bool) (model.OverrideChange, error) {
	if !page.Valid() {
		return model.OverrideChange{}, fmt.Errorf("%w: page", model.ErrInvalidInput)
	}
	if err := s.authorizeChange(ctx, actor, targetUserID, page, "set"); err != nil {
		return model.OverrideChange{}, err
	}

	return s.applyOverride(ctx, actor, model.OverrideWrite{
		UserID:    targetUserID,
		Page:      page,
		Value:     &value,
		UpdatedBy: actor.ID,
		UpdatedAt: s.now(),
	}, model.AuditOverrideSet)
}

// ClearOverride removes the override so the role default applies again.
func (s *PermissionService) ClearOverride(ctx context.Context, actor model.User, targetUserID string, page model.Page) (model.OverrideChange, error) {
	if !page.Valid() {
		return model.OverrideChange{}, fmt.Errorf("%w: page", model.ErrInvalidInput)
	}
	if err := s.authorizeChange(ctx, actor, targetUserID, page, "clear"); err != nil {
		return model.OverrideChange{}, err
	}

	return s.applyOverride(ctx, actor, model.OverrideWrite{
		UserID:    targetUserID,
		Page:      page,
		UpdatedBy: actor.ID,
		UpdatedAt: s.now(),
	}, model.AuditOverrideCleared)
}

func (s *PermissionService) applyOverride(ctx context.Context, actor model.User, w model.OverrideWrite, action model.AuditAction) (model.OverrideChange, error) {
	var entry model.AuditEntry
	w.Audit = func(target model.User, change model.OverrideChange) model.AuditEntry {
		entry = s.audit.Stamp(ctx, model.AuditEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role.String(),
			Action:     action,
			Severity:   model.SeverityCritical,
			TargetType: model.TargetUser,
			TargetID:   target.ID,
			TargetRole: target.Role.String(),
			Metadata: map[string]any{
				"page":              change.Page.String(),
				"before":            change.Before,
				"after":             change.After,
				"previous_override": change.PreviousOverride,
			},
		})
		return entry
	}

	change, err := s.changes.ApplyOverride(ctx, w)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrSelfLockout) {
			return model.OverrideChange{}, err
		}
		return model.OverrideChange{}, fmt.Errorf("store page override: %w", err)
	}

	s.audit.Written(ctx, entry)
	return change, nil
}

// UpdateUser stores an administrative user change under the same
// serialization as override changes, so a demotion or deactivation cannot
// race another change into leaving no administrator with user management.
func (s *PermissionService) UpdateUser(ctx context.Context, updated model.User, audit func(before model.User) model.AuditEntry) (model.User, error) {
	var entry model.AuditEntry
	before, err := s.changes.ApplyUserUpdate(ctx, model.UserWrite{
		User: updated,
		Audit: func(before model.User) model.AuditEntry {
			entry = s.audit.Stamp(ctx, audit(before))
			return entry
		},
	})
	if err != nil {
		return model.User{}, err
	}

	s.audit.Written(ctx, entry)
	return before, nil
}

func (s *PermissionService) authorizeChange(ctx context.Context, actor model.User, targetUserID string, page model.Page, op string) error {
	if actor.Role.IsAdmin() && actor.Active {
		return nil
	}

	s.audit.Record(ctx, model.AuditEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role.String(),
		Action:     model.AuditAccessDenied,
		Severity:   model.SeverityCritical,
		TargetType: model.TargetUser,
		TargetID:   targetUserID,
		TargetRole: s.roleOf(ctx, targetUserID),
		Metadata: map[string]any{
			"operation": "override_" + op,
			"page":      page.String(),
			"reason":    "not_admin",
		},
	})
	return model.ErrNotAdmin
}

func (s *PermissionService) roleOf(ctx context.Context, userID string) string {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Role.String()
}
