package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-admin-portal/internal/model"
)

type UserService struct {
	users       UserStore
	tokens      *TokenService
	permissions *PermissionService
	audit       AuditRecorder
	bcryptCost  int
	now         func() time.Time
}

func NewUserService(users UserStore, tokens *TokenService, permissions *PermissionService, audit AuditRecorder, bcryptCost int) *UserService {
	return &UserService{
		users:       users,
		tokens:      tokens,
		permissions: permissions,
		audit:       audit,
		bcryptCost:  bcryptCost,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *UserService) Create(ctx context.Context, actor model.User, req model.CreateUserRequest) (model.UserWithPermissions, error) {
	if !actor.Role.IsAdmin() {
		return model.UserWithPermissions{}, model.ErrNotAdmin
	}

	role, err := model.ParseRole(req.Role)
	if err != nil {
		return model.UserWithPermissions{}, err
	}

	user, err := s.create(ctx, req.Email, req.FullName, req.Password, role)
	if err != nil {
		return model.UserWithPermissions{}, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role.String(),
		Action:     model.AuditUserCreated,
		Severity:   model.SeverityCritical,
		TargetType: model.TargetUser,
		TargetID:   user.ID,
		TargetRole: user.Role.String(),
		Metadata:   map[string]any{"email": user.Email, "role": user.Role.String()},
	})

	return s.withPermissions(ctx, user)
}

func (s *UserService) Get(ctx context.Context, id string) (model.UserWithPermissions, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return model.UserWithPermissions{}, err
	}
	return s.withPermissions(ctx, user)
}

func (s *UserService) List(ctx context.Context, query model.UserQuery) ([]model.UserWithPermissions, model.Meta, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 20
	}
	if query.Limit > 100 {
		query.Limit = 100
	}

	users, total, err := s.users.List(ctx, query)
	if err != nil {
		return nil, model.Meta{}, err
	}

	items := make([]model.UserWithPermissions, 0, len(users))
	for _, user := range users {
		item, err := s.withPermissions(ctx, user)
		if err != nil {
			return nil, model.Meta{}, err
		}
		items = append(items, item)
	}

	return items, model.NewMeta(query.Page, query.Limit, total), nil
}

// Update applies an administrative change. Demoting or deactivating the last
// administrator with user management access is refused with ErrSelfLockout,
// and any change to role, password or status ends the target's sessions.
func (s *UserService) Update(ctx context.Context, actor model.User, id string, req model.UpdateUserRequest) (model.UserWithPermissions, error) {
	if !actor.Role.IsAdmin() {
		return model.UserWithPermissions{}, model.ErrNotAdmin
	}

	target, err := s.users.FindByID(ctx, id)
	if err != nil {
		return model.UserWithPermissions{}, err
	}

	updated := target
	changes := map[string]any{}

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return model.UserWithPermissions{}, fmt.Errorf("%w: full_name", model.ErrInvalidInput)
		}
		if name != target.FullName {
			updated.FullName = name
			changes["full_name"] = map[string]any{"before": target.FullName, "after": name}
		}
	}

	if req.Role != nil {
		role, err := model.ParseRole(*req.Role)
		if err != nil {
			return model.UserWithPermissions{}, err
		}
		if role != target.Role {
			updated.Role = role
			changes["role"] = map[string]any{"before": target.Role.String(), "after": role.String()}
		}
	}

	if req.Active != nil && *req.Active != target.Active {
		if !*req.Active && target.ID == actor.ID {
			return model.UserWithPermissions{}, model.ErrSelfLockout
		}
		updated.Active = *req.Active
		changes["is_active"] = map[string]any{"before": target.Active, "after": *req.Active}
	}

	if req.Password != nil {
		hash, err := hashPassword(*req.Password, s.bcryptCost)
		if err != nil {
			return model.UserWithPermissions{}, err
		}
		updated.PasswordHash = hash
		changes["password_changed"] = true
	}

	if len(changes) == 0 {
		return s.withPermissions(ctx, target)
	}

	deactivated := target.Active && !updated.Active
	action := model.AuditUserUpdated
	if deactivated {
		action = model.AuditUserDeactivated
	}

	updated.UpdatedAt = s.now()
	if _, err := s.permissions.UpdateUser(ctx, updated, func(before model.User) model.AuditEntry {
		return model.AuditEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role.String(),
			Action:     action,
			Severity:   model.SeverityCritical,
			TargetType: model.TargetUser,
			TargetID:   updated.ID,
			TargetRole: before.Role.String(),
			Metadata:   changes,
		}
	}); err != nil {
		return model.UserWithPermissions{}, err
	}

	_, roleChanged := changes["role"]
	_, passwordChanged := changes["password_changed"]
	if deactivated || roleChanged || passwordChanged {
		if err := s.tokens.RevokeAll(ctx, updated.ID); err != nil {
			slog.Error("failed to revoke sessions after user update", "user_id", updated.ID, "error", err)
		}
	}

	return s.withPermissions(ctx, updated)
}

// Deactivate is the only form of deletion; users are never removed.
func (s *UserService) Deactivate(ctx context.Context, actor model.User, id string) (model.UserWithPermissions, error) {
	inactive := false
	return s.Update(ctx, actor, id, model.UpdateUserRequest{Active: &inactive})
}

// EnsureBootstrapAdmin creates the first administrator when no users exist.
func (s *UserService) EnsureBootstrapAdmin(ctx context.Context, email string, password string, fullName string) (bool, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return false, nil
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	user, err := s.create(ctx, email, fullName, password, model.RoleAdmin)
	if err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			return false, nil
		}
		return false, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		Action:     model.AuditUserCreated,
		Severity:   model.SeverityCritical,
		TargetType: model.TargetUser,
		TargetID:   user.ID,
		TargetRole: user.Role.String(),
		Metadata:   map[string]any{"email": user.Email, "bootstrap": true},
	})

	return true, nil
}

func (s *UserService) create(ctx context.Context, email string, fullName string, password string, role model.Role) (model.User, error) {
	hash, err := hashPassword(password, s.bcryptCost)
	if err != nil {
		return model.User{}, err
	}

	now := s.now()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (s *UserService) withPermissions(ctx context.Context, user model.User) (model.UserWithPermissions, error) {
	permissions, err := s.permissions.Permissions(ctx, user)
	if err != nil {
		return model.UserWithPermissions{}, err
	}
	return model.UserWithPermissions{User: user, Permissions: permissions}, nil
}
