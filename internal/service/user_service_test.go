package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-admin-portal/internal/model"
)

func ptr[T any](v T) *T {
	return &v
}

func TestUserService_Create(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", model.RoleAdmin)

	created, err := env.userAdmin.Create(context.Background(), admin, model.CreateUserRequest{
		Email:    "New.Agent@Example.com",
		FullName: "New Agent",
		Password: "s3cure-password",
		Role:     "agent",
	})
	require.NoError(t, err)
	assert.Equal(t, "new.agent@example.com", created.Email)
	assert.True(t, created.Active)
	assert.True(t, created.Permissions[model.PageCalls])
	assert.False(t, created.Permissions[model.PageCandidates])

	stored, err := env.users.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cure-password")))

	_, err = env.userAdmin.Create(context.Background(), admin, model.CreateUserRequest{
		Email:    "new.agent@example.com",
		FullName: "Duplicate",
		Password: "s3cure-password",
		Role:     "viewer",
	})
	require.ErrorIs(t, err, model.ErrUserAlreadyExists)

	created2 := env.entries(model.AuditUserCreated)
	require.Len(t, created2, 1)
	assert.Equal(t, admin.ID, created2[0].ActorID)
}

func TestUserService_CreateRequiresAdmin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	manager := env.seedUser(t, "manager@example.com", model.RoleManager)

	_, err := env.userAdmin.Create(context.Background(), manager, model.CreateUserRequest{
		Email: "x@example.com", FullName: "X", Password: "s3cure-password", Role: "viewer",
	})
	require.ErrorIs(t, err, model.ErrNotAdmin)
}

func TestUserService_UpdateRoleEndsSessions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", model.RoleAdmin)
	agent := env.seedUser(t, "agent@example.com", model.RoleAgent)
	pair, err := env.tokens.IssuePair(context.Background(), agent)
	require.NoError(t, err)

	updated, err := env.userAdmin.Update(context.Background(), admin, agent.ID, model.UpdateUserRequest{Role: ptr("manager")})
	require.NoError(t, err)
	assert.Equal(t, model.RoleManager, updated.Role)
	assert.True(t, updated.Permissions[model.PageCandidates])

	active, err := env.tokens.SessionActive(context.Background(), pair.SessionID)
	require.NoError(t, err)
	assert.False(t, active)

	entries := env.entries(model.AuditUserUpdated)
	require.Len(t, entries, 1)
	assert.Equal(t, "agent", entries[0].TargetRole)
}

func TestUserService_NameChangeKeepsSessions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", model.RoleAdmin)
	agent := env.seedUser(t, "agent@example.com", model.RoleAgent)
	pair, err := env.tokens.IssuePair(context.Background(), agent)
	require.NoError(t, err)

	updated, err := env.userAdmin.Update(context.Background(), admin, agent.ID, model.UpdateUserRequest{FullName: ptr("Renamed Agent")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed Agent", updated.FullName)

	active, err := env.tokens.SessionActive(context.Background(), pair.SessionID)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestUserService_LastAdminIsProtected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", model.RoleAdmin)

	_, err := env.userAdmin.Update(context.Background(), admin, admin.ID, model.UpdateUserRequest{Role: ptr("manager")})
	require.ErrorIs(t, err, model.ErrSelfLockout)

	_, err = env.userAdmin.Deactivate(context.Background(), admin, admin.ID)
	require.ErrorIs(t, err, model.ErrSelfLockout)

	other := env.seedUser(t, "admin2@example.com", model.RoleAdmin)
	_, err = env.userAdmin.Update(context.Background(), admin, admin.ID, model.UpdateUserRequest{Role: ptr("manager")})
	require.NoError(t, err)

	// The remaining administrator is now the last one.
	_, err = env.userAdmin.Deactivate(context.Background(), other, other.ID)
	require.ErrorIs(t, err, model.ErrSelfLockout)
}

func TestUserService_Deactivate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", model.RoleAdmin)
	agent := env.seedUser(t, "agent@example.com", model.RoleAgent)
	pair, err := env.tokens.IssuePair(context.Background(), agent)
	require.NoError(t, err)

	deactivated, err := env.userAdmin.Deactivate(context.Background(), admin, agent.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	active, err := env.tokens.SessionActive(context.Background(), pair.SessionID)
	require.NoError(t, err)
	assert.False(t, active)

	_, err = env.auth.Login(context.Background(), "agent@example.com", testPassword)
	require.ErrorIs(t, err, model.ErrInactiveUser)

	require.Len(t, env.entries(model.AuditUserDeactivated), 1)

	_, err = env.userAdmin.Deactivate(context.Background(), admin, "0b8f1f5e-2a8e-4f57-8d0c-7e4c4a3b2a10")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestUserService_List(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedUser(t, "admin@example.com", model.RoleAdmin)
	env.seedUser(t, "agent.one@example.com", model.RoleAgent)
	env.seedUser(t, "agent.two@example.com", model.RoleAgent)

	items, meta, err := env.userAdmin.List(context.Background(), model.UserQuery{Search: "agent", Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, meta.Total)
	assert.Equal(t, 2, meta.TotalPages)
	assert.Equal(t, "agent.one@example.com", items[0].Email)
	assert.NotEmpty(t, items[0].Permissions)
}

func TestUserService_EnsureBootstrapAdmin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	created, err := env.userAdmin.EnsureBootstrapAdmin(context.Background(), "Root@Example.com", "bootstrap-pass", "Root")
	require.NoError(t, err)
	require.True(t, created)

	created, err = env.userAdmin.EnsureBootstrapAdmin(context.Background(), "other@example.com", "bootstrap-pass", "Other")
	require.NoError(t, err)
	require.False(t, created)

	admin, err := env.users.FindByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)

	pair, err := env.auth.Login(context.Background(), "root@example.com", "bootstrap-pass")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, pair.User.ID)
}
