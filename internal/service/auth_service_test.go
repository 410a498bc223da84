package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-admin-portal/internal/model"
)

func TestAuthService_Login(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	agent := env.seedUser(t, "agent@example.com", model.RoleAgent)

	pair, err := env.auth.Login(context.Background(), "  Agent@Example.com ", testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, agent.ID, pair.User.ID)
	assert.Equal(t, model.RoleAgent, pair.User.Role)

	allowed, err := env.permissions.Evaluate(context.Background(), agent, model.PageCandidates)
	require.NoError(t, err)
	assert.False(t, allowed)

	logins := env.entries(model.AuditLogin)
	require.Len(t, logins, 1)
	assert.Equal(t, agent.ID, logins[0].ActorID)
	assert.Equal(t, pair.SessionID, logins[0].TargetID)
}

func TestAuthService_LoginFailures(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedUser(t, "agent@example.com", model.RoleAgent)
	inactive := env.seedUser(t, "gone@example.com", model.RoleAgent)
	inactive.Active = false
	require.NoError(t, env.users.Update(context.Background(), inactive))

	_, err := env.auth.Login(context.Background(), "agent@example.com", "wrong password")
	require.ErrorIs(t, err, model.ErrInvalidCredentials)

	_, err = env.auth.Login(context.Background(), "nobody@example.com", testPassword)
	require.ErrorIs(t, err, model.ErrInvalidCredentials)

	_, err = env.auth.Login(context.Background(), "gone@example.com", testPassword)
	require.ErrorIs(t, err, model.ErrInactiveUser)

	failed := env.entries(model.AuditLoginFailed)
	require.Len(t, failed, 3)
	reasons := []any{failed[0].Metadata["reason"], failed[1].Metadata["reason"], failed[2].Metadata["reason"]}
	assert.ElementsMatch(t, []any{"wrong_password", "unknown_email", "inactive"}, reasons)
	require.Empty(t, env.entries(model.AuditLogin))
}

func TestAuthService_RefreshAuditsRoutineRotation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedUser(t, "agent@example.com", model.RoleAgent)
	pair, err := env.auth.Login(context.Background(), "agent@example.com", testPassword)
	require.NoError(t, err)

	refreshed, err := env.auth.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, pair.SessionID, refreshed.SessionID)

	_, err = env.auth.Refresh(context.Background(), "garbage")
	require.ErrorIs(t, err, model.ErrTokenInvalid)

	env.drainAudit(t)
	require.Len(t, env.entries(model.AuditTokenRefreshed), 1)
	require.Len(t, env.entries(model.AuditTokenRejected), 1)
}

func TestAuthService_RefreshReuseIsAuditedOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedUser(t, "agent@example.com", model.RoleAgent)
	pair, err := env.auth.Login(context.Background(), "agent@example.com", testPassword)
	require.NoError(t, err)

	_, err = env.auth.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	ctx, _ := WithRequestInfo(context.Background(), "req-reuse", "198.51.100.4")
	_, err = env.auth.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, model.ErrTokenReused)

	env.drainAudit(t)
	require.Len(t, env.entries(model.AuditTokenReused), 1)
	require.Empty(t, env.entries(model.AuditTokenRejected))
}

func TestAuthService_LogoutRevokesOnlyThatSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	user := env.seedUser(t, "agent@example.com", model.RoleAgent)
	laptop, err := env.auth.Login(context.Background(), "agent@example.com", testPassword)
	require.NoError(t, err)
	phone, err := env.auth.Login(context.Background(), "agent@example.com", testPassword)
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(context.Background(), user, laptop.SessionID))

	active, err := env.tokens.SessionActive(context.Background(), laptop.SessionID)
	require.NoError(t, err)
	assert.False(t, active)

	active, err = env.tokens.SessionActive(context.Background(), phone.SessionID)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, env.auth.LogoutAll(context.Background(), user))
	active, err = env.tokens.SessionActive(context.Background(), phone.SessionID)
	require.NoError(t, err)
	assert.False(t, active)

	require.Len(t, env.entries(model.AuditLogout), 1)
	require.Len(t, env.entries(model.AuditLogoutAll), 1)
}

func TestAuthService_Me(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	viewer := env.seedUser(t, "viewer@example.com", model.RoleViewer)

	me, err := env.auth.Me(context.Background(), viewer)
	require.NoError(t, err)
	assert.Equal(t, viewer.Email, me.User.Email)
	assert.True(t, me.Permissions[model.PageDashboard])
	assert.False(t, me.Permissions[model.PageCalls])
}
