//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-admin-portal/internal/model"
	"go-admin-portal/internal/repository"
	"go-admin-portal/internal/service"
)

const testPassword = "integration-password"

type stack struct {
	users       *repository.UserRepository
	creds       *repository.TokenRepository
	overrides   *repository.OverrideRepository
	auditRepo   *repository.AuditRepository
	audit       *service.AuditService
	tokens      *service.TokenService
	permissions *service.PermissionService
	auth        *service.AuthService
	userAdmin   *service.UserService
}

func newStack(t *testing.T) *stack {
	t.Helper()
	return newStackWithGrace(t, 2*time.Second)
}

func newStackWithGrace(t *testing.T, reuseGrace time.Duration) *stack {
	t.Helper()

	s := &stack{
		users:     repository.NewUserRepository(testDB.SQL),
		creds:     repository.NewTokenRepository(testDB.SQL),
		overrides: repository.NewOverrideRepository(testDB.SQL),
		auditRepo: repository.NewAuditRepository(testDB.SQL),
	}

	s.audit = service.NewAuditService(s.auditRepo, service.AuditOptions{FlushInterval: 20 * time.Millisecond})
	t.Cleanup(func() { _ = s.audit.Close(context.Background()) })

	s.tokens = service.NewTokenService(s.creds, s.users, s.audit, service.TokenOptions{
		Secret:     "integration-jwt-secret-0123456789abcdef",
		Issuer:     "admin-portal-integration",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		ReuseGrace: reuseGrace,
	})
	s.permissions = service.NewPermissionService(s.users, s.overrides, repository.NewAccessRepository(testDB.SQL), s.audit)

	auth, err := service.NewAuthService(s.users, s.tokens, s.permissions, s.audit, bcrypt.MinCost)
	require.NoError(t, err)
	s.auth = auth
	s.userAdmin = service.NewUserService(s.users, s.tokens, s.permissions, s.audit, bcrypt.MinCost)

	return s
}

// seedUser inserts a user with a unique address so tests can share one database.
func (s *stack) seedUser(t *testing.T, role model.Role) model.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	user := model.User{
		ID:           uuid.NewString(),
		Email:        role.String() + "-" + uuid.NewString()[:8] + "@example.com",
		FullName:     "Integration " + role.String(),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.users.Create(context.Background(), user))

	return user
}
