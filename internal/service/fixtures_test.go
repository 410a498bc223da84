package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-admin-portal/internal/model"
	"go-admin-portal/internal/repository"
)

const testPassword = "correct horse battery"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	clock *fakeClock

	users     *repository.MemoryUserRepository
	creds     *repository.MemoryTokenRepository
	overrides *repository.MemoryOverrideRepository
	auditRepo *repository.MemoryAuditRepository
	access    *repository.MemoryAccessRepository

	audit       *AuditService
	tokens      *TokenService
	permissions *PermissionService
	auth        *AuthService
	userAdmin   *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:     newFakeClock(),
		users:     repository.NewMemoryUserRepository(),
		creds:     repository.NewMemoryTokenRepository(),
		overrides: repository.NewMemoryOverrideRepository(),
		auditRepo: repository.NewMemoryAuditRepository(),
	}

	env.audit = NewAuditService(env.auditRepo, AuditOptions{QueueSize: 64, BatchSize: 8, FlushInterval: 10 * time.Millisecond})
	env.audit.now = env.clock.Now
	t.Cleanup(func() { _ = env.audit.Close(context.Background()) })

	env.tokens = NewTokenService(env.creds, env.users, env.audit, TokenOptions{
		Secret:     "test-jwt-secret-that-is-long-enough-123",
		Issuer:     "admin-portal-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		ReuseGrace: 3 * time.Second,
	})
	env.tokens.now = env.clock.Now

	env.access = repository.NewMemoryAccessRepository(env.users, env.overrides, env.auditRepo)
	env.permissions = NewPermissionService(env.users, env.overrides, env.access, env.audit)
	env.permissions.now = env.clock.Now

	auth, err := NewAuthService(env.users, env.tokens, env.permissions, env.audit, bcrypt.MinCost)
	require.NoError(t, err)
	env.auth = auth

	env.userAdmin = NewUserService(env.users, env.tokens, env.permissions, env.audit, bcrypt.MinCost)
	env.userAdmin.now = env.clock.Now

	return env
}

func (e *testEnv) seedUser(t *testing.T, email string, role model.Role) model.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	now := e.clock.Now()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     email,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.users.Create(context.Background(), user))

	return user
}

// entries returns every audit entry with the given action that has reached the store.
func (e *testEnv) entries(action model.AuditAction) []model.AuditEntry {
	out := make([]model.AuditEntry, 0)
	for _, entry := range e.auditRepo.Entries() {
		if entry.Action == action {
			out = append(out, entry)
		}
	}
	return out
}

// drainAudit flushes the routine queue so asynchronous entries become visible.
func (e *testEnv) drainAudit(t *testing.T) {
	t.Helper()
	require.NoError(t, e.audit.Close(context.Background()))
}
