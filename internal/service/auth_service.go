package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"go-admin-portal/internal/metrics"
	"go-admin-portal/internal/model"
)

type AuthService struct {
	users       UserStore
	tokens      *TokenService
	permissions *PermissionService
	audit       AuditRecorder
	dummyHash   []byte
}

func NewAuthService(users UserStore, tokens *TokenService, permissions *PermissionService, audit AuditRecorder, bcryptCost int) (*AuthService, error) {
	// Unknown emails are compared against this hash so both paths cost the same.
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), normalizeCost(bcryptCost))
	if err != nil {
		return nil, fmt.Errorf("prepare password hashing: %w", err)
	}

	return &AuthService{
		users:       users,
		tokens:      tokens,
		permissions: permissions,
		audit:       audit,
		dummyHash:   dummy,
	}, nil
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (model.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return model.TokenPair{}, fmt.Errorf("load user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.loginFailed(ctx, model.User{}, email, "unknown_email")
		return model.TokenPair{}, model.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.loginFailed(ctx, user, email, "wrong_password")
		return model.TokenPair{}, model.ErrInvalidCredentials
	}

	if !user.Active {
		s.loginFailed(ctx, user, email, "inactive")
		return model.TokenPair{}, model.ErrInactiveUser
	}

	pair, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		return model.TokenPair{}, err
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.audit.Record(ctx, model.AuditEntry{
		ActorID:    user.ID,
		ActorRole:  user.Role.String(),
		Action:     model.AuditLogin,
		Severity:   model.SeverityInfo,
		TargetType: model.TargetSession,
		TargetID:   pair.SessionID,
		TargetRole: user.Role.String(),
	})

	return pair, nil
}

// Refresh rotates the presented refresh value. Reuse is audited by the token
// service itself; every other failure is recorded here.
func (s *AuthService) Refresh(ctx context.Context, refreshValue string) (model.TokenPair, error) {
	pair, err := s.tokens.Rotate(ctx, refreshValue)
	if err != nil {
		rejected := errors.Is(err, model.ErrTokenExpired) || errors.Is(err, model.ErrTokenInvalid)
		if rejected && !errors.Is(err, model.ErrRotationConflict) {
			s.audit.Record(ctx, model.AuditEntry{
				Action:     model.AuditTokenRejected,
				Severity:   model.SeverityWarning,
				TargetType: model.TargetSession,
				Metadata:   map[string]any{"reason": err.Error()},
			})
		}
		return model.TokenPair{}, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		ActorID:    pair.User.ID,
		ActorRole:  pair.User.Role.String(),
		Action:     model.AuditTokenRefreshed,
		Severity:   model.SeverityInfo,
		TargetType: model.TargetSession,
		TargetID:   pair.SessionID,
		TargetRole: pair.User.Role.String(),
	})

	return pair, nil
}

func (s *AuthService) Logout(ctx context.Context, user model.User, sessionID string) error {
	if err := s.tokens.RevokeFamily(ctx, sessionID); err != nil {
		return err
	}

	s.audit.Record(ctx, model.AuditEntry{
		ActorID:    user.ID,
		ActorRole:  user.Role.String(),
		Action:     model.AuditLogout,
		Severity:   model.SeverityInfo,
		TargetType: model.TargetSession,
		TargetID:   sessionID,
		TargetRole: user.Role.String(),
	})
	return nil
}

func (s *AuthService) LogoutAll(ctx context.Context, user model.User) error {
	if err := s.tokens.RevokeAll(ctx, user.ID); err != nil {
		return err
	}

	s.audit.Record(ctx, model.AuditEntry{
		ActorID:    user.ID,
		ActorRole:  user.Role.String(),
		Action:     model.AuditLogoutAll,
		Severity:   model.SeverityInfo,
		TargetType: model.TargetUser,
		TargetID:   user.ID,
		TargetRole: user.Role.String(),
	})
	return nil
}

func (s *AuthService) Me(ctx context.Context, user model.User) (model.MeData, error) {
	permissions, err := s.permissions.Permissions(ctx, user)
	if err != nil {
		return model.MeData{}, err
	}

	return model.MeData{User: user.Public(), Permissions: permissions}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, user model.User, email string, reason string) {
	metrics.LoginAttempts.WithLabelValues(reason).Inc()
	slog.Info("login rejected", "email", email, "reason", reason)

	entry := model.AuditEntry{
		Action:     model.AuditLoginFailed,
		Severity:   model.SeverityWarning,
		TargetType: model.TargetUser,
		Metadata:   map[string]any{"email": email, "reason": reason},
	}
	if user.ID != "" {
		entry.TargetID = user.ID
		entry.TargetRole = user.Role.String()
	}
	s.audit.Record(ctx, entry)
}

func normalizeCost(cost int) int {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return cost
}

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), normalizeCost(cost))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
