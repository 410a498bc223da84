package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-admin-portal/internal/metrics"
	"go-admin-portal/internal/model"
)

const (
	tokenTypeAccess  = "access"
	refreshSecretLen = 32
	refreshSaltLen   = 16
)

type TokenOptions struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// ReuseGrace is how long after a rotation a second presentation of the
	// same credential is treated as a concurrent duplicate instead of theft.
	ReuseGrace time.Duration
}

type TokenService struct {
	store  RefreshStore
	users  UserStore
	audit  AuditRecorder
	opts   TokenOptions
	secret []byte
	now    func() time.Time
}

type accessTokenClaims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

func NewTokenService(store RefreshStore, users UserStore, audit AuditRecorder, opts TokenOptions) *TokenService {
	return &TokenService{
		store:  store,
		users:  users,
		audit:  audit,
		opts:   opts,
		secret: []byte(opts.Secret),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// IssuePair starts a new session family for user.
func (s *TokenService) IssuePair(ctx context.Context, user model.User) (model.TokenPair, error) {
	now := s.now()
	familyID := uuid.NewString()

	cred, value, err := s.newCredential(user.ID, familyID, "", now)
	if err != nil {
		return model.TokenPair{}, err
	}
	if err := s.store.Create(ctx, cred); err != nil {
		return model.TokenPair{}, fmt.Errorf("store refresh credential: %w", err)
	}

	return s.pair(user, familyID, value, cred.ExpiresAt, now)
}

func (s *TokenService) VerifyAccess(tokenString string) (*model.AccessClaims, error) {
	claims := &accessTokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.opts.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.ErrTokenExpired
		}
		return nil, model.ErrTokenInvalid
	}

	if claims.Type != tokenTypeAccess || claims.Subject == "" || claims.SessionID == "" {
		return nil, model.ErrTokenInvalid
	}
	role, err := model.ParseRole(claims.Role)
	if err != nil {
		return nil, model.ErrTokenInvalid
	}

	return &model.AccessClaims{
		UserID:    claims.Subject,
		Role:      role,
		SessionID: claims.SessionID,
		Type:      claims.Type,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Rotate exchanges a refresh value for a new pair in the same family.
// Presenting a credential that was already rotated or revoked revokes every
// session of its owner and returns ErrTokenReused.
func (s *TokenService) Rotate(ctx context.Context, refreshValue string) (model.TokenPair, error) {
	credID, secret, ok := splitRefreshValue(refreshValue)
	if !ok {
		metrics.TokenRotations.WithLabelValues("invalid").Inc()
		return model.TokenPair{}, model.ErrTokenInvalid
	}

	cred, err := s.store.FindByID(ctx, credID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			metrics.TokenRotations.WithLabelValues("invalid").Inc()
			return model.TokenPair{}, model.ErrTokenInvalid
		}
		return model.TokenPair{}, fmt.Errorf("load refresh credential: %w", err)
	}

	if !secretMatches(cred, secret) {
		metrics.TokenRotations.WithLabelValues("invalid").Inc()
		return model.TokenPair{}, model.ErrTokenInvalid
	}

	now := s.now()
	if cred.Status != model.RefreshActive {
		return model.TokenPair{}, s.handleReplay(ctx, cred, now)
	}

	if cred.Expired(now) {
		metrics.TokenRotations.WithLabelValues("expired").Inc()
		return model.TokenPair{}, model.ErrTokenExpired
	}

	user, err := s.users.FindByID(ctx, cred.UserID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.TokenPair{}, fmt.Errorf("load session owner: %w", err)
	}
	if err != nil || !user.Active {
		if _, revokeErr := s.store.RevokeFamily(ctx, cred.FamilyID, now); revokeErr != nil {
			slog.Error("failed to revoke session of unavailable user", "family_id", cred.FamilyID, "error", revokeErr)
		}
		metrics.TokenRotations.WithLabelValues("invalid").Inc()
		return model.TokenPair{}, model.ErrTokenInvalid
	}

	successor, value, err := s.newCredential(cred.UserID, cred.FamilyID, cred.ID, now)
	if err != nil {
		return model.TokenPair{}, err
	}

	if err := s.store.Rotate(ctx, cred.ID, now, successor); err != nil {
		if errors.Is(err, model.ErrRotationConflict) {
			metrics.TokenRotations.WithLabelValues("conflict").Inc()
			return model.TokenPair{}, model.ErrTokenInvalid
		}
		return model.TokenPair{}, fmt.Errorf("rotate refresh credential: %w", err)
	}

	metrics.TokenRotations.WithLabelValues("ok").Inc()
	return s.pair(user, cred.FamilyID, value, successor.ExpiresAt, now)
}

// errConcurrentRotation is returned, already audited, for a credential
// presented again within the reuse grace window.
var errConcurrentRotation = fmt.Errorf("%w: %w", model.ErrTokenInvalid, model.ErrRotationConflict)

func (s *TokenService) handleReplay(ctx context.Context, cred model.RefreshCredential, now time.Time) error {
	if cred.Status == model.RefreshRotated && cred.RotatedAt != nil && s.opts.ReuseGrace > 0 &&
		now.Sub(*cred.RotatedAt) < s.opts.ReuseGrace {
		metrics.TokenRotations.WithLabelValues("conflict").Inc()
		s.audit.Record(ctx, model.AuditEntry{
			ActorID:    cred.UserID,
			ActorRole:  s.roleSnapshot(ctx, cred.UserID),
			Action:     model.AuditRotationConflict,
			Severity:   model.SeverityWarning,
			TargetType: model.TargetSession,
			TargetID:   cred.FamilyID,
			Metadata: map[string]any{
				"credential_id": cred.ID,
				"rotated_at":    cred.RotatedAt.Format(time.RFC3339Nano),
			},
		})
		return errConcurrentRotation
	}

	revoked, err := s.store.RevokeAllForUser(ctx, cred.UserID, now)
	if err != nil {
		return fmt.Errorf("revoke sessions after reuse: %w", err)
	}

	metrics.TokenRotations.WithLabelValues("reused").Inc()
	metrics.SessionsRevoked.WithLabelValues("reuse").Add(float64(revoked))
	slog.Warn("refresh token reuse detected; all sessions revoked",
		"user_id", cred.UserID,
		"family_id", cred.FamilyID,
		"credential_id", cred.ID,
		"revoked", revoked,
	)

	role := s.roleSnapshot(ctx, cred.UserID)
	s.audit.Record(ctx, model.AuditEntry{
		ActorID:    cred.UserID,
		ActorRole:  role,
		Action:     model.AuditTokenReused,
		Severity:   model.SeverityCritical,
		TargetType: model.TargetUser,
		TargetID:   cred.UserID,
		TargetRole: role,
		Metadata: map[string]any{
			"credential_id":    cred.ID,
			"family_id":        cred.FamilyID,
			"status":           string(cred.Status),
			"revoked_sessions": revoked,
		},
	})

	return model.ErrTokenReused
}

func (s *TokenService) RevokeFamily(ctx context.Context, familyID string) error {
	revoked, err := s.store.RevokeFamily(ctx, familyID, s.now())
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	metrics.SessionsRevoked.WithLabelValues("family").Add(float64(revoked))
	return nil
}

func (s *TokenService) RevokeAll(ctx context.Context, userID string) error {
	revoked, err := s.store.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	metrics.SessionsRevoked.WithLabelValues("user").Add(float64(revoked))
	return nil
}

func (s *TokenService) SessionActive(ctx context.Context, familyID string) (bool, error) {
	return s.store.FamilyActive(ctx, familyID, s.now())
}

// PurgeExpired removes credentials that expired more than retention ago.
func (s *TokenService) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	return s.store.PurgeExpired(ctx, s.now().Add(-retention))
}

func (s *TokenService) pair(user model.User, familyID string, refreshValue string, refreshExpiry time.Time, now time.Time) (model.TokenPair, error) {
	claims := accessTokenClaims{
		Role:      user.Role.String(),
		SessionID: familyID,
		Type:      tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.opts.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.AccessTTL)),
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	return model.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshValue,
		RefreshExpiresAt: refreshExpiry,
		SessionID:        familyID,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.opts.AccessTTL.Seconds()),
		User:             user.Public(),
	}, nil
}

func (s *TokenService) newCredential(userID string, familyID string, parentID string, now time.Time) (model.RefreshCredential, string, error) {
	secret := make([]byte, refreshSecretLen)
	salt := make([]byte, refreshSaltLen)
	if _, err := rand.Read(secret); err != nil {
		return model.RefreshCredential{}, "", fmt.Errorf("generate refresh secret: %w", err)
	}
	if _, err := rand.Read(salt); err != nil {
		return model.RefreshCredential{}, "", fmt.Errorf("generate refresh salt: %w", err)
	}

	cred := model.RefreshCredential{
		ID:         uuid.NewString(),
		UserID:     userID,
		FamilyID:   familyID,
		ParentID:   parentID,
		SecretSalt: salt,
		SecretHash: hashSecret(salt, secret),
		Status:     model.RefreshActive,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.opts.RefreshTTL),
	}

	return cred, cred.ID + "." + base64.RawURLEncoding.EncodeToString(secret), nil
}

func (s *TokenService) roleSnapshot(ctx context.Context, userID string) string {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Role.String()
}

func splitRefreshValue(value string) (string, []byte, bool) {
	id, encoded, found := strings.Cut(strings.TrimSpace(value), ".")
	if !found || id == "" || encoded == "" {
		return "", nil, false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", nil, false
	}

	secret, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(secret) != refreshSecretLen {
		return "", nil, false
	}

	return id, secret, true
}

func hashSecret(salt []byte, secret []byte) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write(secret)
	return h.Sum(nil)
}

func secretMatches(cred model.RefreshCredential, secret []byte) bool {
	return subtle.ConstantTimeCompare(hashSecret(cred.SecretSalt, secret), cred.SecretHash) == 1
}
