package model

import "time"

type RefreshStatus string

const (
	RefreshActive  RefreshStatus = "active"
	RefreshRotated RefreshStatus = "rotated"
	RefreshRevoked RefreshStatus = "revoked"
)

// RefreshCredential is the persisted half of a refresh token. Only the salted
// hash of the secret is stored; the raw value lives in the client cookie.
type RefreshCredential struct {
	ID         string
	UserID     string
	FamilyID   string
	ParentID   string
	SecretSalt []byte
	SecretHash []byte
	Status     RefreshStatus
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RotatedAt  *time.Time
	RevokedAt  *time.Time
}

func (c RefreshCredential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
