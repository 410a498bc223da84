package service

import (
	"context"
	"time"

	"go-admin-portal/internal/model"
)

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, u model.User) error
	Update(ctx context.Context, u model.User) error
	List(ctx context.Context, query model.UserQuery) ([]model.User, int, error)
	Count(ctx context.Context) (int, error)
}

type RefreshStore interface {
	Create(ctx context.Context, c model.RefreshCredential) error
	FindByID(ctx context.Context, id string) (model.RefreshCredential, error)
	Rotate(ctx context.Context, presentedID string, rotatedAt time.Time, successor model.RefreshCredential) error
	RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	FamilyActive(ctx context.Context, familyID string, now time.Time) (bool, error)
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type OverrideStore interface {
	Get(ctx context.Context, userID string, page model.Page) (bool, bool, error)
	ListForUser(ctx context.Context, userID string) (map[model.Page]bool, error)
}

// AccessChangeStore applies the changes that can take user management away
// from an administrator. Calls are serialized against each other; each one
// refuses with model.ErrSelfLockout when the change would leave no other
// active administrator with user management, and otherwise commits the
// change together with its audit entry.
type AccessChangeStore interface {
	ApplyOverride(ctx context.Context, w model.OverrideWrite) (model.OverrideChange, error)
	ApplyUserUpdate(ctx context.Context, w model.UserWrite) (model.User, error)
}

type AuditStore interface {
	Append(ctx context.Context, entry model.AuditEntry) error
	AppendBatch(ctx context.Context, entries []model.AuditEntry) error
	Query(ctx context.Context, scope model.AuditScope, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditRecorder is the write side of the audit log used by the other services.
type AuditRecorder interface {
	Record(ctx context.Context, entry model.AuditEntry)
}

// TxAudit stamps entries that another store writes inside its own
// transaction, and is told once that transaction has committed.
type TxAudit interface {
	AuditRecorder
	Stamp(ctx context.Context, entry model.AuditEntry) model.AuditEntry
	Written(ctx context.Context, entry model.AuditEntry)
}
