package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"go-admin-portal/internal/model"
)

// accessLockKey names the transaction-scoped advisory lock held by every
// change that can take user management away from an administrator.
const accessLockKey int64 = 0x61636365737331

// AccessRepository applies override and user changes together with the
// administrator lockout check and their audit entry, in one transaction.
type AccessRepository struct {
	db *sql.DB
}

func NewAccessRepository(db *sql.DB) *AccessRepository {
	return &AccessRepository{db: db}
}

func (r *AccessRepository) ApplyOverride(ctx context.Context, w model.OverrideWrite) (model.OverrideChange, error) {
	if _, err := uuid.Parse(w.UserID); err != nil {
		return model.OverrideChange{}, fmt.Errorf("%w: user %s", model.ErrNotFound, w.UserID)
	}

	tx, err := r.begin(ctx)
	if err != nil {
		return model.OverrideChange{}, err
	}
	defer func() { _ = tx.Rollback() }()

	target, err := lockUser(ctx, tx, w.UserID)
	if err != nil {
		return model.OverrideChange{}, err
	}
	previous, err := lockOverride(ctx, tx, w.UserID, w.Page)
	if err != nil {
		return model.OverrideChange{}, err
	}

	change := model.OverrideChange{
		UserID:           target.ID,
		Page:             w.Page,
		Before:           model.EffectiveAccess(target.Role, w.Page, previous),
		After:            model.EffectiveAccess(target.Role, w.Page, w.Value),
		PreviousOverride: previous,
	}

	if w.Page == model.PageUserManagement &&
		model.LosesUserManagement(target, change.Before, target, change.After) {
		if err := ensureOtherAdmin(ctx, tx, target.ID); err != nil {
			return model.OverrideChange{}, err
		}
	}

	if w.Value != nil {
		err = writeOverride(ctx, tx, model.PageOverride{
			UserID:    target.ID,
			Page:      w.Page,
			HasAccess: *w.Value,
			UpdatedBy: w.UpdatedBy,
			UpdatedAt: w.UpdatedAt,
		})
	} else {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM page_overrides WHERE user_id = $1 AND page = $2`, target.ID, w.Page.String())
	}
	if err != nil {
		return model.OverrideChange{}, fmt.Errorf("write page override: %w", err)
	}

	if w.Audit != nil {
		if err := insertAudit(ctx, tx, w.Audit(target, change)); err != nil {
			return model.OverrideChange{}, fmt.Errorf("append override audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.OverrideChange{}, fmt.Errorf("commit override change: %w", err)
	}
	return change, nil
}

// ApplyUserUpdate stores w.User and returns the user as it was before.
func (r *AccessRepository) ApplyUserUpdate(ctx context.Context, w model.UserWrite) (model.User, error) {
	if _, err := uuid.Parse(w.User.ID); err != nil {
		return model.User{}, fmt.Errorf("%w: user %s", model.ErrNotFound, w.User.ID)
	}

	tx, err := r.begin(ctx)
	if err != nil {
		return model.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	before, err := lockUser(ctx, tx, w.User.ID)
	if err != nil {
		return model.User{}, err
	}
	override, err := lockOverride(ctx, tx, before.ID, model.PageUserManagement)
	if err != nil {
		return model.User{}, err
	}

	hadAccess := model.EffectiveAccess(before.Role, model.PageUserManagement, override)
	hasAccess := model.EffectiveAccess(w.User.Role, model.PageUserManagement, override)
	if model.LosesUserManagement(before, hadAccess, w.User, hasAccess) {
		if err := ensureOtherAdmin(ctx, tx, before.ID); err != nil {
			return model.User{}, err
		}
	}

	if err := updateUser(ctx, tx, w.User); err != nil {
		return model.User{}, err
	}

	if w.Audit != nil {
		if err := insertAudit(ctx, tx, w.Audit(before)); err != nil {
			return model.User{}, fmt.Errorf("append user audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.User{}, fmt.Errorf("commit user change: %w", err)
	}
	return before, nil
}

func (r *AccessRepository) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin access change: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, accessLockKey); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("acquire access change lock: %w", err)
	}
	return tx, nil
}

func lockUser(ctx context.Context, tx *sql.Tx, id string) (model.User, error) {
	u, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("%w: user %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("lock user: %w", err)
	}
	return u, nil
}

func lockOverride(ctx context.Context, tx *sql.Tx, userID string, page model.Page) (*bool, error) {
	var current bool
	err := tx.QueryRowContext(ctx,
		`SELECT has_access FROM page_overrides WHERE user_id = $1 AND page = $2 FOR UPDATE`,
		userID, page.String()).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock page override: %w", err)
	}
	return &current, nil
}

// ensureOtherAdmin returns ErrSelfLockout unless an active administrator
// other than userID has user management access.
func ensureOtherAdmin(ctx context.Context, tx *sql.Tx, userID string) error {
	var others int
	err := tx.QueryRowContext(ctx,
		`SELECT count(*)
		 FROM users u
		 LEFT JOIN page_overrides o ON o.user_id = u.id AND o.page = $2
		 WHERE u.role = $3 AND u.is_active AND u.id <> $1 AND COALESCE(o.has_access, $4)`,
		userID, model.PageUserManagement.String(), model.RoleAdmin.String(),
		model.DefaultAccess(model.RoleAdmin, model.PageUserManagement)).Scan(&others)
	if err != nil {
		return fmt.Errorf("count administrators: %w", err)
	}
	if others == 0 {
		return model.ErrSelfLockout
	}
	return nil
}
