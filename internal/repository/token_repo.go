package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go-admin-portal/internal/model"
)

const credentialColumns = `id, user_id, family_id, parent_id, secret_salt, secret_hash, status,
	issued_at, expires_at, rotated_at, revoked_at`

// TokenRepository persists refresh credentials.
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, c model.RefreshCredential) error {
	if err := insertCredential(ctx, r.db, c); err != nil {
		return fmt.Errorf("store refresh credential: %w", err)
	}
	return nil
}

func (r *TokenRepository) FindByID(ctx context.Context, id string) (model.RefreshCredential, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.RefreshCredential{}, fmt.Errorf("%w: refresh credential", model.ErrNotFound)
	}

	var c model.RefreshCredential
	var parentID sql.NullString
	var rotatedAt, revokedAt sql.NullTime
	var status string

	err := r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM refresh_credentials WHERE id = $1`, id).
		Scan(&c.ID, &c.UserID, &c.FamilyID, &parentID, &c.SecretSalt, &c.SecretHash, &status,
			&c.IssuedAt, &c.ExpiresAt, &rotatedAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshCredential{}, fmt.Errorf("%w: refresh credential", model.ErrNotFound)
	}
	if err != nil {
		return model.RefreshCredential{}, fmt.Errorf("find refresh credential: %w", err)
	}

	c.Status = model.RefreshStatus(status)
	c.ParentID = parentID.String
	if rotatedAt.Valid {
		c.RotatedAt = &rotatedAt.Time
	}
	if revokedAt.Valid {
		c.RevokedAt = &revokedAt.Time
	}
	return c, nil
}

// Rotate marks presentedID rotated and inserts its successor in one
// transaction. The conditional update only matches an active row, so of two
// concurrent rotations exactly one commits; the other gets ErrRotationConflict.
func (r *TokenRepository) Rotate(ctx context.Context, presentedID string, rotatedAt time.Time, successor model.RefreshCredential) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_credentials SET status = 'rotated', rotated_at = $2
		 WHERE id = $1 AND status = 'active'`, presentedID, rotatedAt)
	if err != nil {
		return fmt.Errorf("mark credential rotated: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark credential rotated: %w", err)
	}
	if affected == 0 {
		return model.ErrRotationConflict
	}

	if err := insertCredential(ctx, tx, successor); err != nil {
		return fmt.Errorf("insert successor credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

func (r *TokenRepository) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	if _, err := uuid.Parse(familyID); err != nil {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_credentials SET status = 'revoked', revoked_at = $2
		 WHERE family_id = $1 AND status = 'active'`, familyID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke credential family: %w", err)
	}
	return res.RowsAffected()
}

func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_credentials SET status = 'revoked', revoked_at = $2
		 WHERE user_id = $1 AND status = 'active'`, userID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke user credentials: %w", err)
	}
	return res.RowsAffected()
}

func (r *TokenRepository) FamilyActive(ctx context.Context, familyID string, now time.Time) (bool, error) {
	if _, err := uuid.Parse(familyID); err != nil {
		return false, nil
	}

	var active bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM refresh_credentials
			WHERE family_id = $1 AND status = 'active' AND expires_at > $2
		)`, familyID, now).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("check credential family: %w", err)
	}
	return active, nil
}

// PurgeExpired hard-deletes credentials whose expiry is older than cutoff.
func (r *TokenRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_credentials WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge expired credentials: %w", err)
	}
	return res.RowsAffected()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCredential(ctx context.Context, db execer, c model.RefreshCredential) error {
	var parentID any
	if c.ParentID != "" {
		parentID = c.ParentID
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO refresh_credentials
		 (id, user_id, family_id, parent_id, secret_salt, secret_hash, status, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.UserID, c.FamilyID, parentID, c.SecretSalt, c.SecretHash, string(c.Status), c.IssuedAt, c.ExpiresAt)
	return err
}
