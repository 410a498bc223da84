package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"go-admin-portal/internal/model"
)

type OverrideRepository struct {
	db *sql.DB
}

func NewOverrideRepository(db *sql.DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

func (r *OverrideRepository) Get(ctx context.Context, userID string, page model.Page) (bool, bool, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return false, false, nil
	}

	var hasAccess bool
	err := r.db.QueryRowContext(ctx,
		`SELECT has_access FROM page_overrides WHERE user_id = $1 AND page = $2`, userID, page.String()).
		Scan(&hasAccess)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("get page override: %w", err)
	}
	return hasAccess, true, nil
}

func (r *OverrideRepository) ListForUser(ctx context.Context, userID string) (map[model.Page]bool, error) {
	out := map[model.Page]bool{}
	if _, err := uuid.Parse(userID); err != nil {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT page, has_access FROM page_overrides WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list page overrides: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		var hasAccess bool
		if err := rows.Scan(&raw, &hasAccess); err != nil {
			return nil, fmt.Errorf("scan page override: %w", err)
		}
		page, err := model.ParsePage(raw)
		if err != nil {
			continue
		}
		out[page] = hasAccess
	}
	return out, rows.Err()
}

func writeOverride(ctx context.Context, db execer, o model.PageOverride) error {
	if _, err := db.ExecContext(ctx,
		`INSERT INTO page_overrides (user_id, page, has_access, updated_by, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, page) DO UPDATE
		 SET has_access = EXCLUDED.has_access, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`,
		o.UserID, o.Page.String(), o.HasAccess, o.UpdatedBy, o.UpdatedAt); err != nil {
		return fmt.Errorf("upsert page override: %w", err)
	}
	return nil
}
