package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go-admin-portal/internal/model"
)

const auditColumns = `seq, id, occurred_at, actor_id, actor_role, action, severity,
	target_type, target_id, target_role, metadata, ip, request_id`

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(ctx context.Context, entry model.AuditEntry) error {
	if err := insertAudit(ctx, r.db, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) AppendBatch(ctx context.Context, entries []model.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, entry := range entries {
		if err := insertAudit(ctx, tx, entry); err != nil {
			return fmt.Errorf("append audit batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit batch: %w", err)
	}
	return nil
}

// Query returns entries visible under scope. The scope predicate is part of
// the SQL so that filtering and pagination agree.
func (r *AuditRepository) Query(ctx context.Context, scope model.AuditScope, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	where := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	switch {
	case scope.All:
	case scope.ExcludeAdmin:
		where = append(where, "actor_role <> 'admin' AND target_role <> 'admin'")
	case scope.ActorID != "":
		where = append(where, fmt.Sprintf("actor_id = $%d", argIdx))
		args = append(args, scope.ActorID)
		argIdx++
	default:
		where = append(where, "FALSE")
	}

	if action := strings.TrimSpace(query.Action); action != "" {
		where = append(where, fmt.Sprintf("action = $%d", argIdx))
		args = append(args, action)
		argIdx++
	}
	if actorID := strings.TrimSpace(query.ActorID); actorID != "" {
		where = append(where, fmt.Sprintf("actor_id::text = $%d", argIdx))
		args = append(args, actorID)
		argIdx++
	}
	if targetType := strings.TrimSpace(query.TargetType); targetType != "" {
		where = append(where, fmt.Sprintf("target_type = $%d", argIdx))
		args = append(args, targetType)
		argIdx++
	}
	if targetID := strings.TrimSpace(query.TargetID); targetID != "" {
		where = append(where, fmt.Sprintf("target_id = $%d", argIdx))
		args = append(args, targetID)
		argIdx++
	}
	if severity := strings.TrimSpace(query.Severity); severity != "" {
		where = append(where, fmt.Sprintf("severity = $%d", argIdx))
		args = append(args, severity)
		argIdx++
	}
	if !query.From.IsZero() {
		where = append(where, fmt.Sprintf("occurred_at >= $%d", argIdx))
		args = append(args, query.From)
		argIdx++
	}
	if !query.To.IsZero() {
		where = append(where, fmt.Sprintf("occurred_at <= $%d", argIdx))
		args = append(args, query.To)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entries "+whereClause, args...).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count audit entries: %w", err)
	}
	meta := model.NewMeta(query.Page, query.Limit, total)

	offset := (query.Page - 1) * query.Limit
	dataQuery := fmt.Sprintf(
		`SELECT %s FROM audit_entries %s
		 ORDER BY occurred_at DESC, seq DESC
		 LIMIT $%d OFFSET $%d`, auditColumns, whereClause, argIdx, argIdx+1)
	args = append(args, query.Limit, offset)

	rows, err := r.db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		var actorID, targetID sql.NullString
		var action, severity string
		var metadata []byte

		if err := rows.Scan(&e.Seq, &e.ID, &e.OccurredAt, &actorID, &e.ActorRole, &action, &severity,
			&e.TargetType, &targetID, &e.TargetRole, &metadata, &e.IP, &e.RequestID); err != nil {
			return nil, model.Meta{}, fmt.Errorf("scan audit entry: %w", err)
		}

		e.ActorID = actorID.String
		e.TargetID = targetID.String
		e.Action = model.AuditAction(action)
		e.Severity = model.AuditSeverity(severity)
		e.OccurredAt = e.OccurredAt.UTC()
		if len(metadata) > 0 {
			if jsonErr := json.Unmarshal(metadata, &e.Metadata); jsonErr != nil {
				return nil, model.Meta{}, fmt.Errorf("decode audit metadata %s: %w", e.ID, jsonErr)
			}
		}

		entries = append(entries, e)
	}

	return entries, meta, rows.Err()
}

// PurgeBefore deletes entries older than cutoff. The append-only trigger only
// permits deletes inside a transaction that sets app.audit_purge.
func (r *AuditRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin audit purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SET LOCAL app.audit_purge = 'on'`); err != nil {
		return 0, fmt.Errorf("enable audit purge: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM audit_entries WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit audit purge: %w", err)
	}
	return res.RowsAffected()
}

func insertAudit(ctx context.Context, db execer, e model.AuditEntry) error {
	metadata := []byte("{}")
	if len(e.Metadata) > 0 {
		encoded, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = encoded
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO audit_entries
		 (id, occurred_at, actor_id, actor_role, action, severity, target_type, target_id, target_role, metadata, ip, request_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.OccurredAt, nullable(e.ActorID), e.ActorRole, string(e.Action), string(e.Severity),
		e.TargetType, nullable(e.TargetID), e.TargetRole, metadata, e.IP, e.RequestID)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
