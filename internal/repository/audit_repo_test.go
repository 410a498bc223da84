package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-admin-portal/internal/model"
)

var auditRowColumns = []string{
	"seq", "id", "occurred_at", "actor_id", "actor_role", "action", "severity",
	"target_type", "target_id", "target_role", "metadata", "ip", "request_id",
}

func TestAuditRepository_AppendEncodesMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAuditRepository(db)
	entry := model.AuditEntry{
		ID:         "01J0000000000000000000000A",
		Action:     model.AuditLoginFailed,
		Severity:   model.SeverityCritical,
		TargetType: model.TargetUser,
		Metadata:   map[string]any{"email": "x@example.com"},
		IP:         "10.0.0.1",
		OccurredAt: time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(entry.ID, sqlmock.AnyArg(), nil, "", "auth.login_failed", "critical",
			"user", nil, "", []byte(`{"email":"x@example.com"}`), "10.0.0.1", "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Append(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_QueryExcludesAdminsForManagers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAuditRepository(db)
	actorID := uuid.NewString()
	at := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_entries WHERE actor_role <> 'admin' AND target_role <> 'admin' AND action = $1")).
		WithArgs("permission.override_set").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT seq, id, occurred_at").
		WithArgs("permission.override_set", 20, 20).
		WillReturnRows(sqlmock.NewRows(auditRowColumns).
			AddRow(7, "01J0000000000000000000000B", at, actorID, "manager", "permission.override_set", "critical",
				"user", "u-1", "agent", []byte(`{"page":"calls","after":true}`), "", "req-1"))

	entries, meta, err := repo.Query(context.Background(),
		model.AuditScope{ExcludeAdmin: true},
		model.AuditQuery{Action: "permission.override_set", Page: 2, Limit: 20})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, 1, meta.Total)
	assert.Equal(t, 2, meta.Page)
	assert.Equal(t, actorID, entries[0].ActorID)
	assert.EqualValues(t, 7, entries[0].Seq)
	assert.Equal(t, "calls", entries[0].Metadata["page"])
	assert.Equal(t, true, entries[0].Metadata["after"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_QueryRestrictsToActor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAuditRepository(db)
	actorID := uuid.NewString()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_entries WHERE actor_id = $1")).
		WithArgs(actorID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT seq, id, occurred_at").
		WithArgs(actorID, 50, 0).
		WillReturnRows(sqlmock.NewRows(auditRowColumns))

	entries, _, err := repo.Query(context.Background(), model.AuditScope{ActorID: actorID}, model.AuditQuery{Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_QueryZeroScopeSeesNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAuditRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_entries WHERE FALSE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT seq, id, occurred_at").
		WillReturnRows(sqlmock.NewRows(auditRowColumns))

	_, _, err = repo.Query(context.Background(), model.AuditScope{}, model.AuditQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_PurgeRunsInsidePurgeTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAuditRepository(db)
	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL app.audit_purge").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM audit_entries").WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := repo.PurgeBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
