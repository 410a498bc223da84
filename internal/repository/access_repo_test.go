package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-admin-portal/internal/model"
)

func userRow(u model.User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "full_name", "password_hash", "role", "is_active", "created_at", "updated_at"}).
		AddRow(u.ID, u.Email, u.FullName, u.PasswordHash, u.Role.String(), u.Active, u.CreatedAt, u.UpdatedAt)
}

func testAdmin() model.User {
	now := time.Now().UTC()
	return model.User{
		ID:           uuid.NewString(),
		Email:        "admin@example.com",
		FullName:     "Admin",
		PasswordHash: "hash",
		Role:         model.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func revokeUserManagement(userID string) model.OverrideWrite {
	denied := false
	return model.OverrideWrite{
		UserID:    userID,
		Page:      model.PageUserManagement,
		Value:     &denied,
		UpdatedBy: userID,
		UpdatedAt: time.Now().UTC(),
		Audit: func(target model.User, _ model.OverrideChange) model.AuditEntry {
			return model.AuditEntry{
				ID:         "01J0000000000000000000TEST",
				OccurredAt: time.Now().UTC(),
				Action:     model.AuditOverrideSet,
				Severity:   model.SeverityCritical,
				TargetID:   target.ID,
			}
		},
	}
}

func TestAccessRepository_RefusesLastAdministrator(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAccessRepository(db)
	admin := testAdmin()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(accessLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1 FOR UPDATE").WithArgs(admin.ID).WillReturnRows(userRow(admin))
	mock.ExpectQuery("SELECT has_access FROM page_overrides").
		WithArgs(admin.ID, "user_management").
		WillReturnRows(sqlmock.NewRows([]string{"has_access"}))
	mock.ExpectQuery("SELECT count").
		WithArgs(admin.ID, "user_management", "admin", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	_, err = repo.ApplyOverride(context.Background(), revokeUserManagement(admin.ID))
	require.ErrorIs(t, err, model.ErrSelfLockout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRepository_OverrideAndAuditCommitTogether(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAccessRepository(db)
	admin := testAdmin()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM users WHERE id = \\$1 FOR UPDATE").WillReturnRows(userRow(admin))
	mock.ExpectQuery("SELECT has_access FROM page_overrides").
		WillReturnRows(sqlmock.NewRows([]string{"has_access"}).AddRow(true))
	mock.ExpectQuery("SELECT count").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO page_overrides").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	change, err := repo.ApplyOverride(context.Background(), revokeUserManagement(admin.ID))
	require.NoError(t, err)
	assert.True(t, change.Before)
	assert.False(t, change.After)
	require.NotNil(t, change.PreviousOverride)
	assert.True(t, *change.PreviousOverride)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRepository_AuditFailureRollsBackOverride(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAccessRepository(db)
	agent := testAdmin()
	agent.Role = model.RoleAgent
	granted := true

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM users WHERE id = \\$1 FOR UPDATE").WillReturnRows(userRow(agent))
	mock.ExpectQuery("SELECT has_access FROM page_overrides").WillReturnRows(sqlmock.NewRows([]string{"has_access"}))
	mock.ExpectExec("INSERT INTO page_overrides").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_entries").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = repo.ApplyOverride(context.Background(), model.OverrideWrite{
		UserID:    agent.ID,
		Page:      model.PageCandidates,
		Value:     &granted,
		UpdatedBy: uuid.NewString(),
		UpdatedAt: time.Now().UTC(),
		Audit: func(target model.User, _ model.OverrideChange) model.AuditEntry {
			return model.AuditEntry{ID: "01J0000000000000000000FAIL", Action: model.AuditOverrideSet, TargetID: target.ID}
		},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRepository_DemotionChecksOtherAdministrators(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAccessRepository(db)
	admin := testAdmin()
	demoted := admin
	demoted.Role = model.RoleManager

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM users WHERE id = \\$1 FOR UPDATE").WillReturnRows(userRow(admin))
	mock.ExpectQuery("SELECT has_access FROM page_overrides").WillReturnRows(sqlmock.NewRows([]string{"has_access"}))
	mock.ExpectQuery("SELECT count").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	_, err = repo.ApplyUserUpdate(context.Background(), model.UserWrite{User: demoted})
	require.ErrorIs(t, err, model.ErrSelfLockout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRepository_RenameSkipsAdministratorCheck(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAccessRepository(db)
	admin := testAdmin()
	renamed := admin
	renamed.FullName = "Renamed"

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM users WHERE id = \\$1 FOR UPDATE").WillReturnRows(userRow(admin))
	mock.ExpectQuery("SELECT has_access FROM page_overrides").WillReturnRows(sqlmock.NewRows([]string{"has_access"}))
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	before, err := repo.ApplyUserUpdate(context.Background(), model.UserWrite{
		User: renamed,
		Audit: func(before model.User) model.AuditEntry {
			return model.AuditEntry{ID: "01J0000000000000000000USER", Action: model.AuditUserUpdated, TargetID: before.ID}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Admin", before.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
