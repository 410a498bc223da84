package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-admin-portal/internal/model"
)

func TestOverrideRepository_ListSkipsUnknownPages(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewOverrideRepository(db)
	userID := uuid.NewString()

	mock.ExpectQuery("SELECT page, has_access FROM page_overrides").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"page", "has_access"}).
			AddRow("calls", true).
			AddRow("retired_page", true).
			AddRow("dashboard", false))

	got, err := repo.ListForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, map[model.Page]bool{model.PageCalls: true, model.PageDashboard: false}, got)
}
