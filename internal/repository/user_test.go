package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"compow-alarm/internal/models"
)

func setupMockUserDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *UserRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewUserRepository(db, logger)

	return db, mock, repo
}

func TestGetCurrentUser_Found(t *testing.T) {
	db, mock, repo := setupMockUserDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"user_id", "full_name", "email", "phone_number", "created_at",
	}).AddRow("user-1", "Alice W", "alice@example.com", "+254700000001", now)

	mock.ExpectQuery(`SELECT .+ FROM users`).
		WillReturnRows(rows)

	user, err := repo.GetCurrentUser(context.Background())

	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "user-1", user.UserID)
	assert.Equal(t, "Alice W", user.FullName)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCurrentUser_None(t *testing.T) {
	db, mock, repo := setupMockUserDB(t)
	defer db.Close()

	// 无当前用户是合法状态，返回 (nil, nil)
	mock.ExpectQuery(`SELECT .+ FROM users`).
		WillReturnError(sql.ErrNoRows)

	user, err := repo.GetCurrentUser(context.Background())

	require.NoError(t, err)
	assert.Nil(t, user)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUser_Success(t *testing.T) {
	db, mock, repo := setupMockUserDB(t)
	defer db.Close()

	user := &models.User{
		UserID:      "user-1",
		FullName:    "Alice W",
		Email:       "alice@example.com",
		PhoneNumber: "+254700000001",
	}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("user-1", "Alice W", "alice@example.com", "+254700000001", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertUser(context.Background(), user)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUser_MissingUserID(t *testing.T) {
	db, mock, repo := setupMockUserDB(t)
	defer db.Close()

	err := repo.UpsertUser(context.Background(), &models.User{FullName: "Alice"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "user_id is required")

	require.NoError(t, mock.ExpectationsWereMet())
}
