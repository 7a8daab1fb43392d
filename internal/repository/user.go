package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"compow-alarm/internal/models"

	"go.uber.org/zap"
)

// UserRepository 用户档案仓库
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// GetCurrentUser 获取当前用户（逻辑上至多一条记录）
// 不存在当前用户返回 (nil, nil)，由调用方回退为匿名署名
func (r *UserRepository) GetCurrentUser(ctx context.Context) (*models.User, error) {
	query := `
		SELECT user_id, full_name, email, phone_number, created_at
		FROM users
		LIMIT 1
	`

	var user models.User
	err := r.db.QueryRowContext(ctx, query).Scan(
		&user.UserID,
		&user.FullName,
		&user.Email,
		&user.PhoneNumber,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	return &user, nil
}

// UpsertUser 写入（或覆盖）用户档案
func (r *UserRepository) UpsertUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	if user.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if user.FullName == "" {
		return fmt.Errorf("full_name is required")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO users (user_id, full_name, email, phone_number, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			phone_number = excluded.phone_number
	`

	if _, err := r.db.ExecContext(ctx, query,
		user.UserID,
		user.FullName,
		user.Email,
		user.PhoneNumber,
		user.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	r.logger.Info("User profile saved",
		zap.String("user_id", user.UserID),
	)

	return nil
}
