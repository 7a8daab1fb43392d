package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	require.NoError(t, err)
	defer Close(db)

	// 三张表均可写入
	_, err = db.Exec(
		`INSERT INTO contacts (name, phone_number, category, is_enabled, created_at) VALUES (?, ?, ?, ?, ?)`,
		"Alice", "+254700000001", "CIRCLE", 1, time.Now(),
	)
	assert.NoError(t, err)

	_, err = db.Exec(
		`INSERT INTO users (user_id, full_name, email, phone_number, created_at) VALUES (?, ?, ?, ?, ?)`,
		"user-1", "Alice W", "alice@example.com", "+254700000001", time.Now(),
	)
	assert.NoError(t, err)

	var logID int64
	err = db.QueryRow(
		`INSERT INTO alert_logs (alert_type, message, timestamp, contacts_notified, is_resolved) VALUES (?, ?, ?, ?, ?) RETURNING log_id`,
		"EMERGENCY", "help", time.Now(), 3, 0,
	).Scan(&logID)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), logID)
}

func TestOpen_Reentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, Close(db))

	// 迁移幂等，重开同一文件不报错
	db, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, Close(db))
}
