package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open 打开本地 SQLite 数据库并执行建表迁移
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite 单写者模型，限制连接数避免 database is locked
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate 执行幂等建表语句
func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			phone_number TEXT NOT NULL,
			category TEXT NOT NULL,
			is_enabled INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_category ON contacts(category);`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone_number TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS alert_logs (
			log_id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_type TEXT NOT NULL,
			message TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			timestamp TIMESTAMP NOT NULL,
			contacts_notified INTEGER NOT NULL DEFAULT 0,
			is_resolved INTEGER NOT NULL DEFAULT 0,
			resolved_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alert_logs_resolved ON alert_logs(is_resolved, timestamp);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭数据库连接
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
