package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"compow-alarm/internal/models"

	"go.uber.org/zap"
)

// AlertLogRepository 报警日志仓库
// 只追加、只解除，不删除（保留/清理不在本仓库职责内）
type AlertLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertLogRepository 创建报警日志仓库
func NewAlertLogRepository(db *sql.DB, logger *zap.Logger) *AlertLogRepository {
	return &AlertLogRepository{
		db:     db,
		logger: logger,
	}
}

const alertLogColumns = `log_id, alert_type, message, latitude, longitude, timestamp, contacts_notified, is_resolved, resolved_at`

// InsertAlertLog 追加一条报警日志，返回生成的 log_id
func (r *AlertLogRepository) InsertAlertLog(ctx context.Context, entry *models.AlertLog) (int64, error) {
	if entry == nil {
		return 0, fmt.Errorf("entry is required")
	}
	if entry.AlertType != models.AlertEmergency && entry.AlertType != models.AlertSafe && entry.AlertType != models.AlertTest {
		return 0, fmt.Errorf("invalid alert type: %s", entry.AlertType)
	}
	// 经纬度必须成对出现
	if (entry.Latitude == nil) != (entry.Longitude == nil) {
		return 0, fmt.Errorf("latitude and longitude must both be set or both be nil")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	query := `
		INSERT INTO alert_logs (alert_type, message, latitude, longitude, timestamp, contacts_notified, is_resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING log_id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		string(entry.AlertType),
		entry.Message,
		entry.Latitude,
		entry.Longitude,
		entry.Timestamp,
		entry.ContactsNotified,
		entry.IsResolved,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert log: %w", err)
	}

	r.logger.Info("Alert log created",
		zap.Int64("log_id", id),
		zap.String("alert_type", string(entry.AlertType)),
		zap.Int("contacts_notified", entry.ContactsNotified),
	)

	entry.LogID = id
	return id, nil
}

// ResolveAlert 标记报警已解除（设置 is_resolved 与 resolved_at）
// 日志不存在或已解除时是幂等空操作，只记录告警
func (r *AlertLogRepository) ResolveAlert(ctx context.Context, logID int64, resolvedAt time.Time) error {
	if logID <= 0 {
		return fmt.Errorf("log_id is required")
	}
	if resolvedAt.IsZero() {
		resolvedAt = time.Now()
	}

	query := `
		UPDATE alert_logs
		SET is_resolved = 1, resolved_at = ?
		WHERE log_id = ? AND is_resolved = 0
	`

	result, err := r.db.ExecContext(ctx, query, resolvedAt, logID)
	if err != nil {
		return fmt.Errorf("failed to resolve alert log: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check resolve result: %w", err)
	}
	if affected == 0 {
		r.logger.Warn("Resolve skipped, alert log missing or already resolved",
			zap.Int64("log_id", logID),
		)
		return nil
	}

	r.logger.Info("Alert log resolved",
		zap.Int64("log_id", logID),
	)

	return nil
}

// GetActiveAlert 获取当前未解除的报警
// 不存在返回 (nil, nil)；若因异常出现多条未解除记录，确定性地返回最新创建的一条
func (r *AlertLogRepository) GetActiveAlert(ctx context.Context) (*models.AlertLog, error) {
	query := `
		SELECT ` + alertLogColumns + `
		FROM alert_logs
		WHERE is_resolved = 0
		ORDER BY timestamp DESC, log_id DESC
		LIMIT 1
	`

	entry, err := r.scanAlertLogRow(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active alert: %w", err)
	}

	return entry, nil
}

// GetRecentAlerts 获取最近的报警日志，最新在前
func (r *AlertLogRepository) GetRecentAlerts(ctx context.Context, limit int) ([]*models.AlertLog, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT ` + alertLogColumns + `
		FROM alert_logs
		ORDER BY timestamp DESC, log_id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.AlertLog
	for rows.Next() {
		entry, err := r.scanAlertLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert logs: %w", err)
	}

	return entries, nil
}

// CountAlerts 统计全部报警日志数量
func (r *AlertLogRepository) CountAlerts(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_logs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count alert logs: %w", err)
	}
	return count, nil
}

// CountActiveAlerts 统计未解除的报警数量
func (r *AlertLogRepository) CountActiveAlerts(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_logs WHERE is_resolved = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active alert logs: %w", err)
	}
	return count, nil
}

// rowScanner 统一 *sql.Row 与 *sql.Rows 的扫描接口
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAlertLogRow 扫描一行报警日志并处理可空字段
func (r *AlertLogRepository) scanAlertLogRow(row rowScanner) (*models.AlertLog, error) {
	var entry models.AlertLog
	var alertType string
	var latitude, longitude sql.NullFloat64
	var resolvedAt sql.NullTime

	err := row.Scan(
		&entry.LogID,
		&alertType,
		&entry.Message,
		&latitude,
		&longitude,
		&entry.Timestamp,
		&entry.ContactsNotified,
		&entry.IsResolved,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.AlertType = models.AlertType(alertType)
	if latitude.Valid {
		entry.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		entry.Longitude = &longitude.Float64
	}
	if resolvedAt.Valid {
		entry.ResolvedAt = &resolvedAt.Time
	}

	return &entry, nil
}
