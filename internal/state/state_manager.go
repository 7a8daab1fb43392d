package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"compow-alarm/internal/config"
	"compow-alarm/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StateManager 持久化偏好与报警激活标志管理器
// 职责：
// 1. 类型化的偏好读写（string/bool/int64）
// 2. 报警激活标志（必须跨进程重启存活，供启动恢复读取）
// 3. 最近一次定位缓存（定位回退用）
// 4. 报警统计（次数、最近触发时间）
type StateManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewStateManager 创建状态管理器
func NewStateManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *StateManager {
	return &StateManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// 偏好键（沿用原客户端的键名）
const (
	KeyCircleEnabled    = "circle_enabled"
	KeyGroupEnabled     = "group_enabled"
	KeyCommunityEnabled = "community_enabled"
	KeyDefaultMessage   = "default_message"
	KeyAlarmCount       = "alarm_count"
	KeyLastAlarmTime    = "last_alarm_time"

	keyAlarmFlag    = "alarm_flag"
	keyLastLocation = "last_location"
)

// key 拼接完整的 Redis 键
func (s *StateManager) key(name string) string {
	return s.config.Redis.KeyPrefix + name
}

// ============================================
// 类型化偏好读写
// ============================================

// GetString 读取字符串偏好，缺失返回默认值
func (s *StateManager) GetString(ctx context.Context, name, defaultValue string) (string, error) {
	val, err := s.redisClient.Get(ctx, s.key(name)).Result()
	if err != nil {
		if err == redis.Nil {
			return defaultValue, nil
		}
		return defaultValue, fmt.Errorf("failed to get preference %s: %w", name, err)
	}
	return val, nil
}

// SetString 写入字符串偏好（无过期）
func (s *StateManager) SetString(ctx context.Context, name, value string) error {
	if err := s.redisClient.Set(ctx, s.key(name), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set preference %s: %w", name, err)
	}
	return nil
}

// GetBool 读取布尔偏好，缺失返回默认值
func (s *StateManager) GetBool(ctx context.Context, name string, defaultValue bool) (bool, error) {
	val, err := s.redisClient.Get(ctx, s.key(name)).Result()
	if err != nil {
		if err == redis.Nil {
			return defaultValue, nil
		}
		return defaultValue, fmt.Errorf("failed to get preference %s: %w", name, err)
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid bool preference %s=%q: %w", name, val, err)
	}
	return parsed, nil
}

// SetBool 写入布尔偏好
func (s *StateManager) SetBool(ctx context.Context, name string, value bool) error {
	if err := s.redisClient.Set(ctx, s.key(name), strconv.FormatBool(value), 0).Err(); err != nil {
		return fmt.Errorf("failed to set preference %s: %w", name, err)
	}
	return nil
}

// GetInt64 读取整型偏好，缺失返回默认值
func (s *StateManager) GetInt64(ctx context.Context, name string, defaultValue int64) (int64, error) {
	val, err := s.redisClient.Get(ctx, s.key(name)).Result()
	if err != nil {
		if err == redis.Nil {
			return defaultValue, nil
		}
		return defaultValue, fmt.Errorf("failed to get preference %s: %w", name, err)
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid int preference %s=%q: %w", name, val, err)
	}
	return parsed, nil
}

// SetInt64 写入整型偏好
func (s *StateManager) SetInt64(ctx context.Context, name string, value int64) error {
	if err := s.redisClient.Set(ctx, s.key(name), strconv.FormatInt(value, 10), 0).Err(); err != nil {
		return fmt.Errorf("failed to set preference %s: %w", name, err)
	}
	return nil
}

// IncrInt64 自增整型偏好，返回自增后的值
func (s *StateManager) IncrInt64(ctx context.Context, name string) (int64, error) {
	val, err := s.redisClient.Incr(ctx, s.key(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to incr preference %s: %w", name, err)
	}
	return val, nil
}

// ============================================
// 报警激活标志
// ============================================

// AlarmFlag 报警激活标志
// 序列化为单个 JSON 值写入单个键，保证 active 与 alert_id 不会被分开观察到
type AlarmFlag struct {
	Active  bool  `json:"active"`
	AlertID int64 `json:"alert_id,omitempty"`
	Since   int64 `json:"since,omitempty"` // Unix 毫秒
}

// SetAlarmFlag 写入报警激活标志
func (s *StateManager) SetAlarmFlag(ctx context.Context, flag AlarmFlag) error {
	jsonData, err := json.Marshal(flag)
	if err != nil {
		return fmt.Errorf("failed to marshal alarm flag: %w", err)
	}

	if err := s.redisClient.Set(ctx, s.key(keyAlarmFlag), jsonData, 0).Err(); err != nil {
		return fmt.Errorf("failed to set alarm flag: %w", err)
	}

	return nil
}

// GetAlarmFlag 读取报警激活标志，从未写入时返回零值（非激活）
func (s *StateManager) GetAlarmFlag(ctx context.Context) (AlarmFlag, error) {
	var flag AlarmFlag

	val, err := s.redisClient.Get(ctx, s.key(keyAlarmFlag)).Result()
	if err != nil {
		if err == redis.Nil {
			return flag, nil
		}
		return flag, fmt.Errorf("failed to get alarm flag: %w", err)
	}

	if err := json.Unmarshal([]byte(val), &flag); err != nil {
		return AlarmFlag{}, fmt.Errorf("failed to unmarshal alarm flag: %w", err)
	}

	return flag, nil
}

// ClearAlarmFlag 清除报警激活标志（写入非激活值，而非删除键）
func (s *StateManager) ClearAlarmFlag(ctx context.Context) error {
	return s.SetAlarmFlag(ctx, AlarmFlag{Active: false})
}

// ============================================
// 定位缓存
// ============================================

// SetLastLocation 缓存最近一次成功定位
func (s *StateManager) SetLastLocation(ctx context.Context, loc models.Location) error {
	jsonData, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}

	if err := s.redisClient.Set(ctx, s.key(keyLastLocation), jsonData, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last location: %w", err)
	}

	return nil
}

// GetLastLocation 读取缓存定位，缺失返回 (nil, nil)
func (s *StateManager) GetLastLocation(ctx context.Context) (*models.Location, error) {
	val, err := s.redisClient.Get(ctx, s.key(keyLastLocation)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last location: %w", err)
	}

	var loc models.Location
	if err := json.Unmarshal([]byte(val), &loc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal last location: %w", err)
	}

	return &loc, nil
}

// ============================================
// 便捷读取
// ============================================

// CategoryEnablement 读取三个分类开关
func (s *StateManager) CategoryEnablement(ctx context.Context) (map[models.ContactCategory]bool, error) {
	enablement := make(map[models.ContactCategory]bool, 3)

	keys := map[models.ContactCategory]string{
		models.CategoryCircle:    KeyCircleEnabled,
		models.CategoryGroup:     KeyGroupEnabled,
		models.CategoryCommunity: KeyCommunityEnabled,
	}
	for category, name := range keys {
		enabled, err := s.GetBool(ctx, name, false)
		if err != nil {
			return nil, err
		}
		enablement[category] = enabled
	}

	return enablement, nil
}

// DefaultMessage 读取自定义紧急消息，未配置回退到配置默认值
func (s *StateManager) DefaultMessage(ctx context.Context) (string, error) {
	msg, err := s.GetString(ctx, KeyDefaultMessage, "")
	if err != nil {
		return s.config.Alarm.DefaultMessage, err
	}
	if msg == "" {
		return s.config.Alarm.DefaultMessage, nil
	}
	return msg, nil
}

// RecordAlarmStats 更新报警统计（次数自增 + 最近触发时间），尽力而为
func (s *StateManager) RecordAlarmStats(ctx context.Context, triggeredAt time.Time) {
	if _, err := s.IncrInt64(ctx, KeyAlarmCount); err != nil {
		s.logger.Warn("Failed to increment alarm count", zap.Error(err))
	}
	if err := s.SetInt64(ctx, KeyLastAlarmTime, triggeredAt.UnixMilli()); err != nil {
		s.logger.Warn("Failed to record last alarm time", zap.Error(err))
	}
}
