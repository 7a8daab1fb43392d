package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"compow-alarm/internal/config"
	"compow-alarm/internal/models"
)

func setupTestState(t *testing.T) (*miniredis.Miniredis, *StateManager) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{}
	cfg.Redis.KeyPrefix = "compow:"
	cfg.Alarm.DefaultMessage = config.DefaultEmergencyMessage

	logger := zap.NewNop()
	return mr, NewStateManager(cfg, redisClient, logger)
}

func TestStateManager_TypedPreferences(t *testing.T) {
	_, sm := setupTestState(t)
	ctx := context.Background()

	// 缺失返回默认值
	v, err := sm.GetString(ctx, "missing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	b, err := sm.GetBool(ctx, KeyCircleEnabled, false)
	require.NoError(t, err)
	assert.False(t, b)

	n, err := sm.GetInt64(ctx, KeyAlarmCount, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// 写后读
	require.NoError(t, sm.SetString(ctx, KeyDefaultMessage, "custom message"))
	v, err = sm.GetString(ctx, KeyDefaultMessage, "")
	require.NoError(t, err)
	assert.Equal(t, "custom message", v)

	require.NoError(t, sm.SetBool(ctx, KeyCircleEnabled, true))
	b, err = sm.GetBool(ctx, KeyCircleEnabled, false)
	require.NoError(t, err)
	assert.True(t, b)

	require.NoError(t, sm.SetInt64(ctx, KeyLastAlarmTime, 12345))
	n, err = sm.GetInt64(ctx, KeyLastAlarmTime, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), n)

	// 自增
	count, err := sm.IncrInt64(ctx, KeyAlarmCount)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	count, err = sm.IncrInt64(ctx, KeyAlarmCount)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestStateManager_AlarmFlag(t *testing.T) {
	_, sm := setupTestState(t)
	ctx := context.Background()

	// 从未写入 → 零值
	flag, err := sm.GetAlarmFlag(ctx)
	require.NoError(t, err)
	assert.False(t, flag.Active)
	assert.Equal(t, int64(0), flag.AlertID)

	// 设置
	since := time.Now().UnixMilli()
	require.NoError(t, sm.SetAlarmFlag(ctx, AlarmFlag{Active: true, AlertID: 7, Since: since}))

	flag, err = sm.GetAlarmFlag(ctx)
	require.NoError(t, err)
	assert.True(t, flag.Active)
	assert.Equal(t, int64(7), flag.AlertID)
	assert.Equal(t, since, flag.Since)

	// 清除
	require.NoError(t, sm.ClearAlarmFlag(ctx))
	flag, err = sm.GetAlarmFlag(ctx)
	require.NoError(t, err)
	assert.False(t, flag.Active)
	assert.Equal(t, int64(0), flag.AlertID)
}

func TestStateManager_AlarmFlag_CorruptValue(t *testing.T) {
	mr, sm := setupTestState(t)
	ctx := context.Background()

	mr.Set("compow:alarm_flag", "not-json")

	_, err := sm.GetAlarmFlag(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal alarm flag")
}

func TestStateManager_LastLocation(t *testing.T) {
	_, sm := setupTestState(t)
	ctx := context.Background()

	// 缺失 → (nil, nil)
	loc, err := sm.GetLastLocation(ctx)
	require.NoError(t, err)
	assert.Nil(t, loc)

	require.NoError(t, sm.SetLastLocation(ctx, models.Location{Latitude: -0.0469, Longitude: 37.6494}))

	loc, err = sm.GetLastLocation(ctx)
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.InDelta(t, -0.0469, loc.Latitude, 1e-9)
	assert.InDelta(t, 37.6494, loc.Longitude, 1e-9)
}

func TestStateManager_CategoryEnablement(t *testing.T) {
	_, sm := setupTestState(t)
	ctx := context.Background()

	// 默认全关
	enablement, err := sm.CategoryEnablement(ctx)
	require.NoError(t, err)
	assert.False(t, enablement[models.CategoryCircle])
	assert.False(t, enablement[models.CategoryGroup])
	assert.False(t, enablement[models.CategoryCommunity])

	require.NoError(t, sm.SetBool(ctx, KeyCircleEnabled, true))
	require.NoError(t, sm.SetBool(ctx, KeyCommunityEnabled, true))

	enablement, err = sm.CategoryEnablement(ctx)
	require.NoError(t, err)
	assert.True(t, enablement[models.CategoryCircle])
	assert.False(t, enablement[models.CategoryGroup])
	assert.True(t, enablement[models.CategoryCommunity])
}

func TestStateManager_DefaultMessage(t *testing.T) {
	_, sm := setupTestState(t)
	ctx := context.Background()

	// 未配置 → 配置默认值
	msg, err := sm.DefaultMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultEmergencyMessage, msg)

	require.NoError(t, sm.SetString(ctx, KeyDefaultMessage, "call my mum"))
	msg, err = sm.DefaultMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "call my mum", msg)
}

func TestStateManager_RecordAlarmStats(t *testing.T) {
	_, sm := setupTestState(t)
	ctx := context.Background()

	now := time.Now()
	sm.RecordAlarmStats(ctx, now)
	sm.RecordAlarmStats(ctx, now.Add(time.Minute))

	count, err := sm.GetInt64(ctx, KeyAlarmCount, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	last, err := sm.GetInt64(ctx, KeyLastAlarmTime, 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), last)
}
