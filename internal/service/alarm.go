package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"compow-alarm/internal/channel"
	"compow-alarm/internal/config"
	"compow-alarm/internal/models"
	"compow-alarm/internal/repository"
	"compow-alarm/internal/state"

	"go.uber.org/zap"
)

// AlarmOrchestrator 报警编排器
// 负责完整的触发/解除流水线：
// 触发 → 选收件人 → 实时通道（等确认）→ 短信回退 → 写日志 → 写持久标志 → 本地通知
// 并发约束：
// 1. 重复触发用 CAS 挡掉（第二次触发立即返回，不产生第二条流水线）
// 2. 触发与解除用互斥锁串行化（解除会等进行中的触发完整落盘后再执行）
// 3. 先写日志后写标志，保证标志指向的日志一定存在
type AlarmOrchestrator struct {
	config       *config.Config
	logger       *zap.Logger
	recipients   *RecipientResolver
	locator      *Locator
	userRepo     *repository.UserRepository
	alertLogRepo *repository.AlertLogRepository
	stateManager *state.StateManager
	realtime     channel.Channel
	fallback     channel.Channel
	notifier     Notifier
	vibrator     Vibrator

	active atomic.Bool
	mu     sync.Mutex
}

// NewAlarmOrchestrator 创建报警编排器
func NewAlarmOrchestrator(
	cfg *config.Config,
	logger *zap.Logger,
	recipients *RecipientResolver,
	locator *Locator,
	userRepo *repository.UserRepository,
	alertLogRepo *repository.AlertLogRepository,
	stateManager *state.StateManager,
	realtime channel.Channel,
	fallback channel.Channel,
	notifier Notifier,
	vibrator Vibrator,
) *AlarmOrchestrator {
	return &AlarmOrchestrator{
		config:       cfg,
		logger:       logger,
		recipients:   recipients,
		locator:      locator,
		userRepo:     userRepo,
		alertLogRepo: alertLogRepo,
		stateManager: stateManager,
		realtime:     realtime,
		fallback:     fallback,
		notifier:     notifier,
		vibrator:     vibrator,
	}
}

// Active 报警是否处于激活状态
func (o *AlarmOrchestrator) Active() bool {
	return o.active.Load()
}

// TriggerAlarm 触发报警
// message 为空时使用用户自定义默认消息（或内置默认消息）
// 已激活时是幂等空操作
func (o *AlarmOrchestrator) TriggerAlarm(ctx context.Context, message string) error {
	// CAS 守卫：并发的第二次触发在这里被挡掉
	if !o.active.CompareAndSwap(false, true) {
		o.logger.Info("Alarm already active, trigger ignored")
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// 持久标志二次检查：上次进程留下的激活报警不允许被覆盖
	flag, err := o.stateManager.GetAlarmFlag(ctx)
	if err != nil {
		o.active.Store(false)
		return fmt.Errorf("failed to check alarm flag: %w", err)
	}
	if flag.Active {
		o.logger.Warn("Durable alarm flag already set, trigger ignored",
			zap.Int64("alert_id", flag.AlertID),
		)
		return nil
	}

	o.vibrator.Vibrate(time.Duration(o.config.Alarm.VibrationMS) * time.Millisecond)

	if err := o.dispatchEmergency(ctx, message); err != nil {
		o.active.Store(false)
		return err
	}
	return nil
}

// dispatchEmergency 执行紧急报警流水线（调用方持有 mu）
func (o *AlarmOrchestrator) dispatchEmergency(ctx context.Context, message string) error {
	triggeredAt := time.Now()

	if message == "" {
		var err error
		message, err = o.stateManager.DefaultMessage(ctx)
		if err != nil {
			o.logger.Warn("Failed to read default message, using built-in", zap.Error(err))
			message = o.config.Alarm.DefaultMessage
		}
	}

	recipients, err := o.recipients.SelectRecipients(ctx)
	if err != nil {
		return fmt.Errorf("failed to select recipients: %w", err)
	}
	if len(recipients) == 0 {
		// 无人可通知：不发送、不写日志、不设标志，提醒用户去配置
		o.logger.Warn("No recipients available, alarm aborted")
		o.notifier.Notify(SeverityWarning, "⚠️ Alert not sent",
			"No emergency contacts are enabled. Add contacts and enable a category.")
		o.active.Store(false)
		return nil
	}

	loc := o.locator.GetWithFallback(ctx)
	sender := o.currentSender(ctx)
	fullMessage := BuildAlertMessage(sender.FullName, message, loc, triggeredAt.Format("15:04:05"))

	payload := o.buildPayload(sender, fullMessage, loc, recipients, triggeredAt, models.PayloadTypeEmergency)
	channelUsed := o.deliver(ctx, payload, recipients)

	logID, err := o.alertLogRepo.InsertAlertLog(ctx, &models.AlertLog{
		AlertType:        models.AlertEmergency,
		Message:          fullMessage,
		Latitude:         payload.Latitude,
		Longitude:        payload.Longitude,
		Timestamp:        triggeredAt,
		ContactsNotified: len(recipients),
	})
	if err != nil {
		// 消息可能已经发出，但没有日志就没有可解除的对象，报警回到非激活态
		o.notifier.Notify(SeverityError, "❌ Alert logging failed",
			"Your alert may have been sent but could not be recorded.")
		return fmt.Errorf("failed to persist alert log: %w", err)
	}

	// 日志先落盘，标志后写：标志引用的日志一定存在
	if err := o.stateManager.SetAlarmFlag(ctx, state.AlarmFlag{
		Active:  true,
		AlertID: logID,
		Since:   triggeredAt.UnixMilli(),
	}); err != nil {
		// 报警已发出且已记录，标志写失败只影响重启恢复，不回滚
		o.logger.Error("Failed to persist alarm flag", zap.Error(err))
	}

	o.stateManager.RecordAlarmStats(ctx, triggeredAt)

	o.notifier.Notify(SeverityInfo, "🚨 Emergency alert sent",
		fmt.Sprintf("Alert sent to %d contact(s) via %s", len(recipients), channelUsed))

	o.logger.Info("Emergency alarm dispatched",
		zap.Int64("log_id", logID),
		zap.Int("recipients", len(recipients)),
		zap.String("channel", channelUsed),
	)

	return nil
}

// StopAlarm 解除报警
// 未激活时是幂等空操作
func (o *AlarmOrchestrator) StopAlarm(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.active.Load() {
		o.logger.Info("No active alarm, stop ignored")
		return nil
	}

	resolvedAt := time.Now()

	// 安全消息用当前的分类开关选收件人，不复用触发时的名单
	recipients, err := o.recipients.SelectRecipients(ctx)
	if err != nil {
		return fmt.Errorf("failed to select recipients: %w", err)
	}

	if len(recipients) > 0 {
		loc := o.locator.GetWithFallback(ctx)
		sender := o.currentSender(ctx)
		fullMessage := BuildAlertMessage(sender.FullName, SafeMessage, loc, resolvedAt.Format("15:04:05"))

		payload := o.buildPayload(sender, fullMessage, loc, recipients, resolvedAt, models.PayloadTypeSafe)
		channelUsed := o.deliver(ctx, payload, recipients)

		if _, err := o.alertLogRepo.InsertAlertLog(ctx, &models.AlertLog{
			AlertType:        models.AlertSafe,
			Message:          fullMessage,
			Latitude:         payload.Latitude,
			Longitude:        payload.Longitude,
			Timestamp:        resolvedAt,
			ContactsNotified: len(recipients),
			IsResolved:       true,
		}); err != nil {
			o.logger.Error("Failed to persist safe log", zap.Error(err))
		}

		o.logger.Info("Safe message dispatched",
			zap.Int("recipients", len(recipients)),
			zap.String("channel", channelUsed),
		)
	} else {
		o.logger.Warn("No recipients for safe message, resolving without notification")
	}

	// 解除原始报警日志：优先用标志里的 alert_id，缺失时回退查询
	if err := o.resolveOriginal(ctx, resolvedAt); err != nil {
		return err
	}

	if err := o.stateManager.ClearAlarmFlag(ctx); err != nil {
		o.logger.Error("Failed to clear alarm flag", zap.Error(err))
	}

	o.active.Store(false)

	o.notifier.Notify(SeverityInfo, "✅ Alarm resolved",
		"Your contacts have been notified that you are safe.")

	return nil
}

// resolveOriginal 标记触发时创建的日志为已解除
func (o *AlarmOrchestrator) resolveOriginal(ctx context.Context, resolvedAt time.Time) error {
	flag, err := o.stateManager.GetAlarmFlag(ctx)
	if err != nil {
		return fmt.Errorf("failed to read alarm flag: %w", err)
	}

	logID := flag.AlertID
	if logID == 0 {
		active, err := o.alertLogRepo.GetActiveAlert(ctx)
		if err != nil {
			return fmt.Errorf("failed to find active alert: %w", err)
		}
		if active == nil {
			o.logger.Warn("No unresolved alert log found")
			return nil
		}
		logID = active.LogID
	}

	if err := o.alertLogRepo.ResolveAlert(ctx, logID, resolvedAt); err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	return nil
}

// RecoverFromRestart 启动恢复
// 持久标志仍激活时恢复内存态并提醒用户，但不重发任何消息、不写任何日志
func (o *AlarmOrchestrator) RecoverFromRestart(ctx context.Context) error {
	flag, err := o.stateManager.GetAlarmFlag(ctx)
	if err != nil {
		return fmt.Errorf("failed to read alarm flag: %w", err)
	}

	if !flag.Active {
		o.logger.Info("No active alarm to recover")
		return nil
	}

	o.active.Store(true)
	o.notifier.Notify(SeverityWarning, "🚨 Alarm still active",
		"An emergency alert from before restart is still active. Stop it when you are safe.")

	o.logger.Warn("Recovered active alarm from previous run",
		zap.Int64("alert_id", flag.AlertID),
		zap.Int64("since", flag.Since),
	)

	return nil
}

// deliver 先走实时通道，未确认送达则整体回退短信，返回实际使用的通道名
func (o *AlarmOrchestrator) deliver(ctx context.Context, payload *models.AlertPayload, recipients []*models.Contact) string {
	outcome := o.realtime.Send(ctx, payload, recipients)
	if outcome.IsDelivered() {
		return o.realtime.Name()
	}

	o.logger.Warn("Realtime delivery not confirmed, falling back to SMS",
		zap.String("status", string(outcome.Status)),
		zap.String("reason", outcome.Reason),
	)

	o.fallback.Send(ctx, payload, recipients)
	return o.fallback.Name()
}

// currentSender 读取当前用户，缺失回退为匿名署名
func (o *AlarmOrchestrator) currentSender(ctx context.Context) *models.User {
	user, err := o.userRepo.GetCurrentUser(ctx)
	if err != nil {
		o.logger.Warn("Failed to load current user, sending anonymously", zap.Error(err))
		user = nil
	}
	if user == nil {
		return &models.User{
			UserID:   models.AnonymousUserID,
			FullName: models.AnonymousUserName,
		}
	}
	return user
}

// buildPayload 组装实时通道载荷
func (o *AlarmOrchestrator) buildPayload(
	sender *models.User,
	fullMessage string,
	loc *models.Location,
	recipients []*models.Contact,
	at time.Time,
	payloadType string,
) *models.AlertPayload {
	contactIDs := make([]string, 0, len(recipients))
	for _, c := range recipients {
		contactIDs = append(contactIDs, strconv.FormatInt(c.ID, 10))
	}

	payload := &models.AlertPayload{
		FromUserID:   sender.UserID,
		FromUserName: sender.FullName,
		Message:      fullMessage,
		ContactIDs:   contactIDs,
		Timestamp:    at.UnixMilli(),
		Type:         payloadType,
	}
	if loc != nil {
		payload.Latitude = &loc.Latitude
		payload.Longitude = &loc.Longitude
	}
	return payload
}
