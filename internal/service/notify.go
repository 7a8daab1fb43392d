package service

import (
	"time"

	"go.uber.org/zap"
)

// Severity 本地通知级别
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notifier 本地通知底座（状态栏通知/系统托盘等宿主实现）
type Notifier interface {
	Notify(severity Severity, title, body string)
}

// Vibrator 触觉反馈底座
type Vibrator interface {
	Vibrate(duration time.Duration)
}

// LogNotifier 无宿主通知系统时的日志实现
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志通知实现
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify 将通知写入日志
func (n *LogNotifier) Notify(severity Severity, title, body string) {
	switch severity {
	case SeverityError:
		n.logger.Error("Notification", zap.String("title", title), zap.String("body", body))
	case SeverityWarning:
		n.logger.Warn("Notification", zap.String("title", title), zap.String("body", body))
	default:
		n.logger.Info("Notification", zap.String("title", title), zap.String("body", body))
	}
}

// NopVibrator 无触觉硬件时的空实现
type NopVibrator struct{}

// Vibrate 空操作
func (NopVibrator) Vibrate(time.Duration) {}
