package trigger

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Key 触发器监听的按键
type Key string

const (
	KeyVolumeUp   Key = "volume_up"
	KeyVolumeDown Key = "volume_down"
)

// DoublePressDetector 双键长按触发器
// 音量上下键同时按住超过窗口时长即触发报警回调；
// 窗口内任一键松开则取消本次计时
type DoublePressDetector struct {
	window time.Duration
	onHold func()
	logger *zap.Logger

	mu      sync.Mutex
	pressed map[Key]bool
	timer   *time.Timer
}

// NewDoublePressDetector 创建触发器
func NewDoublePressDetector(window time.Duration, onHold func(), logger *zap.Logger) *DoublePressDetector {
	return &DoublePressDetector{
		window:  window,
		onHold:  onHold,
		logger:  logger,
		pressed: make(map[Key]bool),
	}
}

// Press 记录按键按下
func (d *DoublePressDetector) Press(key Key) {
	if key != KeyVolumeUp && key != KeyVolumeDown {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.pressed[key] = true
	if d.pressed[KeyVolumeUp] && d.pressed[KeyVolumeDown] && d.timer == nil {
		d.logger.Debug("Both keys held, arming trigger",
			zap.Duration("window", d.window),
		)
		d.timer = time.AfterFunc(d.window, d.fire)
	}
}

// Release 记录按键松开，窗口内松开取消触发
func (d *DoublePressDetector) Release(key Key) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.pressed, key)
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.logger.Debug("Key released, trigger disarmed")
	}
}

// fire 窗口到期仍双键按住，触发回调
func (d *DoublePressDetector) fire() {
	d.mu.Lock()
	stillHeld := d.pressed[KeyVolumeUp] && d.pressed[KeyVolumeDown]
	d.timer = nil
	d.mu.Unlock()

	if !stillHeld {
		return
	}

	d.logger.Info("Double-press trigger fired")
	d.onHold()
}
