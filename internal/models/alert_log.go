package models

import "time"

// AlertType 报警类型
type AlertType string

const (
	AlertEmergency AlertType = "EMERGENCY"
	AlertSafe      AlertType = "SAFE"
	AlertTest      AlertType = "TEST"
)

// AlertLog 报警日志（对应 alert_logs 表）
// 每次触发恰好创建一条；解除时恰好更新一次（is_resolved + resolved_at）
// 经纬度要么同时存在要么同时缺失
type AlertLog struct {
	LogID            int64      `json:"log_id" db:"log_id"`
	AlertType        AlertType  `json:"alert_type" db:"alert_type"`
	Message          string     `json:"message" db:"message"`
	Latitude         *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude        *float64   `json:"longitude,omitempty" db:"longitude"`
	Timestamp        time.Time  `json:"timestamp" db:"timestamp"`
	ContactsNotified int        `json:"contacts_notified" db:"contacts_notified"`
	IsResolved       bool       `json:"is_resolved" db:"is_resolved"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// Location 地理坐标
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
