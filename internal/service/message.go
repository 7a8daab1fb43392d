package service

import (
	"fmt"

	"compow-alarm/internal/models"
)

// SafeMessage 解除报警时发送的固定消息
const SafeMessage = "✅ I am now SAFE. Thank you for your concern."

// MapsURL 将坐标格式化为地图链接
func MapsURL(loc *models.Location) string {
	if loc == nil {
		return ""
	}
	return fmt.Sprintf("https://maps.google.com/?q=%v,%v", loc.Latitude, loc.Longitude)
}

// BuildAlertMessage 组装完整的报警消息文本
// 定位缺失时位置行显示 "Unavailable"
func BuildAlertMessage(senderName, message string, loc *models.Location, timeText string) string {
	locationText := MapsURL(loc)
	if locationText == "" {
		locationText = "Unavailable"
	}

	return fmt.Sprintf("%s: %s\n\n📍 Location: %s\n⏰ Time: %s",
		senderName, message, locationText, timeText)
}
