package models

// PayloadType 实时通道事件类型判别值
const (
	PayloadTypeEmergency = "emergency"
	PayloadTypeSafe      = "safe"
)

// AlertPayload 实时通道上的报警事件载荷
// RequestID 用于关联服务端确认（ack）
type AlertPayload struct {
	RequestID    string   `json:"request_id"`
	FromUserID   string   `json:"from_user_id"`
	FromUserName string   `json:"from_user_name"`
	Message      string   `json:"message"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	ContactIDs   []string `json:"contact_ids"`
	Timestamp    int64    `json:"timestamp"`
	Type         string   `json:"type"` // "emergency" | "safe"
}
