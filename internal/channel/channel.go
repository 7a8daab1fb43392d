package channel

import (
	"context"

	"compow-alarm/internal/models"
)

// Status 通道投递状态
type Status string

const (
	StatusDelivered  Status = "delivered"   // 已送达（实时通道收到成功确认；短信通道已发出）
	StatusPendingAck Status = "pending_ack" // 已发出但确认超时
	StatusFailed     Status = "failed"      // 未送达（未连接、发送失败、服务端拒绝）
)

// Outcome 单次投递尝试的结果
type Outcome struct {
	Status Status
	Reason string
}

// IsDelivered 是否确认送达
func (o Outcome) IsDelivered() bool {
	return o.Status == StatusDelivered
}

// Delivered 构造送达结果
func Delivered() Outcome {
	return Outcome{Status: StatusDelivered}
}

// PendingAck 构造确认超时结果
func PendingAck(reason string) Outcome {
	return Outcome{Status: StatusPendingAck, Reason: reason}
}

// Failed 构造失败结果
func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

// Channel 报警投递通道
// 每次报警每个通道只尝试一次，不做内部重试；回退决策由编排层负责
type Channel interface {
	Name() string
	Send(ctx context.Context, payload *models.AlertPayload, recipients []*models.Contact) Outcome
}
