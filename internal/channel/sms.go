package channel

import (
	"context"
	"strings"
	"unicode"

	"compow-alarm/internal/models"

	"go.uber.org/zap"
)

// SMSSender 短信发送底座（网关或本地日志实现）
type SMSSender interface {
	SendSMS(ctx context.Context, phoneNumber, message string) error
}

// SMSChannel 短信回退通道
// 逐个联系人发送，单个失败只记日志不中断；超长消息按段长拆分为多条
type SMSChannel struct {
	sender        SMSSender
	segmentLength int
	logger        *zap.Logger
}

// NewSMSChannel 创建短信通道
func NewSMSChannel(sender SMSSender, segmentLength int, logger *zap.Logger) *SMSChannel {
	return &SMSChannel{
		sender:        sender,
		segmentLength: segmentLength,
		logger:        logger,
	}
}

// Name 通道名
func (c *SMSChannel) Name() string {
	return "sms"
}

// Send 向每个联系人逐条发送消息分段
// 短信无送达回执，发出即视为 delivered
func (c *SMSChannel) Send(ctx context.Context, payload *models.AlertPayload, recipients []*models.Contact) Outcome {
	parts := SplitMessage(payload.Message, c.segmentLength)

	sent := 0
	for _, contact := range recipients {
		failed := false
		for i, part := range parts {
			if err := c.sender.SendSMS(ctx, contact.PhoneNumber, part); err != nil {
				c.logger.Warn("Failed to send SMS part",
					zap.String("phone_number", contact.PhoneNumber),
					zap.Int("part", i+1),
					zap.Int("total_parts", len(parts)),
					zap.Error(err),
				)
				failed = true
				break
			}
		}
		if !failed {
			sent++
		}
	}

	c.logger.Info("SMS fallback completed",
		zap.Int("recipients", len(recipients)),
		zap.Int("sent", sent),
		zap.Int("parts_per_message", len(parts)),
	)

	return Delivered()
}

// SplitMessage 按段长拆分消息，优先在空白处断开避免截断单词
// 按 rune 计长；limit <= 0 时不拆分
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			parts = append(parts, strings.TrimRightFunc(string(runes), unicode.IsSpace))
			break
		}

		// 在窗口后半段找最近的空白断点，找不到就硬切
		cut := limit
		for i := limit; i > limit/2; i-- {
			if unicode.IsSpace(runes[i-1]) {
				cut = i
				break
			}
		}

		part := strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
		if part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]

		// 跳过下一段开头的空白
		for len(runes) > 0 && unicode.IsSpace(runes[0]) {
			runes = runes[1:]
		}
	}

	return parts
}
