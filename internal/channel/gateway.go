package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPGateway 通过 HTTP 网关发送短信
type HTTPGateway struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPGateway 创建短信网关客户端
func NewHTTPGateway(url string, logger *zap.Logger) *HTTPGateway {
	return &HTTPGateway{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type gatewayRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendSMS 向网关提交一条短信
func (g *HTTPGateway) SendSMS(ctx context.Context, phoneNumber, message string) error {
	body, err := json.Marshal(gatewayRequest{
		To:      phoneNumber,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal SMS request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call SMS gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("SMS gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// LogSMSSender 未配置网关时的本地实现：只记日志，不真正发送
type LogSMSSender struct {
	logger *zap.Logger
}

// NewLogSMSSender 创建日志短信实现
func NewLogSMSSender(logger *zap.Logger) *LogSMSSender {
	return &LogSMSSender{logger: logger}
}

// SendSMS 记录一条本应发出的短信
func (s *LogSMSSender) SendSMS(_ context.Context, phoneNumber, message string) error {
	s.logger.Info("SMS (dry run)",
		zap.String("phone_number", phoneNumber),
		zap.Int("message_length", len([]rune(message))),
	)
	return nil
}
