package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"compow-alarm/internal/config"
	"compow-alarm/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AckResult 服务端对报警事件的确认
type AckResult struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// PresenceEvent 用户上线/下线事件
type PresenceEvent struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
	Type      string `json:"type"` // "user_online" | "user_offline"
	Timestamp int64  `json:"timestamp"`
}

// AlertHandler 收到他人报警事件时的回调
type AlertHandler func(payload *models.AlertPayload)

// RealtimeChannel 基于 MQTT 的实时报警通道
// 发送语义：发布事件并在调用方给定的预算内等待一次服务端确认；
// 超时视为 pending_ack，由编排层回退到短信，迟到的确认只记日志不参与控制流
type RealtimeChannel struct {
	config     *config.Config
	logger     *zap.Logger
	client     mqtt.Client
	ackTimeout time.Duration

	mu           sync.Mutex
	pending      map[string]chan AckResult
	alertHandler AlertHandler
	userID       string
	userName     string
}

// NewRealtimeChannel 创建实时通道（不自动连接，由宿主调用 Connect）
func NewRealtimeChannel(cfg *config.Config, logger *zap.Logger) *RealtimeChannel {
	c := &RealtimeChannel{
		config:     cfg,
		logger:     logger,
		ackTimeout: time.Duration(cfg.Alarm.AckTimeoutMS) * time.Millisecond,
		pending:    make(map[string]chan AckResult),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
	}
	if cfg.MQTT.Password != "" {
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect 连接 MQTT broker
func (c *RealtimeChannel) Connect() error {
	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Close 断开连接（先尽力发布下线事件）
func (c *RealtimeChannel) Close() {
	c.mu.Lock()
	userID := c.userID
	userName := c.userName
	c.mu.Unlock()

	if userID != "" && c.client.IsConnected() {
		c.publishPresence(userID, userName, "user_offline")
	}
	c.client.Disconnect(250)
	c.logger.Info("Realtime channel disconnected")
}

// IsConnected 检查连接状态
func (c *RealtimeChannel) IsConnected() bool {
	return c.client.IsConnected()
}

// Name 通道名
func (c *RealtimeChannel) Name() string {
	return "realtime"
}

// SetAlertHandler 注册收到他人报警事件时的回调
func (c *RealtimeChannel) SetAlertHandler(handler AlertHandler) {
	c.mu.Lock()
	c.alertHandler = handler
	c.mu.Unlock()
}

// JoinUserRoom 加入个人收件主题并发布上线事件
func (c *RealtimeChannel) JoinUserRoom(userID, userName string) {
	c.mu.Lock()
	c.userID = userID
	c.userName = userName
	c.mu.Unlock()

	if c.client.IsConnected() {
		c.subscribeUserTopic(userID)
		c.publishPresence(userID, userName, "user_online")
	}
}

// Send 发布报警事件并等待一次服务端确认
func (c *RealtimeChannel) Send(ctx context.Context, payload *models.AlertPayload, recipients []*models.Contact) Outcome {
	// 未连接立即失败，不做任何发送尝试
	if !c.client.IsConnected() {
		return Failed("not connected")
	}

	var topic string
	switch payload.Type {
	case models.PayloadTypeEmergency:
		topic = c.config.MQTT.EmergencyTopic
	case models.PayloadTypeSafe:
		topic = c.config.MQTT.SafeTopic
	default:
		return Failed(fmt.Sprintf("unknown payload type: %s", payload.Type))
	}

	if payload.RequestID == "" {
		payload.RequestID = uuid.NewString()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Failed(fmt.Sprintf("marshal payload: %v", err))
	}

	ackCh := make(chan AckResult, 1)
	c.mu.Lock()
	c.pending[payload.RequestID] = ackCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, payload.RequestID)
		c.mu.Unlock()
	}()

	token := c.client.Publish(topic, byte(c.config.MQTT.QoS), false, data)
	if !token.WaitTimeout(c.ackTimeout) {
		return PendingAck("publish not confirmed by broker")
	}
	if token.Error() != nil {
		return Failed(fmt.Sprintf("publish failed: %v", token.Error()))
	}

	c.logger.Info("Alert published, awaiting ack",
		zap.String("topic", topic),
		zap.String("request_id", payload.RequestID),
		zap.Int("recipients", len(payload.ContactIDs)),
	)

	// 等待服务端确认，恰好一次尝试
	select {
	case ack := <-ackCh:
		if ack.Success {
			return Delivered()
		}
		if ack.Error == "" {
			ack.Error = "server rejected alert"
		}
		return Failed(ack.Error)
	case <-time.After(c.ackTimeout):
		return PendingAck("ack timeout")
	case <-ctx.Done():
		return Failed(ctx.Err().Error())
	}
}

// onConnect 连接（或重连）后订阅确认主题与个人收件主题
func (c *RealtimeChannel) onConnect(client mqtt.Client) {
	c.logger.Info("Realtime channel connected",
		zap.String("broker", c.config.MQTT.Broker),
	)

	ackTopic := c.config.MQTT.AckTopicPrefix + c.config.MQTT.ClientID
	if token := client.Subscribe(ackTopic, byte(c.config.MQTT.QoS), c.handleAck); token.Wait() && token.Error() != nil {
		c.logger.Error("Failed to subscribe ack topic",
			zap.String("topic", ackTopic),
			zap.Error(token.Error()),
		)
	}

	c.mu.Lock()
	userID := c.userID
	userName := c.userName
	c.mu.Unlock()
	if userID != "" {
		c.subscribeUserTopic(userID)
		c.publishPresence(userID, userName, "user_online")
	}
}

func (c *RealtimeChannel) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("Realtime channel connection lost",
		zap.Error(err),
	)
}

// handleAck 将服务端确认路由到等待中的发送调用
func (c *RealtimeChannel) handleAck(_ mqtt.Client, msg mqtt.Message) {
	var ack AckResult
	if err := json.Unmarshal(msg.Payload(), &ack); err != nil {
		c.logger.Error("Failed to unmarshal ack",
			zap.Error(err),
		)
		return
	}

	c.mu.Lock()
	ackCh, ok := c.pending[ack.RequestID]
	if ok {
		delete(c.pending, ack.RequestID)
	}
	c.mu.Unlock()

	if !ok {
		// 回退已经开始后才到达的确认：只记录，不参与控制流
		c.logger.Info("Late ack ignored",
			zap.String("request_id", ack.RequestID),
			zap.Bool("success", ack.Success),
		)
		return
	}

	ackCh <- ack
}

// subscribeUserTopic 订阅发给本用户的报警事件
func (c *RealtimeChannel) subscribeUserTopic(userID string) {
	topic := c.config.MQTT.UserTopicPrefix + userID + "/alerts"
	if token := c.client.Subscribe(topic, byte(c.config.MQTT.QoS), c.handleInboundAlert); token.Wait() && token.Error() != nil {
		c.logger.Error("Failed to subscribe user topic",
			zap.String("topic", topic),
			zap.Error(token.Error()),
		)
		return
	}
	c.logger.Info("Joined user room",
		zap.String("user_id", userID),
	)
}

// handleInboundAlert 处理他人发来的紧急/安全事件
func (c *RealtimeChannel) handleInboundAlert(_ mqtt.Client, msg mqtt.Message) {
	var payload models.AlertPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		c.logger.Error("Failed to unmarshal inbound alert",
			zap.Error(err),
		)
		return
	}

	c.logger.Info("Alert received",
		zap.String("type", payload.Type),
		zap.String("from_user_id", payload.FromUserID),
	)

	c.mu.Lock()
	handler := c.alertHandler
	c.mu.Unlock()
	if handler != nil {
		handler(&payload)
	}
}

// publishPresence 尽力发布上线/下线事件，失败只记日志
func (c *RealtimeChannel) publishPresence(userID, userName, eventType string) {
	event := PresenceEvent{
		UserID:    userID,
		UserName:  userName,
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	token := c.client.Publish(c.config.MQTT.PresenceTopic, byte(c.config.MQTT.QoS), false, data)
	if token.WaitTimeout(time.Second) && token.Error() != nil {
		c.logger.Warn("Failed to publish presence",
			zap.String("type", eventType),
			zap.Error(token.Error()),
		)
	}
}
