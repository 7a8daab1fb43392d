package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"compow-alarm/internal/config"
	"compow-alarm/internal/models"
)

// ============================================
// MQTT 客户端桩
// ============================================

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	publishErr error
	published  [][]byte
	topics     []string
}

func (c *fakeClient) IsConnected() bool      { return c.connected }
func (c *fakeClient) IsConnectionOpen() bool { return c.connected }
func (c *fakeClient) Connect() mqtt.Token    { return &fakeToken{} }
func (c *fakeClient) Disconnect(uint)        { c.connected = false }

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, payload.([]byte))
	c.topics = append(c.topics, topic)
	return &fakeToken{err: c.publishErr}
}

func (c *fakeClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(...string) mqtt.Token        { return &fakeToken{} }
func (c *fakeClient) AddRoute(string, mqtt.MessageHandler)    {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *fakeClient) lastPublished(t *testing.T) (string, []byte) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.published)
	return c.topics[len(c.topics)-1], c.published[len(c.published)-1]
}

type fakeMessage struct {
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return "test/ack" }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// ============================================

func setupRealtime(connected bool) (*RealtimeChannel, *fakeClient) {
	cfg := &config.Config{}
	cfg.MQTT.EmergencyTopic = "compow/alerts/emergency"
	cfg.MQTT.SafeTopic = "compow/alerts/safe"
	cfg.MQTT.QoS = 1
	cfg.Alarm.AckTimeoutMS = 100

	client := &fakeClient{connected: connected}
	c := &RealtimeChannel{
		config:     cfg,
		logger:     zap.NewNop(),
		client:     client,
		ackTimeout: 100 * time.Millisecond,
		pending:    make(map[string]chan AckResult),
	}
	return c, client
}

func emergencyPayload() *models.AlertPayload {
	return &models.AlertPayload{
		FromUserID:   "user-1",
		FromUserName: "Alice W",
		Message:      "help",
		ContactIDs:   []string{"1", "2", "3"},
		Timestamp:    time.Now().UnixMilli(),
		Type:         models.PayloadTypeEmergency,
	}
}

func TestRealtimeSend_NotConnected(t *testing.T) {
	c, _ := setupRealtime(false)

	outcome := c.Send(context.Background(), emergencyPayload(), nil)

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "not connected", outcome.Reason)
}

func TestRealtimeSend_AckDelivered(t *testing.T) {
	c, client := setupRealtime(true)

	payload := emergencyPayload()
	done := make(chan Outcome, 1)
	go func() {
		done <- c.Send(context.Background(), payload, nil)
	}()

	// 等发布后注入成功确认
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.published) > 0
	}, time.Second, 5*time.Millisecond)

	topic, data := client.lastPublished(t)
	assert.Equal(t, "compow/alerts/emergency", topic)

	var sent models.AlertPayload
	require.NoError(t, json.Unmarshal(data, &sent))
	require.NotEmpty(t, sent.RequestID)

	ackData, _ := json.Marshal(AckResult{RequestID: sent.RequestID, Success: true})
	c.handleAck(nil, &fakeMessage{payload: ackData})

	outcome := <-done
	assert.True(t, outcome.IsDelivered())
}

func TestRealtimeSend_AckTimeout(t *testing.T) {
	c, _ := setupRealtime(true)

	outcome := c.Send(context.Background(), emergencyPayload(), nil)

	assert.Equal(t, StatusPendingAck, outcome.Status)
	assert.Equal(t, "ack timeout", outcome.Reason)
}

func TestRealtimeSend_ServerRejection(t *testing.T) {
	c, client := setupRealtime(true)

	payload := emergencyPayload()
	done := make(chan Outcome, 1)
	go func() {
		done <- c.Send(context.Background(), payload, nil)
	}()

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.published) > 0
	}, time.Second, 5*time.Millisecond)

	_, data := client.lastPublished(t)
	var sent models.AlertPayload
	require.NoError(t, json.Unmarshal(data, &sent))

	ackData, _ := json.Marshal(AckResult{RequestID: sent.RequestID, Success: false, Error: "rate limited"})
	c.handleAck(nil, &fakeMessage{payload: ackData})

	outcome := <-done
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "rate limited", outcome.Reason)
}

func TestRealtimeSend_PublishError(t *testing.T) {
	c, client := setupRealtime(true)
	client.publishErr = errors.New("broker unavailable")

	outcome := c.Send(context.Background(), emergencyPayload(), nil)

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "broker unavailable")
}

func TestRealtimeSend_SafeTopic(t *testing.T) {
	c, client := setupRealtime(true)

	payload := emergencyPayload()
	payload.Type = models.PayloadTypeSafe

	c.Send(context.Background(), payload, nil)

	topic, _ := client.lastPublished(t)
	assert.Equal(t, "compow/alerts/safe", topic)
}

func TestHandleAck_LateAckIgnored(t *testing.T) {
	c, _ := setupRealtime(true)

	// 无人等待的确认不应 panic，也不应阻塞
	ackData, _ := json.Marshal(AckResult{RequestID: "stale-req", Success: true})
	c.handleAck(nil, &fakeMessage{payload: ackData})
}

func TestHandleInboundAlert(t *testing.T) {
	c, _ := setupRealtime(true)

	var received *models.AlertPayload
	c.SetAlertHandler(func(p *models.AlertPayload) {
		received = p
	})

	payload := emergencyPayload()
	data, _ := json.Marshal(payload)
	c.handleInboundAlert(nil, &fakeMessage{payload: data})

	require.NotNil(t, received)
	assert.Equal(t, "user-1", received.FromUserID)
	assert.Equal(t, models.PayloadTypeEmergency, received.Type)
}
