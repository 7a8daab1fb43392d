package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config 报警客户端配置
type Config struct {
	// 本地 SQLite 数据库
	Database struct {
		Path string `yaml:"path"` // 数据库文件路径
	} `yaml:"database"`

	// Redis（持久化偏好与报警激活标志）
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"` // 所有键的前缀，如 "compow:"
	} `yaml:"redis"`

	// MQTT（实时报警通道）
	MQTT struct {
		Broker   string `yaml:"broker"`
		ClientID string `yaml:"client_id"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		QoS      int    `yaml:"qos"`

		// 主题配置
		EmergencyTopic  string `yaml:"emergency_topic"`   // 紧急报警事件
		SafeTopic       string `yaml:"safe_topic"`        // 解除（安全）事件
		PresenceTopic   string `yaml:"presence_topic"`    // 用户上线/下线
		AckTopicPrefix  string `yaml:"ack_topic_prefix"`  // 服务端确认主题前缀（+clientID）
		UserTopicPrefix string `yaml:"user_topic_prefix"` // 个人收件主题前缀（+userID）
	} `yaml:"mqtt"`

	// 本地控制接口
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	// 报警管道配置
	Alarm struct {
		AckTimeoutMS     int    `yaml:"ack_timeout_ms"`     // 实时通道确认等待（毫秒），默认 2000
		VibrationMS      int    `yaml:"vibration_ms"`       // 触发时震动时长（毫秒），默认 1000
		SMSSegmentLength int    `yaml:"sms_segment_length"` // 单条短信分段长度，默认 160
		DoublePressMS    int    `yaml:"double_press_ms"`    // 双音量键确认窗口（毫秒），默认 300
		DefaultMessage   string `yaml:"default_message"`    // 默认紧急消息（可被偏好覆盖）
		SMSGatewayURL    string `yaml:"sms_gateway_url"`    // 短信网关地址，空则仅记录日志
	} `yaml:"alarm"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultEmergencyMessage 未配置自定义消息时的默认紧急消息
const DefaultEmergencyMessage = "I'm in an EMERGENCY! I need help immediately!"

// Load 加载配置
// 顺序：默认值 → CONFIG_PATH 指定的 YAML 文件 → 环境变量覆盖
func Load() (*Config, error) {
	cfg := &Config{}

	// 默认值
	cfg.Database.Path = "compow.db"

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.Password = ""
	cfg.Redis.DB = 0
	cfg.Redis.KeyPrefix = "compow:"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "compow-alarm"
	cfg.MQTT.QoS = 1
	cfg.MQTT.EmergencyTopic = "compow/alerts/emergency"
	cfg.MQTT.SafeTopic = "compow/alerts/safe"
	cfg.MQTT.PresenceTopic = "compow/presence"
	cfg.MQTT.AckTopicPrefix = "compow/ack/"
	cfg.MQTT.UserTopicPrefix = "compow/users/"

	cfg.HTTP.Addr = ":8080"

	cfg.Alarm.AckTimeoutMS = 2000
	cfg.Alarm.VibrationMS = 1000
	cfg.Alarm.SMSSegmentLength = 160
	cfg.Alarm.DoublePressMS = 300
	cfg.Alarm.DefaultMessage = DefaultEmergencyMessage

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	// YAML 文件（可选）
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// 环境变量覆盖
	cfg.Database.Path = getEnv("DB_PATH", cfg.Database.Path)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", cfg.MQTT.Password)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)

	cfg.Alarm.SMSGatewayURL = getEnv("SMS_GATEWAY_URL", cfg.Alarm.SMSGatewayURL)
	cfg.Alarm.DefaultMessage = getEnv("DEFAULT_MESSAGE", cfg.Alarm.DefaultMessage)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	if cfg.Alarm.AckTimeoutMS <= 0 {
		return nil, fmt.Errorf("alarm.ack_timeout_ms must be positive, got %d", cfg.Alarm.AckTimeoutMS)
	}
	if cfg.Alarm.SMSSegmentLength <= 0 {
		return nil, fmt.Errorf("alarm.sms_segment_length must be positive, got %d", cfg.Alarm.SMSSegmentLength)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
