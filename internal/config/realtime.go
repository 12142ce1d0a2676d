package config

import (
	"time"
)

type RealtimeConfig struct {
	URL                  string        `yaml:"url"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeat_timeout"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	ReconnectFactor      float64       `yaml:"reconnect_factor"`
	QueueLimit           int           `yaml:"queue_limit"`
	QueueMaxAge          time.Duration `yaml:"queue_max_age"`
	SendMaxRetries       int           `yaml:"send_max_retries"`
	LocationHistoryLimit int           `yaml:"location_history_limit"`
}

func loadRealtimeConfig() *RealtimeConfig {
	return &RealtimeConfig{
		URL:                  getEnv("REALTIME_URL", "wss://api.rideshare.example.com/ws"),
		HandshakeTimeout:     getEnvAsDuration("REALTIME_HANDSHAKE_TIMEOUT", 10*time.Second),
		HeartbeatInterval:    getEnvAsDuration("REALTIME_HEARTBEAT_INTERVAL", 30*time.Second),
		HeartbeatTimeout:     getEnvAsDuration("REALTIME_HEARTBEAT_TIMEOUT", 10*time.Second),
		MaxReconnectAttempts: getEnvAsInt("REALTIME_MAX_RECONNECT_ATTEMPTS", 10),
		ReconnectBaseDelay:   getEnvAsDuration("REALTIME_RECONNECT_BASE_DELAY", 1*time.Second),
		ReconnectMaxDelay:    getEnvAsDuration("REALTIME_RECONNECT_MAX_DELAY", 30*time.Second),
		ReconnectFactor:      getEnvAsFloat64("REALTIME_RECONNECT_FACTOR", 2.0),
		QueueLimit:           getEnvAsInt("REALTIME_QUEUE_LIMIT", 100),
		QueueMaxAge:          getEnvAsDuration("REALTIME_QUEUE_MAX_AGE", 5*time.Minute),
		SendMaxRetries:       getEnvAsInt("REALTIME_SEND_MAX_RETRIES", 3),
		LocationHistoryLimit: getEnvAsInt("REALTIME_LOCATION_HISTORY_LIMIT", 100),
	}
}
