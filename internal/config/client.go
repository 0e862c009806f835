package config

import (
	"time"
)

// ClientConfig 描述聊天客户端（iris 命令行）的配置。
type ClientConfig struct {
	ServerURL         string
	ClientID          string
	UploadURL         string
	UserID            string
	ChatID            string
	DBPath            string
	ContactsFile      string
	CallsEnabled      bool
	LogFile           string
	ReconnectDelay    time.Duration
	KeepaliveInterval time.Duration
	SlowResponseAfter time.Duration
}

// LoadClient 从环境变量加载客户端配置，命令行参数可在之后覆盖。
func LoadClient() (*ClientConfig, error) {
	callsEnabled, err := parseBoolEnv("IRIS_CALLS_ENABLED", false)
	if err != nil {
		return nil, err
	}

	reconnect, err := parseDurationEnv("IRIS_RECONNECT_DELAY", 5*time.Second)
	if err != nil {
		return nil, err
	}

	keepalive, err := parseDurationEnv("IRIS_KEEPALIVE_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	slow, err := parseDurationEnv("IRIS_SLOW_RESPONSE_AFTER", 20*time.Second)
	if err != nil {
		return nil, err
	}

	clientID := getEnvOrDefault("IRIS_CLIENT_ID", "user123")

	return &ClientConfig{
		ServerURL:         getEnvOrDefault("IRIS_SERVER_URL", "ws://127.0.0.1:8000/ws/chat"),
		ClientID:          clientID,
		UploadURL:         getEnvOrDefault("IRIS_UPLOAD_URL", "http://127.0.0.1:8000/upload-file"),
		UserID:            getEnvOrDefault("IRIS_USER_ID", clientID),
		ChatID:            getEnvOrDefault("IRIS_CHAT_ID", "chat456"),
		DBPath:            getEnvOrDefault("IRIS_DB_PATH", "iris_chat.db"),
		ContactsFile:      getEnvOrDefault("IRIS_CONTACTS_FILE", ""),
		CallsEnabled:      callsEnabled,
		LogFile:           getEnvOrDefault("IRIS_LOG_FILE", "iris.log"),
		ReconnectDelay:    reconnect,
		KeepaliveInterval: keepalive,
		SlowResponseAfter: slow,
	}, nil
}
