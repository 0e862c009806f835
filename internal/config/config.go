package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合助手服务端的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
}

// Load 从环境变量加载服务端配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr          string
	UploadDir     string
	PublicBaseURL string
	HistoryLimit  int
}

// loadServerConfig 解析服务器监听地址与上传目录。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	addr := ":" + port
	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8000" 或 "127.0.0.1:8000"。
		addr = port
	} else if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	historyLimit := 40
	if override, err := parseOptionalIntEnv("HISTORY_LIMIT"); err != nil {
		return ServerConfig{}, err
	} else if override != nil && *override > 0 {
		historyLimit = *override
	}

	return ServerConfig{
		Addr:          addr,
		UploadDir:     getEnvOrDefault("UPLOAD_DIR", "uploaded_files"),
		PublicBaseURL: strings.TrimRight(getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8000"), "/"),
		HistoryLimit:  historyLimit,
	}, nil
}

// AIConfig 描述 Ark 大模型的接入参数。凭证缺失时服务端退化为 echo 回复。
type AIConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string

	// 采样参数，nil 表示使用模型默认值
	Temperature *float64
	TopP        *float64
	MaxTokens   *int

	// 送入模型的历史轮数上限
	HistoryLimit int
}

// Enabled 需要模型名，以及 API Key 或 AK/SK 二者之一。
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// NewChatModel 按配置构建 Ark 聊天模型。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, errors.New("ark credentials or model missing: set Model plus ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: narrow(c.Temperature),
		TopP:        narrow(c.TopP),
	})
}

func narrow(v *float64) *float32 {
	if v == nil {
		return nil
	}
	f := float32(*v)
	return &f
}

func loadAIConfig() (AIConfig, error) {
	cfg := AIConfig{
		APIKey:       getEnvOrDefault("ARK_API_KEY", ""),
		AccessKey:    getEnvOrDefault("ARK_ACCESS_KEY", ""),
		SecretKey:    getEnvOrDefault("ARK_SECRET_KEY", ""),
		Model:        getEnvOrDefault("Model", ""),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		HistoryLimit: 20,
	}

	var err error
	if cfg.Temperature, err = parseOptionalEnv("ARK_TEMPERATURE", parseFloat); err != nil {
		return AIConfig{}, err
	}
	if cfg.TopP, err = parseOptionalEnv("ARK_TOP_P", parseFloat); err != nil {
		return AIConfig{}, err
	}
	if cfg.MaxTokens, err = parseOptionalIntEnv("ARK_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	}

	limit, err := parseOptionalIntEnv("AI_HISTORY_LIMIT")
	if err != nil {
		return AIConfig{}, err
	}
	if limit != nil {
		cfg.HistoryLimit = max(*limit, 1)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseOptionalEnv 解析可选环境变量；未设置或为空时返回 nil。
func parseOptionalEnv[T any](key string, parse func(string) (T, error)) (*T, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}

	val, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	return parseOptionalEnv(key, strconv.Atoi)
}

func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(raw, 64)
}

// parseDurationEnv 接受 Go duration（"5s"）或纯数字秒数。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	var val time.Duration
	if secs, err := strconv.Atoi(raw); err == nil {
		val = time.Duration(secs) * time.Second
	} else if val, err = time.ParseDuration(raw); err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}
