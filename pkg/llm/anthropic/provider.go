// Package anthropic 提供 Anthropic Claude Chat 供应商实现，基于 langchaingo。
package anthropic

import (
	"fmt"
	"net/http"
	"time"

	lcanthropic "github.com/tmc/langchaingo/llms/anthropic"

	"github.com/kart-io/cyplan/pkg/llm"
	"github.com/kart-io/cyplan/pkg/llm/chatmodel"
)

// ProviderName 是 Anthropic 供应商的名称标识符
const ProviderName = "anthropic"

func init() {
	llm.RegisterChatProvider(ProviderName, NewChatProvider)
}

// Config Anthropic 供应商配置。
type Config struct {
	BaseURL     string        `json:"base_url" mapstructure:"base_url"`
	APIKey      string        `json:"api_key" mapstructure:"api_key"`
	Model       string        `json:"model" mapstructure:"model"`
	Temperature float64       `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `json:"max_tokens" mapstructure:"max_tokens"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DefaultConfig 返回默认配置。Anthropic 要求显式的 max_tokens。
func DefaultConfig() *Config {
	return &Config{
		Model:     "claude-3-5-haiku-latest",
		MaxTokens: 4096,
		Timeout:   120 * time.Second,
	}
}

// NewChatProvider 从配置 map 创建 Anthropic 供应商。
func NewChatProvider(configMap map[string]any) (llm.ChatProvider, error) {
	cfg := DefaultConfig()
	if err := llm.DecodeConfig(configMap, cfg); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api_key 是必需的: %w", llm.ErrNotConfigured)
	}

	opts := []lcanthropic.Option{
		lcanthropic.WithToken(cfg.APIKey),
		lcanthropic.WithModel(cfg.Model),
		lcanthropic.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lcanthropic.WithBaseURL(cfg.BaseURL))
	}

	client, err := lcanthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("anthropic: 创建客户端失败: %w", err)
	}
	return chatmodel.New(ProviderName, client, chatmodel.Settings{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}), nil
}
