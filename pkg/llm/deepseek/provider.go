// Package deepseek 提供 DeepSeek Chat 供应商实现。
// DeepSeek API 兼容 OpenAI 格式，复用 OpenAI 客户端并指向 DeepSeek 地址；
// DeepSeek 不提供 Embedding 服务。
package deepseek

import (
	"time"

	"github.com/kart-io/cyplan/pkg/llm"
	"github.com/kart-io/cyplan/pkg/llm/openai"
)

// ProviderName 是 DeepSeek 供应商的名称标识符
const ProviderName = "deepseek"

func init() {
	llm.RegisterChatProvider(ProviderName, NewChatProvider)
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *openai.Config {
	return &openai.Config{
		BaseURL:    "https://api.deepseek.com",
		Model:      "deepseek-chat",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// NewChatProvider 从配置 map 创建 DeepSeek 供应商。
func NewChatProvider(configMap map[string]any) (llm.ChatProvider, error) {
	cfg := DefaultConfig()
	if err := llm.DecodeConfig(configMap, cfg); err != nil {
		return nil, err
	}
	return openai.NewChat(ProviderName, cfg)
}
