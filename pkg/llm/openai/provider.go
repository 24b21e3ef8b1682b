// Package openai 提供 OpenAI 供应商实现：Embedding 走 /embeddings 接口，
// Chat 与工具调用通过 langchaingo 的 OpenAI 客户端完成。
//
//	import _ "github.com/kart-io/cyplan/pkg/llm/openai"
//
//	chat, err := llm.NewChatProvider("openai", map[string]any{"api_key": key})
//	emb, err := llm.NewEmbeddingProvider("openai", map[string]any{"api_key": key})
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"github.com/kart-io/cyplan/pkg/llm"
	"github.com/kart-io/cyplan/pkg/llm/chatmodel"
	"github.com/kart-io/cyplan/pkg/utils/httpclient"
	"github.com/kart-io/cyplan/pkg/utils/json"
)

// ProviderName 是 OpenAI 供应商的名称标识符
const ProviderName = "openai"

// DefaultBaseURL OpenAI 官方 API 地址。
const DefaultBaseURL = "https://api.openai.com/v1"

func init() {
	llm.RegisterChatProvider(ProviderName, NewChatProvider)
	llm.RegisterEmbeddingProvider(ProviderName, NewEmbeddingProvider)
}

// Config OpenAI 供应商配置。
type Config struct {
	// BaseURL API 基础地址，可设置为兼容 OpenAI 的服务地址。
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey API 密钥。
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// Model 模型名称，Chat 与 Embedding 分别使用各自的默认值。
	Model string `json:"model" mapstructure:"model"`

	// Temperature 默认采样温度。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// MaxTokens 默认最大生成 token 数。
	MaxTokens int `json:"max_tokens" mapstructure:"max_tokens"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数（仅 Embedding 请求）。
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`

	// Organization 组织 ID（可选）。
	Organization string `json:"organization" mapstructure:"organization"`
}

// DefaultChatConfig 返回 Chat 默认配置。
func DefaultChatConfig() *Config {
	return &Config{
		BaseURL:    DefaultBaseURL,
		Model:      "gpt-4o-mini",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// DefaultEmbeddingConfig 返回 Embedding 默认配置。
func DefaultEmbeddingConfig() *Config {
	cfg := DefaultChatConfig()
	cfg.Model = "text-embedding-ada-002"
	return cfg
}

// NewChatProvider 从配置 map 创建 Chat 供应商。
func NewChatProvider(configMap map[string]any) (llm.ChatProvider, error) {
	cfg := DefaultChatConfig()
	if err := llm.DecodeConfig(configMap, cfg); err != nil {
		return nil, err
	}
	return NewChat(ProviderName, cfg)
}

// NewChat 使用结构化配置创建 Chat 供应商，name 用于兼容服务（如 deepseek）。
func NewChat(name string, cfg *Config) (*chatmodel.Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api_key 是必需的: %w", name, llm.ErrNotConfigured)
	}

	opts := []lcopenai.Option{
		lcopenai.WithToken(cfg.APIKey),
		lcopenai.WithModel(cfg.Model),
		lcopenai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Organization != "" {
		opts = append(opts, lcopenai.WithOrganization(cfg.Organization))
	}

	client, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: 创建客户端失败: %w", name, err)
	}
	return chatmodel.New(name, client, chatmodel.Settings{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}), nil
}

// EmbeddingProvider OpenAI Embedding 实现。
type EmbeddingProvider struct {
	config *Config
	client *httpclient.Client
}

// NewEmbeddingProvider 从配置 map 创建 Embedding 供应商。
func NewEmbeddingProvider(configMap map[string]any) (llm.EmbeddingProvider, error) {
	cfg := DefaultEmbeddingConfig()
	if err := llm.DecodeConfig(configMap, cfg); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api_key 是必需的: %w", llm.ErrNotConfigured)
	}
	return NewEmbeddingWithConfig(cfg), nil
}

// NewEmbeddingWithConfig 使用结构化配置创建 Embedding 供应商。
func NewEmbeddingWithConfig(cfg *Config) *EmbeddingProvider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &EmbeddingProvider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回供应商名称。
func (p *EmbeddingProvider) Name() string {
	return ProviderName
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed 为多个文本生成向量嵌入。
func (p *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{
		Model: p.config.Model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	p.setHeaders(req)

	var embedResp embeddingResponse
	if err := p.client.DoJSON(req, &embedResp); err != nil {
		return nil, err
	}

	// 按 index 还原输入顺序
	embeddings := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("缺少第 %d 个文本的向量嵌入", i)
		}
	}
	return embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *EmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (p *EmbeddingProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	if p.config.Organization != "" {
		req.Header.Set("OpenAI-Organization", p.config.Organization)
	}
}
