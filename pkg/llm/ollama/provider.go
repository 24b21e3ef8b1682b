// Package ollama 提供 Ollama 供应商实现：Embedding 走 /api/embed 接口，
// Chat 与工具调用通过 langchaingo 的 Ollama 客户端完成。
package ollama

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	lcollama "github.com/tmc/langchaingo/llms/ollama"

	"github.com/kart-io/cyplan/pkg/llm"
	"github.com/kart-io/cyplan/pkg/llm/chatmodel"
	"github.com/kart-io/cyplan/pkg/utils/httpclient"
	"github.com/kart-io/cyplan/pkg/utils/json"
)

// ProviderName 是 Ollama 供应商的名称标识符
const ProviderName = "ollama"

func init() {
	llm.RegisterChatProvider(ProviderName, NewChatProvider)
	llm.RegisterEmbeddingProvider(ProviderName, NewEmbeddingProvider)
}

// Config Ollama 供应商配置。
type Config struct {
	BaseURL     string        `json:"base_url" mapstructure:"base_url"`
	Model       string        `json:"model" mapstructure:"model"`
	Temperature float64       `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `json:"max_tokens" mapstructure:"max_tokens"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries  int           `json:"max_retries" mapstructure:"max_retries"`
}

// DefaultChatConfig 返回 Chat 默认配置。
func DefaultChatConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:11434",
		Model:      "llama3.1",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// DefaultEmbeddingConfig 返回 Embedding 默认配置。
func DefaultEmbeddingConfig() *Config {
	cfg := DefaultChatConfig()
	cfg.Model = "nomic-embed-text"
	return cfg
}

// NewChatProvider 从配置 map 创建 Chat 供应商。Ollama 无需密钥。
func NewChatProvider(configMap map[string]any) (llm.ChatProvider, error) {
	cfg := DefaultChatConfig()
	if err := llm.DecodeConfig(configMap, cfg); err != nil {
		return nil, err
	}

	client, err := lcollama.New(
		lcollama.WithServerURL(cfg.BaseURL),
		lcollama.WithModel(cfg.Model),
		lcollama.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama: 创建客户端失败: %w", err)
	}
	return chatmodel.New(ProviderName, client, chatmodel.Settings{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}), nil
}

// EmbeddingProvider Ollama Embedding 实现。
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
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &EmbeddingProvider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}, nil
}

// Name 返回供应商名称。
func (p *EmbeddingProvider) Name() string {
	return ProviderName
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed 为多个文本生成向量嵌入。
func (p *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{
		Model: p.config.Model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var embedResp embedResponse
	if err := p.client.DoJSON(req, &embedResp); err != nil {
		return nil, err
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("向量数量不匹配: 期望 %d, 实际 %d", len(texts), len(embedResp.Embeddings))
	}
	return embedResp.Embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *EmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}
