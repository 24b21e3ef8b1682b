// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/cyplan/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// 支持的供应商名称。
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderDeepSeek  = "deepseek"
)

// 供应商默认值，可由同名环境变量覆盖。
const (
	DefaultOpenAIModel          = "gpt-4o-mini"
	DefaultAnthropicModel       = "claude-3-5-haiku-latest"
	DefaultOllamaBaseURL        = "http://localhost:11434"
	DefaultOllamaModel          = "llama3.1"
	DefaultDeepSeekBaseURL      = "https://api.deepseek.com"
	DefaultDeepSeekModel        = "deepseek-chat"
	DefaultOpenAIEmbeddingModel = "text-embedding-ada-002"
	DefaultOllamaEmbeddingModel = "nomic-embed-text"
)

type kind int

const (
	kindChat kind = iota
	kindEmbedding
)

// ProviderOptions 定义 LLM 供应商配置。
type ProviderOptions struct {
	// Provider 供应商名称（openai, anthropic, ollama, deepseek）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址，为空时使用供应商默认值。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Temperature 采样温度。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// MaxTokens 单次生成的最大 token 数，0 表示使用供应商默认值。
	MaxTokens int `json:"max-tokens" mapstructure:"max-tokens"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`

	kind kind
}

// NewChatOptions 创建默认 Chat 供应商配置。供应商、模型和密钥在 Complete 时从环境变量补全。
func NewChatOptions() *ProviderOptions {
	return &ProviderOptions{
		Temperature: 0.4,
		Timeout:     120 * time.Second,
		MaxRetries:  3,
		kind:        kindChat,
	}
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置。
func NewEmbeddingOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:   ProviderOpenAI,
		Timeout:    60 * time.Second,
		MaxRetries: 3,
		kind:       kindEmbedding,
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"model":        o.Model,
		"temperature":  o.Temperature,
		"max_tokens":   o.MaxTokens,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	if o.kind == kindEmbedding {
		p += "embedding."
	} else {
		p += "llm."
	}
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Provider name (openai, anthropic, ollama, deepseek). Falls back to LLM_PROVIDER.")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "API base URL. Empty uses the provider default.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "API key. Falls back to the provider's *_API_KEY env var.")
	fs.StringVar(&o.Model, p+"model", o.Model, "Model name. Empty uses the provider default.")
	fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Sampling temperature.")
	fs.IntVar(&o.MaxTokens, p+"max-tokens", o.MaxTokens, "Maximum tokens per completion (0 = provider default).")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Request timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Maximum number of retries.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "Organization ID (optional).")
}

// Validate validates the LLM provider options.
// 缺少密钥不是校验错误：服务在未配置模型时以固定提示回复。
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Provider {
	case ProviderOpenAI, ProviderOllama:
	case ProviderAnthropic, ProviderDeepSeek:
		if o.kind == kindEmbedding {
			errs = append(errs, fmt.Errorf("embedding provider %q does not serve embeddings", o.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported provider %q", o.Provider))
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2]"))
	}
	if o.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max-tokens must be non-negative"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	return errs
}

// Complete 使用环境变量与供应商默认值补全配置。
func (o *ProviderOptions) Complete() error {
	if o.Provider == "" {
		o.Provider = envOr("LLM_PROVIDER", ProviderOpenAI)
	}
	o.Provider = strings.ToLower(strings.TrimSpace(o.Provider))
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}

	switch o.Provider {
	case ProviderOpenAI:
		setIfEmpty(&o.APIKey, os.Getenv("OPENAI_API_KEY"))
		if o.kind == kindEmbedding {
			setIfEmpty(&o.Model, DefaultOpenAIEmbeddingModel)
		} else {
			setIfEmpty(&o.Model, envOr("OPENAI_MODEL", DefaultOpenAIModel))
		}
	case ProviderAnthropic:
		setIfEmpty(&o.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		setIfEmpty(&o.Model, envOr("ANTHROPIC_MODEL", DefaultAnthropicModel))
	case ProviderOllama:
		setIfEmpty(&o.BaseURL, envOr("OLLAMA_BASE_URL", DefaultOllamaBaseURL))
		if o.kind == kindEmbedding {
			setIfEmpty(&o.Model, DefaultOllamaEmbeddingModel)
		} else {
			setIfEmpty(&o.Model, envOr("OLLAMA_MODEL", DefaultOllamaModel))
		}
	case ProviderDeepSeek:
		setIfEmpty(&o.APIKey, os.Getenv("DEEPSEEK_API_KEY"))
		setIfEmpty(&o.BaseURL, envOr("DEEPSEEK_API_BASE", DefaultDeepSeekBaseURL))
		setIfEmpty(&o.Model, envOr("DEEPSEEK_MODEL", DefaultDeepSeekModel))
	}
	return nil
}

// Configured 报告供应商是否具备调用所需的凭据。
func (o *ProviderOptions) Configured() bool {
	switch o.Provider {
	case ProviderOllama:
		return o.BaseURL != ""
	case ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek:
		return o.APIKey != ""
	default:
		return false
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
