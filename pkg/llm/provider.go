// Package llm 提供统一的 LLM 供应商抽象层。
// Embedding 与 Chat 可以使用不同供应商；支持工具调用的 Chat 供应商额外实现 ToolCaller。
package llm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// ErrNotConfigured 供应商缺少必要配置（通常是 API 密钥）。
var ErrNotConfigured = errors.New("llm provider not configured")

// EmbeddingProvider 定义 Embedding 供应商接口。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量嵌入，结果顺序与输入一致。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量嵌入。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name 返回供应商名称。
	Name() string
}

// ChatProvider 定义 Chat 供应商接口。
type ChatProvider interface {
	// Chat 进行多轮对话。
	Chat(ctx context.Context, messages []Message, opts ...CallOption) (string, error)

	// Generate 根据提示生成文本（单轮）。
	Generate(ctx context.Context, prompt string, systemPrompt string, opts ...CallOption) (string, error)

	// Name 返回供应商名称。
	Name() string
}

// StreamFunc 接收流式输出的文本片段，返回错误将中止生成。
type StreamFunc func(ctx context.Context, chunk string) error

// ToolCaller 支持工具调用的 Chat 供应商。
type ToolCaller interface {
	ChatProvider

	// ChatWithTools 发送对话并允许模型请求工具调用，返回助手消息。
	ChatWithTools(ctx context.Context, messages []Message, tools []ToolDefinition, opts ...CallOption) (*Message, error)

	// StreamWithTools 与 ChatWithTools 相同，但文本片段会实时回调 onChunk。
	StreamWithTools(ctx context.Context, messages []Message, tools []ToolDefinition, onChunk StreamFunc, opts ...CallOption) (*Message, error)
}

// EmbeddingProviderFactory 根据配置构造 Embedding 供应商。
type EmbeddingProviderFactory func(config map[string]any) (EmbeddingProvider, error)

// ChatProviderFactory 根据配置构造 Chat 供应商。
type ChatProviderFactory func(config map[string]any) (ChatProvider, error)

// factories 是按名称索引的工厂表，供应商包在 init 中注册。
type factories[F any] struct {
	kind string
	mu   sync.RWMutex
	byID map[string]F
}

func (f *factories[F]) add(name string, factory F) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byID == nil {
		f.byID = make(map[string]F)
	}
	f.byID[name] = factory
}

func (f *factories[F]) get(name string) (F, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	factory, ok := f.byID[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("unknown %s provider: %s", f.kind, name)
	}
	return factory, nil
}

func (f *factories[F]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.byID))
	for name := range f.byID {
		out = append(out, name)
	}
	return out
}

var (
	embeddingFactories = &factories[EmbeddingProviderFactory]{kind: "embedding"}
	chatFactories      = &factories[ChatProviderFactory]{kind: "chat"}
)

func RegisterEmbeddingProvider(name string, factory EmbeddingProviderFactory) {
	embeddingFactories.add(name, factory)
}

func RegisterChatProvider(name string, factory ChatProviderFactory) {
	chatFactories.add(name, factory)
}

// NewEmbeddingProvider 按名称创建 Embedding 供应商。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	factory, err := embeddingFactories.get(name)
	if err != nil {
		return nil, err
	}
	return factory(config)
}

// NewChatProvider 按名称创建 Chat 供应商。
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	factory, err := chatFactories.get(name)
	if err != nil {
		return nil, err
	}
	return factory(config)
}

// ListProviders 返回注册过任一能力的供应商名称，已排序去重。
func ListProviders() []string {
	names := append(embeddingFactories.names(), chatFactories.names()...)
	sort.Strings(names)
	return slices.Compact(names)
}
