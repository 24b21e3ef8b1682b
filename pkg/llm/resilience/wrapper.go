package resilience

import (
	"context"

	"github.com/kart-io/cyplan/pkg/llm"
)

type chatProvider struct {
	inner   llm.ChatProvider
	policy  Policy
	breaker *Breaker
}

// toolCaller 额外转发工具调用。流式调用仅在尚未输出任何分片时重试，
// 已发送给客户端的内容不会重复。
type toolCaller struct {
	*chatProvider
	tools llm.ToolCaller
}

// WrapChat 为 Chat 供应商增加重试与熔断。若 inner 支持工具调用，返回值同样支持。
func WrapChat(inner llm.ChatProvider, policy Policy) llm.ChatProvider {
	cp := &chatProvider{
		inner:   inner,
		policy:  policy,
		breaker: NewBreaker(inner.Name(), policy.FailureThreshold, policy.OpenTimeout),
	}
	if tc, ok := inner.(llm.ToolCaller); ok {
		return &toolCaller{chatProvider: cp, tools: tc}
	}
	return cp
}

func (p *chatProvider) Name() string { return p.inner.Name() }

// Breaker 返回熔断器，供健康检查读取状态。
func (p *chatProvider) Breaker() *Breaker { return p.breaker }

func (p *chatProvider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (string, error) {
	var out string
	err := Do(ctx, p.policy, p.breaker, func() error {
		var err error
		out, err = p.inner.Chat(ctx, messages, opts...)
		return err
	})
	return out, err
}

func (p *chatProvider) Generate(ctx context.Context, prompt, systemPrompt string, opts ...llm.CallOption) (string, error) {
	var out string
	err := Do(ctx, p.policy, p.breaker, func() error {
		var err error
		out, err = p.inner.Generate(ctx, prompt, systemPrompt, opts...)
		return err
	})
	return out, err
}

func (p *toolCaller) ChatWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, opts ...llm.CallOption) (*llm.Message, error) {
	var out *llm.Message
	err := Do(ctx, p.policy, p.breaker, func() error {
		var err error
		out, err = p.tools.ChatWithTools(ctx, messages, tools, opts...)
		return err
	})
	return out, err
}

func (p *toolCaller) StreamWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, onChunk llm.StreamFunc, opts ...llm.CallOption) (*llm.Message, error) {
	var out *llm.Message
	emitted := false
	policy := p.policy
	retryable := policy.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	policy.Retryable = func(err error) bool {
		return !emitted && retryable(err)
	}

	err := Do(ctx, policy, p.breaker, func() error {
		var err error
		out, err = p.tools.StreamWithTools(ctx, messages, tools, func(ctx context.Context, chunk string) error {
			emitted = true
			return onChunk(ctx, chunk)
		}, opts...)
		return err
	})
	return out, err
}

type embeddingProvider struct {
	inner   llm.EmbeddingProvider
	policy  Policy
	breaker *Breaker
}

// WrapEmbedding 为 Embedding 供应商增加重试与熔断。
func WrapEmbedding(inner llm.EmbeddingProvider, policy Policy) llm.EmbeddingProvider {
	return &embeddingProvider{
		inner:   inner,
		policy:  policy,
		breaker: NewBreaker(inner.Name(), policy.FailureThreshold, policy.OpenTimeout),
	}
}

func (p *embeddingProvider) Name() string { return p.inner.Name() }

func (p *embeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := Do(ctx, p.policy, p.breaker, func() error {
		var err error
		out, err = p.inner.Embed(ctx, texts)
		return err
	})
	return out, err
}

func (p *embeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := Do(ctx, p.policy, p.breaker, func() error {
		var err error
		out, err = p.inner.EmbedSingle(ctx, text)
		return err
	})
	return out, err
}
