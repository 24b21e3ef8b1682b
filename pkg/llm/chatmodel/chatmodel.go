// Package chatmodel 将 langchaingo 的 llms.Model 适配为 llm.ToolCaller，
// 供 openai、anthropic、ollama、deepseek 等 Chat 供应商复用。
package chatmodel

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/kart-io/cyplan/pkg/llm"
)

// Settings 供应商级别的默认生成参数。
type Settings struct {
	Temperature float64
	MaxTokens   int
}

// Model 包装 llms.Model。
type Model struct {
	name     string
	model    llms.Model
	settings Settings
}

var _ llm.ToolCaller = (*Model)(nil)

// New 创建适配器。
func New(name string, model llms.Model, settings Settings) *Model {
	return &Model{name: name, model: model, settings: settings}
}

// Name 返回供应商名称。
func (m *Model) Name() string {
	return m.name
}

// Chat 进行多轮对话。
func (m *Model) Chat(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (string, error) {
	msg, err := m.generate(ctx, messages, nil, nil, opts)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// Generate 根据提示生成文本。
func (m *Model) Generate(ctx context.Context, prompt string, systemPrompt string, opts ...llm.CallOption) (string, error) {
	messages := make([]llm.Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, llm.SystemMessage(systemPrompt))
	}
	messages = append(messages, llm.UserMessage(prompt))
	return m.Chat(ctx, messages, opts...)
}

// ChatWithTools 发送带工具定义的对话。
func (m *Model) ChatWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, opts ...llm.CallOption) (*llm.Message, error) {
	return m.generate(ctx, messages, tools, nil, opts)
}

// StreamWithTools 流式发送带工具定义的对话。
func (m *Model) StreamWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, onChunk llm.StreamFunc, opts ...llm.CallOption) (*llm.Message, error) {
	return m.generate(ctx, messages, tools, onChunk, opts)
}

func (m *Model) generate(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, onChunk llm.StreamFunc, opts []llm.CallOption) (*llm.Message, error) {
	callOpts := m.callOptions(llm.ApplyCallOptions(opts...))
	if len(tools) > 0 {
		callOpts = append(callOpts, llms.WithTools(ToTools(tools)))
	}
	if onChunk != nil {
		callOpts = append(callOpts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return onChunk(ctx, string(chunk))
		}))
	}

	resp, err := m.model.GenerateContent(ctx, ToMessageContents(messages), callOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.name, err)
	}
	return FromResponse(resp)
}

func (m *Model) callOptions(o llm.CallOptions) []llms.CallOption {
	var callOpts []llms.CallOption

	temperature := m.settings.Temperature
	if o.Temperature != nil {
		temperature = *o.Temperature
	}
	callOpts = append(callOpts, llms.WithTemperature(temperature))

	maxTokens := m.settings.MaxTokens
	if o.MaxTokens > 0 {
		maxTokens = o.MaxTokens
	}
	if maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(maxTokens))
	}
	return callOpts
}

// ToMessageContents 将消息转换为 langchaingo 格式。
// 助手消息中的工具调用与工具结果消息分别转换为 ToolCall 与 ToolCallResponse 片段。
func ToMessageContents(messages []llm.Message) []llms.MessageContent {
	result := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			result = append(result, llms.TextParts(llms.ChatMessageTypeSystem, msg.Content))
		case llm.RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if msg.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextPart(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			if len(mc.Parts) == 0 {
				mc.Parts = append(mc.Parts, llms.TextPart(""))
			}
			result = append(result, mc)
		case llm.RoleTool:
			result = append(result, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: msg.ToolCallID,
					Name:       msg.Name,
					Content:    msg.Content,
				}},
			})
		default:
			result = append(result, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		}
	}
	return result
}

// ToTools 将工具定义转换为 langchaingo 格式。
func ToTools(tools []llm.ToolDefinition) []llms.Tool {
	result := make([]llms.Tool, 0, len(tools))
	for _, tool := range tools {
		result = append(result, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return result
}

// FromResponse 提取首个候选的文本与工具调用。
func FromResponse(resp *llms.ContentResponse) (*llm.Message, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("未返回响应内容")
	}

	choice := resp.Choices[0]
	msg := &llm.Message{
		Role:    llm.RoleAssistant,
		Content: strings.TrimSpace(choice.Content),
	}
	for i, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:        id,
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		})
	}
	return msg, nil
}
