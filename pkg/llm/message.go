package llm

// Role 定义消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message 表示对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls 助手消息请求的工具调用。
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID 工具结果消息对应的调用 ID。
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name 工具结果消息对应的工具名称。
	Name string `json:"name,omitempty"`
}

// ToolCall 模型请求的一次工具调用。Arguments 为 JSON 字符串。
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition 描述一个可供模型调用的工具，Parameters 为 JSON Schema。
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SystemMessage 创建系统消息。
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage 创建用户消息。
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage 创建助手消息。
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage 创建工具结果消息。
func ToolResultMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}

// CallOptions 单次调用的生成参数，未设置的字段使用供应商配置。
type CallOptions struct {
	Temperature *float64
	MaxTokens   int
}

// CallOption 修改 CallOptions。
type CallOption func(*CallOptions)

// WithTemperature 设置采样温度。
func WithTemperature(t float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = &t
	}
}

// WithMaxTokens 设置最大生成 token 数。
func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = n
	}
}

// ApplyCallOptions 合并调用选项。
func ApplyCallOptions(opts ...CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
