package chatmodel

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/kart-io/cyplan/pkg/llm"
)

type fakeModel struct {
	resp     *llms.ContentResponse
	err      error
	stream   []string
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	f.opts = llms.CallOptions{}
	for _, o := range options {
		o(&f.opts)
	}
	if f.opts.StreamingFunc != nil {
		for _, s := range f.stream {
			if err := f.opts.StreamingFunc(ctx, []byte(s)); err != nil {
				return nil, err
			}
		}
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func textResponse(s string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s}}}
}

func TestGenerateUsesDefaultsAndOverrides(t *testing.T) {
	fake := &fakeModel{resp: textResponse("  summary  ")}
	m := New("openai", fake, Settings{Temperature: 0.4})

	out, err := m.Generate(context.Background(), "write", "you are a planner", llm.WithTemperature(0.7), llm.WithMaxTokens(3000))
	require.NoError(t, err)
	assert.Equal(t, "summary", out)
	assert.InDelta(t, 0.7, fake.opts.Temperature, 1e-9)
	assert.Equal(t, 3000, fake.opts.MaxTokens)
	require.Len(t, fake.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[1].Role)

	_, err = m.Chat(context.Background(), []llm.Message{llm.UserMessage("hi")})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, fake.opts.Temperature, 1e-9)
	assert.Zero(t, fake.opts.MaxTokens)
}

func TestChatWithToolsReturnsToolCalls(t *testing.T) {
	fake := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{
			{ID: "call_a", FunctionCall: &llms.FunctionCall{Name: "get_framework_info", Arguments: `{"framework_id":"NIST_CSF"}`}},
			{FunctionCall: &llms.FunctionCall{Name: "search_knowledge_base", Arguments: `{"query":"phishing"}`}},
			{ID: "broken"},
		},
	}}}}
	m := New("anthropic", fake, Settings{})

	tools := []llm.ToolDefinition{{Name: "get_framework_info", Parameters: map[string]any{"type": "object"}}}
	msg, err := m.ChatWithTools(context.Background(), []llm.Message{llm.UserMessage("tell me about NIST")}, tools)
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 2)
	assert.Equal(t, "call_a", msg.ToolCalls[0].ID)
	assert.Equal(t, "call_1", msg.ToolCalls[1].ID)
	assert.Equal(t, "search_knowledge_base", msg.ToolCalls[1].Name)
	require.Len(t, fake.opts.Tools, 1)
	assert.Equal(t, "get_framework_info", fake.opts.Tools[0].Function.Name)
}

func TestStreamWithTools(t *testing.T) {
	fake := &fakeModel{resp: textResponse("Hello there"), stream: []string{"Hello", "", " there"}}
	m := New("ollama", fake, Settings{})

	var chunks []string
	msg, err := m.StreamWithTools(context.Background(), []llm.Message{llm.UserMessage("hi")}, nil,
		func(_ context.Context, chunk string) error {
			chunks = append(chunks, chunk)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", " there"}, chunks)
	assert.Equal(t, "Hello there", msg.Content)

	stop := errors.New("client gone")
	_, err = m.StreamWithTools(context.Background(), []llm.Message{llm.UserMessage("hi")}, nil,
		func(context.Context, string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestToMessageContentsToolRoundTrip(t *testing.T) {
	msgs := []llm.Message{
		llm.SystemMessage("sys"),
		llm.UserMessage("q"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "t", Arguments: "{}"}}},
		llm.ToolResultMessage("c1", "t", "result"),
		llm.AssistantMessage("answer"),
	}
	out := ToMessageContents(msgs)
	require.Len(t, out, 5)

	call, ok := out[2].Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "c1", call.ID)

	resp, ok := out[3].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "result", resp.Content)
	assert.Equal(t, llms.ChatMessageTypeTool, out[3].Role)
}

func TestGenerateErrors(t *testing.T) {
	m := New("openai", &fakeModel{err: errors.New("401 unauthorized")}, Settings{})
	_, err := m.Chat(context.Background(), []llm.Message{llm.UserMessage("hi")})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "openai:"))

	m = New("openai", &fakeModel{resp: &llms.ContentResponse{}}, Settings{})
	_, err = m.Chat(context.Background(), []llm.Message{llm.UserMessage("hi")})
	assert.Error(t, err)
}
