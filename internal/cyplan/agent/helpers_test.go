package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/pkg/llm"
)

func newSeededFactory(t *testing.T) store.Factory {
	t.Helper()
	dsn := fmt.Sprintf("file:agent_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	f := store.NewFactory(db)
	require.NoError(t, f.AutoMigrate(context.Background()))
	_, err = f.Ontology().Seed(context.Background())
	require.NoError(t, err)
	return f
}

// scriptedModel replays replies in order, repeating the last one.
type scriptedModel struct {
	mu      sync.Mutex
	replies []*llm.Message
	err     error
	block   bool
	calls   [][]llm.Message
	tools   []llm.ToolDefinition
	opts    llm.CallOptions
}

var _ llm.ToolCaller = (*scriptedModel)(nil)

func (m *scriptedModel) ChatWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, opts ...llm.CallOption) (*llm.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, messages)
	m.tools = tools
	m.opts = llm.ApplyCallOptions(opts...)
	n := len(m.calls)
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return &llm.Message{Role: llm.RoleAssistant}, nil
	}
	i := n - 1
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	reply := *m.replies[i]
	return &reply, nil
}

func (m *scriptedModel) StreamWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, onChunk llm.StreamFunc, opts ...llm.CallOption) (*llm.Message, error) {
	reply, err := m.ChatWithTools(ctx, messages, tools, opts...)
	if err != nil || onChunk == nil {
		return reply, err
	}
	for _, chunk := range strings.SplitAfter(reply.Content, " ") {
		if chunk == "" {
			continue
		}
		if err := onChunk(ctx, chunk); err != nil {
			return nil, err
		}
	}
	return reply, nil
}

func (m *scriptedModel) Chat(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (string, error) {
	reply, err := m.ChatWithTools(ctx, messages, nil, opts...)
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

func (m *scriptedModel) Generate(ctx context.Context, prompt, systemPrompt string, opts ...llm.CallOption) (string, error) {
	return m.Chat(ctx, []llm.Message{llm.SystemMessage(systemPrompt), llm.UserMessage(prompt)}, opts...)
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func reply(text string) *llm.Message {
	return &llm.Message{Role: llm.RoleAssistant, Content: text}
}

func toolCall(id, name, args string) *llm.Message {
	return &llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: args}}}
}

// fakeKnowledge returns a fixed context and records the questions.
type fakeKnowledge struct {
	mu        sync.Mutex
	context   string
	info      string
	infoErr   error
	questions []string
}

func (f *fakeKnowledge) ContextForQuestion(_ context.Context, question string, _ bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, question)
	return f.context
}

func (f *fakeKnowledge) FrameworkInfo(_ context.Context, id string) (string, error) {
	if f.infoErr != nil {
		return "", f.infoErr
	}
	return f.info + id, nil
}

func drain[T any](ch <-chan T) []T {
	var out []T
	for v := range ch {
		out = append(out, v)
	}
	return out
}
