package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/pkg/llm"
	errno "github.com/kart-io/cyplan/pkg/utils/errors"
)

func newConversation(t *testing.T, chat *scriptedModel) (store.Factory, *Conversation) {
	t.Helper()
	f := newSeededFactory(t)
	registry := NewRegistry(func() (*Graph, error) {
		if chat == nil {
			return nil, errno.ErrLLMNotConfigured
		}
		kb := &fakeKnowledge{context: "ctx"}
		return NewGraph(chat, kb, NewTools(ToolDeps{Knowledge: kb}), DefaultGraphConfig()), nil
	})
	return f, NewConversation(f, registry)
}

func frameEvents(frames []Frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Event
	}
	return out
}

func lastValues(t *testing.T, frames []Frame) StateValues {
	t.Helper()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == string(EventValues) {
			data, ok := frames[i].Data.(map[string]StateValues)
			require.True(t, ok)
			return data["values"]
		}
	}
	t.Fatal("no values frame")
	return StateValues{}
}

func TestCreateThread(t *testing.T) {
	f, c := newConversation(t, &scriptedModel{})
	ctx := context.Background()

	anon, err := c.CreateThread(ctx, RunConfig{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(anon.Thread.ID, "thread_"))
	assert.Len(t, anon.Thread.ID, len("thread_")+16)
	assert.Empty(t, anon.Config.SessionID)
	assert.True(t, c.registry.Has(anon.Thread.ID))

	owned, err := c.CreateThread(ctx, RunConfig{UserID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, owned.Config.SessionID)
	session, err := f.Sessions().Get(ctx, owned.Config.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "u1", *session.UserID)

	threads, err := c.SearchThreads(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, threads, 2)
}

func TestRunStreamsAndPersists(t *testing.T) {
	chat := &scriptedModel{replies: []*llm.Message{reply("Enable MFA (NIST CSF PR.AC-3).")}}
	f, c := newConversation(t, chat)
	ctx := context.Background()

	created, err := c.CreateThread(ctx, RunConfig{UserID: "u1"})
	require.NoError(t, err)
	threadID := created.Thread.ID

	input := []Message{{ID: "client-1", Type: TypeHuman, Content: TextContent("How do we stop phishing?")}}
	frames, err := c.Run(ctx, threadID, input, created.Config)
	require.NoError(t, err)
	got := drain(frames)

	events := frameEvents(got)
	assert.Equal(t, "end", events[len(events)-1])
	assert.Equal(t, 1, strings.Count(strings.Join(events, ","), "end"))
	assert.NotContains(t, events, "error")

	values := lastValues(t, got)
	require.Len(t, values.Messages, 2)
	assert.Equal(t, "client-1", values.Messages[0].ID)
	assert.Equal(t, "Enable MFA (NIST CSF PR.AC-3).", values.Messages[1].Content[0].Text)
	assert.Equal(t, "u1", values.UserID)

	stored, err := f.Threads().Messages(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, model.ChatRoleHuman, stored[0].Role)
	assert.Equal(t, "client-1", *stored[0].ClientMessageID)
	assert.Equal(t, model.ChatRoleAI, stored[1].Role)
	require.NotNil(t, stored[1].ClientMessageID)
	assert.Equal(t, values.Messages[1].ID, *stored[1].ClientMessageID)
	assert.True(t, strings.HasPrefix(*stored[1].ClientMessageID, runIDPrefix))

	mirrored, err := f.Sessions().Messages(ctx, created.Config.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, mirrored, 2)
	assert.Equal(t, model.RoleUser, mirrored[0].Role)
	assert.Equal(t, "Enable MFA (NIST CSF PR.AC-3).", mirrored[1].Content)

	// The same turn again stores nothing new.
	frames, err = c.Run(ctx, threadID, input, RunConfig{})
	require.NoError(t, err)
	drain(frames)
	stored, err = f.Threads().Messages(ctx, threadID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	history, err := c.History(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []string{}, history[0].Next)
	require.Len(t, history[0].Values.Messages, 2)
	assert.Equal(t, "client-1", history[0].Values.Messages[0].ID)
	assert.Equal(t, TypeAI, history[0].Values.Messages[1].Type)
	assert.Equal(t, values.Messages[1].ID, history[0].Values.Messages[1].ID)
}

func TestRunReinvokesWhenNoContentStreamed(t *testing.T) {
	chat := &scriptedModel{replies: []*llm.Message{reply(""), reply("Second try.")}}
	f, c := newConversation(t, chat)
	ctx := context.Background()

	frames, err := c.Run(ctx, "thread_retry", []Message{HumanMessage("hi")}, RunConfig{})
	require.NoError(t, err)
	got := drain(frames)

	assert.Equal(t, 2, chat.callCount())
	values := lastValues(t, got)
	require.Len(t, values.Messages, 2)
	assert.Equal(t, "Second try.", values.Messages[1].Content[0].Text)

	last, err := f.Threads().LastMessage(ctx, "thread_retry", model.ChatRoleAI)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "Second try.", last.Content)
}

func TestRunReportsModelFailure(t *testing.T) {
	chat := &scriptedModel{err: errno.ErrLLMUpstream}
	f, c := newConversation(t, chat)
	ctx := context.Background()

	frames, err := c.Run(ctx, "thread_fail", []Message{HumanMessage("hi")}, RunConfig{})
	require.NoError(t, err)
	events := frameEvents(drain(frames))

	assert.Contains(t, events, "error")
	assert.Equal(t, "end", events[len(events)-1])

	stored, err := f.Threads().Messages(ctx, "thread_fail")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, model.ChatRoleHuman, stored[0].Role)
}

func TestRunWithoutModelRepliesCanned(t *testing.T) {
	_, c := newConversation(t, nil)
	ctx := context.Background()

	created, err := c.CreateThread(ctx, RunConfig{})
	require.NoError(t, err)

	frames, err := c.Run(ctx, created.Thread.ID, []Message{HumanMessage("hi")}, RunConfig{})
	require.NoError(t, err)
	got := drain(frames)

	assert.Equal(t, []string{"values", "end"}, frameEvents(got))
	values := lastValues(t, got)
	assert.Equal(t, LLMNotConfigured, values.Messages[1].Content[0].Text)
}

func TestRunRequiresMessages(t *testing.T) {
	_, c := newConversation(t, &scriptedModel{})
	_, err := c.Run(context.Background(), "thread_x", nil, RunConfig{})
	assert.ErrorIs(t, err, errno.ErrEmptyMessages)
}

func TestHistoryOfUnknownThread(t *testing.T) {
	_, c := newConversation(t, &scriptedModel{})
	history, err := c.History(context.Background(), "thread_missing")
	require.NoError(t, err)
	assert.Empty(t, history)
}
