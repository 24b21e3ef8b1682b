package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/cyplan/pkg/llm"
	errno "github.com/kart-io/cyplan/pkg/utils/errors"
)

func newTestGraph(model *scriptedModel, kb *fakeKnowledge, config GraphConfig) *Graph {
	tools := NewTools(ToolDeps{Knowledge: kb})
	return NewGraph(model, kb, tools, config)
}

func TestGraphAnswersWithoutTools(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Message{reply("Hello! What are your goals?")}}
	kb := &fakeKnowledge{context: strings.Repeat("k", 2000)}
	g := newTestGraph(model, kb, DefaultGraphConfig())

	out, err := g.Invoke(context.Background(), State{Messages: []Message{
		{Type: TypeSystem, Content: TextContent("stale system prompt")},
		HumanMessage("Tell me about NIST CSF"),
	}})
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, TypeHuman, out.Messages[0].Type)
	assert.Equal(t, "Hello! What are your goals?", out.Messages[1].Content.Text())

	require.Equal(t, 1, model.callCount())
	prompt := model.calls[0]
	require.Len(t, prompt, 2)
	assert.Equal(t, llm.RoleSystem, prompt[0].Role)
	assert.Equal(t, SystemPrompt+ContextHeader+strings.Repeat("k", 1500), prompt[0].Content)
	assert.Equal(t, llm.UserMessage("Tell me about NIST CSF"), prompt[1])

	require.NotNil(t, model.opts.Temperature)
	assert.InDelta(t, 0.4, *model.opts.Temperature, 1e-9)
	assert.Len(t, model.tools, 4)
	assert.Equal(t, []string{"Tell me about NIST CSF"}, kb.questions)
}

func TestGraphOmitsEmptyContext(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Message{reply("ok")}}
	g := newTestGraph(model, &fakeKnowledge{}, DefaultGraphConfig())

	_, err := g.Invoke(context.Background(), State{Messages: []Message{HumanMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, SystemPrompt, model.calls[0][0].Content)
}

func TestGraphRunsToolRound(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Message{
		toolCall("call-1", ToolFrameworkInfo, `{"framework_id":"nist-csf-001"}`),
		reply("NIST CSF has five functions."),
	}}
	kb := &fakeKnowledge{info: "Framework: "}
	g := newTestGraph(model, kb, DefaultGraphConfig())

	out, err := g.Invoke(context.Background(), State{Messages: []Message{HumanMessage("What is NIST CSF?")}})
	require.NoError(t, err)
	require.Len(t, out.Messages, 4)

	toolMsg := out.Messages[2]
	assert.Equal(t, TypeTool, toolMsg.Type)
	assert.Equal(t, "call-1", toolMsg.ToolCallID)
	assert.Equal(t, ToolFrameworkInfo, toolMsg.Name)
	assert.Equal(t, "Framework: nist-csf-001", toolMsg.Content.Text())
	assert.Equal(t, "NIST CSF has five functions.", out.Messages[3].Content.Text())

	second := model.calls[1]
	require.Len(t, second, 4)
	assert.Equal(t, llm.RoleAssistant, second[2].Role)
	assert.Len(t, second[2].ToolCalls, 1)
	assert.Equal(t, llm.ToolResultMessage("call-1", ToolFrameworkInfo, "Framework: nist-csf-001"), second[3])
}

func TestGraphToolFailuresBecomeText(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "a", Name: ToolRiskAssessment, Arguments: `{"keywords":"phishing"}`},
			{ID: "b", Name: "delete_everything", Arguments: `{}`},
			{ID: "c", Name: ToolFrameworkInfo, Arguments: `not json`},
		}},
		reply("done"),
	}}
	g := newTestGraph(model, &fakeKnowledge{}, DefaultGraphConfig())

	out, err := g.Invoke(context.Background(), State{Messages: []Message{HumanMessage("risk?")}})
	require.NoError(t, err)
	require.Len(t, out.Messages, 6)

	assert.True(t, strings.HasPrefix(out.Messages[2].Content.Text(), "Error assessing risks: "))
	assert.Equal(t, "Error: delete_everything is not a valid tool, try one of [generate_plan_summary_tool, get_framework_info, get_risk_assessment, search_knowledge_base].",
		out.Messages[3].Content.Text())
	assert.True(t, strings.HasPrefix(out.Messages[4].Content.Text(), "Error getting framework info: invalid arguments"))
	assert.Equal(t, "done", out.Messages[5].Content.Text())
}

func TestGraphStopsAtToolBudget(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Message{
		toolCall("loop", ToolSearchKnowledge, `{"query":"phishing"}`),
	}}
	g := newTestGraph(model, &fakeKnowledge{context: "ctx"}, GraphConfig{MaxRounds: 2})

	out, err := g.Invoke(context.Background(), State{Messages: []Message{HumanMessage("loop forever")}})
	require.NoError(t, err)
	assert.Equal(t, 3, model.callCount())

	last := out.Messages[len(out.Messages)-1]
	assert.Equal(t, TypeAI, last.Type)
	assert.Equal(t, "Tool budget exceeded: stopping after 2 tool rounds.", last.Content.Text())
	assert.Empty(t, last.ToolCalls)
}

func TestGraphModelTimeout(t *testing.T) {
	model := &scriptedModel{block: true}
	g := newTestGraph(model, &fakeKnowledge{}, GraphConfig{ModelTimeout: 20 * time.Millisecond})

	_, err := g.Invoke(context.Background(), State{Messages: []Message{HumanMessage("hi")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errno.ErrModelTimeout))
}

func TestGraphStreamEvents(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Message{
		toolCall("call-1", ToolSearchKnowledge, `{"query":"phishing"}`),
		reply("Use MFA."),
	}}
	g := newTestGraph(model, &fakeKnowledge{context: "Phishing context"}, DefaultGraphConfig())

	events := drain(g.Stream(context.Background(), State{Messages: []Message{HumanMessage("phishing?")}}))
	require.NotEmpty(t, events)

	assert.Equal(t, EventValues, events[0].Kind)
	assert.Len(t, events[0].Messages, 1)

	var ends int
	for _, e := range events {
		assert.NotEqual(t, EventError, e.Kind)
		if e.Kind == EventEnd {
			ends++
		}
	}
	assert.Equal(t, 1, ends)
	assert.Equal(t, EventEnd, events[len(events)-1].Kind)

	final := events[len(events)-2]
	assert.Equal(t, EventValues, final.Kind)
	require.Len(t, final.Messages, 4)
	assert.Equal(t, "Phishing context", final.Messages[2].Content.Text())
	assert.Equal(t, "Use MFA.", final.Messages[3].Content.Text())
}

func TestGraphStreamReportsFailure(t *testing.T) {
	model := &scriptedModel{err: errors.New("upstream down")}
	g := newTestGraph(model, &fakeKnowledge{}, DefaultGraphConfig())

	events := drain(g.Stream(context.Background(), State{Messages: []Message{HumanMessage("hi")}}))
	require.GreaterOrEqual(t, len(events), 2)

	errEvent := events[len(events)-2]
	assert.Equal(t, EventError, errEvent.Kind)
	assert.Contains(t, errEvent.Error, "upstream down")
	assert.Equal(t, EventEnd, events[len(events)-1].Kind)
}

func TestGraphStreamsReplyTokens(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Message{reply("Enable MFA everywhere.")}}
	config := DefaultGraphConfig()
	config.StreamTokens = true
	g := newTestGraph(model, &fakeKnowledge{}, config)

	events := drain(g.Stream(context.Background(), State{Messages: []Message{HumanMessage("hi")}}))

	var partials []Message
	for _, e := range events {
		if e.Kind == EventUpdates && len(e.Messages) == 1 && e.Messages[0].Type == TypeAI {
			partials = append(partials, e.Messages[0])
		}
	}
	require.Len(t, partials, 4)
	assert.Equal(t, "Enable ", partials[0].Content.Text())
	assert.Equal(t, "Enable MFA ", partials[1].Content.Text())
	assert.Equal(t, "Enable MFA everywhere.", partials[3].Content.Text())
	for _, p := range partials {
		assert.Equal(t, partials[0].ID, p.ID)
	}

	final := events[len(events)-2]
	require.Equal(t, EventValues, final.Kind)
	require.Len(t, final.Messages, 2)
	assert.Equal(t, partials[0].ID, final.Messages[1].ID)

	var merger MessageMerger
	for _, e := range events {
		merger.Apply(e)
	}
	list := merger.Messages()
	require.Len(t, list, 2)
	assert.Equal(t, partials[0].ID, list[1].ID)
	assert.Equal(t, "Enable MFA everywhere.", list[1].Content[0].Text)
}

func TestGraphWithoutTokenStreaming(t *testing.T) {
	model := &scriptedModel{replies: []*llm.Message{reply("Enable MFA everywhere.")}}
	g := newTestGraph(model, &fakeKnowledge{}, DefaultGraphConfig())

	events := drain(g.Stream(context.Background(), State{Messages: []Message{HumanMessage("hi")}}))
	var updates int
	for _, e := range events {
		if e.Kind == EventUpdates {
			updates++
		}
	}
	assert.Equal(t, 1, updates)
}
