package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/cyplan/internal/cyplan/metrics"
	"github.com/kart-io/cyplan/internal/pkg/textutil"
	"github.com/kart-io/cyplan/pkg/infra/tracing"
	"github.com/kart-io/cyplan/pkg/llm"
	errno "github.com/kart-io/cyplan/pkg/utils/errors"
)

// EventKind names a stream event.
type EventKind string

const (
	// EventValues carries the full message list after a step.
	EventValues EventKind = "values"
	// EventUpdates carries only the messages a step produced.
	EventUpdates EventKind = "updates"
	EventEnd     EventKind = "end"
	EventError   EventKind = "error"
)

// Event is emitted by Graph.Stream.
type Event struct {
	Kind     EventKind
	Messages []Message
	Error    string
}

// State is the input and output of a graph run.
type State struct {
	Messages []Message
	UserID   string
	PlanID   *string
}

// GraphConfig tunes a Graph.
type GraphConfig struct {
	MaxRounds       int
	ModelTimeout    time.Duration
	ContextChars    int
	Temperature     float64
	UseVectorSearch bool
	// StreamTokens emits the reply text as it is generated, as updates
	// events carrying the partial assistant message.
	StreamTokens bool
}

// DefaultGraphConfig returns the settings used when none are configured.
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		MaxRounds:       6,
		ModelTimeout:    90 * time.Second,
		ContextChars:    1500,
		Temperature:     0.4,
		UseVectorSearch: true,
	}
}

const budgetExceeded = "Tool budget exceeded: stopping after %d tool rounds."

// Graph alternates between the agent node, which asks the model for the
// next message, and the tools node, which answers the tool calls in it. A
// run ends when the model replies without tool calls or the round budget is
// spent.
type Graph struct {
	model     llm.ToolCaller
	knowledge KnowledgeSource
	tools     map[string]Tool
	defs      []llm.ToolDefinition
	config    GraphConfig
	metrics   *metrics.Metrics
}

// NewGraph compiles a graph. knowledge may be nil, in which case no context
// is injected.
func NewGraph(model llm.ToolCaller, knowledge KnowledgeSource, tools []Tool, config GraphConfig) *Graph {
	def := DefaultGraphConfig()
	if config.MaxRounds <= 0 {
		config.MaxRounds = def.MaxRounds
	}
	if config.ModelTimeout <= 0 {
		config.ModelTimeout = def.ModelTimeout
	}
	if config.ContextChars <= 0 {
		config.ContextChars = def.ContextChars
	}

	g := &Graph{
		model:     model,
		knowledge: knowledge,
		tools:     make(map[string]Tool, len(tools)),
		defs:      make([]llm.ToolDefinition, 0, len(tools)),
		config:    config,
		metrics:   metrics.Default(),
	}
	for _, t := range tools {
		g.tools[t.Name] = t
		g.defs = append(g.defs, t.Definition())
	}
	return g
}

// Invoke runs the graph to completion.
func (g *Graph) Invoke(ctx context.Context, state State) (State, error) {
	return g.run(ctx, state, func(Event) {})
}

// Stream runs the graph in the background. The channel yields values and
// updates events as nodes complete, an error event if the run fails, and
// exactly one end event before it is closed. Callers must drain it.
func (g *Graph) Stream(ctx context.Context, state State) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer sendFinal(ctx, out, Event{Kind: EventEnd})
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("agent run panicked", "panic", r)
				sendFinal(ctx, out, Event{Kind: EventError, Error: fmt.Sprint(r)})
			}
		}()

		_, err := g.run(ctx, state, func(e Event) { send(ctx, out, e) })
		if err != nil {
			sendFinal(ctx, out, Event{Kind: EventError, Error: err.Error()})
		}
	}()
	return out
}

func (g *Graph) run(ctx context.Context, state State, emit func(Event)) (result State, err error) {
	ctx, span := tracing.StartSpan(ctx, "agent.run", attribute.Int("agent.input_messages", len(state.Messages)))
	defer span.End()

	msgs := make([]Message, 0, len(state.Messages)+4)
	for _, m := range state.Messages {
		if m.Type != TypeSystem {
			msgs = append(msgs, m)
		}
	}
	result = state

	rounds := 0
	defer func() {
		result.Messages = msgs
		g.metrics.RecordAgentRun(rounds, err)
		if err != nil {
			tracing.RecordError(ctx, err)
		}
	}()

	emit(Event{Kind: EventValues, Messages: slices.Clone(msgs)})
	for {
		reply, err := g.agentNode(ctx, msgs, emit)
		if err != nil {
			return result, err
		}
		msgs = g.step(msgs, emit, reply)
		if len(reply.ToolCalls) == 0 {
			return result, nil
		}

		if rounds >= g.config.MaxRounds {
			logger.Warnw("agent tool budget exceeded", "rounds", rounds, "trace_id", tracing.TraceIDFromContext(ctx))
			msgs = g.step(msgs, emit, AIMessage(fmt.Sprintf(budgetExceeded, rounds)))
			return result, nil
		}

		results := g.toolNode(ctx, reply.ToolCalls)
		rounds++
		msgs = g.step(msgs, emit, results...)
	}
}

func (g *Graph) step(msgs []Message, emit func(Event), produced ...Message) []Message {
	msgs = append(msgs, produced...)
	emit(Event{Kind: EventUpdates, Messages: slices.Clone(produced)})
	emit(Event{Kind: EventValues, Messages: slices.Clone(msgs)})
	return msgs
}

// systemPrompt injects the retrieval context for question into the persona.
func (g *Graph) systemPrompt(ctx context.Context, question string) string {
	if question == "" || g.knowledge == nil {
		return SystemPrompt
	}
	kb := g.knowledge.ContextForQuestion(ctx, question, g.config.UseVectorSearch)
	if kb == "" {
		return SystemPrompt
	}
	return SystemPrompt + ContextHeader + textutil.TruncateString(kb, g.config.ContextChars)
}

func (g *Graph) agentNode(ctx context.Context, msgs []Message, emit func(Event)) (Message, error) {
	var question string
	if h := lastOf(msgs, TypeHuman); h != nil {
		question = h.Content.Text()
	}

	prompt := make([]llm.Message, 0, len(msgs)+1)
	prompt = append(prompt, llm.SystemMessage(g.systemPrompt(ctx, question)))
	for _, m := range msgs {
		prompt = append(prompt, m.toLLM())
	}

	callCtx, cancel := context.WithTimeout(ctx, g.config.ModelTimeout)
	defer cancel()

	replyID := newRunID()
	start := time.Now()
	var (
		reply *llm.Message
		err   error
	)
	if g.config.StreamTokens {
		var partial strings.Builder
		reply, err = g.model.StreamWithTools(callCtx, prompt, g.defs, func(ctx context.Context, chunk string) error {
			partial.WriteString(chunk)
			emit(Event{Kind: EventUpdates, Messages: []Message{{
				ID:      replyID,
				Type:    TypeAI,
				Content: TextContent(partial.String()),
			}}})
			return ctx.Err()
		}, llm.WithTemperature(g.config.Temperature))
	} else {
		reply, err = g.model.ChatWithTools(callCtx, prompt, g.defs, llm.WithTemperature(g.config.Temperature))
	}
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = errno.ErrModelTimeout.WithCause(err)
	}
	g.metrics.RecordModelCall("agent", time.Since(start), err)
	if err != nil {
		return Message{}, fmt.Errorf("agent model call: %w", err)
	}
	if reply == nil {
		return Message{ID: replyID, Type: TypeAI, Content: TextContent("")}, nil
	}
	return fromLLM(reply, replyID), nil
}

func (g *Graph) toolNode(ctx context.Context, calls []llm.ToolCall) []Message {
	out := make([]Message, 0, len(calls))
	for _, call := range calls {
		content, err := g.callTool(ctx, call)
		g.metrics.RecordToolCall(call.Name, err)
		if err != nil {
			logger.Warnw("agent tool call failed", "tool", call.Name, "error", err)
		}
		out = append(out, Message{
			Type:       TypeTool,
			Content:    TextContent(content),
			ToolCallID: call.ID,
			Name:       call.Name,
		})
	}
	return out
}

func (g *Graph) callTool(ctx context.Context, call llm.ToolCall) (string, error) {
	tool, ok := g.tools[call.Name]
	if !ok {
		names := make([]string, 0, len(g.tools))
		for name := range g.tools {
			names = append(names, name)
		}
		sort.Strings(names)
		err := errno.ErrToolFailed.WithMessagef("unknown tool %s", call.Name)
		return fmt.Sprintf("Error: %s is not a valid tool, try one of [%s].", call.Name, strings.Join(names, ", ")), err
	}

	ctx, span := tracing.StartSpan(ctx, "agent.tool", attribute.String("agent.tool", call.Name))
	defer span.End()
	content, err := tool.Invoke(ctx, call.Arguments)
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return content, err
}
