package agent

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	errno "github.com/kart-io/cyplan/pkg/utils/errors"
	"github.com/kart-io/cyplan/pkg/utils/id"
)

// RunConfig is the per-run configuration sent by chat clients.
type RunConfig struct {
	UserID    string  `json:"user_id,omitempty"`
	PlanID    *string `json:"plan_id,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
}

func (c RunConfig) userPtr() *string {
	if c.UserID == "" {
		return nil
	}
	u := c.UserID
	return &u
}

// StateValues is the state rendered in values and updates frames.
type StateValues struct {
	Messages []WireMessage `json:"messages"`
	UserID   string        `json:"user_id"`
	PlanID   *string       `json:"plan_id"`
}

// Frame is one server-sent event of a run.
type Frame struct {
	Event string
	Data  any
}

// Checkpoint is one entry of a thread history.
type Checkpoint struct {
	Values struct {
		Messages []WireMessage `json:"messages"`
	} `json:"values"`
	Next []string `json:"next"`
}

// CreatedThread describes a new thread.
type CreatedThread struct {
	Thread *model.ChatThread
	Config RunConfig
}

// Conversation runs graph turns on persisted chat threads.
type Conversation struct {
	threads  store.ThreadStore
	sessions store.SessionStore
	registry *Registry
}

// NewConversation creates a Conversation. The registry compiles graphs on
// demand; when it reports ErrLLMNotConfigured runs reply with a canned
// message instead.
func NewConversation(factory store.Factory, registry *Registry) *Conversation {
	return &Conversation{
		threads:  factory.Threads(),
		sessions: factory.Sessions(),
		registry: registry,
	}
}

// CreateThread stores a new thread. With a user id an agent session is
// started as well and its id returned in the config.
func (c *Conversation) CreateThread(ctx context.Context, cfg RunConfig) (*CreatedThread, error) {
	threadID := id.NewThreadID()
	thread, err := c.threads.Ensure(ctx, threadID, cfg.userPtr())
	if err != nil {
		return nil, err
	}

	if cfg.UserID != "" {
		session := &model.AgentSession{UserID: cfg.userPtr(), PlanID: cfg.PlanID}
		if err := c.sessions.Create(ctx, session); err != nil {
			return nil, err
		}
		cfg.SessionID = session.ID
	}

	if _, err := c.registry.Get(threadID); err != nil && !errors.Is(err, errno.ErrLLMNotConfigured) {
		return nil, err
	}
	logger.Infow("thread created", "thread_id", threadID)
	return &CreatedThread{Thread: thread, Config: cfg}, nil
}

// SearchThreads lists stored threads, most recent first.
func (c *Conversation) SearchThreads(ctx context.Context, limit int) ([]model.ChatThread, error) {
	return c.threads.List(ctx, limit)
}

// History returns the stored messages of a thread as a single checkpoint,
// or nil when the thread is unknown or empty.
func (c *Conversation) History(ctx context.Context, threadID string) ([]Checkpoint, error) {
	if _, err := c.threads.Get(ctx, threadID); err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	stored, err := c.threads.Messages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, nil
	}

	var cp Checkpoint
	cp.Next = []string{}
	for _, m := range stored {
		msgID := strconv.FormatUint(m.ID, 10)
		if m.ClientMessageID != nil && *m.ClientMessageID != "" {
			msgID = *m.ClientMessageID
		}
		t := TypeAI
		if m.Role == model.ChatRoleHuman {
			t = TypeHuman
		}
		cp.Values.Messages = append(cp.Values.Messages, WireMessage{
			ID:      msgID,
			Type:    t,
			Content: []ContentPart{{Type: PartText, Text: m.Content}},
		})
	}
	return []Checkpoint{cp}, nil
}

// Run starts a graph turn on threadID. The latest human message is stored
// before the turn starts and the assistant reply after it completes. The
// returned channel ends with exactly one end frame and must be drained.
func (c *Conversation) Run(ctx context.Context, threadID string, msgs []Message, cfg RunConfig) (<-chan Frame, error) {
	if len(msgs) == 0 {
		return nil, errno.ErrEmptyMessages.WithMessage("Messages are required in 'messages' or 'input.messages'")
	}

	graph, err := c.registry.Get(threadID)
	if err != nil && !errors.Is(err, errno.ErrLLMNotConfigured) {
		return nil, err
	}

	if _, err := c.threads.Ensure(ctx, threadID, cfg.userPtr()); err != nil {
		return nil, err
	}
	if last := msgs[len(msgs)-1]; last.Type == TypeHuman {
		c.storeChat(ctx, threadID, model.ChatRoleHuman, last)
	}

	state := State{Messages: msgs, UserID: cfg.UserID, PlanID: cfg.PlanID}
	out := make(chan Frame, 16)
	go c.run(ctx, graph, threadID, state, cfg, out)
	return out, nil
}

func (c *Conversation) run(ctx context.Context, graph *Graph, threadID string, state State, cfg RunConfig, out chan<- Frame) {
	defer close(out)
	defer sendFinal(ctx, out, Frame{Event: string(EventEnd), Data: map[string]any{}})
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("thread run panicked", "thread_id", threadID, "panic", r)
			sendFinal(ctx, out, errorFrame(errno.ErrAgentRunFailed.MessageEN))
		}
	}()

	var merger MessageMerger
	frame := func(kind EventKind) Frame {
		return Frame{
			Event: string(kind),
			Data: map[string]StateValues{string(kind): {
				Messages: merger.Messages(),
				UserID:   state.UserID,
				PlanID:   state.PlanID,
			}},
		}
	}

	if graph == nil {
		final := append(append([]Message{}, state.Messages...), AIMessage(LLMNotConfigured))
		merger.Replace(final)
		send(ctx, out, frame(EventValues))
	} else {
		failed := false
		for e := range graph.Stream(ctx, state) {
			switch e.Kind {
			case EventValues, EventUpdates:
				if _, ok := merger.Apply(e); ok {
					send(ctx, out, frame(e.Kind))
				}
			case EventError:
				failed = true
				logger.Errorw("thread run failed", "thread_id", threadID, "error", e.Error)
				send(ctx, out, errorFrame(e.Error))
			}
		}
		if failed {
			return
		}

		if !merger.ContentObserved() {
			logger.Warnw("no assistant content streamed, invoking graph", "thread_id", threadID)
			final, err := graph.Invoke(ctx, state)
			if err != nil {
				logger.Errorw("thread run failed", "thread_id", threadID, "error", err)
				send(ctx, out, errorFrame(err.Error()))
				return
			}
			merger.Replace(final.Messages)
			send(ctx, out, frame(EventValues))
		}
	}

	// Persist even if the client went away mid-stream.
	persistCtx := context.WithoutCancel(ctx)
	reply, ok := merger.LastAI()
	if cfg.SessionID != "" {
		c.mirrorSession(persistCtx, cfg.SessionID, state.Messages, reply, ok)
	}
	if ok {
		c.storeChat(persistCtx, threadID, model.ChatRoleAI, reply)
	}
}

// storeChat appends msg to the thread unless it is blank or repeats the
// most recent message of the same role.
func (c *Conversation) storeChat(ctx context.Context, threadID, role string, msg Message) {
	text := msg.Content.Text()
	if strings.TrimSpace(text) == "" {
		return
	}
	latest, err := c.threads.LastMessage(ctx, threadID, role)
	if err != nil {
		logger.Warnw("load latest thread message failed", "thread_id", threadID, "error", err)
		return
	}
	if latest != nil && latest.Content == text {
		return
	}

	record := &model.ChatMessage{ThreadID: threadID, Role: role, Content: text}
	if msg.ID != "" {
		clientID := msg.ID
		record.ClientMessageID = &clientID
	}
	if err := c.threads.AppendMessage(ctx, record); err != nil {
		logger.Warnw("store thread message failed", "thread_id", threadID, "role", role, "error", err)
	}
}

// mirrorSession copies the turn into the agent session.
func (c *Conversation) mirrorSession(ctx context.Context, sessionID string, input []Message, reply Message, hasReply bool) {
	var records []*model.AgentMessage
	if last := input[len(input)-1]; last.Type == TypeHuman {
		records = append(records, &model.AgentMessage{SessionID: sessionID, Role: model.RoleUser, Content: last.Content.Text()})
	}
	if text := reply.Content.Text(); hasReply && text != "" {
		records = append(records, &model.AgentMessage{SessionID: sessionID, Role: model.RoleAssistant, Content: text})
	}
	for _, r := range records {
		if err := c.sessions.AppendMessage(ctx, r); err != nil {
			logger.Warnw("mirror session message failed", "session_id", sessionID, "error", err)
		}
	}
}

func errorFrame(msg string) Frame {
	return Frame{Event: string(EventError), Data: map[string]string{"error": msg}}
}

func send[T any](ctx context.Context, out chan<- T, v T) {
	select {
	case out <- v:
	case <-ctx.Done():
	}
}

// sendFinal delivers v even after ctx is done as long as the buffer has room.
func sendFinal[T any](ctx context.Context, out chan<- T, v T) {
	select {
	case out <- v:
		return
	default:
	}
	send(ctx, out, v)
}
