package agent

import (
	"bytes"

	"github.com/kart-io/cyplan/pkg/llm"
	"github.com/kart-io/cyplan/pkg/utils/id"
	"github.com/kart-io/cyplan/pkg/utils/json"
)

// runIDPrefix prefixes the ids given to messages the agent produces.
const runIDPrefix = "run-"

func newRunID() string {
	return runIDPrefix + id.NewULID()
}

// MessageType is the kind of a conversation message.
type MessageType string

const (
	TypeHuman  MessageType = "human"
	TypeAI     MessageType = "ai"
	TypeTool   MessageType = "tool"
	TypeSystem MessageType = "system"
)

// Message is one entry of the graph state.
type Message struct {
	ID         string         `json:"id,omitempty"`
	Type       MessageType    `json:"type"`
	Content    Content        `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

// HumanMessage returns a plain text human message.
func HumanMessage(text string) Message {
	return Message{Type: TypeHuman, Content: TextContent(text)}
}

// AIMessage returns a plain text assistant message with a fresh run id.
func AIMessage(text string) Message {
	return Message{ID: newRunID(), Type: TypeAI, Content: TextContent(text)}
}

func (m Message) toLLM() llm.Message {
	out := llm.Message{Content: m.Content.Text()}
	switch m.Type {
	case TypeHuman:
		out.Role = llm.RoleUser
	case TypeAI:
		out.Role = llm.RoleAssistant
		out.ToolCalls = m.ToolCalls
	case TypeTool:
		out.Role = llm.RoleTool
		out.ToolCallID = m.ToolCallID
		out.Name = m.Name
	default:
		out.Role = llm.RoleSystem
	}
	return out
}

func fromLLM(m *llm.Message, msgID string) Message {
	return Message{
		ID:        msgID,
		Type:      TypeAI,
		Content:   TextContent(m.Content),
		ToolCalls: m.ToolCalls,
	}
}

// InputMessage is a message as sent by chat clients. Either Type
// (human, ai) or Role (user, assistant) names the sender.
type InputMessage struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Type    string          `json:"type,omitempty"`
	Role    string          `json:"role,omitempty"`
	Content Content         `json:"content"`
}

// ClientID returns the client supplied id as a string, or "".
func (in InputMessage) ClientID() string {
	raw := bytes.TrimSpace(in.ID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// ConvertInput turns client messages into graph messages. Messages from
// senders other than human/user and ai/assistant are dropped.
func ConvertInput(in []InputMessage) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		kind := m.Type
		if kind == "" {
			kind = m.Role
		}
		var t MessageType
		switch kind {
		case "human", "user":
			t = TypeHuman
		case "ai", "assistant":
			t = TypeAI
		default:
			continue
		}
		out = append(out, Message{ID: m.ClientID(), Type: t, Content: TextContent(m.Content.Text())})
	}
	return out
}

// lastOf returns the last message of type t, or nil.
func lastOf(msgs []Message, t MessageType) *Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == t {
			return &msgs[i]
		}
	}
	return nil
}
