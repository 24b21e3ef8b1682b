package agent

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/kart-io/cyplan/internal/pkg/textutil"
)

// WireMessage is a message as rendered to chat clients.
type WireMessage struct {
	ID      string        `json:"id"`
	Type    MessageType   `json:"type"`
	Content []ContentPart `json:"content"`
}

// SyntheticID derives the id of a message that has none:
// {type}-{md5(text+type+index)[:12]}.
func SyntheticID(text string, t MessageType, index int) string {
	hash := textutil.HashString(text + string(t) + strconv.Itoa(index))
	return string(t) + "-" + hash[:12]
}

// FormatMessages renders the human and ai messages of msgs. A message keeps
// its own id unless it is empty or repeats an earlier id of msgs; otherwise
// it gets a synthetic id, suffixed with -N until it differs from every id
// used so far and from taken.
func FormatMessages(msgs []Message, taken []string) []WireMessage {
	reserved := make(map[string]bool, len(taken))
	for _, id := range taken {
		reserved[id] = true
	}
	used := make(map[string]bool, len(msgs))

	out := make([]WireMessage, 0, len(msgs))
	for idx, m := range msgs {
		if m.Type != TypeHuman && m.Type != TypeAI {
			continue
		}
		text := m.Content.Text()
		id := m.ID
		if id == "" || used[id] {
			base := SyntheticID(text, m.Type, idx)
			id = base
			for n := 1; used[id] || reserved[id]; n++ {
				id = fmt.Sprintf("%s-%d", base, n)
			}
		}
		used[id] = true
		out = append(out, WireMessage{
			ID:      id,
			Type:    m.Type,
			Content: []ContentPart{{Type: PartText, Text: text}},
		})
	}
	return out
}

// MessageMerger folds stream events into the message list shown to the
// client and remembers the last assistant message observed.
type MessageMerger struct {
	messages []WireMessage
	lastAI   *Message
}

// Apply folds e into the list. values events replace it, updates events
// replace messages by id and append new ones. It returns the current list
// and whether it is non-empty.
func (m *MessageMerger) Apply(e Event) ([]WireMessage, bool) {
	switch e.Kind {
	case EventValues:
		m.messages = FormatMessages(e.Messages, nil)
	case EventUpdates:
		formatted := FormatMessages(e.Messages, m.ids())
		if len(m.messages) == 0 {
			m.messages = formatted
			break
		}
		index := make(map[string]int, len(m.messages))
		for i, w := range m.messages {
			index[w.ID] = i
		}
		for _, w := range formatted {
			if i, ok := index[w.ID]; ok {
				m.messages[i] = w
			} else {
				m.messages = append(m.messages, w)
			}
		}
	default:
		return m.Messages(), len(m.messages) > 0
	}

	if ai := lastOf(e.Messages, TypeAI); ai != nil {
		msg := *ai
		m.lastAI = &msg
	}
	return m.Messages(), len(m.messages) > 0
}

// Replace resets the list to msgs, as after a blocking re-invoke.
func (m *MessageMerger) Replace(msgs []Message) []WireMessage {
	m.messages = FormatMessages(msgs, nil)
	m.lastAI = nil
	if ai := lastOf(msgs, TypeAI); ai != nil {
		msg := *ai
		m.lastAI = &msg
	}
	return m.Messages()
}

// Messages returns a copy of the current list.
func (m *MessageMerger) Messages() []WireMessage {
	return slices.Clone(m.messages)
}

// LastAI returns the last assistant message observed, if any.
func (m *MessageMerger) LastAI() (Message, bool) {
	if m.lastAI == nil {
		return Message{}, false
	}
	return *m.lastAI, true
}

// ContentObserved reports whether an assistant message with text was seen.
func (m *MessageMerger) ContentObserved() bool {
	return m.lastAI != nil && m.lastAI.Content.Text() != ""
}

func (m *MessageMerger) ids() []string {
	ids := make([]string, 0, len(m.messages))
	for _, w := range m.messages {
		ids = append(ids, w.ID)
	}
	return ids
}
