package agent

import (
	"bytes"
	"strings"

	"github.com/kart-io/cyplan/pkg/utils/json"
)

// PartText is the type of a text content part.
const PartText = "text"

// ContentPart is one element of structured message content.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Content is message content: either plain text or a list of parts.
type Content struct {
	text       string
	parts      []ContentPart
	structured bool
}

// TextContent returns plain text content.
func TextContent(s string) Content {
	return Content{text: s}
}

// PartsContent returns structured content.
func PartsContent(parts ...ContentPart) Content {
	return Content{parts: parts, structured: true}
}

// IsStructured reports whether c holds parts rather than plain text.
func (c Content) IsStructured() bool {
	return c.structured
}

// Text normalizes c to a string. Text parts are joined with a single space
// and non-text parts are skipped.
func (c Content) Text() string {
	if !c.structured {
		return c.text
	}
	texts := make([]string, 0, len(c.parts))
	for _, p := range c.parts {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

// Parts returns c as parts. Plain text becomes a single text part.
func (c Content) Parts() []ContentPart {
	if c.structured {
		return c.parts
	}
	return []ContentPart{{Type: PartText, Text: c.text}}
}

// MarshalJSON encodes plain text as a string and parts as an array.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.structured {
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON accepts a string, an array of parts or null. Array items
// that are not objects are ignored; any other value is kept as its raw text.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Content{}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = TextContent(s)
	case data[0] == '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parts := make([]ContentPart, 0, len(raw))
		for _, item := range raw {
			item = bytes.TrimSpace(item)
			if len(item) == 0 || item[0] != '{' {
				continue
			}
			var p ContentPart
			if err := json.Unmarshal(item, &p); err != nil {
				return err
			}
			parts = append(parts, p)
		}
		*c = PartsContent(parts...)
	default:
		*c = TextContent(string(data))
	}
	return nil
}
