package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/cyplan/pkg/utils/json"
)

func TestContentText(t *testing.T) {
	assert.Equal(t, "hello", TextContent("hello").Text())
	assert.False(t, TextContent("hello").IsStructured())

	parts := PartsContent(
		ContentPart{Type: PartText, Text: "first"},
		ContentPart{Type: "image_url"},
		ContentPart{Type: PartText, Text: "second"},
	)
	assert.True(t, parts.IsStructured())
	assert.Equal(t, "first second", parts.Text())
	assert.Equal(t, []ContentPart{{Type: PartText, Text: "plain"}}, TextContent("plain").Parts())
}

func TestContentUnmarshal(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		text       string
		structured bool
	}{
		{"string", `"What is PR.AC-3?"`, "What is PR.AC-3?", false},
		{"parts", `[{"type":"text","text":"a"},"skip",{"type":"text","text":"b"}]`, "a b", true},
		{"null", `null`, "", false},
		{"number", `42`, "42", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Content
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &c))
			assert.Equal(t, tt.text, c.Text())
			assert.Equal(t, tt.structured, c.IsStructured())
		})
	}
}

func TestContentMarshalKeepsShape(t *testing.T) {
	b, err := json.Marshal(TextContent("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `"hi"`, string(b))

	b, err = json.Marshal(PartsContent(ContentPart{Type: PartText, Text: "hi"}))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"text","text":"hi"}]`, string(b))
}

func TestConvertInput(t *testing.T) {
	var in []InputMessage
	raw := `[
		{"id": "m1", "type": "human", "content": [{"type": "text", "text": "Hi"}]},
		{"id": 7, "role": "assistant", "content": "Hello"},
		{"role": "system", "content": "ignored"},
		{"role": "user", "content": "Scope?"}
	]`
	require.NoError(t, json.Unmarshal([]byte(raw), &in))

	msgs := ConvertInput(in)
	require.Len(t, msgs, 3)
	assert.Equal(t, Message{ID: "m1", Type: TypeHuman, Content: TextContent("Hi")}, msgs[0])
	assert.Equal(t, "7", msgs[1].ID)
	assert.Equal(t, TypeAI, msgs[1].Type)
	assert.Equal(t, "", msgs[2].ID)
	assert.Equal(t, "Scope?", msgs[2].Content.Text())
}
