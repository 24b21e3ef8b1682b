package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

func TestCodecsKeepFieldOrder(t *testing.T) {
	for _, arch := range []string{"amd64", "386"} {
		t.Run(arch, func(t *testing.T) {
			c := pick(arch)
			b, err := c.marshal(frame{Event: "end", Data: map[string]any{}})
			require.NoError(t, err)
			assert.Equal(t, `{"event":"end"}`, string(b))

			var back frame
			require.NoError(t, c.unmarshal([]byte(`{"event":"values","data":{"k":1}}`), &back))
			assert.Equal(t, "values", back.Event)
		})
	}
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(map[string]int{"likelihood": 3}))

	var got map[string]int
	require.NoError(t, NewDecoder(&buf).Decode(&got))
	assert.Equal(t, 3, got["likelihood"])
}

func TestRawMessage(t *testing.T) {
	var v struct {
		Content RawMessage `json:"content"`
	}
	require.NoError(t, Unmarshal([]byte(`{"content":[{"type":"text","text":"hi"}]}`), &v))
	assert.True(t, Valid(v.Content))
	assert.Equal(t, byte('['), v.Content[0])
}
