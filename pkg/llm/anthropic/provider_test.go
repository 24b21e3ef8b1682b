package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/cyplan/pkg/llm"
)

func TestNewChatProvider(t *testing.T) {
	_, err := llm.NewChatProvider(ProviderName, map[string]any{"model": "claude-3-5-haiku-latest"})
	assert.ErrorIs(t, err, llm.ErrNotConfigured)

	p, err := llm.NewChatProvider(ProviderName, map[string]any{"api_key": "sk-ant"})
	require.NoError(t, err)
	assert.Equal(t, ProviderName, p.Name())
	_, ok := p.(llm.ToolCaller)
	assert.True(t, ok)
}
