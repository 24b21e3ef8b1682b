package agent

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamTokensFlag(t *testing.T) {
	o := NewOptions()
	assert.True(t, o.StreamTokens)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--agent.stream-tokens=false", "--agent.max-rounds=3"}))
	assert.False(t, o.StreamTokens)
	assert.Equal(t, 3, o.MaxRounds)
	assert.Empty(t, o.Validate())
}

func TestValidateRejectsNonPositive(t *testing.T) {
	o := NewOptions()
	o.MaxRounds = 0
	o.HistoryWindow = -1
	assert.Len(t, o.Validate(), 2)
}
