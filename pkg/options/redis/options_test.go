package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/cyplan/pkg/utils/json"
)

func TestPasswordRedacted(t *testing.T) {
	opts := NewOptions()
	opts.Password = "supersecret"

	data, err := json.Marshal(opts)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "supersecret")
	assert.Contains(t, string(data), redactedPassword)
	assert.NotContains(t, opts.String(), "supersecret")

	opts.Password = ""
	data, err = json.Marshal(opts)
	require.NoError(t, err)
	assert.NotContains(t, string(data), redactedPassword)
}

func TestCompleteReadsPasswordEnv(t *testing.T) {
	t.Setenv(URLEnv, "")
	t.Setenv(PasswordEnv, "from-env")
	opts := NewOptions()
	require.NoError(t, opts.Complete())
	assert.Equal(t, "from-env", opts.Password)

	opts.Password = "explicit"
	require.NoError(t, opts.Complete())
	assert.Equal(t, "explicit", opts.Password)
}

func TestValidate(t *testing.T) {
	assert.Empty(t, NewOptions().Validate())

	opts := NewOptions()
	opts.Port = 70000
	opts.Host = ""
	assert.Len(t, opts.Validate(), 2)
	assert.Equal(t, "127.0.0.1:6379", NewOptions().Addr())
}

func TestCompleteReadsURL(t *testing.T) {
	t.Setenv(URLEnv, "redis://:pw@cache.internal:6380/2")
	t.Setenv(PasswordEnv, "")

	opts := NewOptions()
	require.NoError(t, opts.Complete())
	assert.Equal(t, "cache.internal:6380", opts.Addr())
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.Database)

	opts = NewOptions()
	opts.Host = "explicit"
	require.NoError(t, opts.Complete())
	assert.Equal(t, "explicit:6379", opts.Addr())

	t.Setenv(URLEnv, "http://cache")
	assert.Error(t, NewOptions().Complete())
}
