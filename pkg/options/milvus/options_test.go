package milvusopts

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteAddsDefaultPort(t *testing.T) {
	o := NewOptions()
	o.Address = "milvus.internal"
	require.NoError(t, o.Complete())
	assert.Equal(t, "milvus.internal:19530", o.Address)
	assert.Empty(t, o.Validate())

	o.Address = "10.0.0.7:29530"
	require.NoError(t, o.Complete())
	assert.Equal(t, "10.0.0.7:29530", o.Address)
}

func TestValidate(t *testing.T) {
	o := NewOptions()
	o.Address = ""
	o.Password = "secret"
	o.Timeout = 0
	assert.Len(t, o.Validate(), 3)
}

func TestFlagsUsePrefix(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs, "vector")
	require.NoError(t, fs.Parse([]string{"--vector.milvus.database=cyplan"}))
	assert.Equal(t, "cyplan", o.Database)
}
