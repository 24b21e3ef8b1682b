package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestRequest struct {
	Library string `json:"library" validate:"required,library"`
	Source  string `json:"source" validate:"notblank"`
}

func TestCustomRules(t *testing.T) {
	tests := []struct {
		name    string
		req     ingestRequest
		wantErr string
	}{
		{"valid", ingestRequest{Library: "nist-csf_v2.0", Source: "a.pdf"}, ""},
		{"missing library", ingestRequest{Source: "a.pdf"}, "library"},
		{"path traversal", ingestRequest{Library: "a..b", Source: "a.pdf"}, "library"},
		{"slash", ingestRequest{Library: "a/b", Source: "a.pdf"}, "library"},
		{"blank source", ingestRequest{Library: "lib", Source: "   "}, "source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verrs := Global().ValidateWithLang(tt.req, LangEN)
			if tt.wantErr == "" {
				assert.Nil(t, verrs)
				return
			}
			require.NotNil(t, verrs)
			assert.Contains(t, verrs.ToMap(), tt.wantErr)
		})
	}
}

func TestTranslatedMessages(t *testing.T) {
	verrs := Global().ValidateWithLang(ingestRequest{Library: "lib", Source: " "}, LangEN)
	require.NotNil(t, verrs)
	assert.Equal(t, "source must not be blank", verrs.First())

	verrs = Global().ValidateWithLang(ingestRequest{Library: "lib", Source: " "}, LangZH)
	require.NotNil(t, verrs)
	assert.Equal(t, "source不能为空", verrs.First())
}

func TestVarThreadID(t *testing.T) {
	assert.NoError(t, Var("thread_0123456789abcdef", TagThreadID))
	assert.Error(t, Var("thread_xyz", TagThreadID))
}

func TestStructReturnsNilOnSuccess(t *testing.T) {
	assert.NoError(t, Struct(ingestRequest{Library: "lib", Source: "s"}))
	err := Struct(ingestRequest{})
	require.Error(t, err)
	var verrs *ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}
