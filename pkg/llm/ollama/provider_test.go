package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/cyplan/pkg/llm"
	"github.com/kart-io/cyplan/pkg/utils/json"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		out := embedResponse{Model: req.Model}
		for range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{0.5, 0.5})
		}
		require.NoError(t, json.NewEncoder(w).Encode(out))
	}))
	defer srv.Close()

	p, err := llm.NewEmbeddingProvider(ProviderName, map[string]any{"base_url": srv.URL})
	require.NoError(t, err)

	vecs, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)

	one, err := p.EmbedSingle(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, one)
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1]]}`))
	}))
	defer srv.Close()

	p, err := NewEmbeddingProvider(map[string]any{"base_url": srv.URL})
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestNewChatProviderNeedsNoKey(t *testing.T) {
	p, err := llm.NewChatProvider(ProviderName, map[string]any{"model": "llama3.1"})
	require.NoError(t, err)
	assert.Equal(t, ProviderName, p.Name())
	_, ok := p.(llm.ToolCaller)
	assert.True(t, ok)
}
