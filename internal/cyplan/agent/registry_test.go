package agent

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuildsOncePerThread(t *testing.T) {
	var builds atomic.Int32
	r := NewRegistry(func() (*Graph, error) {
		builds.Add(1)
		return NewGraph(&scriptedModel{}, nil, nil, DefaultGraphConfig()), nil
	})

	var wg sync.WaitGroup
	graphs := make([]*Graph, 8)
	for i := range graphs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := r.Get("thread_a")
			require.NoError(t, err)
			graphs[i] = g
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, g := range graphs {
		assert.Same(t, graphs[0], g)
	}

	_, err := r.Get("thread_b")
	require.NoError(t, err)
	assert.Equal(t, []string{"thread_a", "thread_b"}, r.IDs())
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Has("thread_b"))
	assert.False(t, r.Has("thread_c"))
}

func TestRegistryDoesNotCacheFailures(t *testing.T) {
	boom := errors.New("no model")
	r := NewRegistry(func() (*Graph, error) { return nil, boom })

	_, err := r.Get("thread_a")
	assert.ErrorIs(t, err, boom)
	assert.False(t, r.Has("thread_a"))
	assert.Zero(t, r.Len())
}
