package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpopts "github.com/kart-io/cyplan/pkg/options/server/http"
)

type mockRunnable struct {
	name     string
	startErr error
	stopErr  error
	log      *[]string
	mu       *sync.Mutex
}

func (r *mockRunnable) Name() string { return r.name }

func (r *mockRunnable) Start(context.Context) error {
	r.record("start " + r.name)
	return r.startErr
}

func (r *mockRunnable) Stop(context.Context) error {
	r.record("stop " + r.name)
	return r.stopErr
}

func (r *mockRunnable) record(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.log = append(*r.log, s)
}

func newMocks(names ...string) ([]*mockRunnable, *[]string) {
	log := &[]string{}
	mu := &sync.Mutex{}
	out := make([]*mockRunnable, len(names))
	for i, n := range names {
		out[i] = &mockRunnable{name: n, log: log, mu: mu}
	}
	return out, log
}

func TestManagerOrder(t *testing.T) {
	mocks, log := newMocks("a", "b")
	m := NewManager(time.Second, mocks[0], mocks[1])

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
	require.NoError(t, m.Stop(context.Background()))

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, *log)
}

func TestManagerStartRollsBack(t *testing.T) {
	mocks, log := newMocks("a", "b")
	mocks[1].startErr = errors.New("port in use")
	m := NewManager(time.Second)
	m.Add(mocks[0])
	m.Add(mocks[1])

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, *log)
}

func TestManagerStopAggregates(t *testing.T) {
	mocks, _ := newMocks("a", "b")
	mocks[0].stopErr = errors.New("a failed")
	mocks[1].stopErr = errors.New("b failed")
	m := NewManager(time.Second, mocks[0], mocks[1])
	require.NoError(t, m.Start(context.Background()))

	err := m.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b failed")
}

func TestManagerRunStopsOnCancel(t *testing.T) {
	mocks, log := newMocks("a")
	m := NewManager(time.Second, mocks[0])

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		mocks[0].mu.Lock()
		defer mocks[0].mu.Unlock()
		return len(*log) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []string{"start a", "stop a"}, *log)
}

func TestHTTPServerServes(t *testing.T) {
	opts := httpopts.NewOptions()
	opts.Addr = "127.0.0.1:0"
	opts.Mode = gin.TestMode
	s := NewHTTPServer(opts)
	s.Engine().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop(context.Background()) }()
	assert.Error(t, s.Start(context.Background()))

	resp, err := http.Get("http://" + s.Addr() + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, opts.Addr, s.Addr())
}
