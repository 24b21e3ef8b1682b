package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/pkg/llm"
)

func newSeededFactory(t *testing.T) store.Factory {
	t.Helper()
	dsn := fmt.Sprintf("file:biz_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	f := store.NewFactory(db)
	require.NoError(t, f.AutoMigrate(context.Background()))
	_, err = f.Ontology().Seed(context.Background())
	require.NoError(t, err)
	return f
}

// fakeIndex keeps chunks in memory and returns canned search hits.
type fakeIndex struct {
	mu        sync.Mutex
	added     map[string][]store.Chunk
	hits      []store.Hit
	searchErr error
	addErr    error
	searches  int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{added: map[string][]store.Chunk{}}
}

func (f *fakeIndex) Add(_ context.Context, library string, chunks []store.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added[library] = append(f.added[library], chunks...)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, k int, _ string) ([]store.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f *fakeIndex) ListLibraries(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for lib := range f.added {
		out = append(out, lib)
	}
	return out, nil
}

func (f *fakeIndex) DeleteLibrary(_ context.Context, library string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.added[library]
	delete(f.added, library)
	return ok, nil
}

func (f *fakeIndex) chunks(library string) []store.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.added[library]
}

// fakeChat answers Generate with a fixed reply and records the prompts.
type fakeChat struct {
	reply   string
	err     error
	prompts []string
	opts    llm.CallOptions
}

func (f *fakeChat) Chat(_ context.Context, messages []llm.Message, opts ...llm.CallOption) (string, error) {
	f.opts = llm.ApplyCallOptions(opts...)
	if len(messages) > 0 {
		f.prompts = append(f.prompts, messages[len(messages)-1].Content)
	}
	return f.reply, f.err
}

func (f *fakeChat) Generate(_ context.Context, prompt, _ string, opts ...llm.CallOption) (string, error) {
	f.opts = llm.ApplyCallOptions(opts...)
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func (f *fakeChat) Name() string { return "fake" }
