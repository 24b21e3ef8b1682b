package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kart-io/cyplan/internal/cyplan/agent"
	"github.com/kart-io/cyplan/internal/cyplan/biz"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/pkg/llm"
	errno "github.com/kart-io/cyplan/pkg/utils/errors"
	"github.com/kart-io/cyplan/pkg/utils/json"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// letterEmbedder maps text to letter frequencies.
type letterEmbedder struct{}

func (letterEmbedder) embed(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

func (e letterEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e letterEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (letterEmbedder) Name() string { return "letters" }

// fakeChat answers every prompt with reply.
type fakeChat struct {
	reply string
}

func (f *fakeChat) Chat(context.Context, []llm.Message, ...llm.CallOption) (string, error) {
	return f.reply, nil
}

func (f *fakeChat) Generate(context.Context, string, string, ...llm.CallOption) (string, error) {
	return f.reply, nil
}

func (f *fakeChat) Name() string { return "fake" }

// fixture is a fully wired set of handlers over an in-memory database.
type fixture struct {
	factory   store.Factory
	index     store.VectorIndex
	engine    *gin.Engine
	system    *SystemHandler
	thread    *ThreadHandler
	session   *SessionHandler
	plan      *PlanHandler
	knowledge *KnowledgeHandler
}

type fixtureOptions struct {
	noEmbedder bool
	ready      func(context.Context) error
	maxUpload  int64
	cache      *biz.ContextCache
}

func newFixture(t *testing.T, fo fixtureOptions) *fixture {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:handler_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	factory := store.NewFactory(db)
	require.NoError(t, factory.AutoMigrate(ctx))
	_, err = factory.Ontology().Seed(ctx)
	require.NoError(t, err)

	f := &fixture{factory: factory}
	var ingestor *biz.Ingestor
	if !fo.noEmbedder {
		index, err := store.NewLocalIndex(ctx, db, letterEmbedder{})
		require.NoError(t, err)
		f.index = index
		ingestor, err = biz.NewIngestor(index, biz.NewExtractor(biz.PlainTextPDF{}), biz.IngestorConfig{
			ChunkSize:    200,
			ChunkOverlap: 20,
			Workers:      2,
			Cache:        fo.cache,
		})
		require.NoError(t, err)
		t.Cleanup(ingestor.Close)
	}

	chat := &fakeChat{reply: "Summary: protect the crown jewels."}
	knowledge := biz.NewKnowledgeEngine(factory.Ontology(), f.index, fo.cache)
	risk := biz.NewRiskScorer(factory.Ontology())
	summarizer := biz.NewPlanSummarizer(factory.Plans(), factory.Ontology(), chat, biz.DefaultSummaryConfig())
	plans := biz.NewPlanService(factory.Plans(), factory.Ontology(), summarizer)

	registry := agent.NewRegistry(func() (*agent.Graph, error) {
		return nil, errno.ErrLLMNotConfigured
	})
	fallback := agent.NewFallbackAgent(agent.FallbackDeps{
		Factory:    factory,
		Summarizer: summarizer,
		Risk:       risk,
		Knowledge:  knowledge,
	}, agent.DefaultFallbackConfig())

	f.system = NewSystemHandler("", fo.ready)
	f.thread = NewThreadHandler(agent.NewConversation(factory, registry))
	f.session = NewSessionHandler(fallback, LLMInfo{Provider: "fake", Model: "none"})
	f.plan = NewPlanHandler(plans)
	f.knowledge = NewKnowledgeHandler(knowledge, risk, ingestor, UploadConfig{MaxSize: fo.maxUpload, Dir: t.TempDir()})

	e := gin.New()
	e.GET("/", f.system.Root)
	e.GET("/health", f.system.Health)
	e.GET("/ready", f.system.Ready)
	e.GET("/info", f.system.Info)
	e.GET("/assistants/:id", f.system.Assistant)

	e.POST("/threads", f.thread.CreateThread)
	e.POST("/threads/search", f.thread.SearchThreads)
	e.GET("/threads/:id/history", f.thread.History)
	e.POST("/threads/:id/runs/stream", f.thread.Run)

	e.POST("/api/sessions", f.session.Start)
	e.POST("/api/sessions/:id/messages", f.session.Message)
	e.GET("/api/sessions/:id/messages", f.session.History)

	e.POST("/api/plans", f.plan.Create)
	e.GET("/api/plans/:id", f.plan.Get)
	e.POST("/api/plans/:id/responses", f.plan.SubmitResponse)
	e.POST("/api/plans/:id/summary", f.plan.Summary)
	e.GET("/api/frameworks/:id/prompts", f.plan.Prompts)
	e.POST("/api/responses/validate", f.plan.ValidateResponse)

	e.GET("/api/knowledge", f.knowledge.All)
	e.POST("/api/knowledge/search", f.knowledge.Search)
	e.GET("/api/frameworks", f.knowledge.Framework)
	e.GET("/api/frameworks/:id", f.knowledge.Framework)
	e.POST("/api/risk/assess", f.knowledge.AssessRisk)
	e.POST("/api/ingest", f.knowledge.Upload)
	e.POST("/api/ingest/directory", f.knowledge.IngestDirectory)
	e.GET("/api/libraries", f.knowledge.Libraries)
	e.DELETE("/api/libraries/:name", f.knowledge.DeleteLibrary)
	e.POST("/api/documents/search", f.knowledge.SearchDocuments)
	f.engine = e
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

// envelope is the enveloped reply of the /api routes.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	env := decodeEnvelope(t, w)
	require.Zero(t, env.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, v), string(env.Data))
}
