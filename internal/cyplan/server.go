package cyplan

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/cyplan/internal/cyplan/agent"
	"github.com/kart-io/cyplan/internal/cyplan/biz"
	"github.com/kart-io/cyplan/internal/cyplan/handler"
	"github.com/kart-io/cyplan/internal/cyplan/metrics"
	"github.com/kart-io/cyplan/internal/cyplan/router"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/pkg/component/database"
	"github.com/kart-io/cyplan/pkg/infra/app"
	"github.com/kart-io/cyplan/pkg/infra/server"
	"github.com/kart-io/cyplan/pkg/infra/tracing"
	"github.com/kart-io/cyplan/pkg/llm"
	errno "github.com/kart-io/cyplan/pkg/utils/errors"
)

// Server represents the CyPlan agent server.
type Server struct {
	srv     *server.Manager
	cleanup closers
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (s *Server, err error) {
	printBanner(cfg)

	var cleanup closers
	defer func() {
		if err != nil {
			cleanup.run()
		}
	}()

	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.Version())
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting cyplan agent service...")

	// 2. 初始化链路追踪
	if cfg.TracingOptions.ServiceName == "" {
		cfg.TracingOptions.ServiceName = Name
	}
	if cfg.TracingOptions.ServiceVersion == "" {
		cfg.TracingOptions.ServiceVersion = app.Version()
	}
	tp, err := tracing.NewProvider(cfg.TracingOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	cleanup.add(func() { _ = tp.Shutdown(context.Background()) })
	logger.Infow("Tracing initialized", "enabled", tp.Enabled())

	// 3. 初始化数据库
	dbClient, err := database.New(ctx, cfg.DatabaseOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	cleanup.add(func() { _ = dbClient.Close() })
	factory := store.NewFactory(dbClient.DB())
	if cfg.DatabaseOptions.AutoMigrate {
		if err := factory.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("Database migration completed")
	}
	if cfg.DatabaseOptions.Seed {
		seeded, err := factory.Ontology().Seed(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to seed ontology: %w", err)
		}
		logger.Infow("Ontology ready", "seeded", seeded)
	}

	// 4. 初始化 Redis 缓存
	rdb := OpenRedis(ctx, cfg.CacheOptions)
	if rdb != nil {
		cleanup.add(func() { _ = rdb.Close() })
	}

	// 5. 初始化 LLM 供应商
	chat, err := NewChatModel(cfg.ChatOptions)
	if err != nil {
		return nil, err
	}
	embedder, err := NewEmbedder(cfg.EmbeddingOptions, rdb, cfg.CacheOptions)
	if err != nil {
		return nil, err
	}

	// 6. 初始化向量索引
	index, closeIndex, err := OpenVectorIndex(ctx, VectorDeps{
		Options:  cfg.VectorOptions,
		Database: cfg.DatabaseOptions,
		DB:       dbClient,
		Embedder: embedder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	cleanup.add(closeIndex)

	// 7. 初始化 Biz 层
	agentOpts := cfg.AgentOptions
	contextCache := NewContextCache(rdb, cfg.CacheOptions)
	knowledge := biz.NewKnowledgeEngine(factory.Ontology(), index, contextCache)
	risk := biz.NewRiskScorer(factory.Ontology())
	summarizer := biz.NewPlanSummarizer(factory.Plans(), factory.Ontology(), chat, biz.SummaryConfig{
		Temperature: agentOpts.SummaryTemperature,
		MaxTokens:   agentOpts.SummaryMaxTokens,
		Timeout:     agentOpts.ModelTimeout,
	})
	plans := biz.NewPlanService(factory.Plans(), factory.Ontology(), summarizer)

	var ingestor *biz.Ingestor
	if index != nil {
		ingestor, err = biz.NewIngestor(index, biz.NewExtractor(biz.PlainTextPDF{}), biz.IngestorConfig{
			ChunkSize:    cfg.IngestOptions.ChunkSize,
			ChunkOverlap: cfg.IngestOptions.ChunkOverlap,
			Workers:      cfg.IngestOptions.Workers,
			Extensions:   cfg.IngestOptions.Extensions,
			Cache:        contextCache,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ingestor: %w", err)
		}
		cleanup.add(ingestor.Close)
	}
	logger.Infow("Business layer initialized", "vector_search", knowledge.VectorAvailable())

	// 8. 初始化 Agent
	tools := agent.NewTools(agent.ToolDeps{
		Knowledge:       knowledge,
		Summarizer:      summarizer,
		Risk:            risk,
		UseVectorSearch: agentOpts.UseVectorSearch,
	})
	toolCaller, _ := chat.(llm.ToolCaller)
	registry := agent.NewRegistry(func() (*agent.Graph, error) {
		if toolCaller == nil {
			return nil, errno.ErrLLMNotConfigured
		}
		return agent.NewGraph(toolCaller, knowledge, tools, agent.GraphConfig{
			MaxRounds:       agentOpts.MaxRounds,
			ModelTimeout:    agentOpts.ModelTimeout,
			ContextChars:    agentOpts.ContextChars,
			Temperature:     agentOpts.Temperature,
			UseVectorSearch: agentOpts.UseVectorSearch,
			StreamTokens:    agentOpts.StreamTokens,
		}), nil
	})
	conversation := agent.NewConversation(factory, registry)
	fallback := agent.NewFallbackAgent(agent.FallbackDeps{
		Factory:    factory,
		Summarizer: summarizer,
		Risk:       risk,
		Knowledge:  knowledge,
		Chat:       chat,
	}, agent.FallbackConfig{
		HistoryWindow:   agentOpts.HistoryWindow,
		ContextChars:    agentOpts.SessionContextChars,
		Temperature:     agentOpts.Temperature,
		ModelTimeout:    agentOpts.ModelTimeout,
		UseVectorSearch: agentOpts.UseVectorSearch,
	})
	logger.Infow("Agent initialized", "tool_calling", toolCaller != nil, "max_rounds", agentOpts.MaxRounds)

	// 9. 初始化 Handler 层
	handlers := router.Handlers{
		System:  handler.NewSystemHandler(app.Version(), dbClient.Ping),
		Thread:  handler.NewThreadHandler(conversation),
		Session: handler.NewSessionHandler(fallback, handler.LLMInfo{Provider: cfg.ChatOptions.Provider, Model: cfg.ChatOptions.Model}),
		Plan:    handler.NewPlanHandler(plans),
		Knowledge: handler.NewKnowledgeHandler(knowledge, risk, ingestor, handler.UploadConfig{
			MaxSize: cfg.IngestOptions.MaxUploadSize,
			Dir:     cfg.IngestOptions.UploadDir,
		}),
	}
	logger.Info("Handler layer initialized")

	// 10. 初始化服务器并注册路由
	httpServer := server.NewHTTPServer(cfg.HTTPOptions)
	router.Register(httpServer.Engine(), cfg.MiddlewareOptions, metrics.Default(), handlers)
	serverManager := server.NewManager(cfg.HTTPOptions.ShutdownTimeout, httpServer)

	logger.Info("CyPlan agent service is ready")
	return &Server{srv: serverManager, cleanup: cleanup}, nil
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer s.cleanup.run()
	return s.srv.Run(ctx)
}
