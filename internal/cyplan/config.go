// Package cyplan assembles the CyPlan agent service from its options.
package cyplan

import (
	"fmt"

	agentopts "github.com/kart-io/cyplan/pkg/options/agent"
	cacheopts "github.com/kart-io/cyplan/pkg/options/cache"
	dbopts "github.com/kart-io/cyplan/pkg/options/database"
	ingestopts "github.com/kart-io/cyplan/pkg/options/ingest"
	llmopts "github.com/kart-io/cyplan/pkg/options/llm"
	logopts "github.com/kart-io/cyplan/pkg/options/logger"
	middlewareopts "github.com/kart-io/cyplan/pkg/options/middleware"
	httpopts "github.com/kart-io/cyplan/pkg/options/server/http"
	tracingopts "github.com/kart-io/cyplan/pkg/options/tracing"
	vectoropts "github.com/kart-io/cyplan/pkg/options/vector"
)

// Name is the name of the application.
const Name = "cyplan-agent"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions       *httpopts.Options
	LogOptions        *logopts.Options
	TracingOptions    *tracingopts.Options
	DatabaseOptions   *dbopts.Options
	CacheOptions      *cacheopts.Options
	ChatOptions       *llmopts.ProviderOptions
	EmbeddingOptions  *llmopts.ProviderOptions
	VectorOptions     *vectoropts.Options
	IngestOptions     *ingestopts.Options
	AgentOptions      *agentopts.Options
	MiddlewareOptions *middlewareopts.Options
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  Listen: %s\n", cfg.HTTPOptions.Addr)
	fmt.Printf("  Database: %s\n", cfg.DatabaseOptions.Driver)
	fmt.Printf("  Chat: %s (%s)\n", cfg.ChatOptions.Provider, cfg.ChatOptions.Model)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model)
	fmt.Printf("  Vector index: %s\n", cfg.VectorOptions.Backend)
}
