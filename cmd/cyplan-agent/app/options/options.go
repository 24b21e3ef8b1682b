// Package options contains flags and options for initializing the CyPlan agent server.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/cyplan/internal/cyplan"
	"github.com/kart-io/cyplan/pkg/app/cliflag"
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

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// TracingOptions contains OpenTelemetry configuration.
	TracingOptions *tracingopts.Options `json:"tracing" mapstructure:"tracing"`

	// DatabaseOptions contains the relational store configuration.
	DatabaseOptions *dbopts.Options `json:"database" mapstructure:"database"`

	// CacheOptions contains the redis cache configuration.
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// ChatOptions contains chat provider configuration.
	ChatOptions *llmopts.ProviderOptions `json:"llm" mapstructure:"llm"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// VectorOptions contains the document index configuration.
	VectorOptions *vectoropts.Options `json:"vector" mapstructure:"vector"`

	// IngestOptions contains document ingestion configuration.
	IngestOptions *ingestopts.Options `json:"ingest" mapstructure:"ingest"`

	// AgentOptions contains agent and summary configuration.
	AgentOptions *agentopts.Options `json:"agent" mapstructure:"agent"`

	// MiddlewareOptions contains HTTP middleware configuration.
	MiddlewareOptions *middlewareopts.Options `json:"middleware" mapstructure:"middleware"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:       httpopts.NewOptions(),
		LogOptions:        logopts.NewOptions(),
		TracingOptions:    tracingopts.NewOptions(),
		DatabaseOptions:   dbopts.NewOptions(),
		CacheOptions:      cacheopts.NewOptions(),
		ChatOptions:       llmopts.NewChatOptions(),
		EmbeddingOptions:  llmopts.NewEmbeddingOptions(),
		VectorOptions:     vectoropts.NewOptions(),
		IngestOptions:     ingestopts.NewOptions(),
		AgentOptions:      agentopts.NewOptions(),
		MiddlewareOptions: middlewareopts.NewOptions(),
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	o.DatabaseOptions.AddFlags(fss.FlagSet("database"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.ChatOptions.AddFlags(fss.FlagSet("llm"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"))
	o.VectorOptions.AddFlags(fss.FlagSet("vector"))
	o.IngestOptions.AddFlags(fss.FlagSet("ingest"))
	o.AgentOptions.AddFlags(fss.FlagSet("agent"))
	o.MiddlewareOptions.AddFlags(fss.FlagSet("middleware"))
	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.HTTPOptions.Complete(); err != nil {
		return err
	}
	if err := o.LogOptions.Complete(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := o.TracingOptions.Complete(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if err := o.DatabaseOptions.Complete(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := o.CacheOptions.Complete(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := o.ChatOptions.Complete(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.VectorOptions.Complete(); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	if err := o.IngestOptions.Complete(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if err := o.AgentOptions.Complete(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	return o.MiddlewareOptions.Complete()
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)
	errs = append(errs, o.DatabaseOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.ChatOptions.Validate()...)
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.VectorOptions.Validate()...)
	errs = append(errs, o.IngestOptions.Validate()...)
	errs = append(errs, o.AgentOptions.Validate()...)
	errs = append(errs, o.MiddlewareOptions.Validate()...)

	return utilerrors.NewAggregate(errs)
}

// Config builds a cyplan.Config based on ServerOptions.
func (o *ServerOptions) Config() (*cyplan.Config, error) {
	return &cyplan.Config{
		HTTPOptions:       o.HTTPOptions,
		LogOptions:        o.LogOptions,
		TracingOptions:    o.TracingOptions,
		DatabaseOptions:   o.DatabaseOptions,
		CacheOptions:      o.CacheOptions,
		ChatOptions:       o.ChatOptions,
		EmbeddingOptions:  o.EmbeddingOptions,
		VectorOptions:     o.VectorOptions,
		IngestOptions:     o.IngestOptions,
		AgentOptions:      o.AgentOptions,
		MiddlewareOptions: o.MiddlewareOptions,
	}, nil
}
