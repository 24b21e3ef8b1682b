// Package options contains flags and options of the document ingestion CLI.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/cyplan/pkg/app/cliflag"
	cacheopts "github.com/kart-io/cyplan/pkg/options/cache"
	dbopts "github.com/kart-io/cyplan/pkg/options/database"
	ingestopts "github.com/kart-io/cyplan/pkg/options/ingest"
	llmopts "github.com/kart-io/cyplan/pkg/options/llm"
	logopts "github.com/kart-io/cyplan/pkg/options/logger"
	vectoropts "github.com/kart-io/cyplan/pkg/options/vector"
	"github.com/kart-io/cyplan/pkg/utils/validator"
)

// DefaultLibrary is the library documents go to when none is named.
const DefaultLibrary = "cybersecurity_frameworks"

// IngestOptions contains the configuration of the ingestion CLI.
type IngestOptions struct {
	LogOptions       *logopts.Options         `json:"log" mapstructure:"log"`
	DatabaseOptions  *dbopts.Options          `json:"database" mapstructure:"database"`
	CacheOptions     *cacheopts.Options       `json:"cache" mapstructure:"cache"`
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`
	VectorOptions    *vectoropts.Options      `json:"vector" mapstructure:"vector"`
	IngestOptions    *ingestopts.Options      `json:"ingest" mapstructure:"ingest"`

	// Library is the target library.
	Library string `json:"library" mapstructure:"library"`
	// Dir ingests every supported file of a directory tree.
	Dir string `json:"dir" mapstructure:"dir"`
	// List prints the known libraries.
	List bool `json:"-" mapstructure:"-"`
	// Delete removes the library.
	Delete bool `json:"-" mapstructure:"-"`
	// TestSearch runs sample queries against the library after ingestion.
	TestSearch bool `json:"-" mapstructure:"-"`
}

// NewIngestOptions creates IngestOptions with defaults.
func NewIngestOptions() *IngestOptions {
	logOpts := logopts.NewOptions()
	logOpts.Level = "WARN"
	return &IngestOptions{
		LogOptions:       logOpts,
		DatabaseOptions:  dbopts.NewOptions(),
		CacheOptions:     cacheopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		VectorOptions:    vectoropts.NewOptions(),
		IngestOptions:    ingestopts.NewOptions(),
		Library:          DefaultLibrary,
	}
}

// Flags returns flags grouped by section.
func (o *IngestOptions) Flags() (fss cliflag.NamedFlagSets) {
	fs := fss.FlagSet("ingestion")
	fs.StringVarP(&o.Library, "library", "l", o.Library, "Target library name.")
	fs.StringVarP(&o.Dir, "dir", "d", o.Dir, "Ingest every supported file under this directory.")
	fs.BoolVar(&o.List, "list", o.List, "List libraries and exit.")
	fs.BoolVar(&o.Delete, "delete", o.Delete, "Delete the library and exit.")
	fs.BoolVar(&o.TestSearch, "test-search", o.TestSearch, "Run sample queries against the library afterwards.")

	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.DatabaseOptions.AddFlags(fss.FlagSet("database"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"))
	o.VectorOptions.AddFlags(fss.FlagSet("vector"))
	o.IngestOptions.AddFlags(fss.FlagSet("ingest"))
	return fss
}

// Complete completes all the required options.
func (o *IngestOptions) Complete() error {
	if err := o.LogOptions.Complete(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := o.DatabaseOptions.Complete(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := o.CacheOptions.Complete(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.VectorOptions.Complete(); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	return o.IngestOptions.Complete()
}

// Validate checks the options.
func (o *IngestOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.DatabaseOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.VectorOptions.Validate()...)
	errs = append(errs, o.IngestOptions.Validate()...)
	if !o.List {
		if err := validator.Var(o.Library, "required,library"); err != nil {
			errs = append(errs, fmt.Errorf("invalid library %q: %w", o.Library, err))
		}
	}
	if o.List && o.Delete {
		errs = append(errs, fmt.Errorf("--list and --delete are mutually exclusive"))
	}
	return utilerrors.NewAggregate(errs)
}
