// Package vector provides options for the document vector index.
package vector

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/kart-io/cyplan/pkg/options"
	milvusopts "github.com/kart-io/cyplan/pkg/options/milvus"
)

var _ options.IOptions = (*Options)(nil)

// Supported backends.
const (
	BackendLocal    = "local"
	BackendMilvus   = "milvus"
	BackendPGVector = "pgvector"
)

// Options configures the vector index.
type Options struct {
	// Backend selects local, milvus or pgvector.
	Backend string `json:"backend" mapstructure:"backend"`
	// Path is the directory of the local backend.
	Path string `json:"path" mapstructure:"path"`
	// Collection is the collection (milvus) or table (pgvector) name.
	Collection string `json:"collection" mapstructure:"collection"`
	// Dimension of stored embeddings. Required by milvus and pgvector.
	Dimension int `json:"dimension" mapstructure:"dimension"`
	// TopK is the number of hits used for agent context.
	TopK int `json:"top-k" mapstructure:"top-k"`
	// PGVectorDSN is the postgres DSN of the pgvector backend. Empty reuses database.dsn.
	PGVectorDSN string `json:"-" mapstructure:"pgvector-dsn"`

	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		Backend:    BackendLocal,
		Collection: "library_documents",
		Dimension:  1536,
		TopK:       3,
		Milvus:     milvusopts.NewOptions(),
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "vector."
	fs.StringVar(&o.Backend, p+"backend", o.Backend, "Vector index backend (local, milvus, pgvector).")
	fs.StringVar(&o.Path, p+"path", o.Path, "Directory of the local vector index. Falls back to VECTOR_DB_PATH, then ./vector_db.")
	fs.StringVar(&o.Collection, p+"collection", o.Collection, "Collection or table name.")
	fs.IntVar(&o.Dimension, p+"dimension", o.Dimension, "Embedding dimension.")
	fs.IntVar(&o.TopK, p+"top-k", o.TopK, "Number of document hits added to agent context.")
	fs.StringVar(&o.PGVectorDSN, p+"pgvector-dsn", o.PGVectorDSN, "Postgres DSN for the pgvector backend.")

	if o.Milvus == nil {
		o.Milvus = milvusopts.NewOptions()
	}
	o.Milvus.AddFlags(fs, append(prefixes, "vector")...)
}

// Complete fills defaults.
func (o *Options) Complete() error {
	if o.Path == "" {
		o.Path = os.Getenv("VECTOR_DB_PATH")
	}
	if o.Path == "" {
		o.Path = "./vector_db"
	}
	if o.Milvus == nil {
		o.Milvus = milvusopts.NewOptions()
	}
	return o.Milvus.Complete()
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Backend {
	case BackendLocal:
	case BackendMilvus:
		errs = append(errs, o.Milvus.Validate()...)
	case BackendPGVector:
	default:
		errs = append(errs, fmt.Errorf("vector: unsupported backend %q", o.Backend))
	}
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("vector: collection is required"))
	}
	if o.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("vector: dimension must be positive"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("vector: top-k must be positive"))
	}
	return errs
}
