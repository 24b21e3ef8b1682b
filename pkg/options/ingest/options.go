// Package ingest provides options for the document ingestion pipeline.
package ingest

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kart-io/cyplan/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options configures splitting and the ingestion worker pool.
type Options struct {
	ChunkSize    int      `json:"chunk-size" mapstructure:"chunk-size"`
	ChunkOverlap int      `json:"chunk-overlap" mapstructure:"chunk-overlap"`
	Workers      int      `json:"workers" mapstructure:"workers"`
	Extensions   []string `json:"extensions" mapstructure:"extensions"`
	// MaxUploadSize bounds multipart uploads, in bytes.
	MaxUploadSize int64 `json:"max-upload-size" mapstructure:"max-upload-size"`
	// UploadDir receives uploaded files before extraction. Empty uses the OS temp dir.
	UploadDir string `json:"upload-dir" mapstructure:"upload-dir"`
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		Workers:       4,
		Extensions:    []string{"pdf", "txt", "md", "markdown", "docx"},
		MaxUploadSize: 32 << 20,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "ingest."
	fs.IntVar(&o.ChunkSize, p+"chunk-size", o.ChunkSize, "Chunk size in characters. Falls back to CHUNK_SIZE, then 1000.")
	fs.IntVar(&o.ChunkOverlap, p+"chunk-overlap", o.ChunkOverlap, "Chunk overlap in characters. Falls back to CHUNK_OVERLAP, then 200.")
	fs.IntVar(&o.Workers, p+"workers", o.Workers, "Number of files extracted and embedded concurrently.")
	fs.StringSliceVar(&o.Extensions, p+"extensions", o.Extensions, "File extensions accepted by directory ingestion.")
	fs.Int64Var(&o.MaxUploadSize, p+"max-upload-size", o.MaxUploadSize, "Maximum upload size in bytes.")
	fs.StringVar(&o.UploadDir, p+"upload-dir", o.UploadDir, "Directory for uploaded files.")
}

// Complete fills chunking defaults from CHUNK_SIZE and CHUNK_OVERLAP.
func (o *Options) Complete() error {
	var err error
	if o.ChunkSize == 0 {
		if o.ChunkSize, err = envInt("CHUNK_SIZE", 1000); err != nil {
			return err
		}
	}
	if o.ChunkOverlap == 0 {
		if o.ChunkOverlap, err = envInt("CHUNK_OVERLAP", 200); err != nil {
			return err
		}
	}
	for i, ext := range o.Extensions {
		o.Extensions[i] = strings.TrimPrefix(strings.ToLower(ext), ".")
	}
	if o.UploadDir == "" {
		o.UploadDir = os.TempDir()
	}
	return nil
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest: chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest: chunk-overlap must be in [0, chunk-size)"))
	}
	if o.Workers <= 0 {
		errs = append(errs, fmt.Errorf("ingest: workers must be positive"))
	}
	if len(o.Extensions) == 0 {
		errs = append(errs, fmt.Errorf("ingest: at least one extension is required"))
	}
	return errs
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("ingest: invalid %s: %w", key, err)
	}
	return n, nil
}
