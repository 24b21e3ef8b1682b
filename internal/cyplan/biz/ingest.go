package biz

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/cyplan/internal/cyplan/metrics"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/internal/pkg/docutil"
	"github.com/kart-io/cyplan/pkg/infra/pool"
	"github.com/kart-io/cyplan/pkg/utils/errors"
	"github.com/kart-io/cyplan/pkg/utils/validator"
)

// StatusSuccess is the status of a successfully ingested document.
const StatusSuccess = "success"

// IngestResult describes one ingested document.
type IngestResult struct {
	Status     string `json:"status"`
	Library    string `json:"library"`
	File       string `json:"file"`
	Chunks     int    `json:"chunks"`
	TotalChars int    `json:"total_chars"`
}

// FileError records why a file of a batch failed.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// BatchResult tallies a batch ingestion. Successful+Failed always equals the
// number of input paths.
type BatchResult struct {
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Results    []IngestResult `json:"results"`
	Errors     []FileError    `json:"errors"`
}

// IngestorConfig configures an Ingestor.
type IngestorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// Workers bounds the files processed concurrently by IngestBatch.
	Workers int
	// Extensions filters IngestDirectory, without leading dots.
	Extensions []string
	// Cache is cleared whenever documents are added. May be nil.
	Cache *ContextCache
}

// Ingestor extracts, splits, embeds and indexes documents into libraries.
type Ingestor struct {
	index      store.VectorIndex
	extractor  *Extractor
	splitter   *Splitter
	pool       *pool.Pool
	extensions []string
	cache      *ContextCache
	metrics    *metrics.Metrics
}

// NewIngestor creates an Ingestor backed by an ants worker pool. Close
// releases the pool.
func NewIngestor(index store.VectorIndex, extractor *Extractor, cfg IngestorConfig) (*Ingestor, error) {
	if index == nil {
		return nil, errors.ErrEmbeddingNotConfigured.WithMessage("vector index is not available")
	}
	if extractor == nil {
		extractor = NewExtractor(PlainTextPDF{})
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	p, err := pool.New("ingest", workers)
	if err != nil {
		return nil, fmt.Errorf("create ingest pool: %w", err)
	}

	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = SupportedExtensions
	}
	return &Ingestor{
		index:      index,
		extractor:  extractor,
		splitter:   NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		pool:       p,
		extensions: exts,
		cache:      cfg.Cache,
		metrics:    metrics.Default(),
	}, nil
}

// Close releases the worker pool.
func (i *Ingestor) Close() {
	i.pool.Release()
}

type ingestRequest struct {
	Library string `validate:"required,library"`
	Source  string `validate:"required,notblank"`
}

func validateIngest(library, source string) error {
	if err := validator.Struct(&ingestRequest{Library: library, Source: source}); err != nil {
		return errors.ErrInvalidIngestInput.WithMessage(err.Error())
	}
	return nil
}

// IngestText splits text into chunks and indexes them under library. The
// chunk ids derive from library and source, so re-ingesting a source
// overwrites its chunks.
func (i *Ingestor) IngestText(ctx context.Context, library, source, text string) (*IngestResult, error) {
	if err := validateIngest(library, source); err != nil {
		return nil, err
	}
	res, err := i.ingestText(ctx, library, source, text)
	i.metrics.RecordIngest(chunksOf(res), err)
	if err == nil {
		i.cache.Invalidate(ctx)
	}
	return res, err
}

func (i *Ingestor) ingestText(ctx context.Context, library, source, text string) (*IngestResult, error) {
	parts, err := i.splitter.Split(text)
	if err != nil {
		return nil, errors.ErrIngestFailed.WithCause(fmt.Errorf("split %s: %w", source, err))
	}
	if len(parts) == 0 {
		return nil, errors.ErrInvalidIngestInput.WithMessagef("%s contains no text", source)
	}

	chunks := make([]store.Chunk, len(parts))
	for n, p := range parts {
		chunks[n] = store.Chunk{Source: source, Index: n, TotalChunks: len(parts), Content: p}
	}
	if err := i.index.Add(ctx, library, chunks); err != nil {
		return nil, fmt.Errorf("index %s: %w", source, err)
	}

	logger.Infow("document ingested", "library", library, "source", source, "chunks", len(chunks))
	return &IngestResult{
		Status:     StatusSuccess,
		Library:    library,
		File:       source,
		Chunks:     len(chunks),
		TotalChars: len([]rune(text)),
	}, nil
}

func chunksOf(r *IngestResult) int {
	if r == nil {
		return 0
	}
	return r.Chunks
}

// IngestFile extracts the file at path and ingests it with its base name as
// the source.
func (i *Ingestor) IngestFile(ctx context.Context, library, path string) (*IngestResult, error) {
	res, err := i.ingestFile(ctx, library, path)
	if err == nil {
		i.cache.Invalidate(ctx)
	}
	return res, err
}

func (i *Ingestor) ingestFile(ctx context.Context, library, path string) (*IngestResult, error) {
	source := filepath.Base(path)
	if err := validateIngest(library, source); err != nil {
		return nil, err
	}
	if !slices.Contains(SupportedExtensions, Ext(path)) {
		err := errors.ErrUnsupportedFileType.WithMessagef("unsupported file type %q", filepath.Ext(path))
		i.metrics.RecordIngest(0, err)
		return nil, err
	}

	text, err := i.extractor.ExtractText(ctx, path)
	if err != nil {
		i.metrics.RecordIngest(0, err)
		return nil, err
	}
	res, err := i.ingestText(ctx, library, source, text)
	i.metrics.RecordIngest(chunksOf(res), err)
	return res, err
}

// IngestBatch ingests every path on the worker pool. A failing file never
// stops the batch; results and errors keep the input order.
func (i *Ingestor) IngestBatch(ctx context.Context, library string, paths []string) *BatchResult {
	type outcome struct {
		res *IngestResult
		err error
	}
	outcomes := make([]outcome, len(paths))
	for n := range outcomes {
		outcomes[n].err = errors.ErrIngestFailed.WithMessage("file was not processed")
	}

	i.pool.ForEach(ctx, len(paths), func(ctx context.Context, n int) {
		res, err := i.ingestFile(ctx, library, paths[n])
		outcomes[n] = outcome{res: res, err: err}
	})

	batch := &BatchResult{Results: []IngestResult{}, Errors: []FileError{}}
	for n, o := range outcomes {
		if o.err != nil {
			batch.Failed++
			batch.Errors = append(batch.Errors, FileError{File: paths[n], Error: o.err.Error()})
			continue
		}
		batch.Successful++
		batch.Results = append(batch.Results, *o.res)
	}

	if batch.Successful > 0 {
		i.cache.Invalidate(ctx)
	}

	logger.Infow("batch ingestion finished",
		"library", library, "files", len(paths),
		"successful", batch.Successful, "failed", batch.Failed)
	return batch
}

// IngestDirectory ingests every file under dir whose extension is allowed.
func (i *Ingestor) IngestDirectory(ctx context.Context, library, dir string) (*BatchResult, error) {
	if err := validateIngest(library, dir); err != nil {
		return nil, err
	}
	if !docutil.DirExists(dir) {
		return nil, errors.ErrInvalidIngestInput.WithMessagef("directory %s does not exist", dir)
	}

	exts := make([]string, len(i.extensions))
	for n, e := range i.extensions {
		exts[n] = "." + strings.TrimPrefix(e, ".")
	}
	paths, err := docutil.FindFiles(dir, exts)
	if err != nil {
		return nil, errors.ErrIngestFailed.WithCause(err)
	}
	logger.Infow("ingesting directory", "library", library, "dir", dir, "files", len(paths))
	return i.IngestBatch(ctx, library, paths), nil
}

// Index returns the vector index documents are written to.
func (i *Ingestor) Index() store.VectorIndex {
	return i.index
}
