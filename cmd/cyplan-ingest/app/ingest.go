// Package app provides the document ingestion command.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/kart-io/cyplan/cmd/cyplan-ingest/app/options"
	"github.com/kart-io/cyplan/internal/cyplan"
	"github.com/kart-io/cyplan/internal/cyplan/biz"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/pkg/component/database"
	"github.com/kart-io/cyplan/pkg/infra/app"
	dbopts "github.com/kart-io/cyplan/pkg/options/database"
	vectoropts "github.com/kart-io/cyplan/pkg/options/vector"
)

// Name is the name of the command.
const Name = "cyplan-ingest"

const commandDesc = `CyPlan document ingestion

Extracts, splits, embeds and indexes documents into a library of the
CyPlan vector index. Files are given as arguments or found with --dir.

Examples:
  cyplan-ingest --library frameworks docs/nist.pdf docs/iso.docx
  cyplan-ingest --library frameworks --dir ./library
  cyplan-ingest --list
  cyplan-ingest --library frameworks --delete`

// sampleQueries are run by --test-search.
var sampleQueries = []string{
	"NIST Cybersecurity Framework",
	"ISO 27001 controls",
	"adversarial machine learning threats",
}

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	bold     = color.New(color.Bold).SprintFunc()
)

// NewApp creates the ingestion command.
func NewApp() *app.App {
	opts := options.NewIngestOptions()
	return app.NewApp(
		app.WithName(Name),
		app.WithShortDescription("Ingest documents into a CyPlan library"),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithArgsRunFunc(func(args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, opts, args, color.Output)
		}),
	)
}

// Run executes one ingestion command and prints its report to out.
func Run(ctx context.Context, opts *options.IngestOptions, files []string, out io.Writer) error {
	if err := opts.LogOptions.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	rdb := cyplan.OpenRedis(ctx, opts.CacheOptions)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}
	embedder, err := cyplan.NewEmbedder(opts.EmbeddingOptions, rdb, opts.CacheOptions)
	if err != nil {
		return err
	}
	if embedder == nil {
		return fmt.Errorf("embedding provider %q is not configured", opts.EmbeddingOptions.Provider)
	}

	var db *database.Client
	if opts.VectorOptions.Backend == vectoropts.BackendPGVector && opts.VectorOptions.PGVectorDSN == "" &&
		opts.DatabaseOptions.Driver == dbopts.DriverPostgres {
		if db, err = database.New(ctx, opts.DatabaseOptions); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer func() { _ = db.Close() }()
	}

	index, closeIndex, err := cyplan.OpenVectorIndex(ctx, cyplan.VectorDeps{
		Options:  opts.VectorOptions,
		Database: opts.DatabaseOptions,
		DB:       db,
		Embedder: embedder,
	})
	if err != nil {
		return err
	}
	defer closeIndex()

	// Agent servers sharing this redis must not keep serving stale contexts.
	contextCache := cyplan.NewContextCache(rdb, opts.CacheOptions)

	switch {
	case opts.List:
		return listLibraries(ctx, index, out)
	case opts.Delete:
		return deleteLibrary(ctx, index, contextCache, opts.Library, out)
	}

	if opts.Dir == "" && len(files) == 0 {
		return fmt.Errorf("nothing to ingest: pass files or --dir")
	}

	ingestor, err := biz.NewIngestor(index, biz.NewExtractor(biz.PlainTextPDF{}), biz.IngestorConfig{
		ChunkSize:    opts.IngestOptions.ChunkSize,
		ChunkOverlap: opts.IngestOptions.ChunkOverlap,
		Workers:      opts.IngestOptions.Workers,
		Extensions:   opts.IngestOptions.Extensions,
		Cache:        contextCache,
	})
	if err != nil {
		return err
	}
	defer ingestor.Close()

	fmt.Fprintf(out, "Library: %s\n", bold(opts.Library))
	if opts.Dir != "" {
		fmt.Fprintf(out, "Directory: %s\n\n", opts.Dir)
		res, err := ingestor.IngestDirectory(ctx, opts.Library, opts.Dir)
		if err != nil {
			return err
		}
		printBatch(out, res)
	}
	if len(files) > 0 {
		printBatch(out, ingestor.IngestBatch(ctx, opts.Library, files))
	}

	if opts.TestSearch {
		testSearch(ctx, index, opts.Library, out)
	}
	return nil
}

func printBatch(out io.Writer, res *biz.BatchResult) {
	fmt.Fprintf(out, "%s Ingestion completed\n", okMark("✓"))
	fmt.Fprintf(out, "  Successful: %d files\n", res.Successful)
	fmt.Fprintf(out, "  Failed: %d files\n", res.Failed)
	if len(res.Results) > 0 {
		fmt.Fprintln(out, "\nProcessing results:")
		for _, r := range res.Results {
			fmt.Fprintf(out, "  - %s: %d chunks\n", r.File, r.Chunks)
		}
	}
	if len(res.Errors) > 0 {
		fmt.Fprintln(out, "\nError details:")
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  %s %s: %s\n", failMark("✗"), e.File, e.Error)
		}
	}
	fmt.Fprintln(out)
}

func listLibraries(ctx context.Context, index store.VectorIndex, out io.Writer) error {
	libs, err := index.ListLibraries(ctx)
	if err != nil {
		return err
	}
	if len(libs) == 0 {
		fmt.Fprintln(out, "No libraries found.")
		return nil
	}
	fmt.Fprintf(out, "%s (%d)\n", bold("Libraries"), len(libs))
	for _, l := range libs {
		fmt.Fprintf(out, "  - %s\n", l)
	}
	return nil
}

func deleteLibrary(ctx context.Context, index store.VectorIndex, cache *biz.ContextCache, library string, out io.Writer) error {
	found, err := index.DeleteLibrary(ctx, library)
	if err != nil {
		return err
	}
	if found {
		cache.Invalidate(ctx)
	}
	if !found {
		fmt.Fprintf(out, "%s Library %s not found\n", failMark("✗"), library)
		return nil
	}
	fmt.Fprintf(out, "%s Library %s deleted\n", okMark("✓"), library)
	return nil
}

func testSearch(ctx context.Context, index store.VectorIndex, library string, out io.Writer) {
	fmt.Fprintln(out, bold("=== Testing Search Functionality ==="))
	for _, q := range sampleQueries {
		hits, err := index.Search(ctx, q, 3, library)
		if err != nil {
			fmt.Fprintf(out, "Query: '%s' -> %s %v\n", q, failMark("Error:"), err)
			continue
		}
		fmt.Fprintf(out, "Query: '%s' -> Found %d results\n", q, len(hits))
	}
}
