package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rhema/internal/chunker"
	"rhema/internal/logger"
	"rhema/internal/models"
	"rhema/internal/rag"

	"golang.org/x/time/rate"
)

// ChunkWriter persists embedded chunks. docstore.Store satisfies it.
type ChunkWriter interface {
	Insert(ctx context.Context, chunk *models.DocumentChunk) (int64, error)
}

// Options configures an Ingestor. Zero values pick the defaults; Overlap only
// defaults when ChunkSize does.
type Options struct {
	Embedder  rag.Embedder
	Store     ChunkWriter
	Loader    TextLoader
	ChunkSize int
	Overlap   int
	// Delay is the minimum spacing between embedding calls.
	Delay  time.Duration
	Out    io.Writer
	Logger *logger.Logger
}

// Ingestor turns library files into stored chunks, one chunk at a time.
type Ingestor struct {
	embedder rag.Embedder
	store    ChunkWriter
	loader   TextLoader
	window   *chunker.Window
	limiter  *rate.Limiter
	out      io.Writer
	log      *logger.Logger
}

// FileReport summarizes one source file.
type FileReport struct {
	Source  string
	Chunks  int
	Stored  int
	Skipped []int
}

// Report summarizes a batch.
type Report struct {
	Files       []FileReport
	FailedFiles []string
}

func (r Report) Stored() int {
	n := 0
	for _, f := range r.Files {
		n += f.Stored
	}
	return n
}

func (r Report) Skipped() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Skipped)
	}
	return n
}

var supportedExt = map[string]bool{".txt": true, ".md": true}

// Supported reports whether path has an ingestible extension.
func Supported(path string) bool {
	return supportedExt[strings.ToLower(filepath.Ext(path))]
}

func New(opts Options) (*Ingestor, error) {
	if opts.Embedder == nil || opts.Store == nil || opts.Loader == nil {
		return nil, fmt.Errorf("%w: ingestor needs an embedder, a store and a loader", rag.ErrConfiguration)
	}
	// an explicit chunk size keeps its overlap as given, zero included
	if opts.ChunkSize == 0 {
		opts.ChunkSize = 1000
		if opts.Overlap == 0 {
			opts.Overlap = 100
		}
	}
	window, err := chunker.New(opts.ChunkSize, opts.Overlap)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
	}
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Ingestor{
		embedder: opts.Embedder,
		store:    opts.Store,
		loader:   opts.Loader,
		window:   window,
		limiter:  rate.NewLimiter(limit, 1),
		out:      opts.Out,
		log:      opts.Logger,
	}, nil
}

// IngestDir ingests every .txt/.md file directly under dir, in name order.
// A file that cannot be read is logged and the batch continues.
func (in *Ingestor) IngestDir(ctx context.Context, dir string) (Report, error) {
	var report Report
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, fmt.Errorf("library folder not found: %s", dir)
		}
		return report, fmt.Errorf("read library %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	fmt.Fprintf(in.out, "Found %d files to ingest.\n", len(files))

	for _, path := range files {
		fr, err := in.IngestFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			in.log.Error("ingest file failed", "file", path, "error", err)
			fmt.Fprintf(in.out, "Failed: %s: %v\n", filepath.Base(path), err)
			report.FailedFiles = append(report.FailedFiles, filepath.Base(path))
			continue
		}
		report.Files = append(report.Files, fr)
	}
	return report, nil
}

// IngestFile chunks, embeds and stores one file. Chunk-level failures are
// logged and skipped; only read errors and cancellation are returned.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (FileReport, error) {
	name := filepath.Base(path)
	report := FileReport{Source: name}
	fmt.Fprintf(in.out, "Processing: %s\n", name)

	text, err := in.loader.LoadText(ctx, path)
	if err != nil {
		return report, err
	}
	chunks := in.window.Split(text)
	report.Chunks = len(chunks)
	fmt.Fprintf(in.out, "  - Split into %d chunks\n", len(chunks))

	for i, content := range chunks {
		md := models.ChunkMetadata{Source: name, ChunkIndex: i, TotalChunks: len(chunks)}
		if err := in.embedAndStore(ctx, content, md); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Skipped = append(report.Skipped, i)
			continue
		}
		report.Stored++
		if i%10 == 0 {
			fmt.Fprintf(in.out, "  - Indexed chunk %d/%d\n", i, len(chunks))
		}
	}
	fmt.Fprintf(in.out, "Completed: %s\n", name)
	in.log.Info("ingested file", "file", name, "chunks", report.Chunks, "stored", report.Stored, "skipped", len(report.Skipped))
	return report, nil
}

// embedAndStore embeds and persists a single chunk after waiting for the rate limiter.
func (in *Ingestor) embedAndStore(ctx context.Context, content string, md models.ChunkMetadata) error {
	if err := in.limiter.Wait(ctx); err != nil {
		return err
	}
	vec, err := in.embedder.Embed(ctx, content)
	if err != nil {
		in.log.Error("embedding failed, chunk skipped", "source", md.Source, "chunk_index", md.ChunkIndex, "error", err)
		fmt.Fprintf(in.out, "  - Failed to generate embedding for chunk %d: %v\n", md.ChunkIndex, err)
		return err
	}
	if _, err := in.store.Insert(ctx, &models.DocumentChunk{Content: content, Embedding: vec, Metadata: md}); err != nil {
		in.log.Error("insert failed, chunk skipped", "source", md.Source, "chunk_index", md.ChunkIndex, "error", err)
		fmt.Fprintf(in.out, "  - Error inserting chunk %d: %v\n", md.ChunkIndex, err)
		return err
	}
	return nil
}
