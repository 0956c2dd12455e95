// Package ingest orchestrates the document pipeline: list, download,
// extract, chunk, embed, upsert. One bad file never sinks the run.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/docquery/internal/ai"
	"github.com/seanblong/docquery/internal/chunker"
	"github.com/seanblong/docquery/internal/store"
	"github.com/seanblong/docquery/pkg/models"
)

// embedBatchSize bounds a single embedding request.
const embedBatchSize = 64

// FileSource lists and downloads source documents.
type FileSource interface {
	Name() string
	ListDocuments(ctx context.Context, limit int) ([]models.FileRef, error)
	Download(ctx context.Context, ref models.FileRef) ([]byte, error)
}

// Extractor turns raw document bytes into per-page text.
type Extractor interface {
	ExtractPages(name string, data []byte) ([]models.PageText, error)
}

// Orchestrator runs ingestion end to end.
type Orchestrator struct {
	Source    FileSource
	Extractor Extractor
	Chunker   *chunker.Chunker
	Client    ai.Client
	Store     store.DocumentStore
	Workers   int
}

// fileResult carries one file's outcome back from the worker pool. The
// index preserves listing order so reports and upserts are stable.
type fileResult struct {
	index  int
	report models.FileReport
	chunks []models.Chunk
}

// Run ingests up to limit documents (zero means all). When ensureIndex
// is set the index is created first if missing. Per-file failures are
// recorded in the report and skipped; embedding or storage failures
// abort the run.
func (o *Orchestrator) Run(ctx context.Context, limit int, ensureIndex bool) (models.IngestionReport, error) {
	report := models.IngestionReport{
		RunID:      uuid.NewString(),
		IngestedAt: time.Now().UTC(),
		Scope:      o.Source.Name(),
		Files:      []models.FileReport{},
	}

	if ensureIndex {
		if err := o.Store.EnsureIndex(ctx, o.Client.Dim()); err != nil {
			return report, fmt.Errorf("ensure index: %w", err)
		}
	}

	refs, err := o.Source.ListDocuments(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("list documents: %w", err)
	}
	report.FilesSeen = len(refs)
	log.Info().Int("files", len(refs)).Str("scope", report.Scope).Msg("starting ingestion run")

	results := o.processFiles(ctx, refs)

	var chunks []models.Chunk
	for _, r := range results {
		report.Files = append(report.Files, r.report)
		chunks = append(chunks, r.chunks...)
	}
	report.ChunksTotal = len(chunks)

	if len(chunks) == 0 {
		log.Warn().Msg("ingestion produced no chunks")
		return report, nil
	}

	vectors, err := o.embedChunks(ctx, chunks)
	if err != nil {
		return report, fmt.Errorf("embed chunks: %w", err)
	}

	upserted, err := o.Store.BulkUpsert(ctx, chunks, vectors)
	if err != nil {
		return report, fmt.Errorf("bulk upsert: %w", err)
	}
	report.Upserted = upserted
	if upserted < len(chunks) {
		log.Warn().Int("accepted", upserted).Int("sent", len(chunks)).Msg("partial bulk upsert")
	}

	log.Info().
		Str("run_id", report.RunID).
		Int("files", report.FilesSeen).
		Int("chunks", report.ChunksTotal).
		Int("upserted", report.Upserted).
		Msg("ingestion run complete")
	return report, nil
}

// processFiles fans the files out to a worker pool. Each worker
// downloads, extracts and chunks one file at a time; any error becomes
// that file's report entry rather than a run failure. Results come
// back in listing order.
func (o *Orchestrator) processFiles(ctx context.Context, refs []models.FileRef) []fileResult {
	workers := o.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(refs) {
		workers = len(refs)
	}

	jobs := make(chan int)
	out := make(chan fileResult, len(refs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out <- o.processFile(ctx, i, refs[i])
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range refs {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(out)

	results := make([]fileResult, len(refs))
	for r := range out {
		results[r.index] = r
	}
	// Files never dispatched (cancelled context) still get an entry.
	for i, r := range results {
		if r.report.FileID == "" {
			results[i] = fileResult{
				index:  i,
				report: models.FileReport{FileID: refs[i].ID, Filename: refs[i].Name, Error: "skipped: run cancelled"},
			}
		}
	}
	return results
}

func (o *Orchestrator) processFile(ctx context.Context, index int, ref models.FileRef) fileResult {
	res := fileResult{
		index:  index,
		report: models.FileReport{FileID: ref.ID, Filename: ref.Name},
	}

	data, err := o.Source.Download(ctx, ref)
	if err != nil {
		log.Error().Err(err).Str("file", ref.Name).Msg("download failed")
		res.report.Error = fmt.Sprintf("download: %v", err)
		return res
	}

	pages, err := o.Extractor.ExtractPages(ref.Name, data)
	if err != nil {
		log.Error().Err(err).Str("file", ref.Name).Msg("extraction failed")
		res.report.Error = fmt.Sprintf("extract: %v", err)
		return res
	}
	res.report.Pages = len(pages)

	res.chunks = o.Chunker.Chunk(pages, chunker.Provenance{
		FileID:    ref.ID,
		Filename:  ref.Name,
		SourceURL: ref.URL,
	})
	res.report.Chunks = len(res.chunks)

	log.Debug().Str("file", ref.Name).Int("pages", len(pages)).Int("chunks", len(res.chunks)).Msg("file processed")
	return res
}

// embedChunks embeds chunk texts in bounded batches. Any batch failure
// aborts: silently indexing chunks without vectors would break the
// dense modality at query time.
func (o *Orchestrator) embedChunks(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		batch, err := o.Client.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("batch starting at chunk %d: %w", start, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("batch starting at chunk %d: got %d vectors for %d texts", start, len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// WriteReport persists the run report as indented JSON, creating the
// parent directory if needed.
func WriteReport(report models.IngestionReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
