package models

import "time"

// PageText is one physical page of extracted document text.
// Page numbers are 1-indexed and arrive in reading order.
type PageText struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// FileRef identifies a source document before extraction.
type FileRef struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	ModifiedTime string `json:"modified_time,omitempty"`
}

// Chunk is the retrieval unit: a token window over a document with page
// provenance. Immutable once created; re-ingestion replaces by id.
type Chunk struct {
	ChunkID    string    `json:"chunk_id"`
	FileID     string    `json:"file_id"`
	Filename   string    `json:"filename"`
	SourceURL  string    `json:"source_url"`
	PageStart  int       `json:"page_start"`
	PageEnd    int       `json:"page_end"`
	Text       string    `json:"text"`
	IngestedAt time.Time `json:"ingested_at"`
}

// PageRange is the inclusive page span a hit covers.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// RetrievalHit is the externally visible projection of one retrieved
// chunk. It carries a bounded snippet, never the full chunk text.
type RetrievalHit struct {
	Rank      int       `json:"rank"`
	Score     float64   `json:"score"`
	Filename  string    `json:"filename"`
	SourceURL string    `json:"source_url"`
	ChunkID   string    `json:"chunk_id"`
	PageRange PageRange `json:"page_range"`
	Snippet   string    `json:"snippet"`
}

// GenerationStatus records why an answer looks the way it does. The
// user-facing text is identical across the refusal paths; the status
// keeps "model said it doesn't know" separable from "infrastructure
// failed" for operators.
type GenerationStatus string

const (
	StatusAnswered        GenerationStatus = "answered"
	StatusRefusedUnsafe   GenerationStatus = "refused_unsafe"
	StatusNoEvidence      GenerationStatus = "no_evidence"
	StatusGenerationError GenerationStatus = "generation_error"
)

// GenerationResult is the validated output of one answer generation.
// Every citation references a chunk id that was present in the prompt's
// evidence set.
type GenerationResult struct {
	Answer    string           `json:"answer"`
	Citations []string         `json:"citations"`
	Status    GenerationStatus `json:"status"`
}

// FileReport is the per-file outcome of an ingestion run. Either
// Pages/Chunks are set or Error is.
type FileReport struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Pages    int    `json:"pages,omitempty"`
	Chunks   int    `json:"chunks,omitempty"`
	Error    string `json:"error,omitempty"`
}

// IngestionReport is the append-only artifact of one ingestion run.
type IngestionReport struct {
	RunID       string       `json:"run_id"`
	IngestedAt  time.Time    `json:"ingested_at"`
	Scope       string       `json:"scope"`
	FilesSeen   int          `json:"files_seen"`
	ChunksTotal int          `json:"chunks_total"`
	Upserted    int          `json:"upserted"`
	Files       []FileReport `json:"files"`
}
