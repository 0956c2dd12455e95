package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/seanblong/docquery/pkg/models"
)

// Hit is one ranked result from a single search modality. Transient;
// formatted into models.RetrievalHit before leaving the query path.
type Hit struct {
	Score     float64
	ChunkID   string
	FileID    string
	Filename  string
	SourceURL string
	PageStart int
	PageEnd   int
	Text      string
	Highlight string
}

// DocumentStore is the persistence and retrieval boundary. The three
// search methods each return one modality's ranked list, best first.
type DocumentStore interface {
	EnsureIndex(ctx context.Context, dims int) error
	BulkUpsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) (int, error)
	SearchLexical(ctx context.Context, query string, k int) ([]Hit, error)
	SearchSparse(ctx context.Context, query string, k int) ([]Hit, error)
	SearchVector(ctx context.Context, vector []float32, k, numCandidates int) ([]Hit, error)
	Ping(ctx context.Context) error
}

// Config holds Elasticsearch connection settings.
type Config struct {
	URL        string
	Username   string
	Password   string
	Index      string
	ELSERModel string
	Timeout    time.Duration
}

// Elastic implements DocumentStore over an Elasticsearch index that
// carries BM25 text, ELSER sparse tokens and a dense vector per chunk.
type Elastic struct {
	es         *elasticsearch.Client
	index      string
	elserModel string
	timeout    time.Duration
}

// New creates a new Elastic store connected to the given cluster.
func New(cfg Config) (*Elastic, error) {
	if cfg.Index == "" {
		cfg.Index = "rag_documents_v1"
	}
	if cfg.ELSERModel == "" {
		cfg.ELSERModel = ".elser_model_2"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	return &Elastic{
		es:         es,
		index:      cfg.Index,
		elserModel: cfg.ELSERModel,
		timeout:    cfg.Timeout,
	}, nil
}

// EnsureIndex creates the index with the hybrid mapping when it does not
// exist yet. Existing indices are left untouched.
func (e *Elastic) EnsureIndex(ctx context.Context, dims int) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.es.Indices.Exists([]string{e.index}, e.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("index exists check: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(indexMapping(dims))
	if err != nil {
		return err
	}

	cres, err := e.es.Indices.Create(e.index,
		e.es.Indices.Create.WithContext(ctx),
		e.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("index create: %w", err)
	}
	defer cres.Body.Close()
	if cres.IsError() {
		return fmt.Errorf("index create: %s", cres.String())
	}
	return nil
}

// BulkUpsert indexes chunks keyed by chunk_id, so re-ingestion with
// stable ids overwrites in place. Returns the number of accepted items;
// a partial-batch failure shows up as a count below len(chunks), never
// as an error, matching the store's own partial-success semantics.
func (e *Elastic) BulkUpsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("bulk upsert: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	body, err := buildBulkBody(e.index, chunks, vectors)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	res, err := e.es.Bulk(bytes.NewReader(body), e.es.Bulk.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("bulk upsert: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("bulk upsert: %s", res.String())
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, err
	}
	return countBulkAccepted(raw)
}

// SearchLexical runs a keyword match over chunk text with a filename
// boost, returning highlighted fragments where available.
func (e *Elastic) SearchLexical(ctx context.Context, query string, k int) ([]Hit, error) {
	return e.search(ctx, buildLexicalQuery(query, k))
}

// SearchSparse runs the ELSER text-expansion match.
func (e *Elastic) SearchSparse(ctx context.Context, query string, k int) ([]Hit, error) {
	return e.search(ctx, buildSparseQuery(query, k, e.elserModel))
}

// SearchVector runs dense kNN over the chunk vectors.
func (e *Elastic) SearchVector(ctx context.Context, vector []float32, k, numCandidates int) ([]Hit, error) {
	return e.search(ctx, buildVectorQuery(vector, k, numCandidates))
}

func (e *Elastic) search(ctx context.Context, body map[string]any) ([]Hit, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.es.Search(
		e.es.Search.WithContext(ctx),
		e.es.Search.WithIndex(e.index),
		e.es.Search.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search: %s", res.String())
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return decodeHits(raw)
}

// Ping checks cluster reachability.
func (e *Elastic) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := e.es.Ping(e.es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return nil
}
