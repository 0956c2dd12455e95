package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/seanblong/docquery/pkg/models"
)

// Index field names. "text" backs BM25, "ml.tokens" holds ELSER sparse
// tokens (populated server-side by the cluster's inference pipeline),
// "vector" holds the dense embedding.
const (
	textField   = "text"
	elserField  = "ml.tokens"
	vectorField = "vector"
)

func sourceFilter() []string {
	return []string{"chunk_id", "file_id", "filename", "source_url", "page_start", "page_end", "text"}
}

func highlightClause() map[string]any {
	return map[string]any{
		"fields":              map[string]any{textField: map[string]any{}},
		"fragment_size":       180,
		"number_of_fragments": 1,
	}
}

func buildLexicalQuery(query string, k int) map[string]any {
	return map[string]any{
		"size":    k,
		"_source": sourceFilter(),
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{textField + "^2", "filename"},
				"type":   "best_fields",
			},
		},
		"highlight": highlightClause(),
	}
}

func buildSparseQuery(query string, k int, elserModel string) map[string]any {
	return map[string]any{
		"size":    k,
		"_source": sourceFilter(),
		"query": map[string]any{
			"text_expansion": map[string]any{
				elserField: map[string]any{
					"model_id":   elserModel,
					"model_text": query,
				},
			},
		},
		"highlight": highlightClause(),
	}
}

func buildVectorQuery(vector []float32, k, numCandidates int) map[string]any {
	return map[string]any{
		"size":    k,
		"_source": sourceFilter(),
		"knn": map[string]any{
			"field":          vectorField,
			"query_vector":   vector,
			"k":              k,
			"num_candidates": numCandidates,
		},
	}
}

// indexMapping is the hybrid index schema: BM25 text, dense vector with
// cosine similarity, ELSER sparse tokens, and keyword metadata.
func indexMapping(dims int) map[string]any {
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				textField: map[string]any{"type": "text"},
				vectorField: map[string]any{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
				"ml": map[string]any{
					"properties": map[string]any{
						"tokens": map[string]any{"type": "sparse_vector"},
					},
				},
				"chunk_id":    map[string]any{"type": "keyword"},
				"file_id":     map[string]any{"type": "keyword"},
				"filename":    map[string]any{"type": "keyword"},
				"source_url":  map[string]any{"type": "keyword"},
				"page_start":  map[string]any{"type": "integer"},
				"page_end":    map[string]any{"type": "integer"},
				"ingested_at": map[string]any{"type": "date"},
			},
		},
	}
}

// buildBulkBody produces NDJSON for the bulk API, one action and one
// document line per chunk, keyed by chunk_id.
func buildBulkBody(index string, chunks []models.Chunk, vectors [][]float32) ([]byte, error) {
	var buf bytes.Buffer
	for i, c := range chunks {
		action := map[string]any{
			"index": map[string]any{"_index": index, "_id": c.ChunkID},
		}
		a, err := json.Marshal(action)
		if err != nil {
			return nil, err
		}
		buf.Write(a)
		buf.WriteByte('\n')

		doc := map[string]any{
			"chunk_id":    c.ChunkID,
			"file_id":     c.FileID,
			"filename":    c.Filename,
			"source_url":  c.SourceURL,
			"page_start":  c.PageStart,
			"page_end":    c.PageEnd,
			textField:     c.Text,
			"ingested_at": c.IngestedAt,
			vectorField:   vectors[i],
		}
		d, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		buf.Write(d)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// countBulkAccepted parses a bulk response and counts items indexed
// without a per-item error.
func countBulkAccepted(raw []byte) (int, error) {
	var resp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int             `json:"status"`
			Error  json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("bulk response: %w", err)
	}

	accepted := 0
	for _, item := range resp.Items {
		for _, r := range item {
			if r.Status >= 200 && r.Status < 300 && len(r.Error) == 0 {
				accepted++
			}
		}
	}
	return accepted, nil
}

// decodeHits turns a search response into the modality's ranked list.
func decodeHits(raw []byte) ([]Hit, error) {
	var resp struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					ChunkID   string `json:"chunk_id"`
					FileID    string `json:"file_id"`
					Filename  string `json:"filename"`
					SourceURL string `json:"source_url"`
					PageStart int    `json:"page_start"`
					PageEnd   int    `json:"page_end"`
					Text      string `json:"text"`
				} `json:"_source"`
				Highlight map[string][]string `json:"highlight"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("search response: %w", err)
	}

	out := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hit := Hit{
			Score:     h.Score,
			ChunkID:   h.Source.ChunkID,
			FileID:    h.Source.FileID,
			Filename:  h.Source.Filename,
			SourceURL: h.Source.SourceURL,
			PageStart: h.Source.PageStart,
			PageEnd:   h.Source.PageEnd,
			Text:      h.Source.Text,
		}
		if frags := h.Highlight[textField]; len(frags) > 0 {
			hit.Highlight = frags[0]
		}
		out = append(out, hit)
	}
	return out, nil
}
