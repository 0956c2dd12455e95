package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/docquery/internal/ai"
	"github.com/seanblong/docquery/internal/store"
	"github.com/seanblong/docquery/pkg/models"
)

// Evidence is one retrieved chunk in fused rank order, carrying the
// full text for prompt construction. The RetrievalHit projection is
// what leaves the service boundary.
type Evidence struct {
	Hit  models.RetrievalHit
	Text string
}

// Service runs the retrieval path: plan, per-modality search, fusion,
// formatting.
type Service struct {
	Client     ai.Client
	Store      store.DocumentStore
	SnippetLen int
}

// NewService creates a retrieval service over the given AI client and
// document store.
func NewService(client ai.Client, st store.DocumentStore, snippetLen int) *Service {
	if snippetLen <= 0 {
		snippetLen = 200
	}
	return &Service{Client: client, Store: st, SnippetLen: snippetLen}
}

type modalityResult struct {
	name string
	hits []store.Hit
	err  error
}

// Retrieve answers the retrieval half of a query: it fans the question
// out to the selected modalities, fuses the ranked lists client-side
// and returns the top_k evidence in fused order.
//
// Failure policy: in hybrid mode an embedding or vector-search failure
// aborts the query; a failed lexical or sparse sub-query degrades to
// fusing over the modalities that returned. If every modality fails,
// the query fails.
func (s *Service) Retrieve(ctx context.Context, question string, topK int, mode Mode) ([]Evidence, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("empty question")
	}
	plan := NewPlan(question, topK)

	var vec []float32
	if mode == ModeHybrid {
		v, err := s.Client.Embed(ctx, question)
		if err != nil {
			// No silent empty-vector fallback: the dense modality is
			// strict, so the whole query fails here.
			return nil, fmt.Errorf("embed question: %w", err)
		}
		vec = v
	}

	results := make(chan modalityResult, 3)
	n := 2
	go func() {
		hits, err := s.Store.SearchLexical(ctx, plan.Question, plan.WindowSize)
		results <- modalityResult{name: "lexical", hits: hits, err: err}
	}()
	go func() {
		hits, err := s.Store.SearchSparse(ctx, plan.Question, plan.WindowSize)
		results <- modalityResult{name: "sparse", hits: hits, err: err}
	}()
	if mode == ModeHybrid {
		n = 3
		go func() {
			hits, err := s.Store.SearchVector(ctx, vec, plan.KNNK, plan.NumCandidates)
			results <- modalityResult{name: "vector", hits: hits, err: err}
		}()
	}

	var lists [][]Ranked
	byID := make(map[string]store.Hit)
	failures := 0
	for i := 0; i < n; i++ {
		r := <-results
		if r.err != nil {
			if r.name == "vector" {
				return nil, fmt.Errorf("vector search: %w", r.err)
			}
			log.Warn().Err(r.err).Str("modality", r.name).Msg("sub-query failed, fusing without it")
			failures++
			continue
		}
		list := make([]Ranked, 0, len(r.hits))
		for _, h := range r.hits {
			list = append(list, Ranked{ID: h.ChunkID, Score: h.Score})
			if prev, ok := byID[h.ChunkID]; !ok || (prev.Highlight == "" && h.Highlight != "") {
				byID[h.ChunkID] = h
			}
		}
		lists = append(lists, list)
	}
	if failures == n {
		return nil, fmt.Errorf("all retrieval modalities failed")
	}

	fused := Fuse(lists, plan.RankConstant, plan.WindowSize)
	if len(fused) > plan.TopK {
		fused = fused[:plan.TopK]
	}

	out := make([]Evidence, 0, len(fused))
	for i, f := range fused {
		h, ok := byID[f.ID]
		if !ok {
			continue
		}
		out = append(out, Evidence{
			Hit:  s.formatHit(h, f.Score, i+1, question),
			Text: h.Text,
		})
	}
	return out, nil
}

// formatHit trims a store hit to the citation-ready projection. The
// snippet prefers the store's highlight fragment, then a query-aware
// window over the chunk text. Full chunk text never appears here.
func (s *Service) formatHit(h store.Hit, score float64, rank int, question string) models.RetrievalHit {
	snippet := h.Highlight
	if snippet == "" {
		snippet = makeSnippet(h.Text, question, s.SnippetLen)
	}
	if len(snippet) > s.SnippetLen {
		snippet = snippet[:runeBoundary(snippet, s.SnippetLen)]
	}
	return models.RetrievalHit{
		Rank:      rank,
		Score:     score,
		Filename:  h.Filename,
		SourceURL: h.SourceURL,
		ChunkID:   h.ChunkID,
		PageRange: models.PageRange{Start: h.PageStart, End: h.PageEnd},
		Snippet:   snippet,
	}
}

// Hits projects evidence down to the externally visible hit list.
func Hits(ev []Evidence) []models.RetrievalHit {
	out := make([]models.RetrievalHit, len(ev))
	for i, e := range ev {
		out[i] = e.Hit
	}
	return out
}
