package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/seanblong/docquery/internal/store"
	"github.com/seanblong/docquery/pkg/models"
)

// MockAIClient implements the ai.Client interface for testing
type MockAIClient struct {
	EmbedFunc  func(ctx context.Context, text string) ([]float32, error)
	EmbedCalls int
}

func (m *MockAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	m.EmbedCalls++
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *MockAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *MockAIClient) Generate(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	return "mock answer", nil
}

func (m *MockAIClient) Ping(ctx context.Context) error { return nil }
func (m *MockAIClient) Dim() int                       { return 3 }

// MockStore implements store.DocumentStore with per-modality hooks.
type MockStore struct {
	LexicalFunc func(ctx context.Context, query string, k int) ([]store.Hit, error)
	SparseFunc  func(ctx context.Context, query string, k int) ([]store.Hit, error)
	VectorFunc  func(ctx context.Context, vector []float32, k, numCandidates int) ([]store.Hit, error)

	LexicalCalls int
	SparseCalls  int
	VectorCalls  int
}

func (m *MockStore) EnsureIndex(ctx context.Context, dims int) error { return nil }

func (m *MockStore) BulkUpsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) (int, error) {
	return 0, nil
}

func (m *MockStore) SearchLexical(ctx context.Context, query string, k int) ([]store.Hit, error) {
	m.LexicalCalls++
	if m.LexicalFunc != nil {
		return m.LexicalFunc(ctx, query, k)
	}
	return nil, nil
}

func (m *MockStore) SearchSparse(ctx context.Context, query string, k int) ([]store.Hit, error) {
	m.SparseCalls++
	if m.SparseFunc != nil {
		return m.SparseFunc(ctx, query, k)
	}
	return nil, nil
}

func (m *MockStore) SearchVector(ctx context.Context, vector []float32, k, numCandidates int) ([]store.Hit, error) {
	m.VectorCalls++
	if m.VectorFunc != nil {
		return m.VectorFunc(ctx, vector, k, numCandidates)
	}
	return nil, nil
}

func (m *MockStore) Ping(ctx context.Context) error { return nil }

func hit(id, text string) store.Hit {
	return store.Hit{ChunkID: id, Filename: id + ".pdf", Text: text, PageStart: 1, PageEnd: 2, Score: 1}
}

func TestRetrieve_HybridFusedOrder(t *testing.T) {
	st := &MockStore{
		LexicalFunc: func(ctx context.Context, q string, k int) ([]store.Hit, error) {
			return []store.Hit{hit("a", "alpha text"), hit("b", "beta text")}, nil
		},
		SparseFunc: func(ctx context.Context, q string, k int) ([]store.Hit, error) {
			return []store.Hit{hit("b", "beta text"), hit("c", "gamma text")}, nil
		},
		VectorFunc: func(ctx context.Context, vec []float32, k, nc int) ([]store.Hit, error) {
			return []store.Hit{hit("b", "beta text"), hit("a", "alpha text")}, nil
		},
	}
	svc := NewService(&MockAIClient{}, st, 200)

	ev, err := svc.Retrieve(context.Background(), "question", 5, ModeHybrid)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if len(ev) != 3 {
		t.Fatalf("got %d evidence items, want 3", len(ev))
	}
	// b appears in all three modalities, a in two, c in one.
	if ev[0].Hit.ChunkID != "b" || ev[1].Hit.ChunkID != "a" || ev[2].Hit.ChunkID != "c" {
		t.Errorf("fused order = %s,%s,%s; want b,a,c", ev[0].Hit.ChunkID, ev[1].Hit.ChunkID, ev[2].Hit.ChunkID)
	}
	for i, e := range ev {
		if e.Hit.Rank != i+1 {
			t.Errorf("hit %d has rank %d", i, e.Hit.Rank)
		}
	}

	if st.VectorCalls != 1 || st.LexicalCalls != 1 || st.SparseCalls != 1 {
		t.Errorf("store call counts lexical=%d sparse=%d vector=%d, want 1 each",
			st.LexicalCalls, st.SparseCalls, st.VectorCalls)
	}
}

func TestRetrieve_EmbedFailureAborts(t *testing.T) {
	client := &MockAIClient{
		EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("embedding service down")
		},
	}
	st := &MockStore{}
	svc := NewService(client, st, 200)

	_, err := svc.Retrieve(context.Background(), "question", 5, ModeHybrid)
	if err == nil {
		t.Fatal("expected error when embedding fails in hybrid mode")
	}
	if st.LexicalCalls+st.SparseCalls+st.VectorCalls != 0 {
		t.Error("no store search should run after an embedding failure")
	}
}

func TestRetrieve_SparseLexicalSkipsEmbedding(t *testing.T) {
	client := &MockAIClient{}
	st := &MockStore{
		LexicalFunc: func(ctx context.Context, q string, k int) ([]store.Hit, error) {
			return []store.Hit{hit("a", "alpha")}, nil
		},
	}
	svc := NewService(client, st, 200)

	ev, err := svc.Retrieve(context.Background(), "question", 5, ModeSparseLexical)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if client.EmbedCalls != 0 {
		t.Errorf("sparse_lexical mode made %d embed calls", client.EmbedCalls)
	}
	if st.VectorCalls != 0 {
		t.Error("sparse_lexical mode must not run the vector modality")
	}
	if len(ev) != 1 || ev[0].Hit.ChunkID != "a" {
		t.Errorf("evidence = %+v", ev)
	}
}

func TestRetrieve_LexicalFailureDegrades(t *testing.T) {
	st := &MockStore{
		LexicalFunc: func(ctx context.Context, q string, k int) ([]store.Hit, error) {
			return nil, errors.New("shard failure")
		},
		SparseFunc: func(ctx context.Context, q string, k int) ([]store.Hit, error) {
			return []store.Hit{hit("a", "alpha")}, nil
		},
		VectorFunc: func(ctx context.Context, vec []float32, k, nc int) ([]store.Hit, error) {
			return []store.Hit{hit("a", "alpha")}, nil
		},
	}
	svc := NewService(&MockAIClient{}, st, 200)

	ev, err := svc.Retrieve(context.Background(), "question", 5, ModeHybrid)
	if err != nil {
		t.Fatalf("lexical failure should degrade, got error: %v", err)
	}
	if len(ev) != 1 {
		t.Fatalf("got %d evidence items, want 1", len(ev))
	}
}

func TestRetrieve_VectorFailureAborts(t *testing.T) {
	st := &MockStore{
		VectorFunc: func(ctx context.Context, vec []float32, k, nc int) ([]store.Hit, error) {
			return nil, errors.New("knn unavailable")
		},
	}
	svc := NewService(&MockAIClient{}, st, 200)

	if _, err := svc.Retrieve(context.Background(), "question", 5, ModeHybrid); err == nil {
		t.Fatal("vector search failure should abort the hybrid query")
	}
}

func TestRetrieve_AllModalitiesFailed(t *testing.T) {
	fail := func(ctx context.Context, q string, k int) ([]store.Hit, error) {
		return nil, errors.New("down")
	}
	st := &MockStore{LexicalFunc: fail, SparseFunc: fail}
	svc := NewService(&MockAIClient{}, st, 200)

	if _, err := svc.Retrieve(context.Background(), "question", 5, ModeSparseLexical); err == nil {
		t.Fatal("expected error when every modality fails")
	}
}

func TestRetrieve_TruncatesToTopK(t *testing.T) {
	st := &MockStore{
		LexicalFunc: func(ctx context.Context, q string, k int) ([]store.Hit, error) {
			hits := make([]store.Hit, 10)
			for i := range hits {
				hits[i] = hit(string(rune('a'+i)), "text")
			}
			return hits, nil
		},
	}
	svc := NewService(&MockAIClient{}, st, 200)

	ev, err := svc.Retrieve(context.Background(), "question", 3, ModeSparseLexical)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(ev) != 3 {
		t.Errorf("got %d evidence items, want top_k=3", len(ev))
	}
}

func TestFormatHit_SnippetBounds(t *testing.T) {
	svc := NewService(&MockAIClient{}, &MockStore{}, 50)

	long := strings.Repeat("word ", 100)
	h := store.Hit{ChunkID: "c", Text: long}
	formatted := svc.formatHit(h, 0.5, 1, "query")
	if len(formatted.Snippet) > 50 {
		t.Errorf("snippet length %d exceeds limit 50", len(formatted.Snippet))
	}

	h.Highlight = "a store-provided fragment"
	formatted = svc.formatHit(h, 0.5, 1, "query")
	if formatted.Snippet != "a store-provided fragment" {
		t.Errorf("highlight should win over text prefix, got %q", formatted.Snippet)
	}
}

func TestFormatHit_TruncationKeepsValidUTF8(t *testing.T) {
	svc := NewService(&MockAIClient{}, &MockStore{}, 10)

	// The 10-byte cut lands inside a multi-byte rune.
	h := store.Hit{ChunkID: "c", Highlight: "résumé 日本語テキスト résumé"}
	formatted := svc.formatHit(h, 0.5, 1, "query")
	if len(formatted.Snippet) > 10 {
		t.Errorf("snippet length %d exceeds limit 10", len(formatted.Snippet))
	}
	if !utf8.ValidString(formatted.Snippet) {
		t.Errorf("truncated snippet is invalid UTF-8: %q", formatted.Snippet)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"hybrid", ModeHybrid},
		{"", ModeHybrid},
		{"sparse_lexical", ModeSparseLexical},
		{"elser", ModeSparseLexical},
		{"sparse", ModeSparseLexical},
		{"anything-else", ModeHybrid},
	}
	for _, tt := range tests {
		if got := ParseMode(tt.in); got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
