package retriever

import (
	"context"
	"math"
	"testing"

	"docrag/internal/chunker"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
)

// fakeEmbedder returns a fixed vector for any input.
type fakeEmbedder struct {
	vec []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "fake" }

// emptyEmbedder returns no vectors and no error.
type emptyEmbedder struct{}

func (emptyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (emptyEmbedder) Model() string { return "empty" }

// fakeSearcher returns preset hits in order.
type fakeSearcher struct {
	hits []*search.DocumentMatch
}

func (f *fakeSearcher) SearchChunks(query string, size int) (*bleve.SearchResult, error) {
	return &bleve.SearchResult{Hits: f.hits}, nil
}

func testChunks() []chunker.Chunk {
	return []chunker.Chunk{
		{ID: "d1_t000000", DocumentID: "d1", FileName: "a.txt", ChunkNumber: 0, Text: "alpha", Embedding: []float32{1, 0, 0}},
		{ID: "d1_t000448", DocumentID: "d1", FileName: "a.txt", ChunkNumber: 1, Text: "beta", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "d2_t000000", DocumentID: "d2", FileName: "b.txt", ChunkNumber: 0, Text: "gamma", Embedding: []float32{0, 1, 0}},
		{ID: "d3_t000000", DocumentID: "d3", FileName: "c.txt", ChunkNumber: 0, Text: "delta"},
	}
}

// ========== Scoring ==========

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	if sim := cosineSimilarity(a, b); math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("identical vectors: got %f, want 1.0", sim)
	}
	c := []float32{0, 1, 0}
	if sim := cosineSimilarity(a, c); math.Abs(sim) > 1e-9 {
		t.Errorf("orthogonal vectors: got %f, want 0.0", sim)
	}
	if sim := cosineSimilarity(a, []float32{1, 0}); sim != 0 {
		t.Errorf("mismatched lengths: got %f, want 0", sim)
	}
	if sim := cosineSimilarity(a, []float32{0, 0, 0}); sim != 0 {
		t.Errorf("zero vector: got %f, want 0", sim)
	}
}

func TestDotProduct(t *testing.T) {
	if got := dotProduct([]float32{1, 2, 3}, []float32{4, 5, 6}); math.Abs(got-32) > 1e-9 {
		t.Errorf("got %f, want 32", got)
	}
	if got := dotProduct([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("mismatched lengths: got %f, want 0", got)
	}
}

// ========== Construction ==========

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, nil, nil, Options{Mode: "hybrid"}); err == nil {
		t.Error("hybrid without searcher/embedder should fail")
	}
	if _, err := New(nil, nil, nil, Options{Mode: "vector"}); err == nil {
		t.Error("vector without embedder should fail")
	}
	if _, err := New(nil, nil, nil, Options{Mode: "bm25"}); err == nil {
		t.Error("bm25 without searcher should fail")
	}
	if _, err := New(nil, &fakeSearcher{}, &fakeEmbedder{}, Options{Mode: "nonsense"}); err == nil {
		t.Error("unknown mode should fail")
	}
	if _, err := New(nil, &fakeSearcher{}, &fakeEmbedder{}, Options{Scoring: "euclid"}); err == nil {
		t.Error("unknown scoring should fail")
	}
}

// ========== Vector mode ==========

func TestVectorSearchRanksBySimilarity(t *testing.T) {
	r, err := New(testChunks(), nil, &fakeEmbedder{vec: []float32{1, 0, 0}}, Options{Mode: "vector", TopK: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results, err := r.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ChunkID != "d1_t000000" {
		t.Errorf("top result %s, want d1_t000000", results[0].ChunkID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by score descending")
	}
}

func TestVectorSearchSkipsUnembedded(t *testing.T) {
	r, err := New(testChunks(), nil, &fakeEmbedder{vec: []float32{1, 0, 0}}, Options{Mode: "vector", TopK: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results, err := r.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, res := range results {
		if res.ChunkID == "d3_t000000" {
			t.Error("chunk without embedding should not be returned")
		}
	}
}

func TestVectorSearchDedup(t *testing.T) {
	r, err := New(testChunks(), nil, &fakeEmbedder{vec: []float32{1, 0, 0}}, Options{Mode: "vector", TopK: 3, Dedup: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results, err := r.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	seen := make(map[string]bool)
	for _, res := range results {
		if seen[res.DocumentID] {
			t.Errorf("document %s returned more than once", res.DocumentID)
		}
		seen[res.DocumentID] = true
	}
}

func TestVectorSearchEmptyEmbedding(t *testing.T) {
	r, err := New(testChunks(), nil, emptyEmbedder{}, Options{Mode: "vector"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Search(context.Background(), "q"); err == nil {
		t.Error("expected error when the provider returns no vector")
	}
}

// ========== BM25 mode ==========

func TestBM25Search(t *testing.T) {
	searcher := &fakeSearcher{hits: []*search.DocumentMatch{
		{ID: "d2_t000000", Score: 2.5},
		{ID: "d1_t000000", Score: 1.1},
		{ID: "unknown", Score: 0.9},
	}}
	r, err := New(testChunks(), searcher, nil, Options{Mode: "bm25", TopK: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results, err := r.Search(context.Background(), "gamma")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (unknown hit dropped)", len(results))
	}
	if results[0].ChunkID != "d2_t000000" {
		t.Errorf("top result %s, want d2_t000000", results[0].ChunkID)
	}
}

// ========== Hybrid mode ==========

func TestHybridFusesRankings(t *testing.T) {
	// BM25 strongly prefers d2, the vector side prefers d1. RRF should
	// surface both near the top.
	searcher := &fakeSearcher{hits: []*search.DocumentMatch{
		{ID: "d2_t000000", Score: 3.0},
	}}
	r, err := New(testChunks(), searcher, &fakeEmbedder{vec: []float32{1, 0, 0}}, Options{TopK: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results, err := r.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	found := make(map[string]bool)
	for _, res := range results {
		found[res.ChunkID] = true
	}
	if !found["d2_t000000"] {
		t.Error("hybrid lost the BM25 hit d2_t000000")
	}
	if !found["d1_t000000"] {
		t.Error("hybrid lost the top vector hit d1_t000000")
	}
	// d2 appears in both rankings so it should outrank vector-only hits.
	if results[0].ChunkID != "d2_t000000" {
		t.Errorf("top result %s, want d2_t000000", results[0].ChunkID)
	}
}

func TestTopKDefault(t *testing.T) {
	r, err := New(testChunks(), nil, &fakeEmbedder{vec: []float32{1, 0, 0}}, Options{Mode: "vector"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.opts.TopK != 5 {
		t.Errorf("default TopK = %d, want 5", r.opts.TopK)
	}
}
