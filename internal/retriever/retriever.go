// Package retriever performs query-time search over embedded chunks:
// vector similarity, BM25, or a hybrid of both merged with reciprocal
// rank fusion.
package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"

	"docrag/internal/chunker"
	"docrag/internal/embedding"

	"github.com/blevesearch/bleve/v2"
)

// Result represents a retrieved chunk with its relevance score.
type Result struct {
	ChunkID     string  `json:"chunk_id"`
	DocumentID  string  `json:"document_id"`
	FileName    string  `json:"file_name"`
	Title       string  `json:"title,omitempty"`
	ChunkNumber int     `json:"chunk_number"`
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
}

// Searcher is the BM25 side of hybrid retrieval, satisfied by store.Store.
type Searcher interface {
	SearchChunks(query string, size int) (*bleve.SearchResult, error)
}

// Options controls retrieval behavior.
type Options struct {
	Mode    string // "vector", "bm25", or "hybrid"
	Scoring string // "cosine" or "dot"
	TopK    int
	Dedup   bool // keep at most one chunk per source document
}

// Retriever searches a chunk corpus.
type Retriever struct {
	chunks   []chunker.Chunk
	searcher Searcher
	embedder embedding.Provider
	opts     Options
}

// New builds a Retriever over the given chunks. searcher may be nil when
// Mode is "vector"; embedder may be nil when Mode is "bm25".
func New(chunks []chunker.Chunk, searcher Searcher, embedder embedding.Provider, opts Options) (*Retriever, error) {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	switch opts.Mode {
	case "", "hybrid":
		opts.Mode = "hybrid"
		if searcher == nil || embedder == nil {
			return nil, fmt.Errorf("hybrid retrieval needs both a searcher and an embedder")
		}
	case "vector":
		if embedder == nil {
			return nil, fmt.Errorf("vector retrieval needs an embedder")
		}
	case "bm25":
		if searcher == nil {
			return nil, fmt.Errorf("bm25 retrieval needs a searcher")
		}
	default:
		return nil, fmt.Errorf("unknown retrieval mode: %s", opts.Mode)
	}
	switch opts.Scoring {
	case "", "cosine":
		opts.Scoring = "cosine"
	case "dot":
	default:
		return nil, fmt.Errorf("unknown scoring: %s", opts.Scoring)
	}

	return &Retriever{chunks: chunks, searcher: searcher, embedder: embedder, opts: opts}, nil
}

// Search retrieves the top-K chunks for a query.
func (r *Retriever) Search(ctx context.Context, query string) ([]Result, error) {
	switch r.opts.Mode {
	case "vector":
		ranked, err := r.vectorRanked(ctx, query)
		if err != nil {
			return nil, err
		}
		return r.finalize(ranked), nil
	case "bm25":
		ranked, err := r.bm25Ranked(query)
		if err != nil {
			return nil, err
		}
		return r.finalize(ranked), nil
	default:
		return r.hybrid(ctx, query)
	}
}

// scoredChunk pairs a chunk index with a score used for ranking.
type scoredChunk struct {
	idx   int
	score float64
}

// vectorRanked scores every embedded chunk against the query embedding.
func (r *Retriever) vectorRanked(ctx context.Context, query string) ([]scoredChunk, error) {
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("query embedding error: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedding provider returned no vector for query")
	}
	queryEmb := vecs[0]

	score := cosineSimilarity
	if r.opts.Scoring == "dot" {
		score = dotProduct
	}

	var ranked []scoredChunk
	for i, chunk := range r.chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		ranked = append(ranked, scoredChunk{i, score(queryEmb, chunk.Embedding)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	return ranked, nil
}

// bm25Ranked queries the full-text index and maps hits back to chunk indexes.
func (r *Retriever) bm25Ranked(query string) ([]scoredChunk, error) {
	res, err := r.searcher.SearchChunks(query, r.opts.TopK*3)
	if err != nil {
		return nil, fmt.Errorf("BM25 search error: %w", err)
	}

	byID := make(map[string]int, len(r.chunks))
	for i, c := range r.chunks {
		byID[c.ID] = i
	}

	var ranked []scoredChunk
	for _, hit := range res.Hits {
		if i, ok := byID[hit.ID]; ok {
			ranked = append(ranked, scoredChunk{i, hit.Score})
		}
	}
	return ranked, nil
}

// hybrid merges vector and BM25 rankings with reciprocal rank fusion (k=60).
func (r *Retriever) hybrid(ctx context.Context, query string) ([]Result, error) {
	vectorRanked, err := r.vectorRanked(ctx, query)
	if err != nil {
		return nil, err
	}
	bm25Ranked, err := r.bm25Ranked(query)
	if err != nil {
		return nil, err
	}

	limit := r.opts.TopK * 3
	if limit > len(vectorRanked) {
		limit = len(vectorRanked)
	}
	vectorRanks := make(map[int]int)
	for rank, s := range vectorRanked[:limit] {
		vectorRanks[s.idx] = rank + 1
	}
	bm25Ranks := make(map[int]int)
	for rank, s := range bm25Ranked {
		bm25Ranks[s.idx] = rank + 1
	}

	const k = 60.0
	allIdx := make(map[int]bool)
	for i := range vectorRanks {
		allIdx[i] = true
	}
	for i := range bm25Ranks {
		allIdx[i] = true
	}

	var fused []scoredChunk
	for i := range allIdx {
		score := 0.0
		if vr, ok := vectorRanks[i]; ok {
			score += 1.0 / (k + float64(vr))
		}
		if br, ok := bm25Ranks[i]; ok {
			score += 1.0 / (k + float64(br))
		}
		fused = append(fused, scoredChunk{i, score})
	}
	sort.Slice(fused, func(i, j int) bool {
		return fused[i].score > fused[j].score
	})

	return r.finalize(fused), nil
}

// finalize applies per-document dedup and the top-K cut, building Results.
func (r *Retriever) finalize(ranked []scoredChunk) []Result {
	seen := make(map[string]bool)
	var results []Result
	for _, s := range ranked {
		if len(results) >= r.opts.TopK {
			break
		}
		chunk := r.chunks[s.idx]
		if r.opts.Dedup {
			if seen[chunk.DocumentID] {
				continue
			}
			seen[chunk.DocumentID] = true
		}
		results = append(results, Result{
			ChunkID:     chunk.ID,
			DocumentID:  chunk.DocumentID,
			FileName:    chunk.FileName,
			Title:       chunk.Title,
			ChunkNumber: chunk.ChunkNumber,
			Text:        chunk.Text,
			Score:       s.score,
		})
	}
	return results
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func dotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
