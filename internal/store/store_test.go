package store

import (
	"testing"

	"docrag/internal/chunker"
	"docrag/internal/extractor"
)

func testDoc(id, name, content string) *extractor.Document {
	return &extractor.Document{
		ID:            id,
		FileName:      name,
		Content:       content,
		ContentLength: len(content),
	}
}

func testChunk(id, docID, text string) chunker.Chunk {
	return chunker.Chunk{
		ID:         id,
		DocumentID: docID,
		FileName:   docID + ".txt",
		Text:       text,
	}
}

// ========== Documents ==========

func TestUpsertDocument_InsertAndReplace(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer s.Close()

	if err := s.UpsertDocument(testDoc("d1", "a.txt", "first version")); err != nil {
		t.Fatalf("upsert error: %v", err)
	}
	if err := s.UpsertDocument(testDoc("d1", "a.txt", "second version")); err != nil {
		t.Fatalf("upsert error: %v", err)
	}

	if s.DocumentCount() != 1 {
		t.Fatalf("expected 1 document after double upsert, got %d", s.DocumentCount())
	}
	if s.Documents()[0].Content != "second version" {
		t.Errorf("content = %q, want second version", s.Documents()[0].Content)
	}
}

func TestUpsertDocument_MissingID(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.UpsertDocument(&extractor.Document{FileName: "x.txt"}); err == nil {
		t.Error("expected error for document without ID")
	}
}

// ========== Chunks ==========

func TestUpsertChunks_Idempotent(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	chunks := []chunker.Chunk{
		testChunk("d1_t000000", "d1", "alpha"),
		testChunk("d1_t000448", "d1", "beta"),
	}
	if err := s.UpsertChunks(chunks); err != nil {
		t.Fatalf("upsert error: %v", err)
	}
	if err := s.UpsertChunks(chunks); err != nil {
		t.Fatalf("upsert error: %v", err)
	}

	if s.ChunkCount() != 2 {
		t.Errorf("expected 2 chunks after re-run, got %d", s.ChunkCount())
	}
}

func TestUpsertChunks_KeepsEmbeddingWhenTextUnchanged(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	c := testChunk("d1_t000000", "d1", "alpha")
	if err := s.UpsertChunks([]chunker.Chunk{c}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetEmbedding(c.ID, []float32{1, 2, 3}, "test-model"); err != nil {
		t.Fatal(err)
	}

	// Re-chunk run produces the same chunk without an embedding
	if err := s.UpsertChunks([]chunker.Chunk{c}); err != nil {
		t.Fatal(err)
	}

	got := s.Chunks()[0]
	if len(got.Embedding) != 3 || got.EmbeddingModel != "test-model" {
		t.Errorf("embedding lost on unchanged re-chunk: %+v", got)
	}
}

func TestUpsertChunks_DropsEmbeddingWhenTextChanged(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	c := testChunk("d1_t000000", "d1", "alpha")
	if err := s.UpsertChunks([]chunker.Chunk{c}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetEmbedding(c.ID, []float32{1, 2, 3}, "test-model"); err != nil {
		t.Fatal(err)
	}

	c.Text = "alpha changed"
	if err := s.UpsertChunks([]chunker.Chunk{c}); err != nil {
		t.Fatal(err)
	}

	got := s.Chunks()[0]
	if len(got.Embedding) != 0 {
		t.Error("embedding should be dropped when chunk text changes")
	}
}

func TestReplaceDocumentChunks_DropsStaleAfterShrink(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.UpsertChunks([]chunker.Chunk{
		testChunk("d1_t000000", "d1", "old window one"),
		testChunk("d1_t000448", "d1", "old window two"),
		testChunk("d2_t000000", "d2", "other document"),
	}); err != nil {
		t.Fatal(err)
	}

	// The document shrank: the new split produces only one chunk.
	newSplit := []chunker.Chunk{testChunk("d1_t000000", "d1", "new window")}
	if err := s.ReplaceDocumentChunks("d1", newSplit); err != nil {
		t.Fatalf("replace error: %v", err)
	}

	var d1Chunks []chunker.Chunk
	for _, c := range s.Chunks() {
		if c.DocumentID == "d1" {
			d1Chunks = append(d1Chunks, c)
		}
	}
	if len(d1Chunks) != 1 {
		t.Fatalf("want 1 chunk for d1 after re-chunk, got %d", len(d1Chunks))
	}
	if d1Chunks[0].Text != "new window" {
		t.Errorf("surviving chunk text = %q, want new window", d1Chunks[0].Text)
	}
	if s.ChunkCount() != 2 {
		t.Errorf("chunks = %d, want 2 (d1 replacement + untouched d2)", s.ChunkCount())
	}

	// The stale trailing chunk must also be gone from the BM25 index.
	res, err := s.SearchChunks("old window two", 10)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	for _, hit := range res.Hits {
		if hit.ID == "d1_t000448" {
			t.Error("stale chunk still searchable after re-chunk")
		}
	}
}

func TestPendingChunks(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.UpsertChunks([]chunker.Chunk{
		testChunk("c1", "d1", "one"),
		testChunk("c2", "d1", "two"),
		testChunk("c3", "d1", "three"),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetEmbedding("c2", []float32{1}, "model-a"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetEmbedding("c3", []float32{1}, "model-b"); err != nil {
		t.Fatal(err)
	}

	pending := s.PendingChunks("model-a")
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending (never embedded + other model), got %d", len(pending))
	}
	ids := map[string]bool{}
	for _, c := range pending {
		ids[c.ID] = true
	}
	if !ids["c1"] || !ids["c3"] {
		t.Errorf("pending IDs = %v, want c1 and c3", ids)
	}
}

func TestSetEmbedding_UnknownChunk(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.SetEmbedding("nope", []float32{1}, "m"); err == nil {
		t.Error("expected error for unknown chunk")
	}
}

// ========== Persistence ==========

func TestSaveAndReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertDocument(testDoc("d1", "a.txt", "hello world")); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertChunks([]chunker.Chunk{testChunk("c1", "d1", "hello world")}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetEmbedding("c1", []float32{0.1, 0.2}, "m"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	if reopened.DocumentCount() != 1 || reopened.ChunkCount() != 1 {
		t.Fatalf("reopened counts: docs=%d chunks=%d", reopened.DocumentCount(), reopened.ChunkCount())
	}
	c := reopened.Chunks()[0]
	if len(c.Embedding) != 2 || c.EmbeddingModel != "m" {
		t.Errorf("embedding not persisted: %+v", c)
	}
}

func TestReplace_WipesStore(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertDocument(testDoc("d1", "a.txt", "content")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	replaced, err := Replace(dir)
	if err != nil {
		t.Fatalf("Replace error: %v", err)
	}
	defer replaced.Close()

	if replaced.DocumentCount() != 0 {
		t.Errorf("expected empty store after replace, got %d docs", replaced.DocumentCount())
	}
}

// ========== BM25 search ==========

func TestSearchChunks_FindsMatch(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.UpsertChunks([]chunker.Chunk{
		testChunk("c1", "d1", "the quarterly revenue report"),
		testChunk("c2", "d1", "employee onboarding checklist"),
	}); err != nil {
		t.Fatal(err)
	}

	res, err := s.SearchChunks("revenue", 10)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if res.Hits.Len() == 0 {
		t.Fatal("expected at least one hit for 'revenue'")
	}
	if res.Hits[0].ID != "c1" {
		t.Errorf("top hit = %s, want c1", res.Hits[0].ID)
	}
}

// ========== DeleteDocument ==========

func TestDeleteDocument_RemovesChunks(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.UpsertDocument(testDoc("d1", "a.txt", "one")); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertDocument(testDoc("d2", "b.txt", "two")); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertChunks([]chunker.Chunk{
		testChunk("c1", "d1", "one"),
		testChunk("c2", "d2", "two"),
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteDocument("d1"); err != nil {
		t.Fatalf("delete error: %v", err)
	}

	if s.DocumentCount() != 1 {
		t.Errorf("documents = %d, want 1", s.DocumentCount())
	}
	if s.ChunkCount() != 1 {
		t.Errorf("chunks = %d, want 1", s.ChunkCount())
	}
	if s.Chunks()[0].ID != "c2" {
		t.Errorf("remaining chunk = %s, want c2", s.Chunks()[0].ID)
	}
}
