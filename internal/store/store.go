// Package store is the local search store behind the pipeline commands:
// a bleve full-text index for documents and chunks plus a gob/JSON sidecar
// holding the chunk records and their embedding vectors.
//
// All writes are upserts keyed on stable document and chunk IDs, so pipeline
// stages can be re-run without duplicating data.
package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"docrag/internal/chunker"
	"docrag/internal/extractor"

	"github.com/blevesearch/bleve/v2"
)

// Store manages the on-disk indexes under a data directory.
type Store struct {
	dataDir string

	docIndex   bleve.Index // full-text search over document content
	chunkIndex bleve.Index // BM25 over chunk text

	mu        sync.Mutex
	docs      []extractor.Document
	docByID   map[string]int
	chunks    []chunker.Chunk
	chunkByID map[string]int
}

func (s *Store) docIndexPath() string   { return filepath.Join(s.dataDir, "documents.bleve") }
func (s *Store) chunkIndexPath() string { return filepath.Join(s.dataDir, "chunks.bleve") }
func (s *Store) docsPath() string       { return filepath.Join(s.dataDir, "documents.json") }
func (s *Store) chunksPath() string     { return filepath.Join(s.dataDir, "chunks.json") }

// Open opens the store under dataDir, creating it if absent.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{
		dataDir:   dataDir,
		docByID:   make(map[string]int),
		chunkByID: make(map[string]int),
	}

	var err error
	s.docIndex, err = openOrCreateIndex(s.docIndexPath())
	if err != nil {
		return nil, fmt.Errorf("open document index: %w", err)
	}
	s.chunkIndex, err = openOrCreateIndex(s.chunkIndexPath())
	if err != nil {
		_ = s.docIndex.Close()
		return nil, fmt.Errorf("open chunk index: %w", err)
	}

	if err := s.loadRecords(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func openOrCreateIndex(path string) (bleve.Index, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		mapping := bleve.NewIndexMapping()
		return bleve.New(path, mapping)
	}
	return bleve.Open(path)
}

// Replace wipes the store and reopens it empty.
func Replace(dataDir string) (*Store, error) {
	for _, name := range []string{
		"documents.bleve", "chunks.bleve",
		"documents.json", "documents.gob",
		"chunks.json", "chunks.gob",
	} {
		if err := os.RemoveAll(filepath.Join(dataDir, name)); err != nil {
			return nil, fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return Open(dataDir)
}

// Close closes the bleve indexes. Records already saved stay on disk.
func (s *Store) Close() error {
	var firstErr error
	if s.docIndex != nil {
		if err := s.docIndex.Close(); err != nil {
			firstErr = err
		}
	}
	if s.chunkIndex != nil {
		if err := s.chunkIndex.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ========== Documents ==========

// UpsertDocument inserts or replaces the document record and its full-text
// index entry, keyed on the document's stable ID.
func (s *Store) UpsertDocument(doc *extractor.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document has no ID")
	}

	s.mu.Lock()
	if i, ok := s.docByID[doc.ID]; ok {
		s.docs[i] = *doc
	} else {
		s.docByID[doc.ID] = len(s.docs)
		s.docs = append(s.docs, *doc)
	}
	s.mu.Unlock()

	return s.docIndex.Index(doc.ID, map[string]interface{}{
		"file_name": doc.FileName,
		"content":   doc.Content,
		"title":     doc.Title,
		"author":    doc.Author,
		"keywords":  doc.Keywords,
	})
}

// Documents returns a copy of all document records.
func (s *Store) Documents() []extractor.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]extractor.Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// DocumentCount returns the number of stored documents.
func (s *Store) DocumentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// ========== Chunks ==========

// UpsertChunks inserts or replaces chunk records keyed on their stable IDs.
// A re-chunk run that produces an unchanged chunk keeps the embedding already
// computed for it, so the embed stage stays resumable.
func (s *Store) UpsertChunks(chunks []chunker.Chunk) error {
	s.mu.Lock()
	for _, c := range chunks {
		if i, ok := s.chunkByID[c.ID]; ok {
			prev := s.chunks[i]
			if c.Embedding == nil && prev.Text == c.Text {
				c.Embedding = prev.Embedding
				c.EmbeddingModel = prev.EmbeddingModel
			}
			s.chunks[i] = c
		} else {
			s.chunkByID[c.ID] = len(s.chunks)
			s.chunks = append(s.chunks, c)
		}
	}
	s.mu.Unlock()

	for _, c := range chunks {
		err := s.chunkIndex.Index(c.ID, map[string]interface{}{
			"id":       c.ID,
			"text":     c.Text,
			"document": c.FileName,
			"chunk":    c.ChunkNumber,
		})
		if err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// ReplaceDocumentChunks upserts the new split for a document and removes any
// of the document's previous chunks the split no longer produces. Without the
// removal, re-chunking a document that shrank would leave trailing chunks
// with stale text and embeddings in the store and the BM25 index.
func (s *Store) ReplaceDocumentChunks(docID string, chunks []chunker.Chunk) error {
	if err := s.UpsertChunks(chunks); err != nil {
		return err
	}

	keep := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		keep[c.ID] = true
	}

	s.mu.Lock()
	var stale []string
	var kept []chunker.Chunk
	for _, c := range s.chunks {
		if c.DocumentID == docID && !keep[c.ID] {
			stale = append(stale, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept
	s.chunkByID = make(map[string]int, len(kept))
	for i, c := range kept {
		s.chunkByID[c.ID] = i
	}
	s.mu.Unlock()

	for _, id := range stale {
		if err := s.chunkIndex.Delete(id); err != nil {
			log.Printf("Failed to delete chunk %s from index: %v", id, err)
		}
	}
	return nil
}

// Chunks returns a copy of all chunk records.
func (s *Store) Chunks() []chunker.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chunker.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// ChunkCount returns the number of stored chunks.
func (s *Store) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// PendingChunks returns the chunks that still need an embedding from the
// given model. Chunks embedded with a different model are re-embedded.
func (s *Store) PendingChunks(model string) []chunker.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chunker.Chunk
	for _, c := range s.chunks {
		if len(c.Embedding) == 0 || c.EmbeddingModel != model {
			out = append(out, c)
		}
	}
	return out
}

// SetEmbedding attaches a vector to the chunk with the given ID.
func (s *Store) SetEmbedding(id string, vec []float32, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.chunkByID[id]
	if !ok {
		return fmt.Errorf("chunk not found: %s", id)
	}
	s.chunks[i].Embedding = vec
	s.chunks[i].EmbeddingModel = model
	return nil
}

// SearchChunks runs a BM25 match query over the chunk text.
func (s *Store) SearchChunks(query string, size int) (*bleve.SearchResult, error) {
	matchQuery := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(matchQuery)
	req.Size = size
	return s.chunkIndex.Search(req)
}

// DeleteDocument removes a document and all its chunks from the store.
func (s *Store) DeleteDocument(docID string) error {
	s.mu.Lock()
	if i, ok := s.docByID[docID]; ok {
		s.docs = append(s.docs[:i], s.docs[i+1:]...)
		delete(s.docByID, docID)
		for id, j := range s.docByID {
			if j > i {
				s.docByID[id] = j - 1
			}
		}
	}
	var removed []string
	var kept []chunker.Chunk
	for _, c := range s.chunks {
		if c.DocumentID == docID {
			removed = append(removed, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept
	s.chunkByID = make(map[string]int, len(kept))
	for i, c := range kept {
		s.chunkByID[c.ID] = i
	}
	s.mu.Unlock()

	if err := s.docIndex.Delete(docID); err != nil {
		log.Printf("Failed to delete document %s from index: %v", docID, err)
	}
	for _, id := range removed {
		if err := s.chunkIndex.Delete(id); err != nil {
			log.Printf("Failed to delete chunk %s from index: %v", id, err)
		}
	}
	return nil
}
