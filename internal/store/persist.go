package store

import (
	"encoding/gob"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"docrag/internal/chunker"
	"docrag/internal/extractor"
)

// Save writes the document and chunk records to disk in both binary (fast)
// and JSON (inspectable fallback) formats.
func (s *Store) Save() error {
	s.mu.Lock()
	docs := make([]extractor.Document, len(s.docs))
	copy(docs, s.docs)
	chunks := make([]chunker.Chunk, len(s.chunks))
	copy(chunks, s.chunks)
	s.mu.Unlock()

	if err := saveRecords(s.docsPath(), docs); err != nil {
		return err
	}
	return saveRecords(s.chunksPath(), chunks)
}

func saveRecords[T any](jsonPath string, records []T) error {
	gobPath := strings.TrimSuffix(jsonPath, ".json") + ".gob"
	if err := saveBinary(gobPath, records); err != nil {
		log.Printf("Warning: failed to save binary records %s: %v", gobPath, err)
	}

	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return os.WriteFile(jsonPath, data, 0o644)
}

func saveBinary[T any](path string, records []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(records)
}

// loadRecords restores documents and chunks from disk, trying binary first
// and falling back to JSON. Missing files leave the store empty.
func (s *Store) loadRecords() error {
	start := time.Now()

	docs, err := loadSlice[extractor.Document](s.docsPath())
	if err != nil {
		return err
	}
	chunks, err := loadSlice[chunker.Chunk](s.chunksPath())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.docs = docs
	s.docByID = make(map[string]int, len(docs))
	for i, d := range docs {
		s.docByID[d.ID] = i
	}
	s.chunks = chunks
	s.chunkByID = make(map[string]int, len(chunks))
	for i, c := range chunks {
		s.chunkByID[c.ID] = i
	}
	s.mu.Unlock()

	if len(docs) > 0 || len(chunks) > 0 {
		log.Printf("Loaded %d documents, %d chunks in %v", len(docs), len(chunks), time.Since(start))
	}
	return nil
}

func loadSlice[T any](jsonPath string) ([]T, error) {
	gobPath := strings.TrimSuffix(jsonPath, ".json") + ".gob"
	if _, err := os.Stat(gobPath); err == nil {
		records, err := loadBinary[T](gobPath)
		if err == nil {
			return records, nil
		}
		log.Printf("Binary load failed, falling back to JSON: %v", err)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func loadBinary[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var records []T
	if err := gob.NewDecoder(f).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}
