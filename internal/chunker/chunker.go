// Package chunker splits extracted documents into bounded token windows.
//
// Chunk IDs are derived from the source document ID and the token offset of
// the window, so re-running the chunking stage over the same documents
// produces the same IDs and the store upserts instead of duplicating.
package chunker

import (
	"fmt"

	"docrag/internal/extractor"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk is one token window of a document, carrying enough source metadata
// to make retrieval results citable.
type Chunk struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"`
	FileName       string    `json:"file_name"`
	DirectoryPath  string    `json:"directory_path,omitempty"`
	Title          string    `json:"title,omitempty"`
	Author         string    `json:"author,omitempty"`
	Keywords       string    `json:"keywords,omitempty"`
	ContentType    string    `json:"content_type,omitempty"`
	Language       string    `json:"language,omitempty"`
	ChunkNumber    int       `json:"chunk_number"`
	TokenOffset    int       `json:"token_offset"`
	TokenCount     int       `json:"token_count"`
	Text           string    `json:"text"`
	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
}

// Tokenizer encodes text to token IDs and back. The production implementation
// wraps tiktoken; tests substitute a deterministic fake.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizer returns a Tokenizer for the named tiktoken encoding
// (e.g. "cl100k_base").
func NewTokenizer(encoding string) (Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &tiktokenTokenizer{enc: enc}, nil
}

func (t *tiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Splitter cuts documents into token windows of at most MaxTokens tokens,
// with Overlap tokens shared between consecutive windows.
type Splitter struct {
	tok       Tokenizer
	maxTokens int
	overlap   int
}

// NewSplitter validates the window parameters and returns a Splitter.
func NewSplitter(tok Tokenizer, maxTokens, overlap int) (*Splitter, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", maxTokens)
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("overlap must be in [0, max tokens), got %d", overlap)
	}
	return &Splitter{tok: tok, maxTokens: maxTokens, overlap: overlap}, nil
}

// Split tokenizes the document content and cuts it into windows. Documents
// with no content yield no chunks.
func (s *Splitter) Split(doc *extractor.Document) []Chunk {
	tokens := s.tok.Encode(doc.Content)
	if len(tokens) == 0 {
		return nil
	}

	step := s.maxTokens - s.overlap
	var chunks []Chunk

	for start := 0; start < len(tokens); start += step {
		end := start + s.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]

		chunks = append(chunks, Chunk{
			ID:            ChunkID(doc.ID, start),
			DocumentID:    doc.ID,
			FileName:      doc.FileName,
			DirectoryPath: doc.DirectoryPath,
			Title:         doc.Title,
			Author:        doc.Author,
			Keywords:      doc.Keywords,
			ContentType:   doc.ContentType,
			Language:      doc.Language,
			ChunkNumber:   len(chunks) + 1,
			TokenOffset:   start,
			TokenCount:    len(window),
			Text:          s.tok.Decode(window),
		})

		if end == len(tokens) {
			break
		}
	}

	return chunks
}

// ChunkID derives a chunk's stable ID from its document identity and the
// token offset of its window.
func ChunkID(docID string, tokenOffset int) string {
	return fmt.Sprintf("%s_t%06d", docID, tokenOffset)
}
