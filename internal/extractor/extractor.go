// Package extractor turns source files (PDF, DOCX, HTML, plain text) into
// uniform Document records ready for indexing.
package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is the uniform record produced for every extracted file.
type Document struct {
	ID            string `json:"id"`
	FileName      string `json:"file_name"`
	DirectoryPath string `json:"directory_path"`
	Content       string `json:"content"`
	ContentLength int    `json:"content_length"`
	Title         string `json:"title,omitempty"`
	Author        string `json:"author,omitempty"`
	Keywords      string `json:"keywords,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	Language      string `json:"language,omitempty"`
}

// DocumentID derives a stable ID from the source path. Re-indexing the same
// file always yields the same ID, so index runs upsert instead of duplicating.
func DocumentID(path string) string {
	clean := filepath.ToSlash(filepath.Clean(path))
	sum := sha256.Sum256([]byte(clean))
	return hex.EncodeToString(sum[:])[:16]
}

// ExtractFile dispatches on the file extension and extracts a Document.
// Unsupported extensions return ErrUnsupported.
func ExtractFile(path string) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return ExtractPDF(path)
	case ".docx":
		return ExtractDOCX(path)
	case ".html", ".htm":
		return ExtractHTML(path)
	case ".txt", ".md", ".text":
		return ExtractText(path)
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupported)
	}
}

// ErrUnsupported marks file types the extractor does not handle.
var ErrUnsupported = fmt.Errorf("unsupported file type")

// newDocument fills the path-derived fields shared by all extractors.
func newDocument(path, content, contentType string) *Document {
	content = strings.TrimSpace(content)
	return &Document{
		ID:            DocumentID(path),
		FileName:      filepath.Base(path),
		DirectoryPath: filepath.Dir(path),
		Content:       content,
		ContentLength: len(content),
		ContentType:   contentType,
	}
}

// ExtractText reads a plain text file as-is.
func ExtractText(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}
	return newDocument(path, string(data), "text/plain"), nil
}
