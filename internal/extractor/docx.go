package extractor

import (
	"fmt"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// ExtractDOCX extracts text from a DOCX file. The document XML is split on
// paragraph tags and stripped of markup, then joined with newlines.
func ExtractDOCX(path string) (*Document, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read docx: %w", err)
	}
	defer r.Close()

	doc := r.Editable()
	paragraphs := splitDOCXParagraphs(doc.GetContent())

	return newDocument(path, strings.Join(paragraphs, "\n"), docxContentType), nil
}

// splitDOCXParagraphs splits DOCX XML content by <w:p> paragraph tags
// and strips all XML tags from each paragraph, returning clean text.
func splitDOCXParagraphs(xmlStr string) []string {
	parts := strings.Split(xmlStr, "<w:p")
	var paragraphs []string

	for _, part := range parts {
		cleaned := strings.TrimSpace(stripTags(part))
		if cleaned != "" {
			paragraphs = append(paragraphs, cleaned)
		}
	}

	return paragraphs
}

func stripTags(xmlStr string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range xmlStr {
		if r == '<' {
			inTag = true
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
