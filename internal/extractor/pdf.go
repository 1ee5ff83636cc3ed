package extractor

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPDF extracts text from a PDF page by page and joins the pages into
// one Document. Pages with no extractable text are skipped; a PDF that yields
// no text at all (scanned images) is an error.
func ExtractPDF(path string) (*Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var pages []string
	numPages := r.NumPage()

	for pageIndex := 1; pageIndex <= numPages; pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}

	if len(pages) == 0 && numPages > 0 {
		return nil, fmt.Errorf("no text extracted from %s (scanned PDF?)", path)
	}

	doc := newDocument(path, strings.Join(pages, "\n\n"), "application/pdf")
	return doc, nil
}
