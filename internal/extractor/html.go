package extractor

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// ExtractHTML parses an HTML file and extracts its visible text plus the
// metadata the document declares: <title>, <meta name="author">,
// <meta name="keywords"> and the <html lang> attribute.
func ExtractHTML(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open html file: %w", err)
	}
	defer f.Close()

	doc, err := ParseHTML(f)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	out := newDocument(path, doc.Text, "text/html")
	out.Title = doc.Title
	out.Author = doc.Author
	out.Keywords = doc.Keywords
	out.Language = doc.Language
	return out, nil
}

// HTMLDocument is the parsed form of an HTML page.
type HTMLDocument struct {
	Text     string
	Title    string
	Author   string
	Keywords string
	Language string
}

// ParseHTML walks an HTML tree collecting visible text and head metadata.
// Script and style contents are skipped.
func ParseHTML(r io.Reader) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	doc := &HTMLDocument{}
	var sb strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "html":
				doc.Language = attrValue(n, "lang")
			case "title":
				if n.FirstChild != nil {
					doc.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				switch strings.ToLower(attrValue(n, "name")) {
				case "author":
					doc.Author = attrValue(n, "content")
				case "keywords":
					doc.Keywords = attrValue(n, "content")
				}
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	doc.Text = sb.String()
	return doc, nil
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
