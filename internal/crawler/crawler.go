// Package crawler downloads the pages and PDFs of a site section into a
// local directory tree that mirrors the URL layout.
package crawler

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Stats reports what a crawl did.
type Stats struct {
	Fetched int // URLs requested
	Saved   int // files written
	Skipped int // files already present on disk
}

// Crawler walks pages breadth-first starting from one URL. It stays on
// the start host under the start path prefix, except that PDF links are
// followed anywhere.
type Crawler struct {
	client   *http.Client
	outDir   string
	maxFiles int
	delay    time.Duration
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(cr *Crawler) { cr.client = c }
}

// WithDelay inserts a pause between requests.
func WithDelay(d time.Duration) Option {
	return func(cr *Crawler) { cr.delay = d }
}

// New builds a Crawler writing under outDir. maxFiles <= 0 means no cap.
func New(outDir string, maxFiles int, opts ...Option) *Crawler {
	c := &Crawler{
		client:   &http.Client{Timeout: 30 * time.Second},
		outDir:   outDir,
		maxFiles: maxFiles,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl fetches startURL and everything reachable from it within scope.
func (c *Crawler) Crawl(ctx context.Context, startURL string) (*Stats, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return nil, fmt.Errorf("start URL must be http(s), got %q", start.Scheme)
	}

	scopeHost := start.Host
	scopePrefix := start.Path
	if !strings.HasSuffix(scopePrefix, "/") {
		scopePrefix = path.Dir(scopePrefix)
		if scopePrefix != "/" {
			scopePrefix += "/"
		}
	}

	stats := &Stats{}
	visited := map[string]bool{}
	queue := []*url.URL{start}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if c.maxFiles > 0 && stats.Saved >= c.maxFiles {
			log.Printf("Reached file limit (%d), stopping crawl", c.maxFiles)
			break
		}

		u := queue[0]
		queue = queue[1:]

		key := u.Scheme + "://" + u.Host + u.Path
		if visited[key] {
			continue
		}
		visited[key] = true

		dest := c.localPath(u)
		if isPDF(u.Path) {
			if _, err := os.Stat(dest); err == nil {
				stats.Skipped++
				continue
			}
		}

		if c.delay > 0 && stats.Fetched > 0 {
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				return stats, ctx.Err()
			}
		}

		body, contentType, err := c.fetch(ctx, u)
		stats.Fetched++
		if err != nil {
			log.Printf("Skipping %s: %v", u, err)
			continue
		}

		isHTML := strings.Contains(contentType, "text/html")
		dest = withExtension(dest, contentType)

		if _, err := os.Stat(dest); err == nil {
			stats.Skipped++
		} else {
			if err := writeFile(dest, body); err != nil {
				log.Printf("Failed to save %s: %v", dest, err)
				continue
			}
			stats.Saved++
			log.Printf("Saved %s", dest)
		}

		if !isHTML {
			continue
		}
		for _, link := range extractLinks(u, body) {
			if c.inScope(link, scopeHost, scopePrefix) {
				queue = append(queue, link)
			}
		}
	}

	return stats, nil
}

func (c *Crawler) fetch(ctx context.Context, u *url.URL) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// inScope reports whether a link should be crawled: pages only on the
// start host under the start prefix, PDFs from anywhere.
func (c *Crawler) inScope(link *url.URL, scopeHost, scopePrefix string) bool {
	if link.Scheme != "http" && link.Scheme != "https" {
		return false
	}
	if isPDF(link.Path) {
		return true
	}
	return link.Host == scopeHost && strings.HasPrefix(link.Path, scopePrefix)
}

// localPath maps a URL onto the output directory, mirroring the URL path.
// Percent-encoded segments are unescaped so filenames stay readable.
func (c *Crawler) localPath(u *url.URL) string {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(part); err == nil {
			part = unescaped
		}
		cleaned = append(cleaned, part)
	}
	if len(cleaned) == 0 {
		cleaned = []string{"index"}
	}
	return filepath.Join(append([]string{c.outDir, u.Host}, cleaned...)...)
}

// withExtension appends a file extension derived from the Content-Type
// when the path does not already carry one.
func withExtension(dest, contentType string) string {
	if filepath.Ext(dest) != "" {
		return dest
	}
	switch {
	case strings.Contains(contentType, "text/html"):
		return dest + ".html"
	case strings.Contains(contentType, "application/pdf"):
		return dest + ".pdf"
	default:
		return dest + ".txt"
	}
}

func isPDF(p string) bool {
	return strings.HasSuffix(strings.ToLower(p), ".pdf")
}

func writeFile(dest string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return os.WriteFile(dest, body, 0644)
}

// extractLinks pulls href targets out of an HTML page and resolves them
// against the page URL. Fragments are dropped so #anchors do not create
// duplicate crawl targets.
func extractLinks(base *url.URL, body []byte) []*url.URL {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	var links []*url.URL
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(attr.Val)
				if err != nil {
					continue
				}
				resolved := base.ResolveReference(ref)
				resolved.Fragment = ""
				links = append(links, resolved)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return links
}
