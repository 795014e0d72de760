package httpclient

import (
	"bytes"
	"fmt"
	"net/url"
	"os"

	"github.com/PuerkitoBio/goquery"
)

// Document wraps a goquery.Document with the base URL it was fetched from
// (or, for a locally re-parsed page, the site's configured base), so
// selectors that need absolute URLs (spec §4.4.7's "#db a[abs:href]") can
// resolve them explicitly — goquery itself only exposes raw href attributes.
// Raw holds the exact bytes the page was parsed from, since archivers that
// persist the page itself (page.html, expungelog.html) must save
// the server's original bytes, not a goquery re-serialization.
type Document struct {
	*goquery.Document
	baseURL *url.URL
	Raw     []byte
}

// Resolve turns a possibly-relative href into an absolute URL against the
// document's base.
func (d *Document) Resolve(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return d.baseURL.ResolveReference(ref).String()
}

func newDocument(raw []byte, base *url.URL) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{Document: gq, baseURL: base, Raw: raw}, nil
}

// ParseDocument parses raw HTML bytes against baseURL, for callers (and
// tests) that hold a document outside of a live fetch or a local re-parse.
func ParseDocument(raw []byte, baseURL string) (*Document, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	return newDocument(raw, base)
}

// LoadDocumentFile parses a local HTML file with the client's configured
// base URL set as the document base, for UPDATE-mode re-parsing of
// previously archived pages (spec §4.1's "loadDocument(path)").
func (c *Client) LoadDocumentFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return newDocument(data, c.baseURL)
}
