package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/slinet/rippanda/internal/httpclient"
)

type fakeSearchClient struct {
	pages map[string]*httpclient.Document
}

func (f *fakeSearchClient) LoadDocumentURL(ctx context.Context, rawURL string) (*httpclient.Document, error) {
	doc, ok := f.pages[rawURL]
	if !ok {
		return nil, os.ErrNotExist
	}
	return doc, nil
}

type noopArchiver struct {
	name string
	log  *[]string
}

func (a *noopArchiver) Name() string { return a.name }
func (a *noopArchiver) IsRequired(ctx context.Context, g *Gallery) (bool, error) {
	return true, nil
}
func (a *noopArchiver) Process(ctx context.Context, g *Gallery) error {
	*a.log = append(*a.log, a.name)
	return nil
}

func parseFixtureDoc(t *testing.T, html, base string) *httpclient.Document {
	t.Helper()
	doc, err := httpclient.ParseDocument([]byte(html), base)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	return doc
}

func TestDownloaderSinglePageNoNext(t *testing.T) {
	dir := t.TempDir()
	successDir := t.TempDir()

	page := parseFixtureDoc(t, `<html><body>
		<div id="searchbox"></div>
		<table class="gltc"><tr>
			<td class="gl1c"></td>
			<td class="glname"><a href="https://example.org/g/100/aaaaaaaaaa/">title</a></td>
		</tr></table>
		</body></html>`, "https://example.org/")

	client := &fakeSearchClient{pages: map[string]*httpclient.Document{
		"https://example.org/?search": page,
	}}

	var log []string
	archivers := []ElementArchiver{&noopArchiver{name: "metadata", log: &log}}
	ledger := NewLedger(successDir, "1")
	loader := &fakeLoader{data: map[string]any{"title": "t"}}

	d := NewDownloader(client, archivers, ledger, loader, dir, RetryConfig{MaxRetries: 1}, false, nil)

	if err := d.Run(context.Background(), "https://example.org/?search"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(log) != 1 || log[0] != "metadata" {
		t.Errorf("archiver log = %v, want [metadata]", log)
	}
	if !ledger.IsInSuccessIds(100) {
		t.Error("expected gallery 100 recorded as a success id")
	}
	if _, err := os.Stat(filepath.Join(successDir, "success-1-temp.txt")); !os.IsNotExist(err) {
		t.Errorf("expected temp ledger removed on exit, stat err = %v", err)
	}
}

func TestDownloaderSkipsKnownSuccessIds(t *testing.T) {
	dir := t.TempDir()
	successDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(successDir, "success-1.txt"), []byte("100\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	page := parseFixtureDoc(t, `<html><body>
		<div id="searchbox"></div>
		<table class="gltc"><tr>
			<td class="gl1c"></td>
			<td class="glname"><a href="https://example.org/g/100/aaaaaaaaaa/">title</a></td>
		</tr></table>
		</body></html>`, "https://example.org/")
	client := &fakeSearchClient{pages: map[string]*httpclient.Document{
		"https://example.org/?search": page,
	}}

	var log []string
	archivers := []ElementArchiver{&noopArchiver{name: "metadata", log: &log}}
	ledger := NewLedger(successDir, "1")
	loader := &fakeLoader{data: map[string]any{"title": "t"}}

	d := NewDownloader(client, archivers, ledger, loader, dir, RetryConfig{MaxRetries: 1}, false, nil)
	if err := d.Run(context.Background(), "https://example.org/?search"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(log) != 0 {
		t.Errorf("expected no archiver calls for an already-archived gallery, got %v", log)
	}
}

func TestDownloaderCatchupStopsWhenPageFullyKnown(t *testing.T) {
	dir := t.TempDir()
	successDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(successDir, "success-1.txt"), []byte("100\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	page1 := parseFixtureDoc(t, `<html><body>
		<div id="searchbox"></div>
		<table class="gltc"><tr>
			<td class="gl1c"></td>
			<td class="glname"><a href="https://example.org/g/100/aaaaaaaaaa/">title</a></td>
		</tr></table>
		<a id="unext" href="https://example.org/?page2">next</a>
		</body></html>`, "https://example.org/")
	page2 := parseFixtureDoc(t, `<html><body>
		<div id="searchbox"></div>
		<table class="gltc"><tr>
			<td class="gl1c"></td>
			<td class="glname"><a href="https://example.org/g/200/bbbbbbbbbb/">title</a></td>
		</tr></table>
		</body></html>`, "https://example.org/")

	client := &fakeSearchClient{pages: map[string]*httpclient.Document{
		"https://example.org/?search": page1,
		"https://example.org/?page2":  page2,
	}}

	var log []string
	archivers := []ElementArchiver{&noopArchiver{name: "metadata", log: &log}}
	ledger := NewLedger(successDir, "1")
	loader := &fakeLoader{data: map[string]any{"title": "t"}}

	d := NewDownloader(client, archivers, ledger, loader, dir, RetryConfig{MaxRetries: 1}, true, nil)
	if err := d.Run(context.Background(), "https://example.org/?search"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(log) != 0 {
		t.Errorf("expected catchup mode to stop before fetching page2, got archiver calls %v", log)
	}
}
