package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/slinet/rippanda/internal/httpclient"
)

type fakeZipClient struct {
	pages     []*httpclient.Document
	pageIndex int
	downloads []string
}

func (f *fakeZipClient) LoadArchivePreparationPage(ctx context.Context, archiverURL string) (*httpclient.Document, error) {
	doc := f.pages[f.pageIndex]
	f.pageIndex++
	return doc, nil
}

func (f *fakeZipClient) LoadDocumentURL(ctx context.Context, rawURL string) (*httpclient.Document, error) {
	doc := f.pages[f.pageIndex]
	f.pageIndex++
	return doc, nil
}

func (f *fakeZipClient) DownloadFile(ctx context.Context, rawURL string, writer httpclient.WriterFunc) (bool, error) {
	f.downloads = append(f.downloads, rawURL)
	return writer(io.LimitReader(nil, 0), "gallery.zip", "application/zip")
}

func TestZipArchiverDirectReady(t *testing.T) {
	dir := t.TempDir()
	loader := &fakeLoader{data: map[string]any{"title": "t", "archiver_key": "key123"}}
	g := NewGallery(1, "abcdefabcd", dir, ModeDownload, loader)

	readyDoc, err := httpclient.ParseDocument([]byte(`<html><body><div id="db"><a href="https://example.org/dl/final.zip">dl</a></div></body></html>`), "https://example.org/")
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	fc := &fakeZipClient{pages: []*httpclient.Document{readyDoc}}
	arch := newZipArchiver(fc, "example.org")

	if err := arch.Process(context.Background(), g); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(fc.downloads) != 1 || fc.downloads[0] != "https://example.org/dl/final.zip" {
		t.Errorf("downloads = %v, want [https://example.org/dl/final.zip]", fc.downloads)
	}
	if _, err := os.Stat(filepath.Join(dir, "gallery.zip")); err != nil {
		t.Errorf("expected gallery.zip to be written: %v", err)
	}
}

func TestZipArchiverPollsThenCompletes(t *testing.T) {
	dir := t.TempDir()
	loader := &fakeLoader{data: map[string]any{"title": "t", "archiver_key": "key123"}}
	g := NewGallery(1, "abcdefabcd", dir, ModeDownload, loader)

	preparingDoc, err := httpclient.ParseDocument([]byte(`<html><body>
		<div id="continue"><a href="https://example.org/archiver.php?poll=1">continue</a></div>
		<script>setTimeout(function(){location.reload()}, 1)</script>
		</body></html>`), "https://example.org/")
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	readyDoc, err := httpclient.ParseDocument([]byte(`<html><body><div id="db"><a href="https://example.org/dl/final.zip">dl</a></div></body></html>`), "https://example.org/")
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	fc := &fakeZipClient{pages: []*httpclient.Document{preparingDoc, readyDoc}}
	arch := newZipArchiver(fc, "example.org")

	if err := arch.Process(context.Background(), g); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(fc.downloads) != 1 {
		t.Errorf("downloads = %d, want 1", len(fc.downloads))
	}
}
