package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/slinet/rippanda/internal/httpclient"
)

type fakeTorrentClient struct {
	listDoc   *httpclient.Document
	rawCalls  []string
	downloads []string
	failMIME  bool
}

func (f *fakeTorrentClient) LoadTorrentPage(ctx context.Context, id int64, token string, cacheBypass bool) (*httpclient.Document, error) {
	return f.listDoc, nil
}

func (f *fakeTorrentClient) GetRaw(ctx context.Context, rawURL string) error {
	f.rawCalls = append(f.rawCalls, rawURL)
	return nil
}

func (f *fakeTorrentClient) DownloadFile(ctx context.Context, rawURL string, writer httpclient.WriterFunc) (bool, error) {
	f.downloads = append(f.downloads, rawURL)
	mime := "application/x-bittorrent"
	if f.failMIME {
		mime = "text/html"
	}
	return writer(nopReader{}, "", mime)
}

type nopReader struct{}

func (nopReader) Read(p []byte) (int, error) { return 0, io.EOF }

func TestTorrentReconciliationKeepsMatchedDeletesStale(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	// "kept.torrent": size matches an api torrent and mtime is after added.
	keptAdded := now.Add(-time.Hour)
	if err := os.WriteFile(filepath.Join(dir, "kept.torrent"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(filepath.Join(dir, "kept.torrent"), now, now); err != nil {
		t.Fatal(err)
	}

	// "stale.torrent": no matching api torrent entry at all -> must be deleted.
	if err := os.WriteFile(filepath.Join(dir, "stale.torrent"), make([]byte, 999), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := &fakeLoader{data: map[string]any{
		"title": "t",
		"torrents": []any{
			map[string]any{"hash": "aaaa000000000000000000000000000000000a", "tsize": float64(100), "added": float64(keptAdded.Unix())},
			map[string]any{"hash": "bbbb000000000000000000000000000000000b", "tsize": float64(500), "added": float64(now.Add(-time.Hour).Unix())},
		},
	}}

	g := NewGallery(42, "abcdefabcd", dir, ModeDownload, loader)

	listHTML := `<html><body><div id="torrentinfo">
		<a href="/get.torrent?x=bbbb000000000000000000000000000000000b">dl</a>
	</div></body></html>`
	listDoc, err := httpclient.ParseDocument([]byte(listHTML), "https://example.org/")
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	fc := &fakeTorrentClient{listDoc: listDoc}
	arch := newTorrentArchiver(fc)

	if err := arch.Process(context.Background(), g); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "kept.torrent")); err != nil {
		t.Errorf("expected kept.torrent to survive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "stale.torrent")); !os.IsNotExist(err) {
		t.Errorf("expected stale.torrent to be deleted, stat err = %v", err)
	}
	if len(fc.downloads) != 1 {
		t.Errorf("downloads = %d, want 1 (only the missing bbbb torrent)", len(fc.downloads))
	}
}

func TestTorrentCookieRefreshOnAllMIMEFailures(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	loader := &fakeLoader{data: map[string]any{
		"title": "t",
		"torrents": []any{
			map[string]any{"hash": "cccc000000000000000000000000000000000c", "tsize": float64(10), "added": float64(now.Unix())},
		},
	}}
	g := NewGallery(1, "abcdefabcd", dir, ModeDownload, loader)

	listHTML := `<html><body><div id="torrentinfo">
		<a href="/get.torrent?x=cccc000000000000000000000000000000000c" onclick="document.location='/refresh?token=xyz'">dl</a>
	</div></body></html>`
	listDoc, err := httpclient.ParseDocument([]byte(listHTML), "https://example.org/")
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	fc := &fakeTorrentClient{listDoc: listDoc, failMIME: true}
	arch := newTorrentArchiver(fc)

	err = arch.Process(context.Background(), g)
	if err == nil {
		t.Fatal("expected an error since the refetch after cookie refresh still fails MIME")
	}
	if len(fc.rawCalls) != 1 {
		t.Errorf("expected exactly one cookie-refresh GetRaw call, got %d", len(fc.rawCalls))
	}
}
