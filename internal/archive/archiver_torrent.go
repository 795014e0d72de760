package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/slinet/rippanda/internal/config"
	"github.com/slinet/rippanda/internal/httpclient"
)

// apiTorrent is the (hash, tsize, added) tuple of spec §3's glossary, parsed
// out of metadata.torrents[].
type apiTorrent struct {
	Hash  string
	Size  int64
	Added time.Time
}

func parseAPITorrents(metadata map[string]any) []apiTorrent {
	raw, _ := metadata["torrents"].([]any)
	torrents := make([]apiTorrent, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		hash, _ := m["hash"].(string)
		size := toInt64(m["tsize"])
		added := toInt64(m["added"])
		if hash == "" {
			continue
		}
		torrents = append(torrents, apiTorrent{
			Hash:  hash,
			Size:  size,
			Added: time.Unix(added, 0),
		})
	}
	return torrents
}

// toInt64 tolerates the API returning a number either as JSON float64 or as
// a numeric string (both are observed in the wild for torrent fields).
func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i
	default:
		return 0
	}
}

type torrentLoader interface {
	LoadTorrentPage(ctx context.Context, id int64, token string, cacheBypass bool) (*httpclient.Document, error)
	GetRaw(ctx context.Context, rawURL string) error
	DownloadFile(ctx context.Context, rawURL string, writer httpclient.WriterFunc) (bool, error)
}

type torrentArchiver struct {
	client torrentLoader
}

func newTorrentArchiver(client torrentLoader) *torrentArchiver {
	return &torrentArchiver{client: client}
}

func (a *torrentArchiver) Name() string { return config.ElementTorrent }

func (a *torrentArchiver) IsRequired(ctx context.Context, g *Gallery) (bool, error) {
	unavailable, err := g.IsUnavailable(ctx)
	if err != nil {
		return false, err
	}
	return !unavailable, nil
}

func (a *torrentArchiver) Process(ctx context.Context, g *Gallery) error {
	if err := g.EnsureLoadedUpToDate(ctx); err != nil {
		return fmt.Errorf("gallery %d: load metadata for torrents: %w", g.ID, err)
	}
	remaining := parseAPITorrents(g.Metadata())

	files, err := g.Files(ctx)
	if err != nil {
		return err
	}
	for name, info := range files {
		if !strings.HasSuffix(name, ".torrent") {
			continue
		}
		matched := -1
		for i, t := range remaining {
			if info.Size() == t.Size && info.ModTime().After(t.Added) {
				matched = i
				break
			}
		}
		if matched >= 0 {
			remaining = append(remaining[:matched], remaining[matched+1:]...)
			continue
		}
		if err := os.Remove(filepath.Join(g.Dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("gallery %d: remove stale torrent %s: %w", g.ID, name, err)
		}
	}

	if len(remaining) == 0 {
		return nil
	}

	doc, err := a.client.LoadTorrentPage(ctx, g.ID, g.Token, false)
	if err != nil {
		return fmt.Errorf("gallery %d: fetch torrent list: %w", g.ID, err)
	}
	if doc.Find("#torrentinfo").Length() == 0 {
		if reason, ok := unavailableDoc(doc); ok {
			return markAsUnavailable(g, reason)
		}
		return fmt.Errorf("gallery %d: torrent list missing #torrentinfo and not a gallery-not-available landing", g.ID)
	}

	anchors := collectTorrentAnchors(doc, remaining)
	if len(anchors) == 0 {
		return nil
	}

	if a.downloadAll(ctx, g, anchors) {
		return nil
	}

	// All downloads failed the MIME check: refresh tracker cookies and
	// retry each torrent URL with a cache-busting query (spec §4.4.6 step 4).
	refreshed, ok := refreshURL(doc, anchors[0].href)
	if !ok {
		return fmt.Errorf("gallery %d: all torrent downloads failed MIME check and no cookie-refresh link was found", g.ID)
	}
	if err := a.client.GetRaw(ctx, refreshed); err != nil {
		return fmt.Errorf("gallery %d: refresh tracker cookies: %w", g.ID, err)
	}

	for _, anc := range anchors {
		sep := "?"
		if strings.Contains(anc.href, "?") {
			sep = "&"
		}
		ok, err := a.downloadTorrent(ctx, g, anc.href+sep+"cache=bypass", false)
		if err != nil {
			return fmt.Errorf("gallery %d: download torrent after cookie refresh: %w", g.ID, err)
		}
		if !ok {
			return fmt.Errorf("gallery %d: torrent download still failed MIME check after cookie refresh", g.ID)
		}
	}
	return nil
}

type torrentAnchor struct {
	href string
	hash string
}

func collectTorrentAnchors(doc *httpclient.Document, remaining []apiTorrent) []torrentAnchor {
	var anchors []torrentAnchor
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || !strings.Contains(href, ".torrent") {
			return
		}
		for _, t := range remaining {
			if strings.Contains(href, t.Hash) {
				anchors = append(anchors, torrentAnchor{href: doc.Resolve(href), hash: t.Hash})
				break
			}
		}
	})
	return anchors
}

// downloadAll attempts every anchor with failAcceptable=true; returns true
// if at least one succeeded (spec §4.4.6 step 4's "if all ... fail").
func (a *torrentArchiver) downloadAll(ctx context.Context, g *Gallery, anchors []torrentAnchor) bool {
	anySucceeded := false
	for _, anc := range anchors {
		ok, err := a.downloadTorrent(ctx, g, anc.href, true)
		if err == nil && ok {
			anySucceeded = true
		}
	}
	return anySucceeded
}

func (a *torrentArchiver) downloadTorrent(ctx context.Context, g *Gallery, rawURL string, failAcceptable bool) (bool, error) {
	filename := filepath.Base(rawURL)
	return a.client.DownloadFile(ctx, rawURL, func(body io.Reader, inferredName, mimeType string) (bool, error) {
		if mimeType != "application/x-bittorrent" {
			if failAcceptable {
				return false, nil
			}
			return false, fmt.Errorf("unexpected MIME %q for torrent download", mimeType)
		}
		name, err := Sanitize(inferredOrFallback(inferredName, filename), g.Dir, false)
		if err != nil {
			return false, err
		}
		if err := Save(func(w io.Writer) error {
			_, err := io.Copy(w, body)
			return err
		}, g.Dir, name); err != nil {
			return false, err
		}
		g.NoteFileWritten(name)
		return true, nil
	})
}

func inferredOrFallback(inferred, fallback string) string {
	if inferred != "" {
		return inferred
	}
	return fallback
}

var onclickLocationPattern = regexp.MustCompile(`document\.location\s*=\s*'([^']+)'`)

// refreshURL extracts the personalized tracker-cookie URL from the first
// anchor in doc whose onclick handler sets document.location (spec §4.4.6
// step 4). fallbackHref is not consulted: with no such anchor it reports
// false.
func refreshURL(doc *httpclient.Document, fallbackHref string) (string, bool) {
	found := ""
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		onclick, ok := s.Attr("onclick")
		if !ok {
			return true
		}
		if m := onclickLocationPattern.FindStringSubmatch(onclick); m != nil {
			found = doc.Resolve(m[1])
			return false
		}
		return true
	})
	if found == "" {
		return "", false
	}
	return found, true
}
