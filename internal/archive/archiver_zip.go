package archive

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/slinet/rippanda/internal/config"
	"github.com/slinet/rippanda/internal/httpclient"
)

const maxZipPollAttempts = 30

type zipLoader interface {
	LoadArchivePreparationPage(ctx context.Context, archiverURL string) (*httpclient.Document, error)
	LoadDocumentURL(ctx context.Context, rawURL string) (*httpclient.Document, error)
	DownloadFile(ctx context.Context, rawURL string, writer httpclient.WriterFunc) (bool, error)
}

type zipArchiver struct {
	client zipLoader
	host   string
}

func newZipArchiver(client zipLoader, host string) *zipArchiver {
	return &zipArchiver{client: client, host: host}
}

func (a *zipArchiver) Name() string { return config.ElementZip }

func (a *zipArchiver) IsRequired(ctx context.Context, g *Gallery) (bool, error) {
	unavailable, err := g.IsUnavailable(ctx)
	if err != nil || unavailable {
		return false, err
	}
	files, err := g.Files(ctx)
	if err != nil {
		return false, err
	}
	for name := range files {
		if strings.HasSuffix(name, ".zip") {
			return false, nil
		}
	}
	return true, nil
}

func (a *zipArchiver) Process(ctx context.Context, g *Gallery) error {
	if err := g.EnsureLoadedOnline(ctx); err != nil {
		return fmt.Errorf("gallery %d: load metadata for archive: %w", g.ID, err)
	}
	archiverKey, _ := g.Metadata()["archiver_key"].(string)
	if archiverKey == "" {
		return fmt.Errorf("gallery %d: metadata.archiver_key is empty", g.ID)
	}

	archiverURL := fmt.Sprintf("https://%s/archiver.php?gid=%d&token=%s&or=%s", a.host, g.ID, g.Token, archiverKey)
	doc, err := a.client.LoadArchivePreparationPage(ctx, archiverURL)
	if err != nil {
		return fmt.Errorf("gallery %d: load archive preparation page: %w", g.ID, err)
	}

	downloadURL, err := a.resolveDownloadURL(ctx, doc)
	if err != nil {
		return fmt.Errorf("gallery %d: %w", g.ID, err)
	}

	ok, err := a.client.DownloadFile(ctx, downloadURL, func(body io.Reader, inferredName, mimeType string) (bool, error) {
		if mimeType != "application/zip" {
			return false, fmt.Errorf("unexpected MIME %q for archive download", mimeType)
		}
		name, err := Sanitize(inferredOrFallback(inferredName, fmt.Sprintf("%d.zip", g.ID)), g.Dir, true)
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
	if err != nil {
		return fmt.Errorf("gallery %d: download archive: %w", g.ID, err)
	}
	if !ok {
		return fmt.Errorf("gallery %d: archive download did not produce a zip", g.ID)
	}
	return nil
}

var setTimeoutPattern = regexp.MustCompile(`setTimeout\([^,]+,\s*(\d+)\s*\)`)

// resolveDownloadURL drives the preparation page's state machine (spec
// §4.4.7 step 3): either the archive is already ready (#db a) or it is
// being prepared server-side (#continue a), in which case the page names
// its own poll delay via a setTimeout call.
func (a *zipArchiver) resolveDownloadURL(ctx context.Context, doc *httpclient.Document) (string, error) {
	for attempt := 0; attempt < maxZipPollAttempts; attempt++ {
		if href, ok := doc.Find("#db a").Attr("href"); ok {
			return doc.Resolve(href), nil
		}

		continueHref, ok := doc.Find("#continue a").Attr("href")
		if !ok {
			return "", fmt.Errorf("archive preparation page has neither #db a nor #continue a")
		}

		delayMs := 5000
		if m := setTimeoutPattern.FindStringSubmatch(doc.Find("script").Text()); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				delayMs = n
			}
		}

		if err := sleep(ctx, time.Duration(delayMs)*time.Millisecond); err != nil {
			return "", err
		}

		next, err := a.client.LoadDocumentURL(ctx, doc.Resolve(continueHref))
		if err != nil {
			return "", fmt.Errorf("poll archive preparation: %w", err)
		}
		doc = next
	}
	return "", fmt.Errorf("archive preparation did not finish after %d attempts", maxZipPollAttempts)
}
