package archive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/slinet/rippanda/internal/httpclient"
)

// ElementArchiver is one of the seven fixed archival steps run, in order,
// against every gallery (spec §4.4). Skipping one (via -e/--skip) simply
// omits it from the registered slice; element order itself is never
// configurable.
type ElementArchiver interface {
	Name() string
	IsRequired(ctx context.Context, g *Gallery) (bool, error)
	Process(ctx context.Context, g *Gallery) error
}

// skipSet is a small lookup used by NewArchivers to drop configured
// elements from the fixed registration order.
type skipSet map[string]bool

func newSkipSet(skip []string) skipSet {
	s := make(skipSet, len(skip))
	for _, e := range skip {
		s[e] = true
	}
	return s
}

// runArchivers drives g through every archiver in order, each wrapped in
// the element-retry protocol (spec §7): up to retryCfg.MaxRetries attempts
// (3 unless --retry-times says otherwise) with a fixed 10s wait. Shared
// between the DOWNLOAD and UPDATE orchestrators, which differ only in how
// a failure here is handled (abort immediately vs. 3-strikes tolerance).
func runArchivers(ctx context.Context, archivers []ElementArchiver, g *Gallery, retryCfg RetryConfig) error {
	for _, a := range archivers {
		required, err := a.IsRequired(ctx, g)
		if err != nil {
			return fmt.Errorf("%s: check required: %w", a.Name(), err)
		}
		if !required {
			continue
		}
		archiver := a
		if err := RetryVoid(ctx, retryCfg, func() error {
			return archiver.Process(ctx, g)
		}); err != nil {
			return fmt.Errorf("%s: %w", a.Name(), err)
		}
	}
	return nil
}

// unavailableDoc detects the "Gallery Not Available" landing page (spec
// §4.4 item 3) and extracts its reason text.
func unavailableDoc(doc *httpclient.Document) (reason string, ok bool) {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if !strings.Contains(title, "Gallery Not Available") {
		return "", false
	}
	reason = strings.TrimSpace(doc.Find(".d p").First().Text())
	return reason, true
}

// markAsUnavailable writes the unavailable.txt sentinel and updates the
// gallery's cached file snapshot so later archivers in the same run observe
// it without rescanning the directory (spec §4.4 item 3, §4.3's
// NoteFileWritten contract).
func markAsUnavailable(g *Gallery, reason string) error {
	if err := Save(func(w io.Writer) error {
		_, err := w.Write([]byte(reason))
		return err
	}, g.Dir, "unavailable.txt"); err != nil {
		return fmt.Errorf("mark gallery %d unavailable: %w", g.ID, err)
	}
	g.NoteFileWritten("unavailable.txt")
	return nil
}
