package archive

import (
	"context"
	"fmt"

	"github.com/slinet/rippanda/internal/config"
	"github.com/slinet/rippanda/internal/httpclient"
)

// pageLoader is the slice of *httpclient.Client the page archiver needs;
// kept as an interface so tests can fake the HTML fetch.
type pageLoader interface {
	LoadPage(ctx context.Context, id int64, token string) (*httpclient.Document, error)
}

type pageArchiver struct {
	client pageLoader
}

func newPageArchiver(client pageLoader) *pageArchiver {
	return &pageArchiver{client: client}
}

func (a *pageArchiver) Name() string { return config.ElementPage }

func (a *pageArchiver) IsRequired(ctx context.Context, g *Gallery) (bool, error) {
	if unavailable, err := g.IsUnavailable(ctx); err != nil || unavailable {
		return false, err
	}
	info, present, err := g.FileInfo(ctx, "page.html")
	if err != nil {
		return false, err
	}
	if !present {
		return true, nil
	}
	if g.Mode != ModeUpdate {
		return false, nil
	}
	return info.ModTime().Before(g.UpdateThreshold), nil
}

func (a *pageArchiver) Process(ctx context.Context, g *Gallery) error {
	doc, err := a.client.LoadPage(ctx, g.ID, g.Token)
	if err != nil {
		return fmt.Errorf("gallery %d: fetch page: %w", g.ID, err)
	}

	if doc.Find("#rating_label").Length() == 0 {
		if reason, ok := unavailableDoc(doc); ok {
			return markAsUnavailable(g, reason)
		}
		return fmt.Errorf("gallery %d: page missing #rating_label and not a gallery-not-available landing", g.ID)
	}

	if err := SaveBytes(doc.Raw, g.Dir, "page.html"); err != nil {
		return fmt.Errorf("gallery %d: save page: %w", g.ID, err)
	}
	g.NoteFileWritten("page.html")
	return nil
}
