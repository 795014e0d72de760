package archive

import (
	"context"
	"fmt"

	"github.com/slinet/rippanda/internal/config"
	"github.com/slinet/rippanda/internal/httpclient"
)

type expungeLoader interface {
	LoadExpungeLogPage(ctx context.Context, id int64, token string) (*httpclient.Document, error)
}

type expungelogArchiver struct {
	client expungeLoader
}

func newExpungelogArchiver(client expungeLoader) *expungelogArchiver {
	return &expungelogArchiver{client: client}
}

func (a *expungelogArchiver) Name() string { return config.ElementExpungelog }

func (a *expungelogArchiver) IsRequired(ctx context.Context, g *Gallery) (bool, error) {
	if unavailable, err := g.IsUnavailable(ctx); err != nil || unavailable {
		return false, err
	}
	has, err := g.HasFile(ctx, "expungelog.html")
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}
	if err := g.EnsureLoadedUpToDate(ctx); err != nil {
		return false, err
	}
	return g.Expunged(), nil
}

func (a *expungelogArchiver) Process(ctx context.Context, g *Gallery) error {
	doc, err := a.client.LoadExpungeLogPage(ctx, g.ID, g.Token)
	if err != nil {
		return fmt.Errorf("gallery %d: fetch expunge log: %w", g.ID, err)
	}

	if doc.Find("#form_expunge_vote").Length() == 0 {
		if reason, ok := unavailableDoc(doc); ok {
			return markAsUnavailable(g, reason)
		}
		return fmt.Errorf("gallery %d: expunge log missing #form_expunge_vote and not a gallery-not-available landing", g.ID)
	}

	if err := SaveBytes(doc.Raw, g.Dir, "expungelog.html"); err != nil {
		return fmt.Errorf("gallery %d: save expunge log: %w", g.ID, err)
	}
	g.NoteFileWritten("expungelog.html")
	return nil
}
