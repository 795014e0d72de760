package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/slinet/rippanda/internal/config"
	"github.com/slinet/rippanda/internal/httpclient"
)

type mpvLoader interface {
	LoadMpvPage(ctx context.Context, id int64, token string) (*httpclient.Document, error)
}

type imagelistArchiver struct {
	client mpvLoader
}

func newImagelistArchiver(client mpvLoader) *imagelistArchiver {
	return &imagelistArchiver{client: client}
}

func (a *imagelistArchiver) Name() string { return config.ElementImagelist }

func (a *imagelistArchiver) IsRequired(ctx context.Context, g *Gallery) (bool, error) {
	if unavailable, err := g.IsUnavailable(ctx); err != nil || unavailable {
		return false, err
	}
	has, err := g.HasFile(ctx, "imagelist.json")
	if err != nil {
		return false, err
	}
	return !has, nil
}

var imagelistPattern = regexp.MustCompile(`var\s+imagelist\s*=\s*(\[.*\])\s*;`)

func (a *imagelistArchiver) Process(ctx context.Context, g *Gallery) error {
	doc, err := a.client.LoadMpvPage(ctx, g.ID, g.Token)
	if err != nil {
		return fmt.Errorf("gallery %d: fetch mpv page: %w", g.ID, err)
	}

	if doc.Find("#pane_outer").Length() == 0 {
		if reason, ok := unavailableDoc(doc); ok {
			return markAsUnavailable(g, reason)
		}
		return fmt.Errorf("gallery %d: mpv page missing #pane_outer and not a gallery-not-available landing", g.ID)
	}

	var rawList string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if match := imagelistPattern.FindStringSubmatch(s.Text()); match != nil {
			rawList = match[1]
			return false
		}
		return true
	})
	if rawList == "" {
		return fmt.Errorf("gallery %d: could not find 'var imagelist = (...)' in mpv page", g.ID)
	}

	var imagelist []any
	if err := json.Unmarshal([]byte(rawList), &imagelist); err != nil {
		return fmt.Errorf("gallery %d: parse imagelist: %w", g.ID, err)
	}

	if err := SaveJSON(imagelist, g.Dir, "imagelist.json"); err != nil {
		return fmt.Errorf("gallery %d: save imagelist: %w", g.ID, err)
	}
	g.NoteFileWritten("imagelist.json")
	return nil
}
