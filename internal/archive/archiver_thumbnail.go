package archive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/slinet/rippanda/internal/config"
	"github.com/slinet/rippanda/internal/httpclient"
)

type fileDownloader interface {
	DownloadFile(ctx context.Context, rawURL string, writer httpclient.WriterFunc) (bool, error)
}

type thumbnailArchiver struct {
	client fileDownloader
}

func newThumbnailArchiver(client fileDownloader) *thumbnailArchiver {
	return &thumbnailArchiver{client: client}
}

func (a *thumbnailArchiver) Name() string { return config.ElementThumbnail }

func (a *thumbnailArchiver) IsRequired(ctx context.Context, g *Gallery) (bool, error) {
	has, err := g.HasFile(ctx, "thumbnail.jpg")
	if err != nil {
		return false, err
	}
	return !has, nil
}

func (a *thumbnailArchiver) Process(ctx context.Context, g *Gallery) error {
	if err := g.EnsureLoaded(ctx); err != nil {
		return fmt.Errorf("gallery %d: load metadata for thumbnail: %w", g.ID, err)
	}

	thumb, _ := g.Metadata()["thumb"].(string)
	if thumb == "" || !strings.HasSuffix(thumb, "_l.jpg") {
		return fmt.Errorf("gallery %d: metadata.thumb %q does not end in _l.jpg", g.ID, thumb)
	}
	large := strings.TrimSuffix(thumb, "_l.jpg") + "_300.jpg"
	if large == thumb {
		return fmt.Errorf("gallery %d: thumbnail URL rewrite was a no-op", g.ID)
	}

	ok, err := a.client.DownloadFile(ctx, large, func(body io.Reader, filename, mimeType string) (bool, error) {
		if mimeType != "image/jpeg" {
			return false, nil
		}
		if err := Save(func(w io.Writer) error {
			_, err := io.Copy(w, body)
			return err
		}, g.Dir, "thumbnail.jpg"); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("gallery %d: download thumbnail: %w", g.ID, err)
	}
	if !ok {
		return fmt.Errorf("gallery %d: thumbnail download did not produce image/jpeg", g.ID)
	}

	g.NoteFileWritten("thumbnail.jpg")
	return nil
}
