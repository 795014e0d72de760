package archive

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/slinet/rippanda/internal/config"
	"github.com/slinet/rippanda/pkg/utils"
)

// metadataArchiver is the first element in registration order (spec
// §4.4.1). When it runs, it leaves the freshly fetched metadata on the
// Gallery in the Online state, so later archivers' EnsureLoaded* calls
// reuse it instead of fetching again.
type metadataArchiver struct {
	loader MetadataLoader
	logger *zap.Logger
}

func newMetadataArchiver(loader MetadataLoader, logger *zap.Logger) *metadataArchiver {
	return &metadataArchiver{loader: loader, logger: logger}
}

func (a *metadataArchiver) Name() string { return config.ElementMetadata }

func (a *metadataArchiver) IsRequired(ctx context.Context, g *Gallery) (bool, error) {
	info, present, err := g.FileInfo(ctx, "api-metadata.json")
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

func (a *metadataArchiver) Process(ctx context.Context, g *Gallery) error {
	data, err := a.loader.LoadOne(ctx, g.ID, g.Token)
	if err != nil {
		return fmt.Errorf("gallery %d: fetch metadata: %w", g.ID, err)
	}

	title, _ := data["title"].(string)
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("gallery %d: metadata response missing a non-empty title", g.ID)
	}

	if err := SaveJSON(data, g.Dir, "api-metadata.json"); err != nil {
		return fmt.Errorf("gallery %d: save metadata: %w", g.ID, err)
	}
	g.NoteFileWritten("api-metadata.json")
	g.setMetadata(data, MetadataOnline)

	if a.logger != nil {
		a.logger.Debug("gallery metadata fetched",
			zap.Int64("gid", g.ID), zap.Strings("tags", normalizedTags(data)))
	}
	return nil
}

// normalizedTags extracts metadata.tags (when present) and expands each
// entry's namespace shortcut for readable debug logging (spec makes no use
// of tags beyond this; the gdata API returns them alongside title/posted).
func normalizedTags(data map[string]any) []string {
	raw, _ := data["tags"].([]any)
	if len(raw) == 0 {
		return nil
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		s, ok := t.(string)
		if !ok {
			continue
		}
		tags = append(tags, utils.NormalizeTag(s))
	}
	return tags
}
