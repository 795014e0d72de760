package archive

import (
	"go.uber.org/zap"

	"github.com/slinet/rippanda/internal/httpclient"
)

// NewArchivers builds the fixed, ordered element-archiver pipeline (spec
// §4.4: metadata, page, imagelist, expungelog, thumbnail, torrent, zip),
// omitting any element named in skip. Element order is never configurable
// — only inclusion is.
func NewArchivers(client *httpclient.Client, loader MetadataLoader, host string, skip []string, logger *zap.Logger) []ElementArchiver {
	skipSet := newSkipSet(skip)

	all := []ElementArchiver{
		newMetadataArchiver(loader, logger),
		newPageArchiver(client),
		newImagelistArchiver(client),
		newExpungelogArchiver(client),
		newThumbnailArchiver(client),
		newTorrentArchiver(client),
		newZipArchiver(client, host),
	}

	archivers := make([]ElementArchiver, 0, len(all))
	for _, a := range all {
		if skipSet[a.Name()] {
			continue
		}
		archivers = append(archivers, a)
	}
	return archivers
}
