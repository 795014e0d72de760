package archive

import (
	"context"
	"fmt"

	"github.com/slinet/rippanda/internal/httpclient"
)

// ClientMetadataLoader adapts httpclient.Client's batched LoadMetadata (up
// to 25 id/token pairs per spec §4.1) to the single-gallery MetadataLoader
// a Gallery uses, since every caller here fetches one gallery at a time.
type ClientMetadataLoader struct {
	Client *httpclient.Client
}

// LoadOne implements MetadataLoader.
func (l *ClientMetadataLoader) LoadOne(ctx context.Context, id int64, token string) (map[string]any, error) {
	results, err := l.Client.LoadMetadata(ctx, []httpclient.IDToken{{ID: id, Token: token}})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("gallery %d: empty metadata response", id)
	}
	return results[0], nil
}
