package httpclient

import (
	"context"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// WriterFunc receives the response body stream, the inferred filename, and
// the (params-stripped) MIME type; it returns whether the artifact was
// acceptable (spec §4.1's downloadFile "propagate its boolean").
type WriterFunc func(body io.Reader, filename, mimeType string) (bool, error)

// DownloadFile GETs rawURL and hands the stream to writer without
// buffering the whole artifact in memory (spec §4.1's downloadFile). Unlike
// fetchBody's header-only gate mark, the request-gate's lastRequestEnd is
// only updated once the writer has finished consuming the body, since the
// "request" here is the full download, not just the response headers.
func (c *Client) DownloadFile(ctx context.Context, rawURL string, writer WriterFunc) (bool, error) {
	if err := c.gate(ctx); err != nil {
		return false, err
	}
	defer c.markRequestEnd()

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req = req.WithContext(ctx)
	applyCommonHeaders(req, c.host)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	filename := inferFilename(resp)
	mimeType := inferMimeType(resp)

	return writer(resp.Body, filename, mimeType)
}

// inferFilename prefers Content-Disposition's filename (ISO-8859-1 decoded
// and HTML-entity unescaped per spec §4.1 item 5), falling back to the last
// path segment of the final (post-redirect) URL.
func inferFilename(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name, ok := params["filename"]; ok && name != "" {
				return html.UnescapeString(decodeLatin1(name))
			}
		} else if name := filenameFallbackPattern.FindStringSubmatch(cd); len(name) == 2 {
			return html.UnescapeString(decodeLatin1(name[1]))
		}
	}

	if resp.Request != nil && resp.Request.URL != nil {
		return path.Base(resp.Request.URL.Path)
	}
	return ""
}

var filenameFallbackPattern = regexp.MustCompile(`filename="?([^";]+)"?`)

// decodeLatin1 re-decodes a string mojibake'd as ISO-8859-1 back to UTF-8;
// a no-op for strings that were already valid UTF-8 single-byte-per-rune.
func decodeLatin1(s string) string {
	decoded, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return decoded
}

// inferMimeType strips parameters (e.g. "; charset=...") from Content-Type.
func inferMimeType(resp *http.Response) string {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		return mediaType
	}
	return strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
}
