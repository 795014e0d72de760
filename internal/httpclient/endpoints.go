package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrTooManyGalleries is returned by LoadMetadata when more than 25
// id/token pairs are requested in one call (spec §4.1).
var ErrTooManyGalleries = fmt.Errorf("loadMetadata: more than 25 id/token pairs in one request")

// IDToken is a (gallery id, token) pair as sent to the gdata API.
type IDToken struct {
	ID    int64
	Token string
}

// LoadMetadata POSTs a batched gdata request and returns the parsed
// "gmetadata" array as generic JSON objects (spec §4.1's loadMetadata).
func (c *Client) LoadMetadata(ctx context.Context, pairs []IDToken) ([]map[string]any, error) {
	if len(pairs) > 25 {
		return nil, ErrTooManyGalleries
	}

	gidlist := make([][2]any, len(pairs))
	for i, p := range pairs {
		gidlist[i] = [2]any{p.ID, p.Token}
	}

	payload, err := json.Marshal(map[string]any{
		"method":    "gdata",
		"gidlist":   gidlist,
		"namespace": 1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal gdata request: %w", err)
	}

	body, _, err := c.fetchBody(ctx, http.MethodPost, apiURL(c.baseURL), bytes.NewReader(payload), "application/json", false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Gmetadata []map[string]any `json:"gmetadata"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		preview := string(body)
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		return nil, fmt.Errorf("unmarshal gdata response: %w (body: %s)", err, preview)
	}
	return resp.Gmetadata, nil
}

func apiURL(base *url.URL) string {
	u := *base
	u.Host = "api." + base.Host
	u.Path = "/api.php"
	return u.String()
}

// LoadPage GETs /g/<id>/<token>.
func (c *Client) LoadPage(ctx context.Context, id int64, token string) (*Document, error) {
	return c.fetchDocument(ctx, http.MethodGet, c.siteURL("/g/%d/%s/", id, token), nil, "", true)
}

// LoadMpvPage GETs /mpv/<id>/<token>.
func (c *Client) LoadMpvPage(ctx context.Context, id int64, token string) (*Document, error) {
	return c.fetchDocument(ctx, http.MethodGet, c.siteURL("/mpv/%d/%s/", id, token), nil, "", true)
}

// LoadTorrentPage GETs /gallerytorrents.php?gid=<id>&t=<token>, optionally
// with a cache-busting &cache=bypass query param appended.
func (c *Client) LoadTorrentPage(ctx context.Context, id int64, token string, cacheBypass bool) (*Document, error) {
	u := c.siteURL("/gallerytorrents.php?gid=%d&t=%s", id, token)
	if cacheBypass {
		u += "&cache=bypass"
	}
	return c.fetchDocument(ctx, http.MethodGet, u, nil, "", true)
}

// LoadExpungeLogPage GETs /g/<id>/<token>?act=expunge.
func (c *Client) LoadExpungeLogPage(ctx context.Context, id int64, token string) (*Document, error) {
	return c.fetchDocument(ctx, http.MethodGet, c.siteURL("/g/%d/%s/?act=expunge", id, token), nil, "", true)
}

// LoadArchivePreparationPage POSTs the site-provided archiver URL to start
// ZIP preparation (spec §4.4.7); the continue pages that follow are
// fetched with LoadDocumentURL.
func (c *Client) LoadArchivePreparationPage(ctx context.Context, archiverURL string) (*Document, error) {
	form := strings.NewReader("dltype=org&dlcheck=Download+Original+Archive")
	return c.fetchDocument(ctx, http.MethodPost, archiverURL, form, "application/x-www-form-urlencoded", true)
}

// LoadDocumentURL GETs an arbitrary absolute URL and parses it as HTML; a
// 404 is NOT tolerated here (this is used for search-result pages and
// archive-preparation continue pages, URLs the server itself provided,
// where a genuine 404 is an error, not a gallery-gone landing page).
func (c *Client) LoadDocumentURL(ctx context.Context, rawURL string) (*Document, error) {
	return c.fetchDocument(ctx, http.MethodGet, rawURL, nil, "", false)
}

// GetRaw GETs an arbitrary absolute URL and discards the body, used to
// populate the cookie jar via Set-Cookie without saving anything (spec
// §4.4.6 step 4's cookie-refresh sub-step).
func (c *Client) GetRaw(ctx context.Context, rawURL string) error {
	_, _, err := c.fetchBody(ctx, http.MethodGet, rawURL, nil, "", true)
	return err
}

func (c *Client) siteURL(format string, args ...any) string {
	u := *c.baseURL
	p := fmt.Sprintf(format, args...)
	if i := strings.IndexByte(p, '?'); i >= 0 {
		u.Path, u.RawQuery = p[:i], p[i+1:]
	} else {
		u.Path = p
	}
	return u.String()
}

// fetchDocument performs the gated request and parses the body as HTML.
func (c *Client) fetchDocument(ctx context.Context, method, rawURL string, body io.Reader, contentType string, allow404 bool) (*Document, error) {
	respBody, finalURL, err := c.fetchBody(ctx, method, rawURL, body, contentType, allow404)
	if err != nil {
		return nil, err
	}
	doc, err := newDocument(respBody, finalURL)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// fetchBody performs the gated request, enforces the status-code contract
// (spec §4.1 item 3), and returns the raw body plus the final (post
// redirect) URL.
func (c *Client) fetchBody(ctx context.Context, method, rawURL string, body io.Reader, contentType string, allow404 bool) ([]byte, *url.URL, error) {
	req, err := http.NewRequest(method, rawURL, body)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK || (allow404 && resp.StatusCode == http.StatusNotFound)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}

	finalURL := resp.Request.URL
	return data, finalURL, nil
}
