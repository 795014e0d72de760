// Package httpclient implements the rate-limited HTTP client (C1): a
// single-flight request gate, cookie jar, optional SOCKS5 proxying with
// remote DNS, and HTML/JSON/binary response handling for the panda-family
// site API. Adapted from the teacher's internal/crawler/client.go.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/slinet/rippanda/internal/config"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Client is the gated HTTP client every C4 archiver fetches through.
type Client struct {
	httpClient *http.Client
	jar        http.CookieJar
	host       string
	baseURL    *url.URL
	cookies    string

	requestDelay time.Duration
	clock        func() time.Time

	mu             sync.Mutex
	lastRequestEnd time.Time
}

// New builds a Client from the resolved configuration: seeds the cookie jar
// (cfg.Cookies has already had event/__cfduid stripped and nw=1 added by
// internal/config), wires the SOCKS5 dialer when cfg.Proxy is set, and
// applies the 30s timeout budget from spec §4.1 item 6.
func New(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	baseURL := &url.URL{Scheme: "https", Host: cfg.Host}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: false,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   30 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if cfg.Proxy != "" {
		dialer, err := proxy.SOCKS5("tcp", cfg.Proxy, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
			return dialer.Dial(network, address)
		}
		if logger != nil {
			logger.Info("using SOCKS5 proxy with remote DNS", zap.String("proxy", cfg.Proxy))
		}
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   30 * time.Second,
		},
		jar:          jar,
		host:         cfg.Host,
		baseURL:      baseURL,
		cookies:      cfg.Cookies,
		requestDelay: cfg.Delay,
		clock:        time.Now,
	}

	c.seedCookies(cfg.Cookies)
	return c, nil
}

// seedCookies parses the already-sanitized "k=v; k=v" cookie string into
// the jar, scoped to the configured host (spec §4.1 item 2).
func (c *Client) seedCookies(raw string) {
	cookies := parseCookieHeader(raw)
	if len(cookies) == 0 {
		return
	}
	c.jar.SetCookies(c.baseURL, cookies)
}

func parseCookieHeader(raw string) []*http.Cookie {
	header := http.Header{}
	header.Add("Cookie", raw)
	req := &http.Request{Header: header}
	return req.Cookies()
}

// gate blocks until lastRequestEnd+requestDelay, honouring ctx cancellation
// per spec §4.1 item 1 and §5's cancellation requirement.
func (c *Client) gate(ctx context.Context) error {
	c.mu.Lock()
	wait := c.lastRequestEnd.Add(c.requestDelay).Sub(c.clock())
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// markRequestEnd records the gate's reference point. Called unconditionally
// on every exit path of a gated request (success or error), matching the
// teacher's "finally" discipline for lastRequestEnd.
func (c *Client) markRequestEnd() {
	c.mu.Lock()
	c.lastRequestEnd = c.clock()
	c.mu.Unlock()
}

// SetClock overrides the clock used by the gate; for tests (spec §8
// property 1).
func (c *Client) SetClock(clock func() time.Time) {
	c.clock = clock
}

// SetRoundTripper overrides the transport; for tests with a fake
// http.RoundTripper (spec §10.5).
func (c *Client) SetRoundTripper(rt http.RoundTripper) {
	c.httpClient.Transport = rt
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.gate(ctx); err != nil {
		return nil, err
	}
	defer c.markRequestEnd()

	req = req.WithContext(ctx)
	applyCommonHeaders(req, c.host)

	return c.httpClient.Do(req)
}

func applyCommonHeaders(req *http.Request, host string) {
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*")
	req.Header.Set("Accept-Language", "en-US;q=0.9,en;q=0.8")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", fmt.Sprintf("https://%s/", host))
	req.Header.Set("DNT", "1")
}
