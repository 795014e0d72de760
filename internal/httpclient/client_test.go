package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"
)

// fakeTransport serves a canned response to every request and records the
// wall-clock time (via the supplied clock) at which each request arrived.
type fakeTransport struct {
	clock  func() time.Time
	body   string
	starts []time.Time
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.starts = append(f.starts, f.clock())
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(f.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func newTestClient(delay time.Duration) (*Client, *fakeTransport, *manualClock) {
	mc := &manualClock{now: time.Unix(0, 0)}
	ft := &fakeTransport{clock: mc.Now, body: "<html></html>"}

	c := &Client{
		httpClient:   &http.Client{Transport: ft},
		host:         "example.org",
		requestDelay: delay,
		clock:        mc.Now,
	}
	return c, ft, mc
}

type manualClock struct {
	now time.Time
}

func (m *manualClock) Now() time.Time { return m.now }
func (m *manualClock) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

func TestGateEnforcesMinimumDelay(t *testing.T) {
	delay := 10 * time.Second
	c, ft, clock := newTestClient(delay)

	ctx := context.Background()

	// First request: no prior request, so it must not wait.
	if _, err := c.LoadDocumentURL(ctx, "http://example.org/a"); err != nil {
		t.Fatalf("first request: %v", err)
	}

	// Advance the fake clock by exactly the delay, so the gate computes
	// wait <= 0 and issues the second request without sleeping.
	clock.Advance(delay)
	if _, err := c.LoadDocumentURL(ctx, "http://example.org/b"); err != nil {
		t.Fatalf("second request: %v", err)
	}

	if len(ft.starts) != 2 {
		t.Fatalf("got %d requests, want 2", len(ft.starts))
	}
	gap := ft.starts[1].Sub(ft.starts[0])
	if gap < delay {
		t.Errorf("gap between requests = %v, want >= %v", gap, delay)
	}
}

func TestGateHonoursCancellation(t *testing.T) {
	c, _, _ := newTestClient(time.Hour)
	c.lastRequestEnd = c.clock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.gate(ctx); err == nil {
		t.Fatal("expected gate to return an error for a cancelled context")
	}
}
