package archive

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/slinet/rippanda/internal/config"
)

func dayDuration(d float64) time.Duration {
	return time.Duration(d * float64(24*time.Hour))
}

func TestComputeUpdateThresholdBoundaries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := config.UpdateInterval{
		MinThreshold: 0,
		MinDuration:  7 * 24 * time.Hour,
		MaxThreshold: 365 * 24 * time.Hour,
		MaxDuration:  90 * 24 * time.Hour,
	}

	// Posted right now: age=0 < minThreshold(0)? age<minT is false since
	// age==minT==0, ratio falls into the interpolation branch with
	// span=365D, age=0 -> ratio=0 -> interval=minDuration=7D.
	posted := now
	got := ComputeUpdateThreshold(posted, now, cfg)
	want := now.Add(-7 * 24 * time.Hour)
	if diff := got.Sub(want); diff < -time.Second || diff > time.Second {
		t.Errorf("posted=now: threshold = %v, want %v (+-1s)", got, want)
	}

	// Posted 400 days ago: age > maxThreshold -> interval = maxDuration = 90D.
	posted = now.Add(-dayDuration(400))
	got = ComputeUpdateThreshold(posted, now, cfg)
	want = now.Add(-90 * 24 * time.Hour)
	if diff := got.Sub(want); diff < -time.Second || diff > time.Second {
		t.Errorf("posted=400d ago: threshold = %v, want %v (+-1s)", got, want)
	}

	// Posted 182.5 days ago: linear interpolation ~48.5 days.
	posted = now.Add(-dayDuration(182.5))
	got = ComputeUpdateThreshold(posted, now, cfg)
	expectedIntervalDays := 7 + (182.5/365)*(90-7)
	want = now.Add(-dayDuration(expectedIntervalDays))
	if diff := math.Abs(got.Sub(want).Seconds()); diff > 1 {
		t.Errorf("posted=182.5d ago: threshold = %v, want %v (+-1s), diff=%.3fs", got, want, diff)
	}
}

type fakeLoader struct {
	calls int
	data  map[string]any
	err   error
}

func (f *fakeLoader) LoadOne(ctx context.Context, id int64, token string) (map[string]any, error) {
	f.calls++
	return f.data, f.err
}

func TestEnsureLoadedFetchesOnlineWhenEmpty(t *testing.T) {
	loader := &fakeLoader{data: map[string]any{"title": "t", "expunged": false}}
	g := NewGallery(1, "abcdefabcd", t.TempDir(), ModeDownload, loader)

	if err := g.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	if loader.calls != 1 {
		t.Errorf("calls = %d, want 1", loader.calls)
	}
	if g.MetadataState() != MetadataOnline {
		t.Errorf("state = %v, want Online", g.MetadataState())
	}

	// Calling again must not refetch.
	if err := g.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("EnsureLoaded (2nd): %v", err)
	}
	if loader.calls != 1 {
		t.Errorf("calls = %d after 2nd EnsureLoaded, want still 1", loader.calls)
	}
}

func TestExpungedDerivedFromMetadata(t *testing.T) {
	loader := &fakeLoader{data: map[string]any{"title": "t", "expunged": true}}
	g := NewGallery(1, "abcdefabcd", t.TempDir(), ModeDownload, loader)

	if err := g.EnsureLoadedOnline(context.Background()); err != nil {
		t.Fatalf("EnsureLoadedOnline: %v", err)
	}
	if !g.Expunged() {
		t.Error("expected Expunged() == true")
	}
}
