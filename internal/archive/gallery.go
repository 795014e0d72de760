package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/slinet/rippanda/internal/config"
)

// MetadataState is the tagged-variant enum gating which archivers may
// reuse a gallery's cached metadata and which must refetch (spec §3/§9 —
// "avoid the pitfall of treating 'metadata present' as a single boolean").
type MetadataState int

const (
	// MetadataNone means no metadata has been loaded yet.
	MetadataNone MetadataState = iota
	// MetadataDisk means metadata was loaded from api-metadata.json and
	// has not been checked for freshness.
	MetadataDisk
	// MetadataDiskUpToDate means the on-disk metadata's mtime is newer
	// than the gallery's update threshold.
	MetadataDiskUpToDate
	// MetadataOnline means metadata was just fetched from the API.
	MetadataOnline
)

// Mode is the orchestrator mode a Gallery is being processed under; it
// changes the "update required" predicate (spec §4.3).
type Mode int

const (
	ModeDownload Mode = iota
	ModeUpdate
	ModeCleanup
)

// MetadataLoader fetches metadata for one gallery, in the shape the HTTP
// client's LoadMetadata returns it (a single gmetadata object).
type MetadataLoader interface {
	LoadOne(ctx context.Context, id int64, token string) (map[string]any, error)
}

// Gallery is the central record (spec §3). Identity (ID, Token, Dir) is
// immutable; Files and metadata are lazily populated.
type Gallery struct {
	ID    int64
	Token string
	Dir   string

	Mode            Mode
	UpdateThreshold time.Time

	loader MetadataLoader

	filesLoaded bool
	files       map[string]fs.FileInfo

	metadata      map[string]any
	metadataState MetadataState
	expunged      bool
}

// NewGallery constructs a Gallery. Per spec §3's invariant, both id and
// token are required.
func NewGallery(id int64, token, dir string, mode Mode, loader MetadataLoader) *Gallery {
	return &Gallery{
		ID:     id,
		Token:  token,
		Dir:    dir,
		Mode:   mode,
		loader: loader,
	}
}

// Files returns the snapshot of regular files in g.Dir, loading it once on
// first use (spec §4.3's lazy file listing).
func (g *Gallery) Files(ctx context.Context) (map[string]fs.FileInfo, error) {
	if g.filesLoaded {
		return g.files, nil
	}

	files := make(map[string]fs.FileInfo)
	entries, err := os.ReadDir(g.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			g.files = files
			g.filesLoaded = true
			return files, nil
		}
		return nil, fmt.Errorf("list %s: %w", g.Dir, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files[e.Name()] = info
	}

	g.files = files
	g.filesLoaded = true
	return files, nil
}

// NoteFileWritten updates the cached file snapshot after the pipeline
// itself creates a file (e.g. unavailable.txt), so later archivers in the
// same gallery see it without a directory rescan (spec §4.3).
func (g *Gallery) NoteFileWritten(name string) {
	if !g.filesLoaded {
		return
	}
	if info, err := os.Stat(filepath.Join(g.Dir, name)); err == nil {
		g.files[name] = info
	}
}

// HasFile reports whether name is present in the (possibly stale) file
// snapshot.
func (g *Gallery) HasFile(ctx context.Context, name string) (bool, error) {
	files, err := g.Files(ctx)
	if err != nil {
		return false, err
	}
	_, ok := files[name]
	return ok, nil
}

// FileInfo returns the cached fs.FileInfo for name, if present.
func (g *Gallery) FileInfo(ctx context.Context, name string) (fs.FileInfo, bool, error) {
	files, err := g.Files(ctx)
	if err != nil {
		return nil, false, err
	}
	info, ok := files[name]
	return info, ok, nil
}

// IsUnavailable reports whether unavailable.txt has been recorded for this
// gallery (spec §4.4's "subsequent element archivers see isUnavailable(g)
// = true and skip").
func (g *Gallery) IsUnavailable(ctx context.Context) (bool, error) {
	return g.HasFile(ctx, "unavailable.txt")
}

// Expunged reports metadata.expunged, set atomically with metadata (spec
// §3/§4.3).
func (g *Gallery) Expunged() bool {
	return g.expunged
}

// MetadataState returns the provenance of the currently held metadata.
func (g *Gallery) MetadataState() MetadataState {
	return g.metadataState
}

// Metadata returns the currently held metadata object, or nil if none is
// loaded.
func (g *Gallery) Metadata() map[string]any {
	return g.metadata
}

// setMetadata assigns metadata and its state together, and re-derives
// Expunged (spec §3 invariant: "expunged is refreshed whenever metadata is
// set").
func (g *Gallery) setMetadata(data map[string]any, state MetadataState) {
	g.metadata = data
	g.metadataState = state
	g.expunged, _ = data["expunged"].(bool)
}

// diskMetadataPath is the path to the persisted metadata file.
func (g *Gallery) diskMetadataPath() string {
	return filepath.Join(g.Dir, "api-metadata.json")
}

// loadFromDisk reads and parses api-metadata.json, returning its mtime.
func (g *Gallery) loadFromDisk() (map[string]any, time.Time, error) {
	path := g.diskMetadataPath()
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read %s: %w", path, err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, time.Time{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return parsed, info.ModTime(), nil
}

func (g *Gallery) fetchOnline(ctx context.Context) (map[string]any, error) {
	if g.loader == nil {
		return nil, fmt.Errorf("gallery %d: no metadata loader configured", g.ID)
	}
	return g.loader.LoadOne(ctx, g.ID, g.Token)
}

// updateRequired implements spec §4.3's UPDATE-mode predicate:
// mtime(f) < g.UpdateThreshold. In DOWNLOAD/CLEANUP mode it is always
// false (presence alone suffices).
func (g *Gallery) updateRequired(mtime time.Time) bool {
	if g.Mode != ModeUpdate {
		return false
	}
	return mtime.Before(g.UpdateThreshold)
}

// EnsureLoaded implements spec §4.3's ensureLoaded: fetch online if no
// metadata is held yet.
func (g *Gallery) EnsureLoaded(ctx context.Context) error {
	if g.metadataState != MetadataNone {
		return nil
	}
	data, err := g.fetchOnline(ctx)
	if err != nil {
		return err
	}
	g.setMetadata(data, MetadataOnline)
	return nil
}

// EnsureLoadedUpToDate implements spec §4.3's ensureLoadedUpToDate: load
// from disk if present, evaluate the update-required predicate against its
// mtime, refetch if required, and otherwise promote the state to
// DiskUpToDate.
func (g *Gallery) EnsureLoadedUpToDate(ctx context.Context) error {
	if g.metadataState != MetadataNone {
		return nil
	}

	data, mtime, err := g.loadFromDisk()
	if err != nil {
		online, err := g.fetchOnline(ctx)
		if err != nil {
			return err
		}
		g.setMetadata(online, MetadataOnline)
		return nil
	}

	g.setMetadata(data, MetadataDisk)
	if g.updateRequired(mtime) {
		online, err := g.fetchOnline(ctx)
		if err != nil {
			return err
		}
		g.setMetadata(online, MetadataOnline)
		return nil
	}
	g.metadataState = MetadataDiskUpToDate
	return nil
}

// EnsureLoadedOnline implements spec §4.3's ensureLoadedOnline: fetch
// unconditionally unless already ONLINE.
func (g *Gallery) EnsureLoadedOnline(ctx context.Context) error {
	if g.metadataState == MetadataOnline {
		return nil
	}
	data, err := g.fetchOnline(ctx)
	if err != nil {
		return err
	}
	g.setMetadata(data, MetadataOnline)
	return nil
}

// ComputeUpdateThreshold implements spec §4.3's clamped linear
// interpolation: recently posted galleries refresh more often, very old
// galleries refresh rarely.
func ComputeUpdateThreshold(posted, now time.Time, cfg config.UpdateInterval) time.Time {
	age := now.Sub(posted)

	var ratio float64
	switch {
	case age < cfg.MinThreshold:
		ratio = 0
	case age > cfg.MaxThreshold:
		ratio = 1
	default:
		span := cfg.MaxThreshold - cfg.MinThreshold
		if span <= 0 {
			ratio = 1
		} else {
			ratio = float64(age-cfg.MinThreshold) / float64(span)
		}
	}

	intervalMs := float64(cfg.MinDuration.Milliseconds()) +
		ratio*float64(cfg.MaxDuration.Milliseconds()-cfg.MinDuration.Milliseconds())
	interval := time.Duration(math.Round(intervalMs)) * time.Millisecond

	return now.Add(-interval)
}
