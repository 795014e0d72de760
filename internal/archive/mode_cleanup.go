package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// reportGalleryPattern extracts a gallery id from the "Report Gallery" link
// on a gallery's own page.html (spec §4.6 CLEANUP Pass 1).
var reportGalleryPattern = regexp.MustCompile(`/g/(\d+)/(\S{10})/`)

// cleanupLocation is one on-disk copy of a gallery's directory, tagged with
// whether it lives under the writable archive root (and so may be deleted)
// or under a read-only archive root (retained regardless of outcome).
type cleanupLocation struct {
	dir       string
	removable bool
}

// Cleaner runs the CLEANUP mode orchestrator (spec §4.6): a two-pass
// parent/child/conflict graph prune across every configured archive
// directory. archiveDirs[0] is the writable root; only directories found
// there are ever deleted.
type Cleaner struct {
	archiveDirs []string
	ledger      *Ledger
	logger      *zap.Logger
}

// NewCleaner constructs a Cleaner. archiveDirs must be non-empty, with the
// writable root first.
func NewCleaner(archiveDirs []string, ledger *Ledger, logger *zap.Logger) *Cleaner {
	return &Cleaner{archiveDirs: archiveDirs, ledger: ledger, logger: logger}
}

// Run scans every configured archive directory, determines which known
// gallery ids are superseded, deletes their removable directories, and
// returns the total bytes freed.
//
// An id k is outdated if (a) some other known gallery's own "Parent:" row
// names k as that gallery's parent, (b) k's own page declares a known
// gallery as a child via #gnd, or (c) k's own (non-administrative) expunge
// log lists a known gallery as a conflict. Rules (a) and (b) both single
// out a superseded parent, which gives way to the known remaster that
// names it; rule (c) singles out the gallery holding the expunge log,
// which is the expunged duplicate and gives way to the gallery its own log
// names as the conflict.
func (c *Cleaner) Run(ctx context.Context) (freedBytes int64, err error) {
	if err := c.ledger.InitSuccessIds(); err != nil {
		return 0, fmt.Errorf("init success ledger: %w", err)
	}

	scan, err := c.scan(ctx)
	if err != nil {
		return 0, err
	}

	return c.evict(scan)
}

// galleryScan accumulates Pass 1's findings across every archive directory.
type galleryScan struct {
	directories    map[int64][]cleanupLocation
	declaredParent map[int64]int64
	childrenOf     map[int64]map[int64]struct{}
	conflictsOf    map[int64]map[int64]struct{}
}

func newGalleryScan() *galleryScan {
	return &galleryScan{
		directories:    make(map[int64][]cleanupLocation),
		declaredParent: make(map[int64]int64),
		childrenOf:     make(map[int64]map[int64]struct{}),
		conflictsOf:    make(map[int64]map[int64]struct{}),
	}
}

// scan implements Pass 1: walk every configured archive directory and parse
// page.html and, when present, a non-administrative expungelog.html.
func (c *Cleaner) scan(ctx context.Context) (*galleryScan, error) {
	scan := newGalleryScan()

	writableRoot := ""
	if len(c.archiveDirs) > 0 {
		writableRoot = c.archiveDirs[0]
	}

	for _, root := range c.archiveDirs {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("walk archive dir %s: %w", root, err)
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !entry.IsDir() {
				continue
			}
			galleryDir := filepath.Join(root, entry.Name())
			if err := c.scanGalleryDir(scan, galleryDir, root == writableRoot); err != nil {
				if c.logger != nil {
					c.logger.Warn("skipping unparsable gallery directory", zap.String("dir", galleryDir), zap.Error(err))
				}
			}
		}
	}

	return scan, nil
}

func (c *Cleaner) scanGalleryDir(scan *galleryScan, galleryDir string, removable bool) error {
	pagePath := filepath.Join(galleryDir, "page.html")
	pageData, err := os.ReadFile(pagePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", pagePath, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(pageData))
	if err != nil {
		return fmt.Errorf("parse %s: %w", pagePath, err)
	}

	id, ok := parseReportGalleryID(doc)
	if !ok {
		return fmt.Errorf("%s: no Report Gallery link found", pagePath)
	}

	scan.directories[id] = append(scan.directories[id], cleanupLocation{dir: galleryDir, removable: removable})

	if parentID, ok := parseDeclaredParent(doc); ok {
		scan.declaredParent[id] = parentID
	}

	for _, childID := range parseGalleryHrefIDs(doc.Find("#gnd > a")) {
		if scan.childrenOf[id] == nil {
			scan.childrenOf[id] = make(map[int64]struct{})
		}
		scan.childrenOf[id][childID] = struct{}{}
	}

	expungePath := filepath.Join(galleryDir, "expungelog.html")
	expungeData, err := os.ReadFile(expungePath)
	if err != nil {
		return nil
	}
	expungeDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(expungeData))
	if err != nil {
		return fmt.Errorf("parse %s: %w", expungePath, err)
	}
	if isAdministrativeExpunge(expungeDoc) {
		return nil
	}
	for _, conflictID := range parseGalleryHrefIDs(expungeDoc.Find(".exp_table a")) {
		if conflictID == id {
			continue
		}
		if scan.conflictsOf[id] == nil {
			scan.conflictsOf[id] = make(map[int64]struct{})
		}
		scan.conflictsOf[id][conflictID] = struct{}{}
	}
	return nil
}

// evict implements Pass 2: determine the outdated set and delete every
// removable directory belonging to it.
func (c *Cleaner) evict(scan *galleryScan) (int64, error) {
	namedAsParent := make(map[int64]struct{}, len(scan.declaredParent))
	for _, parentID := range scan.declaredParent {
		namedAsParent[parentID] = struct{}{}
	}

	var freedBytes int64
	for id, locations := range scan.directories {
		if !c.isOutdated(scan, id, namedAsParent) {
			continue
		}

		for _, loc := range locations {
			if !loc.removable {
				continue
			}
			size, err := dirSize(loc.dir)
			if err != nil && c.logger != nil {
				c.logger.Warn("failed to size directory before removal", zap.String("dir", loc.dir), zap.Error(err))
			}
			if err := os.RemoveAll(loc.dir); err != nil {
				return freedBytes, fmt.Errorf("remove %s: %w", loc.dir, err)
			}
			freedBytes += size
		}

		if err := c.ledger.RemoveSuccessId(id); err != nil {
			return freedBytes, fmt.Errorf("gallery %d: remove success id: %w", id, err)
		}
		if c.logger != nil {
			c.logger.Info("gallery cleaned up as outdated", zap.Int64("gid", id), zap.Int64("bytes_freed", freedBytes))
		}
	}

	return freedBytes, nil
}

func (c *Cleaner) isOutdated(scan *galleryScan, id int64, namedAsParent map[int64]struct{}) bool {
	if _, ok := namedAsParent[id]; ok {
		return true
	}
	for childID := range scan.childrenOf[id] {
		if _, known := scan.directories[childID]; known {
			return true
		}
	}
	for conflictID := range scan.conflictsOf[id] {
		if _, known := scan.directories[conflictID]; known {
			return true
		}
	}
	return false
}

func parseReportGalleryID(doc *goquery.Document) (int64, bool) {
	href, ok := doc.Find("#gd5 > .g3 > a").First().Attr("href")
	if !ok {
		return 0, false
	}
	m := reportGalleryPattern.FindStringSubmatch(href)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func parseDeclaredParent(doc *goquery.Document) (int64, bool) {
	var (
		parentID int64
		found    bool
	)
	doc.Find(".gdt1").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(s.Text(), "Parent:") {
			return true
		}
		text := strings.TrimSpace(s.Next().Find("a").First().Text())
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return false
		}
		parentID, found = id, true
		return false
	})
	return parentID, found
}

func isAdministrativeExpunge(doc *goquery.Document) bool {
	admin := false
	doc.Find(".exp_outer").Each(func(_ int, s *goquery.Selection) {
		if strings.Contains(s.Text(), "administratively expunged") {
			admin = true
		}
	})
	return admin
}

func parseGalleryHrefIDs(sel *goquery.Selection) []int64 {
	var ids []int64
	sel.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		m := galleryHrefPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return
		}
		ids = append(ids, id)
	})
	return ids
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
