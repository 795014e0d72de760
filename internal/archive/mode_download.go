package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/slinet/rippanda/internal/httpclient"
)

// pageLoaderURL is the minimal surface mode_download needs from the HTTP
// client: fetching a search-result or "next page" URL as HTML.
type pageLoaderURL interface {
	LoadDocumentURL(ctx context.Context, rawURL string) (*httpclient.Document, error)
}

// galleryHrefPattern extracts (id, token) from an anchor href of the form
// "/g/<id>/<token>/" (spec §4.6 DOWNLOAD).
var galleryHrefPattern = regexp.MustCompile(`/g/(\d+)/([0-9a-f]+)/`)

// Downloader runs the DOWNLOAD mode orchestrator (spec §4.6): a paginated
// search crawl that constructs a Gallery per row and drives it through every
// registered element archiver.
type Downloader struct {
	client      pageLoaderURL
	archivers   []ElementArchiver
	ledger      *Ledger
	progress    *Progress
	writableDir string
	loader      MetadataLoader
	logger      *zap.Logger
	retryCfg    RetryConfig
	catchup     bool
}

// NewDownloader constructs a Downloader. writableDir is the primary (first)
// archive directory, the only one DOWNLOAD ever writes to.
func NewDownloader(client pageLoaderURL, archivers []ElementArchiver, ledger *Ledger, loader MetadataLoader, writableDir string, retryCfg RetryConfig, catchup bool, logger *zap.Logger) *Downloader {
	return &Downloader{
		client:      client,
		archivers:   archivers,
		ledger:      ledger,
		progress:    NewProgress(),
		writableDir: writableDir,
		loader:      loader,
		logger:      logger,
		retryCfg:    retryCfg,
		catchup:     catchup,
	}
}

type searchRow struct {
	id    int64
	token string
}

// Run crawls startURL page by page until the result list is empty, a
// catchup-mode page yields nothing new, or no "next page" link is found. The
// temp ledger is cleared only on a clean return: an aborted run leaves it
// behind for forensic inspection, cleared by the next run's InitSuccessIds
// (spec §7).
func (d *Downloader) Run(ctx context.Context, startURL string) (err error) {
	if err := d.ledger.InitSuccessIds(); err != nil {
		return fmt.Errorf("init success ledger: %w", err)
	}
	defer func() {
		if err == nil {
			d.ledger.ClearTempSuccessIds()
		}
	}()

	pageURL := startURL
	totalSeen := 0

	for pageURL != "" {
		doc, err := d.client.LoadDocumentURL(ctx, pageURL)
		if err != nil {
			return fmt.Errorf("load search page: %w", err)
		}
		if doc.Find("#searchbox").Length() == 0 {
			return fmt.Errorf("search page missing #searchbox at %s", pageURL)
		}

		rows := parseSearchRows(doc)
		if len(rows) == 0 {
			break
		}

		processedAny := false
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}

			totalSeen++
			if d.ledger.IsInSuccessIds(row.id) {
				if d.logger != nil {
					d.logger.Debug("skipping already-archived gallery", zap.Int64("gid", row.id))
				}
				continue
			}

			if err := d.ledger.AddTempSuccessId(row.id); err != nil {
				return fmt.Errorf("gallery %d: record temp success id: %w", row.id, err)
			}

			g := NewGallery(row.id, row.token, galleryDir(d.writableDir, row.id), ModeDownload, d.loader)
			if err := runArchivers(ctx, d.archivers, g, d.retryCfg); err != nil {
				if d.logger != nil {
					d.logger.Error("gallery processing failed, aborting run",
						zap.Int64("gid", row.id), zap.Error(err))
				}
				return fmt.Errorf("gallery %d: %w", row.id, err)
			}
			processedAny = true

			if err := d.ledger.AddSuccessId(row.id); err != nil {
				return fmt.Errorf("gallery %d: record success id: %w", row.id, err)
			}
			if err := d.ledger.UpdateSuccessIds(); err != nil {
				return fmt.Errorf("gallery %d: update success ids: %w", row.id, err)
			}

			d.progress.Save()
			if d.logger != nil {
				d.logger.Info("gallery archived",
					zap.Int64("gid", row.id),
					zap.String("progress", d.progress.ToProgressString(totalSeen)))
			}
		}

		if d.catchup && !processedAny {
			break
		}

		pageURL = nextPageURL(doc)
	}

	return nil
}

func galleryDir(writableDir string, id int64) string {
	return filepath.Join(writableDir, strconv.FormatInt(id, 10))
}

// parseSearchRows implements spec §4.6's "parse every `table.gltc tr >
// td.gl1c`'s parent into a Gallery (id/token from the anchor `.glname > a`
// href matching `/g/(\d+)/([0-9a-f]+)/`)".
func parseSearchRows(doc *httpclient.Document) []searchRow {
	var rows []searchRow
	doc.Find("table.gltc tr > td.gl1c").Each(func(_ int, cell *goquery.Selection) {
		row := cell.Parent()
		href, ok := row.Find(".glname > a").Attr("href")
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
		rows = append(rows, searchRow{id: id, token: m[2]})
	})
	return rows
}

// nextPageURL implements spec §4.6's next-page selector fallback: `.ptds +
// td:not(.ptdd) > a`, then `a#unext`.
func nextPageURL(doc *httpclient.Document) string {
	if href, ok := doc.Find(".ptds + td:not(.ptdd) > a").Attr("href"); ok {
		return doc.Resolve(href)
	}
	if href, ok := doc.Find("a#unext").Attr("href"); ok {
		return doc.Resolve(href)
	}
	return ""
}
