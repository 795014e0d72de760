package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/slinet/rippanda/internal/config"
)

// maxConsecutiveFailures is the 3-strikes abort policy for UPDATE mode
// (spec §4.6, §7).
const maxConsecutiveFailures = 3

// Updater runs the UPDATE mode orchestrator (spec §4.6): walks the writable
// archive root, rebuilds a Gallery per directory holding an
// api-metadata.json, and refreshes stale elements.
type Updater struct {
	archivers   []ElementArchiver
	ledger      *Ledger
	progress    *Progress
	loader      MetadataLoader
	writableDir string
	interval    config.UpdateInterval
	retryCfg    RetryConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewUpdater constructs an Updater.
func NewUpdater(archivers []ElementArchiver, ledger *Ledger, loader MetadataLoader, writableDir string, interval config.UpdateInterval, retryCfg RetryConfig, logger *zap.Logger) *Updater {
	return &Updater{
		archivers:   archivers,
		ledger:      ledger,
		progress:    NewProgress(),
		loader:      loader,
		writableDir: writableDir,
		interval:    interval,
		retryCfg:    retryCfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Run walks the writable archive root and refreshes every gallery it finds.
// The temp ledger is cleared only on a clean return: an aborted run leaves
// it behind for forensic inspection, cleared by the next run's
// InitSuccessIds (spec §7).
func (u *Updater) Run(ctx context.Context) (err error) {
	if err := u.ledger.InitSuccessIds(); err != nil {
		return fmt.Errorf("init success ledger: %w", err)
	}
	defer func() {
		if err == nil {
			u.ledger.ClearTempSuccessIds()
		}
	}()

	entries, err := os.ReadDir(u.writableDir)
	if err != nil {
		return fmt.Errorf("walk archive root %s: %w", u.writableDir, err)
	}

	consecutiveFailures := 0
	total := u.ledger.TotalKnownIds()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(u.writableDir, entry.Name())
		metaPath := filepath.Join(dir, "api-metadata.json")
		data, err := os.ReadFile(metaPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", metaPath, err)
		}

		g, err := u.buildGallery(dir, data)
		if err != nil {
			if u.logger != nil {
				u.logger.Warn("skipping unparsable gallery directory", zap.String("dir", dir), zap.Error(err))
			}
			continue
		}

		if err := runArchivers(ctx, u.archivers, g, u.retryCfg); err != nil {
			consecutiveFailures++
			if u.logger != nil {
				u.logger.Error("gallery update failed",
					zap.Int64("gid", g.ID), zap.Int("consecutive_failures", consecutiveFailures), zap.Error(err))
			}
			if consecutiveFailures > maxConsecutiveFailures {
				return fmt.Errorf("%w: %w", ErrTooManyFailures, err)
			}
			continue
		}
		consecutiveFailures = 0

		if err := u.ledger.AddSuccessId(g.ID); err != nil {
			return fmt.Errorf("gallery %d: record success id: %w", g.ID, err)
		}
		if err := u.ledger.UpdateSuccessIds(); err != nil {
			return fmt.Errorf("gallery %d: update success ids: %w", g.ID, err)
		}

		u.progress.Save()
		if u.logger != nil {
			u.logger.Info("gallery refreshed",
				zap.Int64("gid", g.ID),
				zap.String("progress", u.progress.ToProgressString(total)))
		}
	}

	return nil
}

// buildGallery parses gid, token and posted out of a directory's
// api-metadata.json and precomputes the update threshold (spec §4.6
// UPDATE).
func (u *Updater) buildGallery(dir string, data []byte) (*Gallery, error) {
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", dir, err)
	}

	idVal, ok := parsed["gid"]
	if !ok {
		return nil, fmt.Errorf("%s: metadata missing gid", dir)
	}
	id := toInt64(idVal)
	if id == 0 {
		return nil, fmt.Errorf("%s: metadata.gid did not parse to a non-zero id", dir)
	}

	token, _ := parsed["token"].(string)
	if token == "" {
		return nil, fmt.Errorf("%s: metadata missing token", dir)
	}

	postedEpoch := toInt64(parsed["posted"])
	if postedEpoch == 0 {
		return nil, fmt.Errorf("%s: metadata missing posted", dir)
	}
	posted := time.Unix(postedEpoch, 0)

	g := NewGallery(id, token, dir, ModeUpdate, u.loader)
	g.UpdateThreshold = ComputeUpdateThreshold(posted, u.now(), u.interval)
	return g, nil
}
