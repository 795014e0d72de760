package archive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Ledger is the success-file ledger (C5, spec §4.5): an append-only,
// CRLF-terminated decimal-id log per user (`success-<memberId>.txt`), plus
// a temp variant (`success-<memberId>-temp.txt`) recording ids that are
// mid-processing. Peer ledgers belonging to other member ids in the same
// success directory are read-only to this process and reloaded only when
// their mtime advances (spec §5's shared-resource policy).
type Ledger struct {
	successDir string
	memberID   string

	mine map[int64]struct{}
	// order preserves insertion order of mine's ids so removeSuccessId can
	// rewrite the final ledger without reshuffling surviving entries.
	order []int64

	peers      map[string]map[int64]struct{}
	peerMtimes map[string]time.Time
	lastRescan time.Time
}

// NewLedger constructs a Ledger rooted at successDir for the given member
// id. Call InitSuccessIds once before use.
func NewLedger(successDir, memberID string) *Ledger {
	return &Ledger{
		successDir: successDir,
		memberID:   memberID,
		mine:       make(map[int64]struct{}),
		peers:      make(map[string]map[int64]struct{}),
		peerMtimes: make(map[string]time.Time),
	}
}

func (l *Ledger) finalPath() string {
	return filepath.Join(l.successDir, fmt.Sprintf("success-%s.txt", l.memberID))
}

func (l *Ledger) tempPath() string {
	return filepath.Join(l.successDir, fmt.Sprintf("success-%s-temp.txt", l.memberID))
}

// InitSuccessIds implements spec §4.5's initSuccessIds: delete any leftover
// temp ledger from a prior aborted run, then load this user's final ledger
// and every peer's success-*.txt.
func (l *Ledger) InitSuccessIds() error {
	if err := os.Remove(l.tempPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale temp ledger: %w", err)
	}

	if ids, _, err := loadIDFile(l.finalPath()); err == nil {
		l.mine = make(map[int64]struct{}, len(ids))
		l.order = l.order[:0]
		for _, id := range ids {
			if _, dup := l.mine[id]; !dup {
				l.mine[id] = struct{}{}
				l.order = append(l.order, id)
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("load ledger %s: %w", l.finalPath(), err)
	}

	return l.UpdateSuccessIds()
}

// TotalKnownIds returns the number of distinct gallery ids across this
// user's ledger and every loaded peer ledger, for UPDATE mode's "percentage
// is you vs. the community" progress denominator (spec §4.6).
func (l *Ledger) TotalKnownIds() int {
	seen := make(map[int64]struct{}, len(l.mine))
	for id := range l.mine {
		seen[id] = struct{}{}
	}
	for _, set := range l.peers {
		for id := range set {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// ClearTempSuccessIds deletes this user's temp ledger on normal exit from a
// mode orchestrator (spec §4.6 DOWNLOAD's "on exit, delete the temp
// ledger"). A leftover temp ledger after an abort is intentional: it is
// forensic evidence cleared only by the next run's InitSuccessIds (spec
// §7).
func (l *Ledger) ClearTempSuccessIds() error {
	if err := os.Remove(l.tempPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp ledger: %w", err)
	}
	return nil
}

// IsInSuccessIds reports whether id is present in this user's ledger or any
// loaded peer ledger.
func (l *Ledger) IsInSuccessIds(id int64) bool {
	if _, ok := l.mine[id]; ok {
		return true
	}
	for _, set := range l.peers {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// AddTempSuccessId implements addTempSuccessId: append id to this user's
// temp ledger (created on first use).
func (l *Ledger) AddTempSuccessId(id int64) error {
	return appendID(l.tempPath(), id)
}

// AddSuccessId implements addSuccessId: append id to this user's final
// ledger and track it in memory.
func (l *Ledger) AddSuccessId(id int64) error {
	if err := appendID(l.finalPath(), id); err != nil {
		return err
	}
	if _, dup := l.mine[id]; !dup {
		l.mine[id] = struct{}{}
		l.order = append(l.order, id)
	}
	return nil
}

// RemoveSuccessId implements removeSuccessId: drop id from this user's set
// and rewrite the final ledger transactionally, preserving insertion order
// of the ids that remain.
func (l *Ledger) RemoveSuccessId(id int64) error {
	if _, ok := l.mine[id]; !ok {
		return nil
	}
	delete(l.mine, id)
	for i, existing := range l.order {
		if existing == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}

	dir := filepath.Dir(l.finalPath())
	name := filepath.Base(l.finalPath())
	return Save(func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, existing := range l.order {
			if _, err := fmt.Fprintf(bw, "%d\r\n", existing); err != nil {
				return err
			}
		}
		return bw.Flush()
	}, dir, name)
}

// UpdateSuccessIds implements updateSuccessIds: rescan success-*.txt for
// every member id other than our own, reloading only files whose mtime is
// newer than the mtime recorded when that file was last loaded. A write
// that lands after a file was read advances its mtime, so it is picked up
// on the next call rather than lost.
func (l *Ledger) UpdateSuccessIds() error {
	scanStarted := time.Now()

	entries, err := os.ReadDir(l.successDir)
	if err != nil {
		if os.IsNotExist(err) {
			l.lastRescan = scanStarted
			return nil
		}
		return fmt.Errorf("scan success dir: %w", err)
	}

	ownFinal := filepath.Base(l.finalPath())
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "success-") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		if strings.HasSuffix(name, "-temp.txt") || name == ownFinal {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mtime, loaded := l.peerMtimes[name]; loaded && !info.ModTime().After(mtime) {
			continue
		}

		ids, mtime, err := loadIDFile(filepath.Join(l.successDir, name))
		if err != nil {
			continue
		}
		set := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		l.peers[name] = set
		l.peerMtimes[name] = mtime
	}

	l.lastRescan = scanStarted
	return nil
}

func appendID(path string, id int64) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d\r\n", id); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return nil
}

func loadIDFile(path string) ([]int64, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	var ids []int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, time.Time{}, err
	}
	return ids, info.ModTime(), nil
}
