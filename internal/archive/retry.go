// Package archive implements the local archival pipeline (C2-C7): the
// transactional writer, the Gallery model, the element archivers, the
// success-file ledger, the three mode orchestrators, and the progress
// recorder.
package archive

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// retryWait is the fixed back-off between element-processing attempts
// (spec §7), replacing the teacher's exponential backoff: the spec's
// element-retry protocol is explicit about a flat 10s wait.
const retryWait = 10 * time.Second

// RetryConfig configures Retry/RetryVoid.
type RetryConfig struct {
	MaxRetries int
	Logger     *zap.Logger

	// WaitForIPUnban is a supplemental, opt-in feature (not in spec.md):
	// the teacher's retry detects a "temporarily banned ... ban expires
	// in ..." server message and waits out the ban instead of burning
	// retries.
	WaitForIPUnban bool
}

// parseIPBanDuration extracts the remaining ban time from a panda-family
// throttle message, e.g. "... temporarily banned ... (ban expires in 1
// hour and 30 minutes)". Adapted verbatim from the teacher's
// internal/crawler/retry.go.
func parseIPBanDuration(errMsg string) (time.Duration, bool) {
	if !strings.Contains(errMsg, "temporarily banned") {
		return 0, false
	}

	banPattern := regexp.MustCompile(`ban expires in (.+?)\)`)
	matches := banPattern.FindStringSubmatch(errMsg)
	if len(matches) < 2 {
		return 0, false
	}

	durationStr := matches[1]
	var total time.Duration

	if m := regexp.MustCompile(`(\d+)\s+hour`).FindStringSubmatch(durationStr); len(m) >= 2 {
		if h, err := strconv.Atoi(m[1]); err == nil {
			total += time.Duration(h) * time.Hour
		}
	}
	if m := regexp.MustCompile(`(\d+)\s+minute`).FindStringSubmatch(durationStr); len(m) >= 2 {
		if mi, err := strconv.Atoi(m[1]); err == nil {
			total += time.Duration(mi) * time.Minute
		}
	}
	if m := regexp.MustCompile(`(\d+)\s+second`).FindStringSubmatch(durationStr); len(m) >= 2 {
		if s, err := strconv.Atoi(m[1]); err == nil {
			total += time.Duration(s) * time.Second
		}
	}

	if total > 0 {
		return total, true
	}
	return 0, false
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry runs fn up to cfg.MaxRetries times with a fixed 10s wait between
// attempts (spec §7), returning its result on first success.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for i := 0; i < maxRetries; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.WaitForIPUnban {
			if wait, isBan := parseIPBanDuration(err.Error()); isBan {
				if cfg.Logger != nil {
					cfg.Logger.Warn("ip temporarily banned, waiting for unban",
						zap.Duration("wait", wait))
				}
				if err := sleep(ctx, wait+10*time.Second); err != nil {
					return zero, err
				}
				i = -1
				continue
			}
		}

		if cfg.Logger != nil {
			cfg.Logger.Warn("operation failed, retrying",
				zap.Int("attempt", i+1),
				zap.Int("max_retries", maxRetries),
				zap.Error(err))
		}

		if i < maxRetries-1 {
			if err := sleep(ctx, retryWait); err != nil {
				return zero, err
			}
		}
	}

	return zero, fmt.Errorf("exceeded max retries (%d): %w", maxRetries, lastErr)
}

// RetryVoid is Retry for functions with no result value.
func RetryVoid(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := Retry(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
