package archive

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const progressWindow = 10 * time.Minute

// Progress is the rolling-window ETA estimator (C7, spec §4.7): a list of
// milestone timestamps pruned to the last 10 minutes, used both to report a
// percentage against a known total and to project a completion time from
// the recent (not lifetime) processing rate.
type Progress struct {
	clock func() time.Time

	mu         sync.Mutex
	timestamps []time.Time
	reached    int
}

// NewProgress creates a Progress using the real wall clock.
func NewProgress() *Progress {
	return &Progress{clock: time.Now}
}

// SetClock overrides the clock, for deterministic tests.
func (p *Progress) SetClock(clock func() time.Time) {
	p.clock = clock
}

// Save records a completed milestone and evicts window entries older than
// 10 minutes.
func (p *Progress) Save() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	p.timestamps = append(p.timestamps, now)
	p.reached++

	cutoff := now.Add(-progressWindow)
	i := 0
	for i < len(p.timestamps) && p.timestamps[i].Before(cutoff) {
		i++
	}
	p.timestamps = p.timestamps[i:]
}

// ToProgressString renders "percentage reached/max, eta H M S" per spec
// §4.7: percentage is reached against max(reached, maxMilestones) so a
// total that undercounts (e.g. a DOWNLOAD run whose page count isn't known
// in advance) never reports over 100%; eta projects the remaining count
// against the recent (windowed) completion rate, not the lifetime rate.
func (p *Progress) ToProgressString(maxMilestones int) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	denom := p.reached
	if maxMilestones > denom {
		denom = maxMilestones
	}
	var percentage float64
	if denom > 0 {
		percentage = 100 * float64(p.reached) / float64(denom)
	}

	remaining := maxMilestones - p.reached
	if remaining < 0 {
		remaining = 0
	}

	eta := time.Duration(0)
	if remaining > 0 && len(p.timestamps) > 0 {
		now := p.clock()
		windowStart := p.timestamps[0]
		windowSize := len(p.timestamps)
		avgPerMilestone := now.Sub(windowStart) / time.Duration(windowSize)
		eta = avgPerMilestone * time.Duration(remaining)
	}

	return fmt.Sprintf("%.1f%% (%d/%d), eta %s", percentage, p.reached, maxMilestones, formatETA(eta))
}

// formatETA renders a duration as whole-second H/M/S components separated
// by a literal space (spec §4.7's ISO-8601-derived format).
func formatETA(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)

	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	seconds := int(d / time.Second)

	var parts []string
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dH", hours))
	}
	if hours > 0 || minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dM", minutes))
	}
	parts = append(parts, fmt.Sprintf("%dS", seconds))
	return strings.Join(parts, " ")
}
