package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// parseISOTimeDuration parses the compact time-part grammar used by
// --delay (e.g. "15S", "1H30M") by normalizing it into a standard ISO-8601
// duration string ("PT15S") before handing it to duration.Parse.
func parseISOTimeDuration(token string) (time.Duration, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, fmt.Errorf("empty duration")
	}
	iso := token
	if !strings.HasPrefix(iso, "P") {
		iso = "PT" + iso
	}
	d, err := duration.Parse(iso)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", token, err)
	}
	return d.ToTimeDuration(), nil
}

// parseISOPeriod parses the compact period-part grammar used by
// --update-interval's four tokens (e.g. "7D", "365D") the same way, but
// without the "T" time designator since these are date components.
func parseISOPeriod(token string) (time.Duration, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, fmt.Errorf("empty period")
	}
	iso := token
	if !strings.HasPrefix(iso, "P") {
		iso = "P" + iso
	}
	d, err := duration.Parse(iso)
	if err != nil {
		return 0, fmt.Errorf("invalid period %q: %w", token, err)
	}
	return d.ToTimeDuration(), nil
}

// parseUpdateInterval parses the "minT=minD-maxT=maxD" grammar (spec §6),
// e.g. "0D=7D-365D=90D". A single-duration form is the degenerate case
// minT=maxT, minD=maxD (spec §9 open question).
func parseUpdateInterval(s string) (UpdateInterval, error) {
	halves := strings.SplitN(s, "-", 2)
	if len(halves) != 2 {
		return UpdateInterval{}, fmt.Errorf("expected 'minT=minD-maxT=maxD', got %q", s)
	}

	min, err := parseIntervalHalf(halves[0])
	if err != nil {
		return UpdateInterval{}, err
	}
	max, err := parseIntervalHalf(halves[1])
	if err != nil {
		return UpdateInterval{}, err
	}

	return UpdateInterval{
		MinThreshold: min.threshold,
		MinDuration:  min.duration,
		MaxThreshold: max.threshold,
		MaxDuration:  max.duration,
	}, nil
}

type intervalHalf struct {
	threshold time.Duration
	duration  time.Duration
}

func parseIntervalHalf(s string) (intervalHalf, error) {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 {
		return intervalHalf{}, fmt.Errorf("expected 'threshold=duration', got %q", s)
	}
	threshold, err := parseISOPeriod(parts[0])
	if err != nil {
		return intervalHalf{}, err
	}
	dur, err := parseISOPeriod(parts[1])
	if err != nil {
		return intervalHalf{}, err
	}
	return intervalHalf{threshold: threshold, duration: dur}, nil
}
