// Package config builds the rippanda runtime configuration from CLI flags,
// the way the teacher's internal/config builds it from a YAML file: a
// viper.Viper with defaults, bound inputs, and a typed Unmarshal target.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix is the prefix under which every flag is also settable as an
// environment variable (RIPPANDA_COOKIES, RIPPANDA_URL, ...).
const envPrefix = "RIPPANDA"

// Element names accepted by -e/--skip, in C4 registration order.
const (
	ElementMetadata    = "metadata"
	ElementPage        = "page"
	ElementImagelist   = "imagelist"
	ElementExpungelog  = "expungelog"
	ElementThumbnail   = "thumbnail"
	ElementTorrent     = "torrent"
	ElementZip         = "zip"
)

var validElements = map[string]bool{
	ElementMetadata:   true,
	ElementPage:       true,
	ElementImagelist:  true,
	ElementExpungelog: true,
	ElementThumbnail:  true,
	ElementTorrent:    true,
	ElementZip:        true,
}

// Modes accepted as the CLI's positional argument.
const (
	ModeDownload = "download"
	ModeUpdate   = "update"
	ModeCleanup  = "cleanup"
)

// UpdateInterval interpolates a per-gallery refresh interval from the
// gallery's age, per spec §3/§4.3.
type UpdateInterval struct {
	MinThreshold time.Duration
	MinDuration  time.Duration
	MaxThreshold time.Duration
	MaxDuration  time.Duration
}

// Config holds every setting the CLI accepts (spec §6).
type Config struct {
	Cookies        string         `mapstructure:"cookies"`
	MemberID       string         `mapstructure:"-"`
	Proxy          string         `mapstructure:"proxy"`
	URL            string         `mapstructure:"url"`
	Host           string         `mapstructure:"-"`
	Delay          time.Duration  `mapstructure:"-"`
	UpdateInterval UpdateInterval `mapstructure:"-"`
	ArchiveDirs    []string       `mapstructure:"archive-dir"`
	SuccessDir     string         `mapstructure:"success-dir"`
	Skip           []string       `mapstructure:"skip"`
	Catchup        bool           `mapstructure:"catchup"`
	Verbose        int            `mapstructure:"verbose"`
	Mode           string         `mapstructure:"-"`
	RetryTimes     int            `mapstructure:"retry-times"`
	WaitForIPUnban bool           `mapstructure:"wait-for-ip-unban"`
}

// RegisterFlags defines the rippanda flag set (spec §6) with its defaults.
// The caller parses fs against os.Args and the positional mode argument
// separately; this only declares the flag-bearing options.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("cookies", "c", "", "cookie header, 'k=v; k=v' (required)")
	fs.StringP("proxy", "p", "", "SOCKS5 proxy, host:port")
	fs.StringP("url", "u", "", "base or search URL (required)")
	fs.StringP("delay", "d", "15S", "minimum inter-request delay, ISO-8601 time part")
	fs.StringP("update-interval", "i", "0D=7D-365D=90D", "minT=minD-maxT=maxD, ISO-8601 period parts")
	fs.StringArrayP("archive-dir", "a", nil, "archive directory (repeatable; first is the writable primary)")
	fs.StringP("success-dir", "s", "", "success-ledger directory")
	fs.StringArrayP("skip", "e", nil, "element to skip (repeatable)")
	fs.BoolP("catchup", "t", false, "stop a download page early once every gallery on it is already archived")
	fs.IntP("verbose", "v", 4, "verbosity, 1-7")
	fs.Int("retry-times", 3, "element retry attempts before a gallery fails")
	fs.Bool("wait-for-ip-unban", false, "wait out a temporary IP ban instead of failing (supplemental)")
}

// FromFlags binds a parsed flag set into viper (with RIPPANDA_ environment
// overrides, matching the teacher's v.AutomaticEnv() habit) and unmarshals
// it into a Config, then derives the fields that aren't flags directly
// (member id, host, parsed durations).
func FromFlags(fs *pflag.FlagSet, mode string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Mode = strings.ToLower(mode)
	if cfg.Mode == "" {
		cfg.Mode = ModeDownload
	}
	if cfg.Mode != ModeDownload && cfg.Mode != ModeUpdate && cfg.Mode != ModeCleanup {
		return nil, fmt.Errorf("invalid mode %q (want download, update or cleanup)", mode)
	}

	if cfg.Cookies == "" {
		return nil, fmt.Errorf("cookies are required (-c/--cookies)")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required (-u/--url)")
	}
	for _, skip := range cfg.Skip {
		if !validElements[skip] {
			return nil, fmt.Errorf("unknown element %q in --skip", skip)
		}
	}
	if len(cfg.ArchiveDirs) == 0 {
		return nil, fmt.Errorf("at least one --archive-dir is required")
	}

	memberID, cookies, err := prepareCookies(cfg.Cookies)
	if err != nil {
		return nil, err
	}
	cfg.MemberID = memberID
	cfg.Cookies = cookies

	cfg.Host, err = hostFromURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	delayStr, _ := fs.GetString("delay")
	cfg.Delay, err = parseISOTimeDuration(delayStr)
	if err != nil {
		return nil, fmt.Errorf("parse --delay: %w", err)
	}

	intervalStr, _ := fs.GetString("update-interval")
	cfg.UpdateInterval, err = parseUpdateInterval(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("parse --update-interval: %w", err)
	}

	if cfg.RetryTimes <= 0 {
		cfg.RetryTimes = 3
	}

	return &cfg, nil
}
