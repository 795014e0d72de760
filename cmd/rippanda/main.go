// Command rippanda archives galleries from a panda-family gallery site to
// local directories, and later refreshes or prunes those archives. Grounded
// on the teacher's cmd/sync/main.go: a positional mode argument, one shared
// flag set, and a single dispatch function that starts the matching
// orchestrator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spf13/pflag"

	"github.com/slinet/rippanda/internal/archive"
	"github.com/slinet/rippanda/internal/config"
	"github.com/slinet/rippanda/internal/httpclient"
	"github.com/slinet/rippanda/internal/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	for _, a := range args {
		if a == "-h" || a == "--help" {
			printUsage()
			return 0
		}
	}

	fs := pflag.NewFlagSet("rippanda", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	// The mode is the sole positional argument and may appear anywhere
	// among the flags (spec §6: "[flags] <mode>"); omitting it defaults to
	// download (config.FromFlags applies the default).
	var mode string
	switch positional := fs.Args(); len(positional) {
	case 0:
	case 1:
		mode = positional[0]
	default:
		fmt.Fprintf(os.Stderr, "rippanda: unexpected arguments %v\n\n", positional[1:])
		printUsage()
		return 1
	}

	cfg, err := config.FromFlags(fs, mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rippanda: %v\n\n", err)
		printUsage()
		return 1
	}

	log, err := logger.New(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rippanda: failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, cfg, log); err != nil {
		if ctx.Err() != nil {
			log.Warn("interrupted", zap.Error(err))
			return 130
		}
		log.Error("run failed", zap.Error(err))
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	client, err := httpclient.New(cfg, log)
	if err != nil {
		return fmt.Errorf("create http client: %w", err)
	}

	loader := &archive.ClientMetadataLoader{Client: client}
	ledger := archive.NewLedger(cfg.SuccessDir, cfg.MemberID)
	archivers := archive.NewArchivers(client, loader, cfg.Host, cfg.Skip, log)
	retryCfg := archive.RetryConfig{
		MaxRetries:     cfg.RetryTimes,
		Logger:         log,
		WaitForIPUnban: cfg.WaitForIPUnban,
	}

	switch cfg.Mode {
	case config.ModeDownload:
		downloader := archive.NewDownloader(client, archivers, ledger, loader, cfg.ArchiveDirs[0], retryCfg, cfg.Catchup, log)
		if err := downloader.Run(ctx, cfg.URL); err != nil {
			return fmt.Errorf("download: %w", err)
		}
	case config.ModeUpdate:
		updater := archive.NewUpdater(archivers, ledger, loader, cfg.ArchiveDirs[0], cfg.UpdateInterval, retryCfg, log)
		if err := updater.Run(ctx); err != nil {
			return fmt.Errorf("update: %w", err)
		}
	case config.ModeCleanup:
		cleaner := archive.NewCleaner(cfg.ArchiveDirs, ledger, log)
		freed, err := cleaner.Run(ctx)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		log.Info("cleanup completed", zap.Int64("bytes_freed", freed))
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	log.Info("run completed successfully", zap.String("mode", cfg.Mode))
	return nil
}

func printUsage() {
	fmt.Println("Usage: rippanda <download|update|cleanup> [options]")
	fmt.Println("\nModes:")
	fmt.Println("  download   crawl a search URL, archiving every new gallery it lists")
	fmt.Println("  update     walk the writable archive root, refreshing stale galleries")
	fmt.Println("  cleanup    prune archived galleries superseded by a known parent/child/conflict")
	fmt.Println("\nOptions:")
	fmt.Println("  -c, --cookies string        cookie header, 'k=v; k=v' (required)")
	fmt.Println("  -p, --proxy string          SOCKS5 proxy, host:port")
	fmt.Println("  -u, --url string            base or search URL (required)")
	fmt.Println("  -d, --delay string          minimum inter-request delay, ISO-8601 time part (default 15S)")
	fmt.Println("  -i, --update-interval string  minT=minD-maxT=maxD, ISO-8601 period parts (default 0D=7D-365D=90D)")
	fmt.Println("  -a, --archive-dir string    archive directory (repeatable; first is the writable primary)")
	fmt.Println("  -s, --success-dir string    success-ledger directory")
	fmt.Println("  -e, --skip string           element to skip (repeatable)")
	fmt.Println("  -t, --catchup               stop a download page early once every gallery on it is known")
	fmt.Println("  -v, --verbose int           verbosity, 1-7 (default 4)")
	fmt.Println("\nExamples:")
	fmt.Println("  rippanda download -c \"ipb_member_id=1; ipb_pass_hash=...\" -u https://e-hentai.org/?f_search=... -a /mnt/archive -s /mnt/archive/.success")
	fmt.Println("  rippanda update -c \"...\" -u https://e-hentai.org -a /mnt/archive -s /mnt/archive/.success")
	fmt.Println("  rippanda cleanup -c \"...\" -u https://e-hentai.org -a /mnt/archive -a /mnt/archive-ro -s /mnt/archive/.success")
}
