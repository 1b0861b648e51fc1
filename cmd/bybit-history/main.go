// Command bybit-history downloads historical market data (trades, order-book
// snapshots) from the Bybit history-data UI by driving a headless browser.
//
//	bybit-history download -market spot -dataset trades -symbol BTCUSDT \
//	    -start 2026-01-01 -end 2026-01-12 -chunk-days 5 -out ./data/archive
//	bybit-history symbols -market contract
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"bybithist/internal/config"
	"bybithist/internal/driver"
	"bybithist/internal/files"
	"bybithist/internal/history"
	"bybithist/internal/infrastructure"
	"bybithist/internal/operations"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC RECOVERED: %v\n%s\n", r, debug.Stack())
			os.Exit(1)
		}
	}()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 2
	}
	switch args[0] {
	case "download":
		return runDownload(args[1:])
	case "symbols":
		return runSymbols(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  bybit-history download -market <spot|contract> -dataset <trades|l2book> -symbol SYMBOL -start YYYY-MM-DD -end YYYY-MM-DD [-chunk-days N] [-out DIR] [-mirror URL] [-headless=true]
  bybit-history symbols -market <spot|contract> [-headless=true]`)
}

type downloadFlags struct {
	market    string
	dataset   string
	symbol    string
	start     string
	end       string
	chunkDays int
	out       string
	mirror    string
	headless  bool
}

func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	var f downloadFlags
	fs.StringVar(&f.market, "market", "", "market segment: spot | contract")
	fs.StringVar(&f.dataset, "dataset", "", "dataset: trades | l2book")
	fs.StringVar(&f.symbol, "symbol", "", "symbol, e.g. BTCUSDT")
	fs.StringVar(&f.start, "start", "", "start date (YYYY-MM-DD)")
	fs.StringVar(&f.end, "end", "", "end date (YYYY-MM-DD)")
	fs.IntVar(&f.chunkDays, "chunk-days", history.MaxChunkDays, "days per chunk (1-5, platform limit)")
	fs.StringVar(&f.out, "out", "", "archive base directory (defaults to <data>/archive)")
	fs.StringVar(&f.mirror, "mirror", "", "optional blob bucket URL to mirror the archive to")
	fs.BoolVar(&f.headless, "headless", true, "run browser headless")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	req, err := parseRequest(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	paths, err := config.NewPaths(cfg.Archive.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := paths.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	archiveBase := paths.ArchiveDir
	if f.out != "" {
		archiveBase = f.out
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = paths.LogPath("bybit-history.log")
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger, using default: %v\n", err)
		logger = slog.Default()
	}

	runID := uuid.NewString()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = infrastructure.WithRunID(ctx, runID)

	logger.InfoContext(ctx, "download starting",
		slog.String("request", req.String()),
		slog.String("from", req.Start.Format(history.DateLayout)),
		slog.String("to", req.End.Format(history.DateLayout)),
		slog.Int("chunk_days", req.ChunkDays),
		slog.String("archive", archiveBase),
		slog.String("staging", paths.StagingDir))

	var mirror *files.Mirror
	if url := mirrorURL(f.mirror, cfg.Archive.MirrorURL); url != "" {
		mirror, err = files.OpenMirror(ctx, url, logger)
		if err != nil {
			logger.ErrorContext(ctx, "mirror unavailable", slog.String("error", err.Error()))
			return 1
		}
		defer mirror.Close()
	}

	chrome := driver.NewChrome(driver.Config{
		Headless:        f.headless && cfg.Browser.Headless,
		StagingDir:      paths.StagingDir,
		ActionTimeout:   cfg.Browser.ActionTimeout,
		NavigateTimeout: cfg.Browser.NavigateTimeout,
	}, logger)

	sessions := operations.NewSessionManager(chrome, logger)
	watcher := operations.NewWatcher(paths.StagingDir, cfg.Download.PollInterval, cfg.Download.WaitTimeout, logger)
	workflow := operations.NewWorkflow(watcher, operations.RetryConfig{
		MaxAttempts:  cfg.Download.MaxAttempts,
		InitialDelay: cfg.Download.InitialDelay,
		MaxDelay:     cfg.Download.MaxDelay,
		Multiplier:   cfg.Download.Multiplier,
	}, logger)
	archiver := files.NewArchiver(archiveBase, mirror, logger)
	limiter := rate.NewLimiter(rate.Limit(cfg.Download.ExportsPerMinute/60), 1)
	orch := operations.NewOrchestrator(sessions, workflow, archiver, limiter, logger)

	var report *operations.Report
	g, gctx := errgroup.WithContext(ctx)
	runCtx, runDone := context.WithCancel(gctx)
	g.Go(func() error {
		defer runDone()
		var err error
		report, err = orch.Run(runCtx, runID, req)
		return err
	})
	g.Go(func() error {
		monitorResources(runCtx, logger)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.ErrorContext(ctx, "download failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	printReport(report)
	if !report.Ok() {
		return 1
	}
	return 0
}

func runSymbols(args []string) int {
	fs := flag.NewFlagSet("symbols", flag.ContinueOnError)
	marketStr := fs.String("market", "", "market segment: spot | contract")
	headless := fs.Bool("headless", true, "run browser headless")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	market, err := history.ParseMarket(*marketStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	paths, err := config.NewPaths(cfg.Archive.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := paths.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = infrastructure.WithRunID(ctx, uuid.NewString())

	chrome := driver.NewChrome(driver.Config{
		Headless:        *headless && cfg.Browser.Headless,
		StagingDir:      paths.StagingDir,
		ActionTimeout:   cfg.Browser.ActionTimeout,
		NavigateTimeout: cfg.Browser.NavigateTimeout,
	}, logger)

	sessions := operations.NewSessionManager(chrome, logger)
	defer sessions.Close()
	drv, err := sessions.Ensure(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "browser launch failed", slog.String("error", err.Error()))
		return 1
	}
	symbols, err := drv.ListSymbols(ctx, market)
	if err != nil {
		logger.ErrorContext(ctx, "symbol listing failed", slog.String("error", err.Error()))
		return 1
	}

	fmt.Printf("=== %s SYMBOLS (%d) ===\n", market, len(symbols))
	for _, s := range symbols {
		fmt.Println(s)
	}
	return 0
}

// mirrorURL resolves where to mirror the archive: the -mirror flag wins,
// otherwise the configured archive.mirror_url applies.
func mirrorURL(flagValue, configured string) string {
	if flagValue != "" {
		return flagValue
	}
	return configured
}

// parseRequest turns CLI flags into a validated download request.
func parseRequest(f downloadFlags) (history.Request, error) {
	market, err := history.ParseMarket(f.market)
	if err != nil {
		return history.Request{}, err
	}
	dataset, err := history.ParseDataset(f.dataset)
	if err != nil {
		return history.Request{}, err
	}
	start, err := time.Parse(history.DateLayout, f.start)
	if err != nil {
		return history.Request{}, fmt.Errorf("invalid -start date: %w", err)
	}
	end, err := time.Parse(history.DateLayout, f.end)
	if err != nil {
		return history.Request{}, fmt.Errorf("invalid -end date: %w", err)
	}
	req := history.Request{
		Market:    market,
		Dataset:   dataset,
		Symbol:    f.symbol,
		Start:     start,
		End:       end,
		ChunkDays: f.chunkDays,
	}
	if err := req.Validate(); err != nil {
		return history.Request{}, err
	}
	return req, nil
}

func printReport(report *operations.Report) {
	fmt.Printf("run %s: %d completed, %d skipped, %d failed (of %d chunks)\n",
		report.RunID, report.Completed(), report.Skipped(), report.Failed(),
		len(report.Outcomes))
	for _, o := range report.Outcomes {
		switch o.Status {
		case operations.ChunkFailed:
			fmt.Printf("  chunk %d %s: FAILED after %d attempts: %v\n",
				o.Chunk.Index, o.Chunk.Range(), o.Attempts, o.Err)
		case operations.ChunkSkipped:
			fmt.Printf("  chunk %d %s: skipped (already archived: %s)\n",
				o.Chunk.Index, o.Chunk.Range(), o.ResolvedPath)
		default:
			fmt.Printf("  chunk %d %s: completed -> %s\n",
				o.Chunk.Index, o.Chunk.Range(), o.ResolvedPath)
		}
	}
}

// monitorResources logs memory and goroutine counts while a run is active,
// the same telemetry the long scrapes expose.
func monitorResources(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			logger.Info("resource usage",
				slog.Uint64("memory_alloc_mb", m.Alloc/1024/1024),
				slog.Uint64("memory_sys_mb", m.Sys/1024/1024),
				slog.Int("goroutines", runtime.NumGoroutine()))
		}
	}
}
