// Command videoanalyzer catalogs a directory tree of video files into a
// local SQLite library, and offers duplicate/integrity analysis over it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"videoanalyzer/internal/catalog"
	"videoanalyzer/internal/checkpoint"
	"videoanalyzer/internal/config"
	"videoanalyzer/internal/duplicate"
	"videoanalyzer/internal/probe"
	"videoanalyzer/internal/scan"
	"videoanalyzer/internal/vlog"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	subcommand, rest := args[0], args[1:]
	if subcommand == "-version" || subcommand == "--version" {
		fmt.Printf("videoanalyzer %s (%s)\n", version, commit)
		return 0
	}

	fs := flag.NewFlagSet(subcommand, flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "videoanalyzer: load config: %v\n", err)
		return 1
	}
	vlog.Configure(vlog.Config{Level: cfg.LogLevel, File: cfg.LogFile, Console: true})
	logger := vlog.WithComponent("cli")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("create data directory")
	}

	store, err := catalog.Open(config.DatabasePath(cfg.DataDir), catalog.DefaultConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("open catalog")
	}
	defer store.Close()

	switch subcommand {
	case "scan":
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: videoanalyzer scan <folder>")
			return 2
		}
		return cmdScan(ctx, cfg, store, fs.Arg(0), logger)
	case "resume":
		return cmdResume(ctx, cfg, store, logger)
	case "stats":
		return cmdStats(ctx, store)
	case "duplicates":
		method := duplicate.MethodFuzzy
		if fs.NArg() == 1 {
			method = duplicate.Method(fs.Arg(0))
		}
		return cmdDuplicates(ctx, store, method)
	case "verify":
		return cmdVerify(ctx, cfg, store, logger)
	default:
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: videoanalyzer <command> [arguments]

commands:
  scan <folder>          scan a directory tree into the catalog
  resume                 resume the last interrupted scan, if any
  stats                  print aggregate catalog statistics
  duplicates [method]    group duplicates (fuzzy|partial_hash|full_hash, default fuzzy)
  verify                 run a decode-pass integrity check over the catalog`)
}

// newEngine wires a scan.Engine from the resolved config — shared by the
// scan and resume subcommands.
func newEngine(cfg *config.Config, store *catalog.Store) (*scan.Engine, error) {
	probeBin := config.ResolveFFprobeBin(cfg.FFprobeBin, cfg.FFmpegBin)
	prober, err := probe.NewRunner(probeBin, probe.WithTimeout(cfg.Scan.ProbeTimeout))
	if err != nil {
		return nil, fmt.Errorf("resolve probe binary: %w", err)
	}

	cps := checkpoint.New(config.CheckpointPath(cfg.DataDir))

	scfg := scan.DefaultConfig()
	scfg.MaxConcurrency = cfg.Scan.MaxConcurrency
	scfg.BatchSize = cfg.Scan.BatchSize
	scfg.CheckpointInterval = cfg.Scan.CheckpointInterval
	scfg.RetryAttempts = uint(cfg.Scan.MaxRetries)
	scfg.StaleCheckpointAge = cfg.Scan.StaleCheckpointAge

	return scan.New(store, cps, prober, afero.NewOsFs(), scfg, vlog.WithComponent("scan")), nil
}

// watchEngine drains progress/log/completion events to stdout/the logger
// until the engine reaches a terminal state, then returns its exit code.
func watchEngine(ctx context.Context, e *scan.Engine, logger zerolog.Logger) int {
	for {
		select {
		case ev, ok := <-e.Progress():
			if !ok {
				continue
			}
			fmt.Printf("\r%s: %d/%d %s", ev.State, ev.Processed, ev.Total, ev.CurrentFile)
		case ev, ok := <-e.Log():
			if !ok {
				continue
			}
			if ev.Level == scan.LogError || ev.Level == scan.LogWarning {
				logger.Warn().Str("file_path", ev.FilePath).Msg(ev.Message)
			}
		case ev, ok := <-e.Completion():
			if !ok {
				return 1
			}
			fmt.Printf("\n%s: %d/%d files in %s\n", ev.State, ev.Processed, ev.Total, ev.Duration.Round(1e6))
			if ev.State == scan.StateCompleted {
				return 0
			}
			return 1
		case <-ctx.Done():
			_ = e.Pause(context.Background())
			return 130
		}
	}
}

func cmdScan(ctx context.Context, cfg *config.Config, store *catalog.Store, folder string, logger zerolog.Logger) int {
	e, err := newEngine(cfg, store)
	if err != nil {
		logger.Error().Err(err).Msg("build scan engine")
		return 1
	}
	if err := e.StartScan(ctx, folder); err != nil {
		logger.Error().Err(err).Msg("start scan")
		return 1
	}
	return watchEngine(ctx, e, logger)
}

func cmdResume(ctx context.Context, cfg *config.Config, store *catalog.Store, logger zerolog.Logger) int {
	e, err := newEngine(cfg, store)
	if err != nil {
		logger.Error().Err(err).Msg("build scan engine")
		return 1
	}
	info, err := e.RecoveryInfo(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("check recovery state")
		return 1
	}
	if info == nil {
		fmt.Println("nothing to resume")
		return 0
	}
	fmt.Printf("resuming %s: %d files remaining (%.1f%% complete)\n", info.FolderPath, info.RemainingFileCount, info.ProgressPercentage)
	if err := e.ResumeFromCheckpoint(ctx, info.Checkpoint); err != nil {
		logger.Error().Err(err).Msg("resume from checkpoint")
		return 1
	}
	return watchEngine(ctx, e, logger)
}
