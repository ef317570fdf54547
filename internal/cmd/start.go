package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"

	"github.com/tomasbasham/twitcastrec/internal/browser"
	"github.com/tomasbasham/twitcastrec/internal/config"
	"github.com/tomasbasham/twitcastrec/internal/detector"
	"github.com/tomasbasham/twitcastrec/internal/logging"
	"github.com/tomasbasham/twitcastrec/internal/monitor"
	"github.com/tomasbasham/twitcastrec/internal/recorder"
	"github.com/tomasbasham/twitcastrec/internal/state"
	"github.com/tomasbasham/twitcastrec/internal/storage"
	"github.com/tomasbasham/twitcastrec/internal/streamprobe"
)

// StartOptions defines the options for the `start` subcommand.
type StartOptions struct {
	iooption.IOStreams
}

// NewStartOptions provides an initialised StartOptions instance.
func NewStartOptions(streams iooption.IOStreams) *StartOptions {
	return &StartOptions{
		IOStreams: streams,
	}
}

// NewStartCommand creates the `start` subcommand: the long-running
// supervisor process (§4.4).
func NewStartCommand(o *StartOptions) *cobra.Command {
	return &cobra.Command{
		Use:                   "start",
		DisableFlagsInUseLine: true,
		Short:                 "Start the recording supervisor",
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), o)
		},
	}
}

func runStart(ctx context.Context, o *StartOptions) error {
	if _, err := os.Stat(targetsPath); os.IsNotExist(err) {
		fmt.Fprintf(o.ErrOut, "targets file %q does not exist\n", targetsPath)
		return exitError(ExitTargetsMissing)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(o.ErrOut, "load config: %v\n", err)
		return exitError(ExitInternalError)
	}
	cfg.TargetsPath = targetsPath

	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		fmt.Fprintf(o.ErrOut, "build logger: %v\n", err)
		return exitError(ExitInternalError)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintf(o.ErrOut, "create data dir: %v\n", err)
		return exitError(ExitInternalError)
	}

	wrapperLog := state.NewEventLog(filepath.Join(cfg.DataDir, "wrapper_%s.jsonl"), 100)
	monitorLog := state.NewEventLog(filepath.Join(cfg.DataDir, "monitor_%s.jsonl"), 100)
	guiLog := state.NewEventLog(filepath.Join(cfg.DataDir, "monitor_gui_bridge%.0s.jsonl"), 100)
	defer wrapperLog.Close()
	defer monitorLog.Close()
	defer guiLog.Close()

	gui := state.NewGUIBridge(guiLog)
	registry := state.NewRegistry(wrapperLog)
	hbWriter := state.NewHeartbeatWriter(filepath.Join(cfg.DataDir, "heartbeat.json"))

	browserSingleton := browser.New(browser.Config{
		UserAgent:  cfg.UserAgent,
		Domain:     "twitcasting.tv",
		LoginURL:   cfg.LoginURL,
		AccountURL: cfg.AccountURL,
		CookiePath: filepath.Join(cfg.DataDir, "cookies.txt"),
	}, sugar)

	probe := streamprobe.New(cfg.StreamlinkPath)
	det := detector.New(detector.Config{
		UserAgent:      cfg.UserAgent,
		StreamlinkPath: cfg.StreamlinkPath,
	}, browserSingleton, probe)

	wrapper := recorder.New(recorder.Config{
		MaxConcurrent:       int64(cfg.MaxConcurrent),
		OutputDir:           filepath.Join(cfg.DataDir, "recordings"),
		CookiePath:          filepath.Join(cfg.DataDir, "cookies.txt"),
		LatestCookiePointer: filepath.Join(cfg.DataDir, "latest_cookie_path.txt"),
		Quality:             cfg.Quality,
		YtdlpPath:           cfg.YtdlpPath,
		PageReferer:         "https://twitcasting.tv/",
	}, browserSingleton, registry, wrapperLog, gui)

	if cfg.GCSBucket != "" {
		uploader, err := storage.NewGCSUploader(ctx, cfg.GCSBucket)
		if err != nil {
			sugar.Warnw("gcs uploader unavailable, backups disabled", "error", err)
		} else {
			wrapper.SetBackup(storage.NewBackup(uploader))
		}
	}

	engine := monitor.New(monitor.Config{
		PollInterval:  time.Duration(cfg.PollIntervalSeconds) * time.Second,
		MaxConcurrent: int64(cfg.MaxConcurrent),
		TargetsPath:   cfg.TargetsPath,
		CookiePath:    filepath.Join(cfg.DataDir, "cookies.txt"),
	}, wrapper, det, registry, monitorLog, hbWriter, sugar)

	if err := engine.Initialize(); err != nil {
		fmt.Fprintf(o.ErrOut, "initialize engine: %v\n", err)
		return exitError(ExitInternalError)
	}

	watcher, err := engine.WatchTargets(250 * time.Millisecond)
	if err != nil {
		sugar.Warnw("targets file watch unavailable, hot-reload disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine.Start(runCtx)
	sugar.Infow("twitcastrec started", "data_dir", cfg.DataDir, "max_concurrent", cfg.MaxConcurrent)

	<-runCtx.Done()
	sugar.Info("shutdown signal received")
	engine.Stop()

	return nil
}
