package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/rolefit/internal/api"
	"github.com/dgnsrekt/rolefit/internal/browser"
	"github.com/dgnsrekt/rolefit/internal/cdpcontrol"
	"github.com/dgnsrekt/rolefit/internal/config"
	"github.com/dgnsrekt/rolefit/internal/controller"
	"github.com/dgnsrekt/rolefit/internal/events"
	"github.com/dgnsrekt/rolefit/internal/handoff"
	"github.com/dgnsrekt/rolefit/internal/journal"
	"github.com/dgnsrekt/rolefit/internal/kvstore"
	"github.com/dgnsrekt/rolefit/internal/navwatch"
	"github.com/dgnsrekt/rolefit/internal/netutil"
	"github.com/dgnsrekt/rolefit/internal/notify"
	"gopkg.in/natefinch/lumberjack.v2"
)

const journalBuffer = 256

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		return 1
	}

	slog.Info("rolefit config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"prompt_timeout_ms", cfg.PromptTimeoutMS,
		"store_path", cfg.StorePath,
		"journal_dir", cfg.JournalDir,
		"sites_config", cfg.SitesConfig,
		"destination_host", cfg.DestinationHost,
		"launch_browser", cfg.LaunchBrowser,
		"navwatch", cfg.NavWatch,
		"log_level", cfg.LogLevel,
	)

	sitesFile, err := config.LoadSites(cfg.SitesConfig)
	if err != nil {
		slog.Error("failed to load sites config", "path", cfg.SitesConfig, "error", err)
		return 1
	}
	sites, err := controller.NewSites(sitesFile)
	if err != nil {
		slog.Error("failed to build site profiles", "error", err)
		return 1
	}

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to bind control API", "preferred", cfg.BindAddr, "error", err)
		return 1
	}

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		var startURLs []string
		if cfg.StartURL != "" {
			startURLs = append(startURLs, cfg.StartURL)
		}
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.ProfileDir,
			StartURLs:  startURLs,
			LogFile:    filepath.Join(filepath.Dir(cfg.LogFile), "browser.log"),
		})
		if err := launcher.Launch(context.Background()); err != nil {
			slog.Error("failed to launch browser", "error", err)
			_ = ln.Close()
			return 1
		}
		defer launcher.Stop()
	}

	cdpClient := cdpcontrol.NewClient(cfg.CDPURL(), cfg.EvalTimeout(), cfg.PromptTimeout())
	if err := cdpClient.Connect(context.Background()); err != nil {
		slog.Error("failed to connect CDP", "cdp_url", cfg.CDPURL(), "error", err)
		_ = ln.Close()
		return 1
	}
	defer func() {
		if err := cdpClient.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()

	store, err := kvstore.Open(cfg.StorePath)
	if err != nil {
		slog.Error("failed to open store", "path", cfg.StorePath, "error", err)
		_ = ln.Close()
		return 1
	}

	broker := events.NewBroker()
	journalWriter := journal.NewWriter(cfg.JournalDir, "handoff", journalBuffer, cfg.JournalMaxSizeMB)
	defer func() {
		if err := journalWriter.Close(); err != nil {
			slog.Warn("journal close failed", "error", err)
		}
	}()

	var notifier controller.Notifier
	if cfg.NotifyURL != "" {
		notifier = notify.New(nil, cfg.NotifyURL, "rolefit")
	}
	recorder := controller.NewRecorder(broker, journalWriter, notifier)

	var watcher controller.NavigationWatcher
	if cfg.NavWatch {
		w := navwatch.NewWatcher(cfg.CDPURL(), nil)
		if err := w.Connect(context.Background()); err != nil {
			slog.Warn("navwatch disabled", "error", err)
		} else {
			defer func() { _ = w.Close() }()
			watcher = w
		}
	}

	svc, err := controller.NewService(cdpClient, controller.Options{
		Sites:           sites,
		Composer:        controller.ComposerScript(sitesFile.Composer),
		Store:           store,
		DestinationRule: handoff.DestinationRule{Host: cfg.DestinationHost, Segment: cfg.DestinationSegment},
		AttachTick:      cfg.AttachTick(),
		TabSyncInterval: cfg.TabSyncInterval(),
		ConsumerDelay:   cfg.ConsumerDelay(),
		Clipboard:       controller.SystemClipboard{},
		Recorder:        recorder,
		Watcher:         watcher,
	})
	if err != nil {
		slog.Error("failed to build controller", "error", err)
		_ = ln.Close()
		return 1
	}
	defer svc.Close()

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	go func() {
		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("controller stopped", "error", err)
		}
	}()

	srv := &http.Server{Handler: api.NewServer(svc, broker), ReadHeaderTimeout: 10 * time.Second}

	serverErr := make(chan error, 1)
	go func() {
		addr := ln.Addr().String()
		slog.Info("rolefit listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("rolefit server failed", "error", err)
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigCh:
	case <-serverErr:
		exitCode = 1
	}

	stopRun()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("rolefit shutdown failed", "error", err)
	}
	return exitCode
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
