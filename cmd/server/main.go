package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mescon/Tickarr/internal/api"
	"github.com/mescon/Tickarr/internal/auth"
	"github.com/mescon/Tickarr/internal/clock"
	"github.com/mescon/Tickarr/internal/config"
	"github.com/mescon/Tickarr/internal/crypto"
	"github.com/mescon/Tickarr/internal/db"
	"github.com/mescon/Tickarr/internal/display"
	"github.com/mescon/Tickarr/internal/eventbus"
	"github.com/mescon/Tickarr/internal/logger"
	"github.com/mescon/Tickarr/internal/metrics"
	"github.com/mescon/Tickarr/internal/notifier"
	"github.com/mescon/Tickarr/internal/services"
	"github.com/mescon/Tickarr/internal/widget"
)

// notifyThrottle is the minimum gap between two notifications for the same widget.
const notifyThrottle = time.Minute

func main() {
	// Define command line flags (these override environment variables)
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.BoolVar(showVersion, "v", false, "Print version and exit (shorthand)")

	// Configuration flags - all can also be set via environment variables (TICKARR_*)
	flagPort := flag.String("port", "", "HTTP server port (env: TICKARR_PORT, default: 3095)")
	flagBasePath := flag.String("base-path", "", "URL base path for reverse proxy (env: TICKARR_BASE_PATH, default: /)")
	flagLogLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (env: TICKARR_LOG_LEVEL, default: info)")
	flagDefaultMask := flag.String("default-mask", "", "Mask for widgets that don't set one (env: TICKARR_DEFAULT_MASK, default: hh:mm:ss)")
	flagDefaultInterval := flag.Duration("default-update-interval", 0, "Tick period for widgets that don't set one (env: TICKARR_DEFAULT_UPDATE_INTERVAL, default: 1s)")
	flagPresetsFile := flag.String("presets-file", "", "YAML file with presets and displays to seed (env: TICKARR_PRESETS_FILE)")
	flagNotifyURLs := flag.String("notify-urls", "", "Comma separated shoutrrr URLs (env: TICKARR_NOTIFY_URLS)")
	flagRetentionDays := flag.Int("retention-days", -1, "Days to keep widget events, 0 to disable pruning (env: TICKARR_RETENTION_DAYS, default: 30)")
	flagCORSOrigin := flag.String("cors-origin", "", "Allowed cross-origin for display clients (env: TICKARR_CORS_ORIGIN)")
	flagDataDir := flag.String("data-dir", "", "Data directory path (env: TICKARR_DATA_DIR)")
	flagDatabasePath := flag.String("database-path", "", "Database file path (env: TICKARR_DATABASE_PATH)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("Tickarr %s\n", config.Version)
		os.Exit(0)
	}

	config.Load()

	flagOverrides := config.FlagOverrides{
		Port:                  flagPort,
		BasePath:              flagBasePath,
		LogLevel:              flagLogLevel,
		DefaultMask:           flagDefaultMask,
		DefaultUpdateInterval: flagDefaultInterval,
		PresetsFile:           flagPresetsFile,
		NotifyURLs:            flagNotifyURLs,
		CORSOrigin:            flagCORSOrigin,
		DataDir:               flagDataDir,
		DatabasePath:          flagDatabasePath,
	}
	// -1 means not set (use default), 0 means disable
	if *flagRetentionDays >= 0 {
		flagOverrides.RetentionDays = flagRetentionDays
	}
	config.ApplyFlags(flagOverrides)
	cfg := config.Get()

	logger.Init(cfg.LogDir)
	logger.SetLevel(cfg.LogLevel)

	logger.Infof("========================================")
	logger.Infof("Starting Tickarr %s...", config.Version)
	logger.Infof("========================================")
	logger.Infof("Configuration:")
	logger.Infof("  Port: %s", cfg.Port)
	logger.Infof("  Base Path: %s", cfg.BasePath)
	logger.Infof("  Log Level: %s", cfg.LogLevel)
	logger.Infof("  Data Directory: %s", cfg.DataDir)
	logger.Infof("  Database: %s", cfg.DatabasePath)
	logger.Infof("  Default Mask: %s", cfg.DefaultMask)
	logger.Infof("  Default Update Interval: %s", cfg.DefaultUpdateInterval)
	if cfg.PresetsFile != "" {
		logger.Infof("  Presets File: %s", cfg.PresetsFile)
	}
	if cfg.RetentionDays > 0 {
		logger.Infof("  Event Retention: %d days", cfg.RetentionDays)
	} else {
		logger.Infof("  Event Retention: disabled (no automatic pruning)")
	}
	if cfg.EncryptionKey == "" {
		logger.Infof("  API key encryption: disabled (set TICKARR_ENCRYPTION_KEY to enable)")
	}

	logger.Infof("Initializing database: %s", cfg.DatabasePath)
	repo, err := db.NewRepository(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ Database initialized")

	eb := eventbus.NewEventBus(repo.DB)
	logger.Infof("✓ Event Bus initialized")

	layout, err := display.LoadLayout(cfg.PresetsFile)
	if err != nil {
		logger.Errorf("Failed to load presets file: %v", err)
		os.Exit(1)
	}

	board := display.NewBoard(display.BoardConfig{
		Env: widget.Environment{
			Clock:  clock.NewRealClock(),
			Events: eb,
		},
		Store:    repo,
		Defaults: cfg.WidgetDefaults().Overlay(layout.Defaults),
		Presets:  layout.Presets,
	})

	metricsService := metrics.NewMetricsService(eb, nil, metrics.Gauges{
		Elements:       board.ElementCount,
		RunningWidgets: board.RunningCount,
	})
	eb.OnDrop(metricsService.ObserveDrop)
	board.OnRender(metricsService.ObserveRender)
	metricsService.Start()
	logger.Infof("✓ Metrics Service (Prometheus endpoint at /metrics)")

	restoreCtx, restoreCancel := context.WithTimeout(context.Background(), 30*time.Second)
	restored, err := board.Restore(restoreCtx)
	restoreCancel()
	if err != nil {
		logger.Errorf("Failed to restore widgets: %v", err)
	} else {
		logger.Infof("✓ Restored %d widgets on %d elements", restored, board.ElementCount())
	}
	if err := board.Seed(layout); err != nil {
		logger.Errorf("Failed to seed displays from presets file: %v", err)
	}

	schedulerService := services.NewSchedulerService(repo, board, cfg.RetentionDays)
	schedulerService.Start()
	logger.Infof("✓ Scheduler Service (cron-based resets)")

	notifierService, err := notifier.NewNotifier(notifier.Config{
		URLs:     cfg.NotifyURLs,
		Throttle: notifyThrottle,
	}, func(elementID string) string {
		if el, ok := board.Element(elementID); ok && el.Label() != "" {
			return el.Label()
		}
		return elementID
	})
	if err != nil {
		// Non-fatal - continue without notifications
		logger.Errorf("Invalid notification configuration: %v", err)
	} else {
		notifierService.Start(eb)
	}

	credentials := auth.NewCredentials(repo, crypto.NewKeyManager(cfg.EncryptionKey))

	apiServer := api.NewRESTServer(api.ServerDeps{
		Config:      cfg,
		Repo:        repo,
		EventBus:    eb,
		Board:       board,
		Scheduler:   schedulerService,
		Credentials: credentials,
		Metrics:     metricsService,
	})
	apiServer.WarnIfOpen()

	go func() {
		if err := apiServer.Start(":" + cfg.Port); err != nil {
			logger.Errorf("Failed to start API server: %v", err)
			os.Exit(1)
		}
	}()

	logger.Infof("========================================")
	logger.Infof("✓ Tickarr %s started, listening on port %s", config.Version, cfg.Port)
	logger.Infof("========================================")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Infof("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API Server shutdown error: %v", err)
	} else {
		logger.Infof("✓ API Server stopped")
	}

	// Persisted definitions keep their running flag; only the tickers stop.
	board.StopAll()
	logger.Infof("✓ Widgets released")

	schedulerService.Stop()
	logger.Infof("✓ Scheduler Service stopped")

	if notifierService != nil {
		notifierService.Stop()
	}

	eb.Shutdown()
	logger.Infof("✓ Event Bus stopped")

	if err := repo.GracefulClose(); err != nil {
		logger.Errorf("Failed to close database connection: %v", err)
	} else {
		logger.Infof("✓ Database connection closed")
	}

	logger.Infof("✓ Tickarr shutdown complete")
	_ = logger.Close()
}
