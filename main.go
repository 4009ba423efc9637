package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/user/radio-directory-web/directory"
	httpserver "github.com/user/radio-directory-web/http"
	"github.com/user/radio-directory-web/logger"
	"github.com/user/radio-directory-web/player"
	sentryhelper "github.com/user/radio-directory-web/sentry_helper"
	"github.com/user/radio-directory-web/store"
)

// Default configuration.
const (
	defaultPort       = 8000
	defaultDBPath     = "./stations.db"
	defaultPageSize   = 24
	defaultLogLevel   = "info"
	defaultWebDir     = "./web"
	defaultMirrorTTL  = time.Hour
	shutdownTimeout   = 10 * time.Second
	sentryFlushWindow = 2 * time.Second
)

// Config holds the application configuration.
type Config struct {
	Port            int
	DBPath          string
	PageSize        int
	LogLevel        string
	WebDir          string
	MirrorTTL       time.Duration
	FallbackMirrors []string
	MirrorsFile     string
	SentryDSN       string
}

func main() {
	config := loadConfig()

	appLogger := logger.NewLogger(&logger.Config{Level: logger.LogLevel(toUpperLevel(config.LogLevel))})

	sentryEnabled := config.SentryDSN != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.SentryDSN,
			Environment: getEnvOrDefault("ENV", "development"),
			Release:     "radio-directory-web@1.0.0",
		}); err != nil {
			log.Fatalf("sentry.Init: %s", err)
		}
		defer sentry.Flush(sentryFlushWindow)
		defer sentry.Recover()
	}
	sentryHelper := sentryhelper.NewSentryHelper(sentryEnabled, appLogger)

	// Mirror discovery with TTL cache and static fallback.
	resolver := directory.NewResolver(
		logger.WithComponent(appLogger, "mirrors"),
		sentryHelper,
		directory.WithMirrorTTL(config.MirrorTTL),
		directory.WithFallbackMirrors(config.FallbackMirrors),
	)
	if config.MirrorsFile != "" {
		if err := resolver.WatchFallbackFile(config.MirrorsFile); err != nil {
			appLogger.Warn("Could not watch fallback mirrors file", "file", config.MirrorsFile, "error", err.Error())
		}
	}

	directoryClient := directory.NewClient(
		resolver,
		logger.WithComponent(appLogger, "directory"),
		sentryHelper,
	)

	stationStore, err := store.Open(config.DBPath, logger.WithComponent(appLogger, "store"))
	if err != nil {
		appLogger.Error("Failed to open station store", "error", err.Error())
		sentryHelper.CaptureException(err)
		os.Exit(1)
	}

	playback := player.NewController(
		player.NewBeepFactory(nil, logger.WithComponent(appLogger, "player")),
		directoryClient,
		logger.WithComponent(appLogger, "player"),
		sentryHelper,
	)

	server := httpserver.NewServer(
		directoryClient,
		stationStore,
		playback,
		logger.WithComponent(appLogger, "http"),
		sentryHelper,
		httpserver.WithPageSize(config.PageSize),
		httpserver.WithWebDir(config.WebDir),
	)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("Server listening", "port", config.Port)
		if listenErr := httpSrv.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			appLogger.Error("Server failed", "error", listenErr.Error())
			sentryHelper.CaptureException(listenErr)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	appLogger.Info("Shutting down", "signal", sig.String())

	playback.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := httpSrv.Shutdown(ctx); shutdownErr != nil {
		appLogger.Error("Server shutdown failed", "error", shutdownErr.Error())
		sentryHelper.CaptureException(shutdownErr)
	}

	if closeErr := stationStore.Close(); closeErr != nil {
		appLogger.Error("Store close failed", "error", closeErr.Error())
	}
	if closeErr := resolver.Close(); closeErr != nil {
		appLogger.Error("Resolver close failed", "error", closeErr.Error())
	}

	sentryHelper.SafeFlush(sentryFlushWindow)
	appLogger.Info("Server stopped")
}

// loadConfig reads configuration from command line flags and environment
// variables. Environment variables take precedence over flags.
func loadConfig() *Config {
	config := &Config{}

	flag.IntVar(&config.Port, "port", defaultPort, "HTTP server port")
	flag.StringVar(&config.DBPath, "db", defaultDBPath, "Path to the sqlite database")
	flag.IntVar(&config.PageSize, "page-size", defaultPageSize, "Default station search page size")
	flag.StringVar(&config.LogLevel, "log-level", defaultLogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&config.WebDir, "web-dir", defaultWebDir, "Directory with static web UI files")
	flag.DurationVar(&config.MirrorTTL, "mirror-ttl", defaultMirrorTTL, "Freshness window for the resolved mirror list")
	flag.StringVar(&config.MirrorsFile, "mirrors-file", "", "JSON file with fallback mirror hostnames, watched for changes")

	var fallbackMirrorsJSON string
	flag.StringVar(&fallbackMirrorsJSON, "fallback-mirrors", "", "JSON array of fallback mirror hostnames")

	flag.Parse()

	if fallbackMirrorsJSON != "" {
		if err := json.Unmarshal([]byte(fallbackMirrorsJSON), &config.FallbackMirrors); err != nil {
			log.Printf("Could not parse fallback mirrors JSON: %s", err)
		}
	}

	if envPort := os.Getenv("PORT"); envPort != "" {
		if port, err := strconv.Atoi(envPort); err == nil {
			config.Port = port
		}
	}
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		config.DBPath = envDB
	}
	if envPageSize := os.Getenv("PAGE_SIZE"); envPageSize != "" {
		if pageSize, err := strconv.Atoi(envPageSize); err == nil {
			config.PageSize = pageSize
		}
	}
	if envLogLevel := os.Getenv("LOG_LEVEL"); envLogLevel != "" {
		config.LogLevel = envLogLevel
	}
	if envWebDir := os.Getenv("WEB_DIR"); envWebDir != "" {
		config.WebDir = envWebDir
	}
	if envTTL := os.Getenv("MIRROR_TTL"); envTTL != "" {
		if ttl, err := time.ParseDuration(envTTL); err == nil {
			config.MirrorTTL = ttl
		}
	}
	if envMirrors := os.Getenv("FALLBACK_MIRRORS"); envMirrors != "" {
		var mirrors []string
		if err := json.Unmarshal([]byte(envMirrors), &mirrors); err == nil {
			config.FallbackMirrors = mirrors
		} else {
			log.Printf("Could not parse FALLBACK_MIRRORS: %s", err)
		}
	}
	if envMirrorsFile := os.Getenv("MIRRORS_FILE"); envMirrorsFile != "" {
		config.MirrorsFile = envMirrorsFile
	}
	config.SentryDSN = os.Getenv("SENTRY_DSN")

	return config
}

func toUpperLevel(level string) string {
	switch level {
	case "debug":
		return "DEBUG"
	case "info":
		return "INFO"
	case "warn", "warning":
		return "WARNING"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
