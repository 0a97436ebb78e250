package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mescon/Tickarr/internal/mask"
	"github.com/mescon/Tickarr/internal/widget"
)

// Version is set at build time via -ldflags
// Default "dev" is used for development builds
var Version = "dev"

const (
	DefaultMask           = mask.Default
	DefaultUpdateInterval = widget.DefaultUpdateInterval
)

// Config holds all application configuration loaded from environment variables.
// All fields have sensible defaults if environment variables are not set.
type Config struct {
	// Port is the HTTP server listen port (default: 3095)
	Port string

	// BasePath is the URL base path for reverse proxy setups (default: "/")
	BasePath string

	// LogLevel controls logging verbosity: "debug", "info", "error" (default: "info")
	LogLevel string

	// DefaultMask is the display mask for widgets that don't set one (default: "hh:mm:ss")
	DefaultMask string

	// DefaultUpdateInterval is the tick period for widgets that don't set one (default: 1s)
	DefaultUpdateInterval time.Duration

	// PresetsFile is an optional YAML file with presets and displays to seed on startup
	PresetsFile string

	// NotifyURLs are shoutrrr URLs that receive countdown notifications
	NotifyURLs []string

	// RetentionDays is the number of days to keep widget events (default: 30).
	// Set to 0 to disable automatic pruning
	RetentionDays int

	// CORSOrigin is the allowed cross-origin for display clients (default: none)
	CORSOrigin string

	// EncryptionKey encrypts the API key at rest when set
	EncryptionKey string

	// DataDir is the directory for persistent data (database, logs)
	// Default: /config in Docker, ./config locally
	DataDir string

	// DatabasePath is the SQLite database file path (default: <DataDir>/tickarr.db)
	DatabasePath string

	// LogDir is the directory for log files (default: <DataDir>/logs)
	LogDir string
}

// Global singleton
var cfg *Config

// Load reads configuration from environment variables with sensible defaults.
// Should be called once at application startup.
func Load() *Config {
	dataDir := getEnvOrDefault("TICKARR_DATA_DIR", "")
	if dataDir == "" {
		// Docker images mount /config
		if info, err := os.Stat("/config"); err == nil && info.IsDir() {
			dataDir = "/config"
		} else if execPath, err := os.Executable(); err == nil {
			dataDir = filepath.Join(filepath.Dir(execPath), "config")
		} else {
			dataDir = "./config"
		}
	}
	if absDataDir, err := filepath.Abs(dataDir); err == nil {
		dataDir = absDataDir
	}
	os.MkdirAll(dataDir, 0755)

	dbPath := getEnvOrDefault("TICKARR_DATABASE_PATH", "")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "tickarr.db")
	}

	logDir := filepath.Join(dataDir, "logs")
	os.MkdirAll(logDir, 0755)

	cfg = &Config{
		Port:                  getEnvOrDefault("TICKARR_PORT", "3095"),
		BasePath:              normalizeBasePath(getEnvOrDefault("TICKARR_BASE_PATH", "/")),
		LogLevel:              strings.ToLower(getEnvOrDefault("TICKARR_LOG_LEVEL", "info")),
		DefaultMask:           getEnvOrDefault("TICKARR_DEFAULT_MASK", DefaultMask),
		DefaultUpdateInterval: getEnvDurationOrDefault("TICKARR_DEFAULT_UPDATE_INTERVAL", DefaultUpdateInterval),
		PresetsFile:           getEnvOrDefault("TICKARR_PRESETS_FILE", ""),
		NotifyURLs:            splitList(os.Getenv("TICKARR_NOTIFY_URLS")),
		RetentionDays:         getEnvIntOrDefault("TICKARR_RETENTION_DAYS", 30),
		CORSOrigin:            getEnvOrDefault("TICKARR_CORS_ORIGIN", ""),
		EncryptionKey:         os.Getenv("TICKARR_ENCRYPTION_KEY"),
		DataDir:               dataDir,
		DatabasePath:          dbPath,
		LogDir:                logDir,
	}
	cfg.sanitize()
	return cfg
}

// sanitize replaces invalid values with their defaults.
func (c *Config) sanitize() {
	switch c.LogLevel {
	case "debug", "info", "error":
	default:
		c.LogLevel = "info"
	}
	// A mask without fields would render a constant string.
	if len(mask.Compile(c.DefaultMask).Fields()) == 0 {
		c.DefaultMask = DefaultMask
	}
	if c.DefaultUpdateInterval <= 0 {
		c.DefaultUpdateInterval = DefaultUpdateInterval
	}
	if c.RetentionDays < 0 {
		c.RetentionDays = 0
	}
}

// WidgetDefaults returns the server-wide options every widget starts from.
func (c *Config) WidgetDefaults() widget.Options {
	return widget.Options{
		Mask:           widget.Ptr(c.DefaultMask),
		UpdateInterval: widget.Ptr(c.DefaultUpdateInterval.Milliseconds()),
	}
}

// Get returns the current configuration. Panics if Load() hasn't been called.
func Get() *Config {
	if cfg == nil {
		panic("config.Load() must be called before config.Get()")
	}
	return cfg
}

// SetForTesting allows tests to set the global config without calling Load().
// This should ONLY be used in test code.
func SetForTesting(c *Config) {
	cfg = c
}

// NewTestConfig returns a minimal Config suitable for unit tests.
func NewTestConfig() *Config {
	return &Config{
		Port:                  "8080",
		BasePath:              "/",
		LogLevel:              "debug",
		DefaultMask:           DefaultMask,
		DefaultUpdateInterval: DefaultUpdateInterval,
		RetentionDays:         30,
		DataDir:               "/tmp/tickarr-test",
		DatabasePath:          "/tmp/tickarr-test/tickarr.db",
		LogDir:                "/tmp/tickarr-test/logs",
	}
}

// normalizeBasePath ensures a leading slash and strips the trailing one.
func normalizeBasePath(basePath string) string {
	if basePath == "" || basePath == "/" {
		return "/"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimSuffix(basePath, "/")
}

// splitList splits a comma separated value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable as an int or the default if not set/invalid.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the environment variable as a duration or the default if not set/invalid.
// Accepts Go duration strings like "100ms", "1s", "1m".
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FlagOverrides holds command-line flag values that can override environment variables
type FlagOverrides struct {
	Port                  *string
	BasePath              *string
	LogLevel              *string
	DefaultMask           *string
	DefaultUpdateInterval *time.Duration
	PresetsFile           *string
	NotifyURLs            *string
	RetentionDays         *int
	CORSOrigin            *string
	DataDir               *string
	DatabasePath          *string
}

// ApplyFlags applies command-line flag overrides to the configuration.
// Should be called after Load() and after flag parsing.
// Only non-nil values with non-default flag values will override.
func ApplyFlags(flags FlagOverrides) {
	if cfg == nil {
		return
	}

	if flags.Port != nil && *flags.Port != "" {
		cfg.Port = *flags.Port
	}
	if flags.BasePath != nil && *flags.BasePath != "" {
		cfg.BasePath = normalizeBasePath(*flags.BasePath)
	}
	if flags.LogLevel != nil && *flags.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(*flags.LogLevel)
	}
	if flags.DefaultMask != nil && *flags.DefaultMask != "" {
		cfg.DefaultMask = *flags.DefaultMask
	}
	if flags.DefaultUpdateInterval != nil && *flags.DefaultUpdateInterval != 0 {
		cfg.DefaultUpdateInterval = *flags.DefaultUpdateInterval
	}
	if flags.PresetsFile != nil && *flags.PresetsFile != "" {
		cfg.PresetsFile = *flags.PresetsFile
	}
	if flags.NotifyURLs != nil && *flags.NotifyURLs != "" {
		cfg.NotifyURLs = splitList(*flags.NotifyURLs)
	}
	if flags.RetentionDays != nil && *flags.RetentionDays >= 0 {
		cfg.RetentionDays = *flags.RetentionDays
	}
	if flags.CORSOrigin != nil && *flags.CORSOrigin != "" {
		cfg.CORSOrigin = *flags.CORSOrigin
	}
	if flags.DataDir != nil && *flags.DataDir != "" {
		cfg.DataDir = *flags.DataDir
	}
	if flags.DatabasePath != nil && *flags.DatabasePath != "" {
		cfg.DatabasePath = *flags.DatabasePath
	}
	cfg.sanitize()
}
