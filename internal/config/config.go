package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the authtap daemon.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Tab matching and browser launch
	TabURLFilter      string
	LaunchBrowser     bool
	Headless          bool
	StartURL          string
	ProfileDir        string
	WindowsConfigPath string

	// HTTP surfaces
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	ProxyAddr        string

	// Logging
	LogLevel string
	LogFile  string

	// Capture and scanning limits
	LogCapacity    int
	BodyTextLimit  int
	TokenMinLength int

	// Periodic tasks
	CookieInterval    time.Duration
	IntegrityInterval time.Duration
	TickInterval      time.Duration
	WarnBefore        time.Duration

	// Optional outputs
	ArchiveDir   string
	ArchiveMaxMB int
	NtfyEndpoint string
	Tracing      bool
}

const (
	defaultLogCapacity       = 1000
	defaultBodyTextLimit     = 10000
	defaultTokenMinLength    = 50
	defaultCookieInterval    = 5 * time.Second
	defaultIntegrityInterval = 10 * time.Second
	defaultTickInterval      = time.Second
	defaultWarnBefore        = 5 * time.Minute
	minInterval              = 100 * time.Millisecond
)

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		TabURLFilter:      getEnvOrDefault("AUTHTAP_TAB_URL_FILTER", ""),
		LaunchBrowser:     getEnvBoolOrDefault("AUTHTAP_LAUNCH_BROWSER", false),
		Headless:          getEnvBoolOrDefault("AUTHTAP_HEADLESS", true),
		StartURL:          getEnvOrDefault("AUTHTAP_START_URL", "about:blank"),
		ProfileDir:        getEnvOrDefault("AUTHTAP_PROFILE_DIR", "./browser_profile"),
		WindowsConfigPath: getEnvOrDefault("AUTHTAP_WINDOWS_CONFIG", "./config/windows.yaml"),
		BindAddr:          getEnvOrDefault("AUTHTAP_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:    getEnvListOrDefault("AUTHTAP_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback:  getEnvBoolOrDefault("AUTHTAP_PORT_AUTO_FALLBACK", true),
		ProxyAddr:         getEnvOrDefault("AUTHTAP_PROXY_ADDR", ""),
		LogLevel:          strings.ToLower(getEnvOrDefault("AUTHTAP_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("AUTHTAP_LOG_FILE", "logs/authtap.log"),
		LogCapacity:       getEnvIntOrDefault("AUTHTAP_LOG_CAPACITY", defaultLogCapacity),
		BodyTextLimit:     getEnvIntOrDefault("AUTHTAP_BODY_TEXT_LIMIT", defaultBodyTextLimit),
		TokenMinLength:    getEnvIntOrDefault("AUTHTAP_TOKEN_MIN_LENGTH", defaultTokenMinLength),
		CookieInterval:    getEnvDurationOrDefault("AUTHTAP_COOKIE_INTERVAL", defaultCookieInterval),
		IntegrityInterval: getEnvDurationOrDefault("AUTHTAP_INTEGRITY_INTERVAL", defaultIntegrityInterval),
		TickInterval:      getEnvDurationOrDefault("AUTHTAP_TICK_INTERVAL", defaultTickInterval),
		WarnBefore:        getEnvDurationOrDefault("AUTHTAP_WARN_BEFORE", defaultWarnBefore),
		ArchiveDir:        getEnvOrDefault("AUTHTAP_ARCHIVE_DIR", ""),
		ArchiveMaxMB:      getEnvIntOrDefault("AUTHTAP_ARCHIVE_MAX_MB", 100),
		NtfyEndpoint:      getEnvOrDefault("AUTHTAP_NTFY_ENDPOINT", ""),
		Tracing:           getEnvBoolOrDefault("AUTHTAP_TRACING", false),
	}
	cfg.Validate()

	return cfg, nil
}

// Validate replaces nonsensical values with defaults.
func (c *Config) Validate() {
	if c.LogCapacity < 1 {
		c.LogCapacity = defaultLogCapacity
	}
	if c.BodyTextLimit < 1 {
		c.BodyTextLimit = defaultBodyTextLimit
	}
	if c.TokenMinLength < 1 {
		c.TokenMinLength = defaultTokenMinLength
	}
	if c.CookieInterval < minInterval {
		c.CookieInterval = defaultCookieInterval
	}
	if c.IntegrityInterval < minInterval {
		c.IntegrityInterval = defaultIntegrityInterval
	}
	if c.TickInterval < minInterval {
		c.TickInterval = defaultTickInterval
	}
	if c.WarnBefore <= 0 {
		c.WarnBefore = defaultWarnBefore
	}
	if c.ArchiveMaxMB < 1 {
		c.ArchiveMaxMB = 100
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
}

// GetCDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// SlogLevel maps LogLevel onto a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDurationOrDefault accepts Go durations ("5s") or bare seconds ("5").
func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
