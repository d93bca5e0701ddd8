package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type RuntimeConfig struct {
	Bind             string
	Port             string
	CdpURL           string
	Token            string
	StateDir         string
	Headless         bool
	ProfileDir       string
	ChromeBinary     string
	ChromeExtraFlags string
	Pages            []string
	ScanInterval     time.Duration
	TabCreateTimeout time.Duration
	TabQueryTimeout  time.Duration
	SweepInterval    time.Duration
	ReconcileEvery   time.Duration
	DatabaseURL      string
	Overlay          bool
	BlockImages      bool
	LogLevel         string
	ShutdownTimeout  time.Duration
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envBoolOr(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func homeDir() string {
	h, _ := os.UserHomeDir()
	return h
}

func (c *RuntimeConfig) ListenAddr() string {
	return c.Bind + ":" + c.Port
}

// BaseURL is the address CLI commands use to reach a running daemon.
func (c *RuntimeConfig) BaseURL() string {
	host := c.Bind
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return "http://" + host + ":" + c.Port
}

func (c *RuntimeConfig) SettingsPath() string {
	return filepath.Join(c.StateDir, "settings.toml")
}

type FileConfig struct {
	Port             string   `json:"port"`
	CdpURL           string   `json:"cdpUrl,omitempty"`
	Token            string   `json:"token,omitempty"`
	StateDir         string   `json:"stateDir"`
	ProfileDir       string   `json:"profileDir"`
	Headless         *bool    `json:"headless,omitempty"`
	Pages            []string `json:"pages,omitempty"`
	ScanIntervalMs   int      `json:"scanIntervalMs,omitempty"`
	CreateTimeoutSec int      `json:"createTimeoutSec,omitempty"`
	DatabaseURL      string   `json:"databaseUrl,omitempty"`
	Overlay          *bool    `json:"overlay,omitempty"`
}

func ConfigPath() string {
	return envOr("AUTOFILTER_CONFIG", filepath.Join(homeDir(), ".autofilter", "config.json"))
}

func Load() *RuntimeConfig {
	cfg := &RuntimeConfig{
		Bind:             envOr("AUTOFILTER_BIND", "127.0.0.1"),
		Port:             envOr("AUTOFILTER_PORT", "9870"),
		CdpURL:           os.Getenv("CDP_URL"),
		Token:            os.Getenv("AUTOFILTER_TOKEN"),
		StateDir:         envOr("AUTOFILTER_STATE_DIR", filepath.Join(homeDir(), ".autofilter")),
		Headless:         envBoolOr("AUTOFILTER_HEADLESS", false),
		ProfileDir:       envOr("AUTOFILTER_PROFILE", filepath.Join(homeDir(), ".autofilter", "chrome-profile")),
		ChromeBinary:     os.Getenv("CHROME_BINARY"),
		ChromeExtraFlags: os.Getenv("CHROME_FLAGS"),
		Pages:            splitList(os.Getenv("AUTOFILTER_PAGES")),
		ScanInterval:     envDurationOr("AUTOFILTER_SCAN_INTERVAL", 2*time.Second),
		TabCreateTimeout: envDurationOr("AUTOFILTER_TAB_CREATE_TIMEOUT", 10*time.Second),
		TabQueryTimeout:  5 * time.Second,
		SweepInterval:    time.Duration(envIntOr("AUTOFILTER_SWEEP_SECONDS", 60)) * time.Second,
		ReconcileEvery:   time.Duration(envIntOr("AUTOFILTER_RECONCILE_SECONDS", 30)) * time.Second,
		DatabaseURL:      os.Getenv("AUTOFILTER_DATABASE_URL"),
		Overlay:          envBoolOr("AUTOFILTER_OVERLAY", true),
		BlockImages:      envBoolOr("AUTOFILTER_BLOCK_IMAGES", false),
		LogLevel:         envOr("AUTOFILTER_LOG_LEVEL", "info"),
		ShutdownTimeout:  10 * time.Second,
	}

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		return cfg
	}

	var fc FileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		slog.Warn("ignoring malformed config file", "path", ConfigPath(), "err", err)
		return cfg
	}
	applyFile(cfg, fc)
	return cfg
}

func applyFile(cfg *RuntimeConfig, fc FileConfig) {
	if fc.Port != "" && os.Getenv("AUTOFILTER_PORT") == "" {
		cfg.Port = fc.Port
	}
	if fc.CdpURL != "" && os.Getenv("CDP_URL") == "" {
		cfg.CdpURL = fc.CdpURL
	}
	if fc.Token != "" && os.Getenv("AUTOFILTER_TOKEN") == "" {
		cfg.Token = fc.Token
	}
	if fc.StateDir != "" && os.Getenv("AUTOFILTER_STATE_DIR") == "" {
		cfg.StateDir = fc.StateDir
	}
	if fc.ProfileDir != "" && os.Getenv("AUTOFILTER_PROFILE") == "" {
		cfg.ProfileDir = fc.ProfileDir
	}
	if fc.Headless != nil && os.Getenv("AUTOFILTER_HEADLESS") == "" {
		cfg.Headless = *fc.Headless
	}
	if len(fc.Pages) > 0 && os.Getenv("AUTOFILTER_PAGES") == "" {
		cfg.Pages = fc.Pages
	}
	if fc.ScanIntervalMs > 0 && os.Getenv("AUTOFILTER_SCAN_INTERVAL") == "" {
		cfg.ScanInterval = time.Duration(fc.ScanIntervalMs) * time.Millisecond
	}
	if fc.CreateTimeoutSec > 0 && os.Getenv("AUTOFILTER_TAB_CREATE_TIMEOUT") == "" {
		cfg.TabCreateTimeout = time.Duration(fc.CreateTimeoutSec) * time.Second
	}
	if fc.DatabaseURL != "" && os.Getenv("AUTOFILTER_DATABASE_URL") == "" {
		cfg.DatabaseURL = fc.DatabaseURL
	}
	if fc.Overlay != nil && os.Getenv("AUTOFILTER_OVERLAY") == "" {
		cfg.Overlay = *fc.Overlay
	}
}

func DefaultFileConfig() FileConfig {
	h := false
	o := true
	return FileConfig{
		Port:             "9870",
		StateDir:         filepath.Join(homeDir(), ".autofilter"),
		ProfileDir:       filepath.Join(homeDir(), ".autofilter", "chrome-profile"),
		Headless:         &h,
		Pages:            []string{"https://dexscreener.com/new-pairs/solana"},
		ScanIntervalMs:   2000,
		CreateTimeoutSec: 10,
		Overlay:          &o,
	}
}

// InitFile writes the default config file. It refuses to overwrite unless force is set.
func InitFile(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, _ := json.MarshalIndent(DefaultFileConfig(), "", "  ")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Show prints the effective configuration with secrets masked.
func (c *RuntimeConfig) Show(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Current configuration:")
	_, _ = fmt.Fprintf(w, "  Listen:         %s\n", c.ListenAddr())
	_, _ = fmt.Fprintf(w, "  CDP URL:        %s\n", c.CdpURL)
	_, _ = fmt.Fprintf(w, "  Token:          %s\n", MaskToken(c.Token))
	_, _ = fmt.Fprintf(w, "  State Dir:      %s\n", c.StateDir)
	_, _ = fmt.Fprintf(w, "  Profile:        %s\n", c.ProfileDir)
	_, _ = fmt.Fprintf(w, "  Headless:       %v\n", c.Headless)
	_, _ = fmt.Fprintf(w, "  Pages:          %s\n", strings.Join(c.Pages, ", "))
	_, _ = fmt.Fprintf(w, "  Scan Interval:  %v\n", c.ScanInterval)
	_, _ = fmt.Fprintf(w, "  Create Timeout: %v\n", c.TabCreateTimeout)
	_, _ = fmt.Fprintf(w, "  Database:       %s\n", MaskDSN(c.DatabaseURL))
	_, _ = fmt.Fprintf(w, "  Overlay:        %v\n", c.Overlay)
}

// ParseLevel maps a level name to slog; unknown names fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func MaskToken(t string) string {
	if t == "" {
		return "(none)"
	}
	if len(t) <= 8 {
		return "***"
	}
	return t[:4] + "..." + t[len(t)-4:]
}

// MaskDSN hides the password part of a postgres URL.
func MaskDSN(dsn string) string {
	if dsn == "" {
		return "(in-memory)"
	}
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":***"
	}
	return dsn[:scheme+3] + creds + dsn[at:]
}
