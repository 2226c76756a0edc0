// Package config handles configuration loading and defaults for paytrack.
// Configuration is loaded from XDG-compliant paths (typically ~/.config/paytrack/config.yaml)
// and can be overridden by PAYTRACK_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"paytrack/internal/fsutil"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Cache drivers.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config represents the application configuration.
type Config struct {
	// DataDir overrides the default data directory (~/.paytrack)
	DataDir string `yaml:"data_dir,omitempty"`

	// Location is the IANA zone reminders are interpreted in; empty means device-local
	Location string `yaml:"location,omitempty"`

	Store         StoreConfig        `yaml:"store,omitempty"`
	Cache         CacheConfig        `yaml:"cache,omitempty"`
	Notifications NotificationConfig `yaml:"notifications,omitempty"`
	Log           LogConfig          `yaml:"log,omitempty"`
	Metrics       MetricsConfig      `yaml:"metrics,omitempty"`
	Theme         ThemeConfig        `yaml:"theme,omitempty"`
}

// StoreConfig selects where payment and reminder records live.
type StoreConfig struct {
	// Driver is "file" (JSON files in DataDir) or "postgres"
	Driver string `yaml:"driver,omitempty"`

	// DatabaseURL is the Postgres connection string
	DatabaseURL string `yaml:"database_url,omitempty"`
}

// CacheConfig selects the backing for the notification-id projection.
type CacheConfig struct {
	Driver        string        `yaml:"driver,omitempty"` // "memory" or "redis"
	RedisAddr     string        `yaml:"redis_addr,omitempty"`
	RedisPassword string        `yaml:"redis_password,omitempty"`
	TTL           time.Duration `yaml:"ttl,omitempty"`
}

// NotificationConfig defines reminder delivery settings.
type NotificationConfig struct {
	// Enabled selects the full trigger backend; when false reminders degrade to display-only
	Enabled bool `yaml:"enabled"`

	// Channel is the delivery channel triggers are registered on
	Channel string `yaml:"channel,omitempty"`

	// Sound plays the default sound when a reminder fires
	Sound bool `yaml:"sound"`

	// SafetyMargin is how far a stale fire time is pushed into the future
	SafetyMargin time.Duration `yaml:"safety_margin,omitempty"`

	// PermissionPollInterval and PermissionTimeout bound the wait for a settings grant
	PermissionPollInterval time.Duration `yaml:"permission_poll_interval,omitempty"`
	PermissionTimeout      time.Duration `yaml:"permission_timeout,omitempty"`

	// RunnerReload is how often `paytrack run` re-reads the trigger registry
	RunnerReload time.Duration `yaml:"runner_reload,omitempty"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
}

// MetricsConfig controls prometheus export.
type MetricsConfig struct {
	// Textfile is a path for the node_exporter textfile collector; empty disables export
	Textfile string `yaml:"textfile,omitempty"`
}

// ThemeConfig defines colors for terminal output.
type ThemeConfig struct {
	Primary string `yaml:"primary,omitempty"`
	Accent  string `yaml:"accent,omitempty"`
	Muted   string `yaml:"muted,omitempty"`
	Danger  string `yaml:"danger,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Store: StoreConfig{
			Driver: StoreFile,
		},
		Cache: CacheConfig{
			Driver: CacheMemory,
			TTL:    10 * time.Minute,
		},
		Notifications: NotificationConfig{
			Enabled:                true,
			Channel:                "payment-reminders",
			Sound:                  true,
			SafetyMargin:           5 * time.Second,
			PermissionPollInterval: time.Second,
			PermissionTimeout:      8 * time.Second,
			RunnerReload:           30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Theme: ThemeConfig{
			Primary: "#7C3AED", // Violet
			Accent:  "#10B981", // Emerald
			Muted:   "#6B7280", // Gray
			Danger:  "#EF4444", // Red
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".paytrack"
	}
	return filepath.Join(home, ".paytrack")
}

// configDir returns the configuration directory path (XDG compliant).
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "paytrack")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "paytrack")
}

// Path returns the path to the config file, or "" if no home is known.
func Path() string {
	dir := configDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads configuration from disk, merging with defaults.
// If no config file exists, returns default configuration.
func Load() (*Config, error) {
	cfg := Default()

	path := Path()
	if path == "" {
		return cfg, nil
	}

	data, err := fsutil.ReadFileIfExists(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if data == nil {
		return cfg, nil
	}

	var userCfg Config
	if err := yaml.Unmarshal(data, &userCfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var doc yaml.Node
	_ = yaml.Unmarshal(data, &doc) // best-effort; fall back to conservative merge if this fails

	cfg.mergeFromYAML(&userCfg, &doc)
	return cfg, nil
}

// mergeNonEmpty applies non-empty values from other to c.
// Booleans need presence-aware merging and are handled by mergeFromYAML.
func (c *Config) mergeNonEmpty(other *Config) {
	setString(&c.DataDir, other.DataDir)
	setString(&c.Location, other.Location)

	setString(&c.Store.Driver, other.Store.Driver)
	setString(&c.Store.DatabaseURL, other.Store.DatabaseURL)

	setString(&c.Cache.Driver, other.Cache.Driver)
	setString(&c.Cache.RedisAddr, other.Cache.RedisAddr)
	setString(&c.Cache.RedisPassword, other.Cache.RedisPassword)
	setDuration(&c.Cache.TTL, other.Cache.TTL)

	setString(&c.Notifications.Channel, other.Notifications.Channel)
	setDuration(&c.Notifications.SafetyMargin, other.Notifications.SafetyMargin)
	setDuration(&c.Notifications.PermissionPollInterval, other.Notifications.PermissionPollInterval)
	setDuration(&c.Notifications.PermissionTimeout, other.Notifications.PermissionTimeout)
	setDuration(&c.Notifications.RunnerReload, other.Notifications.RunnerReload)

	setString(&c.Log.Level, other.Log.Level)
	setString(&c.Metrics.Textfile, other.Metrics.Textfile)

	setString(&c.Theme.Primary, other.Theme.Primary)
	setString(&c.Theme.Accent, other.Theme.Accent)
	setString(&c.Theme.Muted, other.Theme.Muted)
	setString(&c.Theme.Danger, other.Theme.Danger)
}

func (c *Config) mergeFromYAML(other *Config, doc *yaml.Node) {
	c.mergeNonEmpty(other)

	// Without a parsed document we can't tell "false" from "absent"; keep defaults.
	if doc == nil || len(doc.Content) == 0 {
		return
	}

	if yamlHasPath(doc, "notifications", "enabled") {
		c.Notifications.Enabled = other.Notifications.Enabled
	}
	if yamlHasPath(doc, "notifications", "sound") {
		c.Notifications.Sound = other.Notifications.Sound
	}
	if yamlHasPath(doc, "log", "json") {
		c.Log.JSON = other.Log.JSON
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func yamlHasPath(doc *yaml.Node, path ...string) bool {
	if doc == nil || len(path) == 0 {
		return false
	}

	// Document -> root mapping.
	n := doc
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	for _, key := range path {
		if n == nil || n.Kind != yaml.MappingNode {
			return false
		}
		var next *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			if k := n.Content[i]; k.Kind == yaml.ScalarNode && k.Value == key {
				next = n.Content[i+1]
				break
			}
		}
		if next == nil {
			return false
		}
		n = next
	}
	return true
}

// ApplyEnv overrides connection settings from the environment. getenv is
// usually os.Getenv; it is a parameter so tests don't mutate the process env.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("PAYTRACK_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := getenv("PAYTRACK_DATABASE_URL"); v != "" {
		c.Store.DatabaseURL = v
		c.Store.Driver = StorePostgres
	}
	if v := getenv("PAYTRACK_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
		c.Cache.Driver = CacheRedis
	}
	if v := getenv("PAYTRACK_REDIS_PASSWORD"); v != "" {
		c.Cache.RedisPassword = v
	}
	if v := getenv("PAYTRACK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreFile:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Cache.Driver {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}

	if c.Location != "" {
		if _, err := time.LoadLocation(c.Location); err != nil {
			return fmt.Errorf("invalid location %q: %w", c.Location, err)
		}
	}
	return nil
}

// TimeLocation returns the zone reminders are interpreted in.
func (c *Config) TimeLocation() *time.Location {
	if c.Location == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return time.Local
	}
	return loc
}

// Save writes the configuration to disk.
func (c *Config) Save() error {
	path := Path()
	if path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return fsutil.WriteFileAtomic(path, data, 0600)
}

// GetDataDir returns the resolved data directory path.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return defaultDataDir()
	}
	if c.DataDir == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return c.DataDir
	}
	if strings.HasPrefix(c.DataDir, "~/") || strings.HasPrefix(c.DataDir, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, c.DataDir[2:])
		}
	}
	return c.DataDir
}
