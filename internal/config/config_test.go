package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// useTempConfigHome points XDG_CONFIG_HOME at a temp dir and returns the
// directory the config file is expected in.
func useTempConfigHome(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tempDir)
	return filepath.Join(tempDir, "paytrack")
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DataDir == "" {
		t.Error("DataDir should not be empty")
	}
	if cfg.Store.Driver != StoreFile {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, StoreFile)
	}
	if cfg.Notifications.PermissionPollInterval != time.Second {
		t.Errorf("PermissionPollInterval = %v, want 1s", cfg.Notifications.PermissionPollInterval)
	}
	if cfg.Notifications.PermissionTimeout != 8*time.Second {
		t.Errorf("PermissionTimeout = %v, want 8s", cfg.Notifications.PermissionTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	useTempConfigHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Notifications.Channel != "payment-reminders" {
		t.Errorf("Notifications.Channel = %q, want payment-reminders", cfg.Notifications.Channel)
	}
}

func TestLoad_WithConfigFile(t *testing.T) {
	dir := useTempConfigHome(t)
	writeConfig(t, dir, `
data_dir: /custom/data
notifications:
  permission_timeout: 20s
  channel: bills
cache:
  driver: redis
  redis_addr: localhost:6379
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DataDir != "/custom/data" {
		t.Errorf("DataDir = %q, want /custom/data", cfg.DataDir)
	}
	if cfg.Notifications.PermissionTimeout != 20*time.Second {
		t.Errorf("PermissionTimeout = %v, want 20s", cfg.Notifications.PermissionTimeout)
	}
	if cfg.Notifications.Channel != "bills" {
		t.Errorf("Channel = %q, want bills", cfg.Notifications.Channel)
	}
	// Untouched values keep their defaults.
	if cfg.Notifications.PermissionPollInterval != time.Second {
		t.Errorf("PermissionPollInterval = %v, want 1s", cfg.Notifications.PermissionPollInterval)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Cache.TTL = %v, want 10m", cfg.Cache.TTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_MissingBoolKeysDoesNotClobberDefaults(t *testing.T) {
	dir := useTempConfigHome(t)
	writeConfig(t, dir, `
notifications:
  channel: bills
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Notifications.Enabled {
		t.Error("Notifications.Enabled = false, want default true")
	}
	if !cfg.Notifications.Sound {
		t.Error("Notifications.Sound = false, want default true")
	}
}

func TestLoad_ExplicitFalseOverridesDefault(t *testing.T) {
	dir := useTempConfigHome(t)
	writeConfig(t, dir, `
notifications:
  enabled: false
log:
  json: true
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Notifications.Enabled {
		t.Error("Notifications.Enabled = true, want false")
	}
	if !cfg.Log.JSON {
		t.Error("Log.JSON = false, want true")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := useTempConfigHome(t)
	writeConfig(t, dir, "notifications: [unterminated")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PAYTRACK_DATABASE_URL": "postgres://u:p@localhost/paytrack",
		"PAYTRACK_REDIS_ADDR":   "redis:6379",
		"PAYTRACK_LOG_LEVEL":    "debug",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Store.Driver != StorePostgres {
		t.Errorf("Store.Driver = %q, want postgres", cfg.Store.Driver)
	}
	if cfg.Store.DatabaseURL != env["PAYTRACK_DATABASE_URL"] {
		t.Errorf("Store.DatabaseURL = %q", cfg.Store.DatabaseURL)
	}
	if cfg.Cache.Driver != CacheRedis || cfg.Cache.RedisAddr != "redis:6379" {
		t.Errorf("Cache = %+v, want redis at redis:6379", cfg.Cache)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"postgres without url", func(c *Config) { c.Store.Driver = StorePostgres }, true},
		{"unknown store", func(c *Config) { c.Store.Driver = "sqlite" }, true},
		{"redis without addr", func(c *Config) { c.Cache.Driver = CacheRedis }, true},
		{"unknown cache", func(c *Config) { c.Cache.Driver = "memcached" }, true},
		{"bad location", func(c *Config) { c.Location = "Not/AZone" }, true},
		{"utc location", func(c *Config) { c.Location = "UTC" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	if got := cfg.GetDataDir(); filepath.Base(got) != ".paytrack" {
		t.Errorf("GetDataDir() = %q, want to end with .paytrack", got)
	}

	cfg.DataDir = "/custom/path"
	if got := cfg.GetDataDir(); got != "/custom/path" {
		t.Errorf("GetDataDir() = %q, want /custom/path", got)
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		cfg.DataDir = "~/bills"
		if got := cfg.GetDataDir(); got != filepath.Join(home, "bills") {
			t.Errorf("GetDataDir() = %q, want %q", got, filepath.Join(home, "bills"))
		}
	}
}

func TestSave(t *testing.T) {
	dir := useTempConfigHome(t)

	cfg := Default()
	cfg.DataDir = "/saved/path"
	cfg.Notifications.Enabled = false
	cfg.Notifications.PermissionTimeout = 15 * time.Second

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DataDir != "/saved/path" {
		t.Errorf("loaded DataDir = %q, want /saved/path", loaded.DataDir)
	}
	if loaded.Notifications.Enabled {
		t.Error("loaded Notifications.Enabled = true, want false")
	}
	if loaded.Notifications.PermissionTimeout != 15*time.Second {
		t.Errorf("loaded PermissionTimeout = %v, want 15s", loaded.Notifications.PermissionTimeout)
	}
}
