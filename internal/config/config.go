package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"scheditor/internal/events"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Environment overrides are applied by ApplyEnv after Load.

// RemoteConfig points the editor at an optional remote collaborator that
// confirms commits and deletes. An empty BaseURL keeps everything local.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Token, if set, is sent as a bearer token on every call.
	Token string `yaml:"token,omitempty" json:"-"`
	// Timeout bounds a single confirm/delete call. The editor core imposes
	// no timeout of its own; this is the host-side guard.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// FeedConfig is an ICS subscription imported as read-only events.
type FeedConfig struct {
	// ID is an internal identifier (e.g., "holidays").
	ID  string `yaml:"id" json:"id"`
	URL string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used to interpret zone-less date values
	// (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// SchemaPath is the YAML/JSON file holding the custom field schema.
	// It is watched and hot-reloaded; open editor sessions keep the schema
	// they were opened with.
	SchemaPath string `yaml:"schema_path" json:"schema_path"`

	// DataPath is the ICS file used to seed and snapshot the event collection.
	DataPath string `yaml:"data_path" json:"data_path"`

	// SnapshotCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for writing the collection to DataPath. Empty disables snapshots.
	SnapshotCron string `yaml:"snapshot_cron" json:"snapshot_cron"`

	// Feeds are ICS subscriptions merged into the collection as disabled
	// (non-editable) events.
	Feeds []FeedConfig `yaml:"feeds,omitempty" json:"feeds,omitempty"`

	// FeedCron is the refresh schedule for Feeds.
	FeedCron string `yaml:"feed_cron" json:"feed_cron"`

	// FeedCacheDir keeps ETag/Last-Modified metadata and the last body of
	// every feed.
	FeedCacheDir string `yaml:"feed_cache_dir" json:"feed_cache_dir"`

	// DefaultDuration is the repair duration used when an editing session
	// has no seeding range at all.
	DefaultDuration time.Duration `yaml:"default_duration" json:"default_duration"`

	// SessionTTL expires idle editor sessions.
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl"`

	// CORSOrigins lists allowed browser origins for the API.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	Remote RemoteConfig `yaml:"remote" json:"remote"`

	// Notify configures lifecycle notification sinks.
	Notify events.Config `yaml:"notify" json:"notify"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health and /metrics.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen          = "127.0.0.1:8080"
	defaultTimezone        = "UTC"
	defaultLogLevel        = "info"
	defaultSchemaPath      = "/etc/scheditor/fields.yaml"
	defaultDataPath        = "/var/lib/scheditor/events.ics"
	defaultSnapshotCron    = "*/15 * * * *"
	defaultFeedCron        = "0 * * * *"
	defaultFeedCacheDir    = "/var/lib/scheditor/feed-cache"
	defaultDuration        = 30 * time.Minute
	defaultSessionTTL      = 30 * time.Minute
	defaultRemoteTimeout   = 10 * time.Second
	configTempFilePattern  = ".scheditor-config-*.tmp"
	defaultCORSAllowOrigin = "*"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          defaultListen,
		Timezone:        defaultTimezone,
		LogLevel:        defaultLogLevel,
		SchemaPath:      defaultSchemaPath,
		DataPath:        defaultDataPath,
		SnapshotCron:    defaultSnapshotCron,
		FeedCron:        defaultFeedCron,
		FeedCacheDir:    defaultFeedCacheDir,
		DefaultDuration: defaultDuration,
		SessionTTL:      defaultSessionTTL,
		CORSOrigins:     []string{defaultCORSAllowOrigin},
		Remote: RemoteConfig{
			Timeout: defaultRemoteTimeout,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		// Unknown value; fall back to info rather than refusing to start.
		c.LogLevel = defaultLogLevel
	}
	if c.SchemaPath == "" {
		c.SchemaPath = defaultSchemaPath
	}
	if c.DataPath == "" {
		c.DataPath = defaultDataPath
	}
	if c.FeedCron == "" {
		c.FeedCron = defaultFeedCron
	}
	if c.FeedCacheDir == "" {
		c.FeedCacheDir = defaultFeedCacheDir
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = defaultDuration
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{defaultCORSAllowOrigin}
	}
	c.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/")
	if c.Remote.Timeout <= 0 {
		c.Remote.Timeout = defaultRemoteTimeout
	}
}

// Validate reports configuration values that cannot be defaulted away.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.SnapshotCron != "" {
		if _, err := cron.ParseStandard(c.SnapshotCron); err != nil {
			return fmt.Errorf("invalid snapshot_cron %q: %w", c.SnapshotCron, err)
		}
	}
	if _, err := cron.ParseStandard(c.FeedCron); err != nil {
		return fmt.Errorf("invalid feed_cron %q: %w", c.FeedCron, err)
	}
	seen := map[string]bool{}
	for i, f := range c.Feeds {
		if f.ID == "" || f.URL == "" {
			return fmt.Errorf("feeds[%d]: id and url are required", i)
		}
		if seen[f.ID] {
			return fmt.Errorf("feeds[%d]: duplicate id %q", i, f.ID)
		}
		seen[f.ID] = true
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "") != (c.BasicAuth.Password == "") {
		return errors.New("basic_auth requires both username and password")
	}
	if c.Remote.BaseURL != "" && !strings.HasPrefix(c.Remote.BaseURL, "http://") && !strings.HasPrefix(c.Remote.BaseURL, "https://") {
		return fmt.Errorf("remote.base_url must be http(s): %q", c.Remote.BaseURL)
	}
	return nil
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, configTempFilePattern)
}

// WriteFileAtomic writes data next to path in a temp file, chmods it to
// 0600 and renames it over path. The ICS snapshotter shares this.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
