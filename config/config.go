// Package config loads berth settings.
//
// The file lives at $BERTH_CONFIG, else $XDG_CONFIG_HOME/berth/config.yaml
// (defaults to ~/.config/berth/config.yaml). A missing file means defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfig     = "BERTH_CONFIG"
	EnvDockerHost = "BERTH_DOCKER_HOST"

	DefaultDockerHost       = "unix:///var/run/docker.sock"
	DefaultPollInterval     = 3 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
	DefaultFetchConcurrency = 8
	DefaultPendingActionTTL = 30 * time.Second
	DefaultStaleEvictCycles = 5
	DefaultLogTail          = 100
	DefaultLogMaxRetries    = 5
	DefaultLogLevel         = "warn"
	DefaultLogFormat        = "text"
)

// Notifications controls desktop notifications for external transitions.
type Notifications struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Command string `yaml:"command,omitempty"` // empty logs instead of running a command
}

// Config is the on-disk configuration. Zero values mean "use the default";
// call Normalize before reading them.
type Config struct {
	DockerHost       string        `yaml:"docker_host,omitempty"`
	PollInterval     time.Duration `yaml:"poll_interval,omitempty"`
	RequestTimeout   time.Duration `yaml:"request_timeout,omitempty"`
	FetchConcurrency int           `yaml:"fetch_concurrency,omitempty"`
	PendingActionTTL time.Duration `yaml:"pending_action_ttl,omitempty"`
	StaleEvictCycles int           `yaml:"stale_evict_cycles,omitempty"`
	LogTail          int           `yaml:"log_tail,omitempty"`
	LogMaxRetries    *int          `yaml:"log_max_retries,omitempty"`
	LogLevel         string        `yaml:"log_level,omitempty"`
	LogFormat        string        `yaml:"log_format,omitempty"`
	StatePath        string        `yaml:"state_path,omitempty"`
	Notifications    Notifications `yaml:"notifications,omitempty"`
	Tracing          bool          `yaml:"tracing,omitempty"`
}

// Path returns the config file location.
func Path() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "berth", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "berth", "config.yaml")
}

// DefaultStatePath returns $XDG_STATE_HOME/berth/berth.db, falling back to
// ~/.local/state/berth/berth.db.
func DefaultStatePath() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".local", "state", "berth", "berth.db")
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "berth", "berth.db")
}

// Load reads the config at Path, normalized and validated.
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile reads the config at path. A missing file yields defaults.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	c.DockerHost = strings.TrimSpace(c.DockerHost)
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.FetchConcurrency == 0 {
		c.FetchConcurrency = DefaultFetchConcurrency
	}
	if c.PendingActionTTL == 0 {
		c.PendingActionTTL = DefaultPendingActionTTL
	}
	if c.StaleEvictCycles == 0 {
		c.StaleEvictCycles = DefaultStaleEvictCycles
	}
	if c.LogTail == 0 {
		c.LogTail = DefaultLogTail
	}
	if c.LogMaxRetries == nil {
		n := DefaultLogMaxRetries
		c.LogMaxRetries = &n
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStatePath()
	}
	if c.Notifications.Enabled == nil {
		enabled := true
		c.Notifications.Enabled = &enabled
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	positive("poll_interval", c.PollInterval)
	positive("request_timeout", c.RequestTimeout)
	positive("pending_action_ttl", c.PendingActionTTL)
	if c.FetchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("fetch_concurrency must be at least 1, got %d", c.FetchConcurrency))
	}
	if c.StaleEvictCycles < 1 {
		errs = append(errs, fmt.Errorf("stale_evict_cycles must be at least 1, got %d", c.StaleEvictCycles))
	}
	if c.LogTail < 1 {
		errs = append(errs, fmt.Errorf("log_tail must be at least 1, got %d", c.LogTail))
	}
	if c.LogMaxRetries != nil && *c.LogMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("log_max_retries must not be negative, got %d", *c.LogMaxRetries))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if c.DockerHost != "" && !strings.Contains(c.DockerHost, "://") {
		errs = append(errs, fmt.Errorf("docker_host must be a URL such as unix:///var/run/docker.sock, got %q", c.DockerHost))
	}
	return errors.Join(errs...)
}

// NotificationsEnabled reports the effective notifications flag.
func (c *Config) NotificationsEnabled() bool {
	return c.Notifications.Enabled == nil || *c.Notifications.Enabled
}

// DockerHostOverride returns the daemon address berth should force, or "" to
// let the SDK read DOCKER_HOST and fall back to the platform socket.
// BERTH_DOCKER_HOST beats the config file.
func (c *Config) DockerHostOverride() string {
	if h := strings.TrimSpace(os.Getenv(EnvDockerHost)); h != "" {
		return h
	}
	return c.DockerHost
}

// EffectiveDockerHost resolves the full precedence chain for display.
func (c *Config) EffectiveDockerHost() string {
	if h := c.DockerHostOverride(); h != "" {
		return h
	}
	if h := strings.TrimSpace(os.Getenv("DOCKER_HOST")); h != "" {
		return h
	}
	return DefaultDockerHost
}

// Save writes the config to path, creating directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
