package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_MissingUsesDefaults(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %s, want %s", cfg.PollInterval, DefaultPollInterval)
	}
	if cfg.FetchConcurrency != DefaultFetchConcurrency {
		t.Errorf("FetchConcurrency = %d", cfg.FetchConcurrency)
	}
	if *cfg.LogMaxRetries != DefaultLogMaxRetries {
		t.Errorf("LogMaxRetries = %d", *cfg.LogMaxRetries)
	}
	if !cfg.NotificationsEnabled() {
		t.Error("notifications should default to enabled")
	}
	if want := "/tmp/state/berth/berth.db"; cfg.StatePath != want {
		t.Errorf("StatePath = %q, want %q", cfg.StatePath, want)
	}
}

func TestLoadFile_Values(t *testing.T) {
	path := writeConfig(t, `
docker_host: unix:///run/user/1000/docker.sock
poll_interval: 1500ms
request_timeout: 2s
fetch_concurrency: 4
pending_action_ttl: 1m
stale_evict_cycles: 2
log_tail: 50
log_max_retries: 0
log_level: DEBUG
log_format: json
notifications:
  enabled: false
  command: notify-send
tracing: true
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"docker_host", cfg.DockerHost, "unix:///run/user/1000/docker.sock"},
		{"poll_interval", cfg.PollInterval, 1500 * time.Millisecond},
		{"request_timeout", cfg.RequestTimeout, 2 * time.Second},
		{"fetch_concurrency", cfg.FetchConcurrency, 4},
		{"pending_action_ttl", cfg.PendingActionTTL, time.Minute},
		{"stale_evict_cycles", cfg.StaleEvictCycles, 2},
		{"log_tail", cfg.LogTail, 50},
		{"log_max_retries", *cfg.LogMaxRetries, 0},
		{"log_level", cfg.LogLevel, "debug"},
		{"log_format", cfg.LogFormat, "json"},
		{"notifications.enabled", cfg.NotificationsEnabled(), false},
		{"notifications.command", cfg.Notifications.Command, "notify-send"},
		{"tracing", cfg.Tracing, true},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"negative interval", "poll_interval: -1s", "poll_interval"},
		{"bad format", "log_format: xml", "log_format"},
		{"bad level", "log_level: loud", "log_level"},
		{"bad host", "docker_host: /var/run/docker.sock", "docker_host"},
		{"negative retries", "log_max_retries: -2", "log_max_retries"},
		{"not yaml", "poll_interval: [", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := Path(); got != "/xdg/berth/config.yaml" {
		t.Errorf("Path() = %q", got)
	}

	t.Setenv(EnvConfig, "/etc/berth.yaml")
	if got := Path(); got != "/etc/berth.yaml" {
		t.Errorf("Path() with %s = %q", EnvConfig, got)
	}
}

func TestDockerHostPrecedence(t *testing.T) {
	cfg := &Config{DockerHost: "tcp://from-config:2375"}

	t.Setenv(EnvDockerHost, "")
	t.Setenv("DOCKER_HOST", "tcp://from-docker-env:2375")
	if got := cfg.EffectiveDockerHost(); got != "tcp://from-config:2375" {
		t.Errorf("config key should beat DOCKER_HOST, got %q", got)
	}

	t.Setenv(EnvDockerHost, "unix:///tmp/override.sock")
	if got := cfg.DockerHostOverride(); got != "unix:///tmp/override.sock" {
		t.Errorf("%s should win, got %q", EnvDockerHost, got)
	}

	t.Setenv(EnvDockerHost, "")
	cfg.DockerHost = ""
	if got := cfg.DockerHostOverride(); got != "" {
		t.Errorf("no override expected, got %q", got)
	}
	if got := cfg.EffectiveDockerHost(); got != "tcp://from-docker-env:2375" {
		t.Errorf("DOCKER_HOST fallback, got %q", got)
	}

	t.Setenv("DOCKER_HOST", "")
	if got := cfg.EffectiveDockerHost(); got != DefaultDockerHost {
		t.Errorf("default, got %q", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	in := &Config{PollInterval: 5 * time.Second, LogFormat: "json"}
	if err := in.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	out, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if out.PollInterval != 5*time.Second || out.LogFormat != "json" {
		t.Errorf("round trip lost values: %+v", out)
	}
}
