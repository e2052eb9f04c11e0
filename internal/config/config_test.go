package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func setup(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("KIWI_HOME", home)
	viper.Reset()
	t.Cleanup(viper.Reset)
	return home
}

func TestLoadDefaults(t *testing.T) {
	setup(t)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Sync.Concurrency != 4 || s.Sync.Attempts != 3 {
		t.Errorf("sync defaults = %+v", s.Sync)
	}
	if s.Sync.Backoff != 500*time.Millisecond || s.Sync.Timeout != 30*time.Second {
		t.Errorf("sync durations = %v, %v", s.Sync.Backoff, s.Sync.Timeout)
	}
	if !s.UpdateCheck {
		t.Error("update check disabled by default")
	}
	if s.Search.Limit != 20 {
		t.Errorf("search limit = %d, want 20", s.Search.Limit)
	}
	if s.RegistryURL == "" {
		t.Error("registry URL default is empty")
	}
	if s.LogLevel != "warn" {
		t.Errorf("log level = %q, want warn", s.LogLevel)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	home := setup(t)
	data := []byte("registry_url: http://localhost:8080\nproject: /work/app\nsync:\n  concurrency: 8\n  backoff: 2s\n")
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KIWI_SYNC_TIMEOUT", "5s")
	t.Setenv("KIWI_SEARCH_LIMIT", "7")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.RegistryURL != "http://localhost:8080" {
		t.Errorf("registry URL = %q", s.RegistryURL)
	}
	if s.Project != "/work/app" {
		t.Errorf("project = %q", s.Project)
	}
	if s.Sync.Concurrency != 8 || s.Sync.Backoff != 2*time.Second {
		t.Errorf("sync from file = %+v", s.Sync)
	}
	if s.Sync.Timeout != 5*time.Second {
		t.Errorf("sync timeout from env = %v", s.Sync.Timeout)
	}
	if s.Search.Limit != 7 {
		t.Errorf("search limit from env = %d", s.Search.Limit)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	home := setup(t)
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("sync: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}

func TestSetPersists(t *testing.T) {
	home := setup(t)
	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Set(KeyRegistryToken, "secret"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := Get(KeyRegistryToken); got != "secret" {
		t.Errorf("Get = %q, want secret", got)
	}

	data, err := os.ReadFile(filepath.Join(home, "config.yaml"))
	if err != nil {
		t.Fatalf("reading config file: %v", err)
	}
	if len(data) == 0 {
		t.Error("config file is empty after Set")
	}

	viper.Reset()
	s, err := Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if s.RegistryToken != "secret" {
		t.Errorf("token after reload = %q", s.RegistryToken)
	}
}
