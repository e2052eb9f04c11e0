package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/kiwi-labs/kiwi/internal/branding"
	"github.com/kiwi-labs/kiwi/internal/userdata"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Config keys.
const (
	KeyRegistryURL     = "registry_url"
	KeyRegistryToken   = "registry_token"
	KeyProject         = "project"
	KeyLogLevel        = "log_level"
	KeySyncConcurrency = "sync.concurrency"
	KeySyncAttempts    = "sync.attempts"
	KeySyncBackoff     = "sync.backoff"
	KeySyncTimeout     = "sync.timeout"
	KeySearchLimit     = "search.limit"
	KeyUpdateCheck     = "update_check"
)

// Settings is the typed view of the configuration.
type Settings struct {
	RegistryURL   string
	RegistryToken string
	// Project is the project root whose .ai/directives form the project
	// tier. Empty disables the project tier.
	Project  string
	LogLevel string
	// UpdateCheck enables the cached "updates available" banner.
	UpdateCheck bool
	Sync        SyncSettings
	Search      SearchSettings
}

// SyncSettings tune the sync pipeline.
type SyncSettings struct {
	Concurrency int
	Attempts    int
	Backoff     time.Duration
	Timeout     time.Duration
}

// SearchSettings tune search.
type SearchSettings struct {
	Limit int
}

// Dir returns the path to the config directory (~/.context-kiwi/).
func Dir() string {
	root, err := userdata.GetHomeRoot()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return root
}

// FilePath returns the full path to the config file (~/.context-kiwi/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, userdata.DirPermNormal); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault(KeyRegistryURL, branding.RegistryURL())
	viper.SetDefault(KeyLogLevel, "warn")
	viper.SetDefault(KeySyncConcurrency, 4)
	viper.SetDefault(KeySyncAttempts, 3)
	viper.SetDefault(KeySyncBackoff, 500*time.Millisecond)
	viper.SetDefault(KeySyncTimeout, 30*time.Second)
	viper.SetDefault(KeySearchLimit, 20)
	viper.SetDefault(KeyUpdateCheck, true)
}

// Load initializes Viper to read from the config file and environment
// (KIWI_REGISTRY_URL, KIWI_SYNC_CONCURRENCY, ...) and returns the
// resulting settings.
func Load() (Settings, error) {
	setDefaults()
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil && !isNotExist(err) {
		return Settings{}, fmt.Errorf("reading config file: %w", err)
	}
	return Current(), nil
}

// Current returns the settings from the already-loaded configuration.
func Current() Settings {
	return Settings{
		RegistryURL:   viper.GetString(KeyRegistryURL),
		RegistryToken: viper.GetString(KeyRegistryToken),
		Project:       viper.GetString(KeyProject),
		LogLevel:      viper.GetString(KeyLogLevel),
		UpdateCheck:   viper.GetBool(KeyUpdateCheck),
		Sync: SyncSettings{
			Concurrency: viper.GetInt(KeySyncConcurrency),
			Attempts:    viper.GetInt(KeySyncAttempts),
			Backoff:     viper.GetDuration(KeySyncBackoff),
			Timeout:     viper.GetDuration(KeySyncTimeout),
		},
		Search: SearchSettings{
			Limit: viper.GetInt(KeySearchLimit),
		},
	}
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
