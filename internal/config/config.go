// Package config loads swimsync configuration from file, environment, and
// defaults, in that order of increasing precedence for env over file.
//
// Configuration is read from swimsync.yaml (working directory or
// ~/.config/swimsync/), overridable with SWIMSYNC_* environment variables,
// e.g. SWIMSYNC_REMOTE_URL.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	// DBPath is the local store's SQLite file.
	DBPath string `mapstructure:"db_path"`

	// RemoteURL is the record service base URL.
	RemoteURL string `mapstructure:"remote_url"`

	// Zone is the remote zone records and the cursor are scoped to.
	Zone string `mapstructure:"zone"`

	// DebounceWindow delays batch pushes so rapid edits coalesce.
	DebounceWindow time.Duration `mapstructure:"debounce_window"`

	// DeleteDebounceWindow is the shorter delay for single deletions.
	DeleteDebounceWindow time.Duration `mapstructure:"delete_debounce_window"`

	// MaxDebounceDelay caps how long a burst can defer the flush.
	MaxDebounceDelay time.Duration `mapstructure:"max_debounce_delay"`

	// PullInterval is the daemon's periodic pull cadence.
	PullInterval time.Duration `mapstructure:"pull_interval"`

	// ImportDir, when set, is watched for dropped swim-time JSON exports.
	ImportDir string `mapstructure:"import_dir"`

	// ListenAddr is the reference server's bind address for `swimsync serve`.
	ListenAddr string `mapstructure:"listen_addr"`

	// LogFile, when set, makes the daemon log to a size-rotated file
	// instead of stderr.
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// Load reads configuration. If path is non-empty that exact file is used;
// otherwise the usual locations are searched and a missing file just means
// defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", ".swimsync/swimsync.db")
	v.SetDefault("remote_url", "http://localhost:8787")
	v.SetDefault("zone", "swimlog")
	v.SetDefault("debounce_window", time.Second)
	v.SetDefault("delete_debounce_window", 250*time.Millisecond)
	v.SetDefault("max_debounce_delay", 10*time.Second)
	v.SetDefault("pull_interval", 30*time.Second)
	v.SetDefault("listen_addr", ":8787")
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 3)

	v.SetEnvPrefix("SWIMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("swimsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/swimsync")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db_path cannot be empty")
	}
	if cfg.Zone == "" {
		return nil, fmt.Errorf("zone cannot be empty")
	}
	return &cfg, nil
}
