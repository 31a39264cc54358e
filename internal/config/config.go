// Package config loads the runtime knobs every component reads at startup —
// the sandbox root, byte caps, debounce and staleness intervals, and the
// follow-latest flag — from environment variables with hard-coded defaults,
// the way kdlbs-kandev's backend config package does for a Go service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every runtime knob the pipeline reads at startup.
type Config struct {
	// Root is the directory scanned for project subdirectories, normally
	// ~/.claude/projects.
	Root string `mapstructure:"root"`

	// ExtraRoots are additional directories the sandbox accepts session paths
	// under, beyond Root.
	ExtraRoots []string `mapstructure:"extraRoots"`

	// FollowLatest makes the coordinator automatically switch to the newest
	// session in the current project as it's discovered.
	FollowLatest bool `mapstructure:"followLatest"`

	// MaxLineBytes caps a single JSONL record; oversize lines are logged at
	// warn level and skipped rather than read into memory whole.
	MaxLineBytes int `mapstructure:"maxLineBytes"`

	// WatchDebounceMs is the File Watcher's per-path debounce interval.
	WatchDebounceMs int `mapstructure:"watchDebounceMs"`

	// ActivityStalenessSec is the Activity Tracker's ongoing-to-idle
	// transition threshold.
	ActivityStalenessSec int `mapstructure:"activityStalenessSec"`

	// ActivitySweepSec is how often the Activity Tracker re-evaluates
	// staleness for tracked sessions.
	ActivitySweepSec int `mapstructure:"activitySweepSec"`

	// CacheDBPath is where the durable metadata cache's SQLite file lives.
	CacheDBPath string `mapstructure:"cacheDbPath"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"logLevel"`
}

// WatchDebounce returns WatchDebounceMs as a time.Duration.
func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.WatchDebounceMs) * time.Millisecond
}

// ActivityStaleness returns ActivityStalenessSec as a time.Duration.
func (c *Config) ActivityStaleness() time.Duration {
	return time.Duration(c.ActivityStalenessSec) * time.Second
}

// ActivitySweep returns ActivitySweepSec as a time.Duration.
func (c *Config) ActivitySweep() time.Duration {
	return time.Duration(c.ActivitySweepSec) * time.Second
}

func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude/projects"
	}
	return filepath.Join(home, ".claude", "projects")
}

func defaultCacheDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "claude-pipeline-cache.db"
	}
	return filepath.Join(home, ".claude", "claude-pipeline-cache.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", defaultRoot())
	v.SetDefault("extraRoots", []string{})
	v.SetDefault("followLatest", true)
	v.SetDefault("maxLineBytes", 10*1024*1024)
	v.SetDefault("watchDebounceMs", 100)
	v.SetDefault("activityStalenessSec", 30)
	v.SetDefault("activitySweepSec", 5)
	v.SetDefault("cacheDbPath", defaultCacheDBPath())
	v.SetDefault("logLevel", "info")
}

// Load reads configuration from CLAUDEPIPELINE_-prefixed environment
// variables, falling back to hard-coded defaults. flags, when non-nil, binds
// a cobra command's persistent flags over the same keys so CLI flags win
// over environment, which wins over defaults.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CLAUDEPIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string
	if cfg.Root == "" {
		errs = append(errs, "root must not be empty")
	}
	if cfg.MaxLineBytes <= 0 {
		errs = append(errs, "maxLineBytes must be positive")
	}
	if cfg.WatchDebounceMs <= 0 {
		errs = append(errs, "watchDebounceMs must be positive")
	}
	if cfg.ActivityStalenessSec <= 0 {
		errs = append(errs, "activityStalenessSec must be positive")
	}
	if cfg.ActivitySweepSec <= 0 {
		errs = append(errs, "activitySweepSec must be positive")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, "logLevel must be one of: debug, info, warn, error")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
