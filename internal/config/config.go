// Package config handles heap configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure for heap.
type Config struct {
	// Paths locates the post files.
	Paths PathsConfig `yaml:"paths" mapstructure:"paths"`

	// Archive settings
	Archive ArchiveConfig `yaml:"archive" mapstructure:"archive"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Database settings for SQLite snapshots.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Render settings for thread output.
	Render RenderConfig `yaml:"render" mapstructure:"render"`

	// Watch settings for the post directory watcher.
	Watch WatchConfig `yaml:"watch" mapstructure:"watch"`
}

// PathsConfig contains filesystem locations.
type PathsConfig struct {
	// PostsDir holds one <heapid>.post file per post.
	PostsDir string `yaml:"posts_dir" mapstructure:"posts_dir"`

	// StateDir holds the selection file (default: ~/.local/state/heap).
	StateDir string `yaml:"state_dir" mapstructure:"state_dir"`
}

// ArchiveConfig contains archive settings.
type ArchiveConfig struct {
	// IDPrefix is prepended to the number of newly allocated heapids.
	IDPrefix string `yaml:"id_prefix" mapstructure:"id_prefix"`

	// LoadWorkers bounds concurrent post file parsing.
	LoadWorkers int `yaml:"load_workers" mapstructure:"load_workers"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the default SQLite snapshot path for heap export.
	Path string `yaml:"path" mapstructure:"path"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// RenderConfig contains thread rendering settings.
type RenderConfig struct {
	// Color is auto, always or never.
	Color string `yaml:"color" mapstructure:"color"`

	// SubjectWidth truncates subjects to this many columns; 0 disables.
	SubjectWidth int `yaml:"subject_width" mapstructure:"subject_width"`

	// ShowDates prints the post date after the subject.
	ShowDates bool `yaml:"show_dates" mapstructure:"show_dates"`

	// Indent is the number of columns per thread level.
	Indent int `yaml:"indent" mapstructure:"indent"`
}

// WatchConfig contains watcher settings.
type WatchConfig struct {
	// Debounce collapses bursts of file events into one reload.
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Paths: PathsConfig{
			PostsDir: "posts",
			StateDir: filepath.Join(homeDir, ".local", "state", "heap"),
		},
		Archive: ArchiveConfig{
			IDPrefix:    "",
			LoadWorkers: 8,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
		Database: DatabaseConfig{
			Path:          "heap.db",
			BusyTimeoutMs: 5000,
		},
		Render: RenderConfig{
			Color:        "auto",
			SubjectWidth: 60,
			ShowDates:    false,
			Indent:       2,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.PostsDir) == "" {
		return fmt.Errorf("paths.posts_dir is required")
	}
	if strings.ContainsAny(c.Archive.IDPrefix, "/\\ \t") {
		return fmt.Errorf("archive.id_prefix must not contain path separators or spaces")
	}
	if p := c.Archive.IDPrefix; p != "" && p[len(p)-1] >= '0' && p[len(p)-1] <= '9' {
		// The number would merge into the prefix.
		return fmt.Errorf("archive.id_prefix must not end with a digit")
	}
	if c.Archive.LoadWorkers < 1 {
		return fmt.Errorf("archive.load_workers must be at least 1")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be one of console, json")
	}

	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("database.busy_timeout_ms must not be negative")
	}

	switch c.Render.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("render.color must be one of auto, always, never")
	}
	if c.Render.SubjectWidth < 0 {
		return fmt.Errorf("render.subject_width must not be negative")
	}
	if c.Render.Indent < 1 || c.Render.Indent > 8 {
		return fmt.Errorf("render.indent must be between 1 and 8")
	}

	if c.Watch.Debounce < 10*time.Millisecond {
		return fmt.Errorf("watch.debounce must be at least 10ms")
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.PostsDir,
		c.Paths.StateDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// SelectionPath returns the selection file path.
func (c *Config) SelectionPath() string {
	return filepath.Join(c.Paths.StateDir, "selection.yaml")
}
