// Package config provides configuration management for bkup.
// It supports YAML or TOML configuration files, environment variables, and
// sensible defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/klauern/bkup/internal/ignore"
	"github.com/klauern/bkup/internal/util"
	"github.com/klauern/bkup/internal/walker"
)

// DefaultAccuracy is the timestamp tolerance used when nothing else is
// configured. Two seconds covers FAT's mtime resolution.
const DefaultAccuracy = 2 * time.Second

// Config represents the complete bkup configuration.
type Config struct {
	// Sync configures the walk and the comparison
	Sync SyncConfig `yaml:"sync" toml:"sync"`

	// Backup configures saving overwritten files
	Backup BackupConfig `yaml:"backup" toml:"backup"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output" toml:"output"`
}

// SyncConfig holds synchronization settings.
type SyncConfig struct {
	// Accuracy is the timestamp tolerance
	Accuracy time.Duration `yaml:"accuracy" toml:"accuracy"`
	// Ignore enables per-directory ignore files
	Ignore bool `yaml:"ignore" toml:"ignore"`
	// IgnoreFile is the ignore file name looked up in every directory
	IgnoreFile string `yaml:"ignore_file" toml:"ignore_file"`
	// MaxOpenDirs bounds concurrent directory listings
	MaxOpenDirs int `yaml:"max_open_dirs" toml:"max_open_dirs"`
}

// BackupConfig holds backup settings.
type BackupConfig struct {
	// Enabled saves destination files before they are overwritten
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// Location is the backup directory path
	Location string `yaml:"location" toml:"location"`
	// MaxBackups is the maximum number of backup runs to keep (0 keeps all)
	MaxBackups int `yaml:"max_backups" toml:"max_backups"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Color controls color output (auto, always, never)
	Color string `yaml:"color" toml:"color"`
	// Progress shows a progress bar while copying
	Progress bool `yaml:"progress" toml:"progress"`
	// Verbose enables verbose output
	Verbose bool `yaml:"verbose" toml:"verbose"`
	// LogFormat is the log format (text, json)
	LogFormat string `yaml:"log_format" toml:"log_format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			Accuracy:    DefaultAccuracy,
			Ignore:      false,
			IgnoreFile:  ignore.DefaultFileName,
			MaxOpenDirs: walker.DefaultMaxOpenDirs,
		},
		Backup: BackupConfig{
			Enabled:    false,
			Location:   filepath.Join(util.BkupConfigPath(), "backups"),
			MaxBackups: 10,
		},
		Output: OutputConfig{
			Color:     "auto",
			Progress:  true,
			Verbose:   false,
			LogFormat: "text",
		},
	}
}

// configFileNames are looked up in the config directory, in order.
var configFileNames = []string{"config.yaml", "config.toml"}

// FilePath returns the path to the config file. When no file exists yet it
// returns the YAML location.
func FilePath() string {
	dir := util.BkupConfigPath()
	for _, name := range configFileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, configFileNames[0])
}

// Load loads the configuration from file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	cfg, err := LoadFromPath(FilePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// No config file, use defaults with environment overrides
			cfg = Default()
			cfg.applyEnvironment()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path. Files ending in
// .toml are decoded as TOML, everything else as YAML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is provided by caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	return c.SaveToPath(FilePath())
}

// SaveToPath writes the configuration to a specific path, as TOML when the
// path ends in .toml.
func (c *Config) SaveToPath(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return err
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = c.YAML(); err != nil {
			return err
		}
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(path, data, 0o644)
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern BKUP_<SECTION>_<KEY>.
// Unparseable values are ignored.
func (c *Config) applyEnvironment() {
	// Sync settings
	if v := os.Getenv("BKUP_SYNC_ACCURACY"); v != "" {
		if d, err := ParseAccuracy(v); err == nil {
			c.Sync.Accuracy = d
		}
	}
	if v := os.Getenv("BKUP_SYNC_IGNORE"); v != "" {
		c.Sync.Ignore = parseBool(v)
	}
	if v := os.Getenv("BKUP_SYNC_IGNORE_FILE"); v != "" {
		c.Sync.IgnoreFile = v
	}
	if v := os.Getenv("BKUP_SYNC_MAX_OPEN_DIRS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sync.MaxOpenDirs = n
		}
	}

	// Backup settings
	if v := os.Getenv("BKUP_BACKUP_ENABLED"); v != "" {
		c.Backup.Enabled = parseBool(v)
	}
	if v := os.Getenv("BKUP_BACKUP_LOCATION"); v != "" {
		c.Backup.Location = v
	}
	if v := os.Getenv("BKUP_BACKUP_MAX_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Backup.MaxBackups = n
		}
	}

	// Output settings
	if v := os.Getenv("BKUP_OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
	if v := os.Getenv("BKUP_OUTPUT_PROGRESS"); v != "" {
		c.Output.Progress = parseBool(v)
	}
	if v := os.Getenv("BKUP_OUTPUT_VERBOSE"); v != "" {
		c.Output.Verbose = parseBool(v)
	}
	if v := os.Getenv("BKUP_OUTPUT_LOG_FORMAT"); v != "" {
		c.Output.LogFormat = v
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// maxAccuracyMillis is the largest millisecond count a time.Duration holds.
const maxAccuracyMillis = math.MaxInt64 / int64(time.Millisecond)

// ParseAccuracy parses a timestamp tolerance. It accepts a Go duration
// ("2s", "500ms") or a bare integer number of milliseconds ("2000").
func ParseAccuracy(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty accuracy")
	}

	var d time.Duration
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms > maxAccuracyMillis {
			return 0, fmt.Errorf("invalid accuracy %q: exceeds %d milliseconds", s, maxAccuracyMillis)
		}
		d = time.Duration(ms) * time.Millisecond
	} else {
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid accuracy %q: want a duration like 2s or milliseconds", s)
		}
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid accuracy %q: must not be negative", s)
	}
	return d, nil
}

// BackupDir returns the expanded backup location, or "" when backups are
// disabled.
func (c *Config) BackupDir() string {
	if !c.Backup.Enabled {
		return ""
	}
	return util.ExpandPath(c.Backup.Location, "")
}

// Exists returns true if a config file exists.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}
