package runtime

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lexcodex/schemals/framework/workspace"
)

// DefaultConfigName is the workspace config file looked up in the root.
const DefaultConfigName = ".schemals.yaml"

// Config captures every knob shared by the serve, inspect and index
// commands.
type Config struct {
	Workspace  string
	ConfigPath string
	// LogPath mirrors logs into a file; stderr is always written.
	LogPath   string
	LogLevel  string
	LogFormat string
	Scan      bool
	Watch     bool
	Include   []string
	Exclude   []string
	Workers   int
	// MetricsAddr serves /metrics and the status API when set.
	MetricsAddr  string
	SnapshotPath string
	SymbolLimit  int
}

// DefaultConfig infers defaults from the current working directory. Errors
// from os.Getwd are ignored so callers can override manually.
func DefaultConfig() Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return Config{
		Workspace:    cwd,
		ConfigPath:   filepath.Join(cwd, DefaultConfigName),
		LogLevel:     "info",
		LogFormat:    "text",
		Scan:         true,
		Watch:        true,
		SnapshotPath: filepath.Join(cwd, ".schemals", "index.db"),
		SymbolLimit:  256,
	}
}

// Normalize makes every filesystem path absolute and fills missing defaults.
func (c *Config) Normalize() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace path required")
	}
	absWorkspace, err := filepath.Abs(c.Workspace)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	c.Workspace = absWorkspace
	if c.ConfigPath == "" {
		c.ConfigPath = filepath.Join(c.Workspace, DefaultConfigName)
	}
	if !filepath.IsAbs(c.ConfigPath) {
		c.ConfigPath = filepath.Join(c.Workspace, c.ConfigPath)
	}
	if c.LogPath != "" && !filepath.IsAbs(c.LogPath) {
		c.LogPath = filepath.Join(c.Workspace, c.LogPath)
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = filepath.Join(c.Workspace, ".schemals", "index.db")
	}
	if !filepath.IsAbs(c.SnapshotPath) {
		c.SnapshotPath = filepath.Join(c.Workspace, c.SnapshotPath)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "":
		c.LogFormat = "text"
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.SymbolLimit < 0 {
		c.SymbolLimit = 0
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return level, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

// WorkspaceOptions returns the scan settings for the workspace package.
func (c Config) WorkspaceOptions() workspace.Options {
	return workspace.Options{Include: c.Include, Exclude: c.Exclude, Workers: c.Workers}
}

// WorkspaceConfig is the on-disk .schemals.yaml. Unset keys keep the
// command-line values.
type WorkspaceConfig struct {
	LogLevel     string   `yaml:"log_level,omitempty"`
	LogFormat    string   `yaml:"log_format,omitempty"`
	Scan         *bool    `yaml:"scan,omitempty"`
	Watch        *bool    `yaml:"watch,omitempty"`
	Include      []string `yaml:"include,omitempty"`
	Exclude      []string `yaml:"exclude,omitempty"`
	Workers      int      `yaml:"workers,omitempty"`
	MetricsAddr  string   `yaml:"metrics_addr,omitempty"`
	SnapshotPath string   `yaml:"snapshot_path,omitempty"`
	SymbolLimit  int      `yaml:"symbol_limit,omitempty"`
}

// LoadWorkspaceConfig loads the workspace configuration from disk.
func LoadWorkspaceConfig(path string) (WorkspaceConfig, error) {
	if path == "" {
		return WorkspaceConfig{}, fmt.Errorf("config path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return WorkspaceConfig{}, err
	}
	var cfg WorkspaceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return WorkspaceConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveWorkspaceConfig writes cfg to path, creating parent directories.
func SaveWorkspaceConfig(path string, cfg WorkspaceConfig) error {
	if path == "" {
		return fmt.Errorf("config path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Apply copies the keys set in wc over c.
func (c *Config) Apply(wc WorkspaceConfig) {
	if wc.LogLevel != "" {
		c.LogLevel = wc.LogLevel
	}
	if wc.LogFormat != "" {
		c.LogFormat = wc.LogFormat
	}
	if wc.Scan != nil {
		c.Scan = *wc.Scan
	}
	if wc.Watch != nil {
		c.Watch = *wc.Watch
	}
	if len(wc.Include) > 0 {
		c.Include = wc.Include
	}
	if len(wc.Exclude) > 0 {
		c.Exclude = wc.Exclude
	}
	if wc.Workers > 0 {
		c.Workers = wc.Workers
	}
	if wc.MetricsAddr != "" {
		c.MetricsAddr = wc.MetricsAddr
	}
	if wc.SnapshotPath != "" {
		c.SnapshotPath = wc.SnapshotPath
	}
	if wc.SymbolLimit > 0 {
		c.SymbolLimit = wc.SymbolLimit
	}
}
