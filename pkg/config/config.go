package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/catwalk/pkg/walker"
	"github.com/spf13/viper"
)

// Config represents the complete catwalk configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority, applied by the command)
//  2. Environment variables (CATWALK_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Source and store sections follow the same pattern: a Type field selects
// the implementation and only the map of that name is decoded, by the
// implementation's factory.
type Config struct {
	// Program holds process-wide switches
	Program ProgramConfig `mapstructure:"program" yaml:"program"`

	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Image selects where the raw image bytes come from
	Image ImageConfig `mapstructure:"image" yaml:"image"`

	// Catalog selects the filesystem format and the inode store
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`

	// Walk holds the default walk parameters
	Walk WalkConfig `mapstructure:"walk" yaml:"walk"`

	// Output controls report rendering
	Output OutputConfig `mapstructure:"output" yaml:"output"`

	// Metrics controls Prometheus collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ProgramConfig holds process-wide switches.
type ProgramConfig struct {
	// Name is printed in reports and log lines
	Name string `mapstructure:"name" yaml:"name"`

	// Verbose forces DEBUG logging regardless of logging.level
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ImageConfig specifies the image source.
type ImageConfig struct {
	// Type specifies which source implementation to use
	// Valid values: file, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=file s3"`

	// Partition selects a partition slot of a file image (0 = whole image)
	Partition int `mapstructure:"partition" yaml:"partition" validate:"gte=0"`

	// Offset is a byte offset into the image where the filesystem starts.
	// It is applied after partition selection.
	Offset int64 `mapstructure:"offset" yaml:"offset" validate:"gte=0"`

	// File contains file-specific configuration
	// Only used when Type = "file"
	File map[string]any `mapstructure:"file" yaml:"file"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// CatalogConfig specifies the filesystem format and inode store.
type CatalogConfig struct {
	// Format is the filesystem format of the image
	// Valid values: hfsplus
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=hfsplus"`

	// Store specifies which inode store implementation to use
	// Valid values: memory, badger
	Store string `mapstructure:"store" yaml:"store" validate:"required,oneof=memory badger"`

	// Memory contains memory-specific configuration
	// Only used when Store = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Store = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// WalkConfig holds the default walk parameters.
type WalkConfig struct {
	// Start is the inode the walk starts from (0 = root directory)
	Start uint64 `mapstructure:"start" yaml:"start"`

	// Recurse descends into subdirectories
	Recurse bool `mapstructure:"recurse" yaml:"recurse"`

	// Alloc and Unalloc select entries by allocation state. Neither set
	// means both.
	Alloc   bool `mapstructure:"alloc" yaml:"alloc"`
	Unalloc bool `mapstructure:"unalloc" yaml:"unalloc"`

	// Dirs and Files select entries by kind. Neither set means both.
	Dirs  bool `mapstructure:"dirs" yaml:"dirs"`
	Files bool `mapstructure:"files" yaml:"files"`

	// MaxDepth bounds recursion: 0 lists the start directory only. Unset
	// means walker.DefaultMaxDepth.
	MaxDepth *int `mapstructure:"max_depth" yaml:"max_depth" validate:"omitempty,gte=0"`

	// LinearScan ignores the store's child index
	LinearScan bool `mapstructure:"linear_scan" yaml:"linear_scan"`
}

// Depth returns the configured depth bound.
func (w WalkConfig) Depth() int {
	if w.MaxDepth == nil {
		return walker.DefaultMaxDepth
	}
	return *w.MaxDepth
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	// Format is the report encoding
	// Valid values: text, json, yaml
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json yaml"`

	// Path is the report destination; empty or "-" is stdout
	Path string `mapstructure:"path" yaml:"path"`

	// FullPath prints paths instead of depth-indented names (text format)
	FullPath bool `mapstructure:"full_path" yaml:"full_path"`

	// UnicodeNames adds fully decoded names to structured reports
	UnicodeNames bool `mapstructure:"unicode_names" yaml:"unicode_names"`
}

// MetricsConfig controls Prometheus collection.
type MetricsConfig struct {
	// Enabled turns on collection
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Textfile is where the registry is written when the command exits,
	// in the node_exporter textfile format
	Textfile string `mapstructure:"textfile" yaml:"textfile"`

	// Listen, when set, serves /metrics on this address while the command
	// runs (e.g. ":9090")
	Listen string `mapstructure:"listen" yaml:"listen" validate:"omitempty,hostname_port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CATWALK_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the CATWALK_ prefix and underscores
	// Example: CATWALK_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("CATWALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only overrides keys viper already knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/catwalk/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envKeys are the scalar keys that can be set from the environment alone.
var envKeys = []string{
	"program.name", "program.verbose",
	"logging.level", "logging.format", "logging.output",
	"image.type", "image.partition", "image.offset",
	"catalog.format", "catalog.store",
	"walk.start", "walk.recurse", "walk.alloc", "walk.unalloc", "walk.dirs", "walk.files",
	"walk.max_depth", "walk.linear_scan",
	"output.format", "output.path", "output.full_path", "output.unicode_names",
	"metrics.enabled", "metrics.textfile", "metrics.listen",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			// A missing config file is acceptable; defaults apply
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "catwalk")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "catwalk")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
