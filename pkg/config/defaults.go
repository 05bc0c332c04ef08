package config

import (
	"strings"

	"github.com/marmos91/catwalk/pkg/walker"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Source- and store-specific defaults are handled by the factories
func ApplyDefaults(cfg *Config) {
	applyProgramDefaults(&cfg.Program)
	applyLoggingDefaults(&cfg.Logging, cfg.Program.Verbose)
	applyImageDefaults(&cfg.Image)
	applyCatalogDefaults(&cfg.Catalog)
	applyWalkDefaults(&cfg.Walk)
	applyOutputDefaults(&cfg.Output)
}

func applyProgramDefaults(cfg *ProgramConfig) {
	if cfg.Name == "" {
		cfg.Name = "catwalk"
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig, verbose bool) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if verbose {
		cfg.Level = "DEBUG"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		// Reports go to stdout
		cfg.Output = "stderr"
	}
}

func applyImageDefaults(cfg *ImageConfig) {
	if cfg.Type == "" {
		cfg.Type = "file"
	}
	if cfg.File == nil {
		cfg.File = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
}

func applyCatalogDefaults(cfg *CatalogConfig) {
	if cfg.Format == "" {
		cfg.Format = "hfsplus"
	}
	if cfg.Store == "" {
		cfg.Store = "memory"
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
}

func applyWalkDefaults(cfg *WalkConfig) {
	if cfg.MaxDepth == nil {
		depth := walker.DefaultMaxDepth
		cfg.MaxDepth = &depth
	}
}

func applyOutputDefaults(cfg *OutputConfig) {
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Walk: WalkConfig{
			Recurse: true,
		},
		Catalog: CatalogConfig{
			Badger: map[string]any{
				"db_path":        "/tmp/catwalk-catalog",
				"block_cache_mb": 64,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
