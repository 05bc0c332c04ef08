package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// sectionComments are written above each top-level key of a generated file.
var sectionComments = map[string]string{
	"program": "Process-wide switches. verbose forces DEBUG logging.",
	"logging": "Logging: level DEBUG|INFO|WARN|ERROR, format text|json,\noutput stdout|stderr|<file path>.",
	"image":   "Image source: type file|s3. partition selects a partition slot\n(0 = whole image), offset skips bytes before the filesystem.",
	"catalog": "Catalog: format hfsplus, store memory|badger.",
	"walk":    "Default walk: start inode (0 = root), recursion, allocation and kind\nfilters (none set = all), depth bound.",
	"output":  "Report: format text|json|yaml, path (empty or - = stdout).",
	"metrics": "Prometheus metrics, written to textfile when the command exits and\nserved on listen while it runs.",
}

// InitConfig writes a default configuration file to the default location
// and returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with a header and one
// comment per section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	if doc.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(doc.Content); i += 2 {
			key := doc.Content[i]
			if c, ok := sectionComments[key.Value]; ok {
				key.HeadComment = c
			}
		}
	}
	root := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: "catwalk configuration file\nEnvironment variables override these values, e.g. CATWALK_LOGGING_LEVEL=DEBUG.",
		Content:     []*yaml.Node{&doc},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
